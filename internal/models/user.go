package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin  UserRole = "ADMIN"
	RoleEditor UserRole = "EDITOR"
	RoleUser   UserRole = "USER"
)

// Gender is an optional profile attribute.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	Email        string     `db:"email" json:"email"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	Gender       *Gender    `db:"gender" json:"gender,omitempty"`
	Age          *int       `db:"age" json:"age,omitempty"`
	Height       *int       `db:"height" json:"height,omitempty"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Info returns the public projection of the user.
func (u *User) Info() UserInfo {
	return UserInfo{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// CreateUserRequest is the admin payload for creating accounts.
type CreateUserRequest struct {
	Username string   `json:"username" validate:"required,min=3,max=50"`
	Password string   `json:"password" validate:"required,min=6,max=72"`
	Email    string   `json:"email" validate:"required,email,max=100"`
	Phone    string   `json:"phone" validate:"omitempty,max=20"`
	Gender   *Gender  `json:"gender" validate:"omitempty,oneof=MALE FEMALE OTHER"`
	Age      *int     `json:"age" validate:"omitempty,min=0,max=150"`
	Height   *int     `json:"height" validate:"omitempty,min=0,max=300"`
	Role     UserRole `json:"role" validate:"required,oneof=ADMIN EDITOR USER"`
}

// UpdateUserRequest updates mutable profile fields. Role and Active are honoured for admins only.
type UpdateUserRequest struct {
	Email    *string   `json:"email" validate:"omitempty,email,max=100"`
	Phone    *string   `json:"phone" validate:"omitempty,max=20"`
	Gender   *Gender   `json:"gender" validate:"omitempty,oneof=MALE FEMALE OTHER"`
	Age      *int      `json:"age" validate:"omitempty,min=0,max=150"`
	Height   *int      `json:"height" validate:"omitempty,min=0,max=300"`
	Password *string   `json:"password" validate:"omitempty,min=6,max=72"`
	Role     *UserRole `json:"role" validate:"omitempty,oneof=ADMIN EDITOR USER"`
	Active   *bool     `json:"active"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
