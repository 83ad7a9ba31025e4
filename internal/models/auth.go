package models

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RegisterRequest creates a regular account and signs it in.
type RegisterRequest struct {
	Username  string  `json:"username" validate:"required,min=3,max=50"`
	Password  string  `json:"password" validate:"required,min=6,max=72"`
	Email     string  `json:"email" validate:"required,email,max=100"`
	Phone     string  `json:"phone" validate:"omitempty,max=20"`
	Gender    *Gender `json:"gender" validate:"omitempty,oneof=MALE FEMALE OTHER"`
	Age       *int    `json:"age" validate:"omitempty,min=0,max=150"`
	Height    *int    `json:"height" validate:"omitempty,min=0,max=300"`
	IP        string  `json:"-"`
	UserAgent string  `json:"-"`
}

// AuthResponse returns the issued tokens and user info.
type AuthResponse struct {
	TokenPair
	User UserInfo `json:"user"`
}

// RefreshTokenRequest exchanges a refresh token for a new token pair.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// LogoutRequest carries the refresh token to revoke. An empty token still succeeds.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=72"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
}
