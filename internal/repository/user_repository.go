package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/voice-news-api/internal/models"
)

const userColumns = `id, username, email, phone, gender, age, height, password_hash, role, active, last_login, created_at, updated_at`

// UserRepository provides database access for user management.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByUsername returns a user by login name. sql.ErrNoRows is returned unwrapped.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, "username", username)
}

// FindByID returns a user by identifier. sql.ErrNoRows is returned unwrapped.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, "id", id)
}

// findOne looks a user up by a trusted column name.
func (r *UserRepository) findOne(ctx context.Context, column, value string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1 LIMIT 1`
	user := new(models.User)
	err := r.db.GetContext(ctx, user, query, value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("find user by %s: %w", column, err)
	}
	return user, nil
}

// UserConflicts reports which unique fields are already taken.
type UserConflicts struct {
	Username bool `db:"username_taken"`
	Email    bool `db:"email_taken"`
	Phone    bool `db:"phone_taken"`
}

// Any reports whether at least one field collides.
func (c UserConflicts) Any() bool {
	return c.Username || c.Email || c.Phone
}

// FindConflicts checks username, email and phone uniqueness, ignoring excludeID.
func (r *UserRepository) FindConflicts(ctx context.Context, username, email, phone, excludeID string) (UserConflicts, error) {
	const query = `SELECT
		EXISTS (SELECT 1 FROM users WHERE $1 <> '' AND username = $1 AND id::text <> $4) AS username_taken,
		EXISTS (SELECT 1 FROM users WHERE $2 <> '' AND LOWER(email) = LOWER($2) AND id::text <> $4) AS email_taken,
		EXISTS (SELECT 1 FROM users WHERE $3 <> '' AND phone = $3 AND id::text <> $4) AS phone_taken`
	var conflicts UserConflicts
	if err := r.db.GetContext(ctx, &conflicts, query, username, email, phone, excludeID); err != nil {
		return UserConflicts{}, fmt.Errorf("check user conflicts: %w", err)
	}
	return conflicts, nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

var userSortColumns = map[string]struct{}{
	"username":   {},
	"email":      {},
	"created_at": {},
	"updated_at": {},
}

// userWhere accumulates positional predicates for the users table.
type userWhere struct {
	clauses []string
	args    []interface{}
}

// add appends a predicate; every "?" in expr refers to the same new argument.
func (w *userWhere) add(expr string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(expr, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *userWhere) String() string {
	if len(w.clauses) == 0 {
		return "FROM users"
	}
	return "FROM users WHERE " + strings.Join(w.clauses, " AND ")
}

// List returns one page of users matching the filter together with the total match count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var where userWhere
	if filter.Role != nil {
		where.add("role = ?", *filter.Role)
	}
	if filter.Active != nil {
		where.add("active = ?", *filter.Active)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		where.add("(LOWER(username) LIKE ? OR LOWER(email) LIKE ?)", "%"+strings.ToLower(term)+"%")
	}

	orderBy := "created_at"
	if _, ok := userSortColumns[filter.SortBy]; ok {
		orderBy = filter.SortBy
	}
	direction := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		direction = "ASC"
	}
	page, pageSize := normalisePage(filter.Page, filter.PageSize)

	from := where.String()
	users := make([]models.User, 0, pageSize)
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d",
		userColumns, from, orderBy, direction, pageSize, (page-1)*pageSize)
	if err := r.db.SelectContext(ctx, &users, listQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+from, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, username, email, phone, gender, age, height, password_hash, role, active, created_at, updated_at)
		VALUES (:id, :username, :email, :phone, :gender, :age, :height, :password_hash, :role, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update updates mutable fields of a user.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	const query = `UPDATE users SET email = :email, phone = :phone, gender = :gender, age = :age, height = :height,
		password_hash = :password_hash, role = :role, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// Delete performs a soft delete by marking the user inactive.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `UPDATE users SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func normalisePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
