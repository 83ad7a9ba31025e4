package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/voice-news-api/internal/models"
	"github.com/noah-isme/voice-news-api/internal/repository"
	appErrors "github.com/noah-isme/voice-news-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindConflicts(ctx context.Context, username, email, phone, excludeID string) (repository.UserConflicts, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

type sessionRevoker interface {
	RevokeAll(ctx context.Context, subject string) (int, error)
}

// UserService handles user management workflows.
type UserService struct {
	repo       userRepository
	sessions   sessionRevoker
	audit      auditRecorder
	validator  *validator.Validate
	logger     *zap.Logger
	bcryptCost int
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, sessions sessionRevoker, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	cost := config.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserService{repo: repo, sessions: sessions, audit: audit, validator: validate, logger: logger, bcryptCost: cost}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page, pageSize := pageDefaults(filter.Page, filter.PageSize)
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new user.
func (s *UserService) Create(ctx context.Context, req models.CreateUserRequest, meta models.RequestMeta) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	conflicts, err := s.repo.FindConflicts(ctx, req.Username, req.Email, req.Phone, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check user uniqueness")
	}
	if conflicts.Any() {
		return nil, conflictError(conflicts)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		Phone:        optionalString(req.Phone),
		Gender:       req.Gender,
		Age:          req.Age,
		Height:       req.Height,
		Role:         req.Role,
		Active:       true,
		PasswordHash: string(passwordHash),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "username": user.Username, "role": user.Role})
	s.record(ctx, meta, models.AuditActionUserCreate, user.ID, nil, newPayload)

	return user, nil
}

// Update modifies the user attributes. Only admins may change role or active flag.
// A password change signs the user out of every device.
func (s *UserService) Update(ctx context.Context, id string, req models.UpdateUserRequest, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	if meta.ActorRole != models.RoleAdmin && (req.Role != nil || req.Active != nil) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can change role or status")
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var email, phone string
	if req.Email != nil {
		email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Phone != nil {
		phone = strings.TrimSpace(*req.Phone)
	}
	if email != "" || phone != "" {
		conflicts, err := s.repo.FindConflicts(ctx, "", email, phone, user.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check user uniqueness")
		}
		if conflicts.Any() {
			return nil, conflictError(conflicts)
		}
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role, "active": user.Active})

	if req.Email != nil {
		user.Email = email
	}
	if req.Phone != nil {
		user.Phone = optionalString(phone)
	}
	if req.Gender != nil {
		user.Gender = req.Gender
	}
	if req.Age != nil {
		user.Age = req.Age
	}
	if req.Height != nil {
		user.Height = req.Height
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	passwordChanged := false
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.bcryptCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		user.PasswordHash = string(hash)
		passwordChanged = true
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"email": user.Email, "role": user.Role, "active": user.Active, "password_changed": passwordChanged})
	s.record(ctx, meta, models.AuditActionUserUpdate, user.ID, oldPayload, newPayload)

	// Deactivated users are refused at refresh time, so only a password change
	// depends on the revocation succeeding.
	switch {
	case passwordChanged:
		if err := s.revokeSessions(ctx, user.ID); err != nil {
			return nil, MapTokenError(err)
		}
	case !user.Active:
		s.revokeSessionsBestEffort(ctx, user.ID)
	}

	return user, nil
}

// Delete performs a soft delete (inactive) on a user and revokes their sessions.
func (s *UserService) Delete(ctx context.Context, id string, meta models.RequestMeta) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.revokeSessionsBestEffort(ctx, user.ID)

	oldPayload, _ := json.Marshal(map[string]interface{}{"active": user.Active})
	newPayload, _ := json.Marshal(map[string]interface{}{"active": false})
	s.record(ctx, meta, models.AuditActionUserDelete, user.ID, oldPayload, newPayload)

	return nil
}

func (s *UserService) revokeSessions(ctx context.Context, userID string) error {
	if s.sessions == nil {
		return nil
	}
	if _, err := s.sessions.RevokeAll(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke user sessions", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

func (s *UserService) revokeSessionsBestEffort(ctx context.Context, userID string) {
	_ = s.revokeSessions(ctx, userID)
}

func (s *UserService) record(ctx context.Context, meta models.RequestMeta, action, resourceID string, oldValues, newValues []byte) {
	if s.audit == nil {
		return
	}
	entry := models.AuditLog{
		Action:     action,
		Resource:   "users",
		ResourceID: &resourceID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if meta.ActorID != "" {
		actor := meta.ActorID
		entry.UserID = &actor
	}
	s.audit.Record(ctx, entry)
}
