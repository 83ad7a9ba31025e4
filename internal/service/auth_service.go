package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/voice-news-api/internal/models"
	"github.com/noah-isme/voice-news-api/internal/repository"
	"github.com/noah-isme/voice-news-api/internal/security"
	appErrors "github.com/noah-isme/voice-news-api/pkg/errors"
)

type authUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindConflicts(ctx context.Context, username, email, phone, excludeID string) (repository.UserConflicts, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

type tokenIssuer interface {
	CreatePair(ctx context.Context, subject string) (*models.TokenPair, error)
	Rotate(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Revoke(ctx context.Context, refreshToken string) error
	RevokeAll(ctx context.Context, subject string) (int, error)
	ActiveSessions(ctx context.Context, subject string) (int, error)
	Authenticate(accessToken string) (*security.Claims, error)
}

type auditRecorder interface {
	Record(ctx context.Context, entry models.AuditLog)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	BcryptCost int
}

// AuthService provides authentication use cases on top of the token service.
type AuthService struct {
	repo      authUserRepository
	tokens    tokenIssuer
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, tokens tokenIssuer, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{repo: repo, tokens: tokens, audit: audit, validator: validate, logger: logger, config: config}
}

// MapTokenError converts token service failures into API errors. Every verification
// failure collapses into one 401 so callers cannot tell forged from expired or
// revoked; store outages become a retryable 503.
func MapTokenError(err error) error {
	switch ClassifyTokenError(err) {
	case TokenFailureNone:
		return nil
	case TokenFailureStoreUnavailable:
		return appErrors.Wrap(err, appErrors.ErrAuthUnavailable.Code, appErrors.ErrAuthUnavailable.Status, appErrors.ErrAuthUnavailable.Message)
	case TokenFailureInternal:
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return appErr
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to process token")
	default:
		return appErrors.Wrap(err, appErrors.ErrTokenInvalid.Code, appErrors.ErrTokenInvalid.Status, appErrors.ErrTokenInvalid.Message)
	}
}

// ResolveClaims supplies access token claims for a user and refuses issuance for
// users that are gone or deactivated.
func (s *AuthService) ResolveClaims(ctx context.Context, subject string) (map[string]interface{}, error) {
	user, err := s.repo.FindByID(ctx, subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user no longer exists", security.ErrRevoked)
		}
		return nil, fmt.Errorf("load token subject: %w", err)
	}
	if !user.Active {
		return nil, fmt.Errorf("%w: user is inactive", security.ErrRevoked)
	}
	return map[string]interface{}{
		"username": user.Username,
		"role":     string(user.Role),
	}, nil
}

// Register creates a regular account and signs it in.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid register payload")
	}

	conflicts, err := s.repo.FindConflicts(ctx, req.Username, req.Email, req.Phone, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check user uniqueness")
	}
	if conflicts.Any() {
		return nil, conflictError(conflicts)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		Phone:        optionalString(req.Phone),
		Gender:       req.Gender,
		Age:          req.Age,
		Height:       req.Height,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	// The account is kept when issuance fails; the client signs in instead of
	// registering again.
	pair, err := s.tokens.CreatePair(ctx, user.ID)
	if err != nil {
		s.record(ctx, user.ID, models.AuditActionRegister, `{"status":"registered","tokens":"unavailable"}`, req.IP, req.UserAgent)
		mapped := appErrors.FromError(MapTokenError(err))
		if mapped.Code == appErrors.ErrAuthUnavailable.Code {
			return nil, appErrors.Wrap(err, mapped.Code, mapped.Status, "account created but sign-in is temporarily unavailable, log in to continue")
		}
		return nil, mapped
	}

	s.record(ctx, user.ID, models.AuditActionRegister, `{"status":"registered"}`, req.IP, req.UserAgent)

	return &models.AuthResponse{TokenPair: *pair, User: user.Info()}, nil
}

// Login authenticates a user and returns issued tokens.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}

	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	pair, err := s.tokens.CreatePair(ctx, user.ID)
	if err != nil {
		return nil, MapTokenError(err)
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.record(ctx, user.ID, models.AuditActionLogin, `{"status":"success"}`, req.IP, req.UserAgent)

	return &models.AuthResponse{TokenPair: *pair, User: user.Info()}, nil
}

// Refresh rotates a refresh token into a new pair.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	pair, err := s.tokens.Rotate(ctx, req.RefreshToken)
	if err != nil {
		s.logger.Info("refresh rejected", zap.String("reason", string(ClassifyTokenError(err))))
		return nil, MapTokenError(err)
	}

	if claims, err := s.tokens.Authenticate(pair.AccessToken); err == nil {
		s.record(ctx, claims.Subject, models.AuditActionRefresh, `{"refresh":"rotated"}`, req.IP, req.UserAgent)
	}

	return pair, nil
}

// Logout revokes the presented refresh token. Unknown or invalid tokens succeed.
func (s *AuthService) Logout(ctx context.Context, userID string, req models.LogoutRequest) error {
	if strings.TrimSpace(req.RefreshToken) != "" {
		if err := s.tokens.Revoke(ctx, req.RefreshToken); err != nil {
			return MapTokenError(err)
		}
	}

	if userID != "" {
		s.record(ctx, userID, models.AuditActionLogout, `{"status":"logout"}`, req.IP, req.UserAgent)
	}
	return nil
}

// LogoutAll revokes every refresh token of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID, ip, userAgent string) (*models.RevokeAllResult, error) {
	removed, err := s.tokens.RevokeAll(ctx, userID)
	if err != nil {
		return nil, MapTokenError(err)
	}

	s.record(ctx, userID, models.AuditActionLogoutAll, fmt.Sprintf(`{"revoked":%d}`, removed), ip, userAgent)
	return &models.RevokeAllResult{Revoked: removed}, nil
}

// Sessions reports how many refresh tokens of the user are live.
func (s *AuthService) Sessions(ctx context.Context, userID string) (*models.SessionSummary, error) {
	count, err := s.tokens.ActiveSessions(ctx, userID)
	if err != nil {
		return nil, MapTokenError(err)
	}
	return &models.SessionSummary{UserID: userID, ActiveSessions: count}, nil
}

// Me returns the profile of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// ChangePassword changes the password and signs the user out everywhere.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}

	// A retry after a failed revocation finds the new password already stored
	// and only has to finish signing the user out.
	alreadyChanged := false
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.NewPassword)) != nil {
			return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
		}
		alreadyChanged = true
	}

	if !alreadyChanged {
		newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), s.config.BcryptCost)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		if err := s.repo.UpdatePassword(ctx, userID, string(newHash), time.Now().UTC()); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
		}
	}

	if _, err := s.tokens.RevokeAll(ctx, userID); err != nil {
		s.logger.Warn("password changed but refresh tokens not revoked", zap.String("user_id", userID), zap.Error(err))
		return MapTokenError(err)
	}

	s.record(ctx, userID, models.AuditActionPasswordChange, `{"status":"changed"}`, "", "")
	return nil
}

func (s *AuthService) record(ctx context.Context, userID, action, values, ip, userAgent string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  []byte(values),
		IPAddress:  ip,
		UserAgent:  userAgent,
	})
}

func conflictError(conflicts repository.UserConflicts) error {
	var fields []string
	if conflicts.Username {
		fields = append(fields, "username")
	}
	if conflicts.Email {
		fields = append(fields, "email")
	}
	if conflicts.Phone {
		fields = append(fields, "phone")
	}
	return appErrors.Clone(appErrors.ErrConflict, strings.Join(fields, ", ")+" already in use")
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
