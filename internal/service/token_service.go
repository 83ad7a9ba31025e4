package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/voice-news-api/internal/models"
	"github.com/noah-isme/voice-news-api/internal/repository"
	"github.com/noah-isme/voice-news-api/internal/security"
)

type refreshTokenStore interface {
	Put(ctx context.Context, tokenID, subject string, ttl time.Duration) error
	LookupOwner(ctx context.Context, tokenID string) (string, error)
	Delete(ctx context.Context, tokenID, subject string) (bool, error)
	DeleteAllForSubject(ctx context.Context, subject string) (int, error)
	ActiveTokenIDs(ctx context.Context, subject string) ([]string, error)
}

// TokenOperationRecorder counts token service outcomes.
type TokenOperationRecorder interface {
	RecordTokenOperation(operation, result string)
}

// ClaimsResolver supplies the extra access token claims for a subject. Returning an
// error wrapping security.ErrRevoked refuses issuance for that subject.
type ClaimsResolver func(ctx context.Context, subject string) (map[string]interface{}, error)

// TokenFailure labels a token error for logs and metrics.
type TokenFailure string

const (
	TokenFailureNone             TokenFailure = ""
	TokenFailureMalformed        TokenFailure = "malformed"
	TokenFailureSignatureInvalid TokenFailure = "signature_invalid"
	TokenFailureExpired          TokenFailure = "expired"
	TokenFailureRevoked          TokenFailure = "revoked"
	TokenFailureStoreUnavailable TokenFailure = "store_unavailable"
	TokenFailureInternal         TokenFailure = "internal"
)

// ClassifyTokenError maps an error returned by TokenService onto its failure label.
func ClassifyTokenError(err error) TokenFailure {
	switch {
	case err == nil:
		return TokenFailureNone
	case errors.Is(err, repository.ErrStoreUnavailable):
		return TokenFailureStoreUnavailable
	case errors.Is(err, security.ErrRevoked):
		return TokenFailureRevoked
	case errors.Is(err, security.ErrExpired):
		return TokenFailureExpired
	case errors.Is(err, security.ErrSignatureInvalid):
		return TokenFailureSignatureInvalid
	case errors.Is(err, security.ErrMalformed):
		return TokenFailureMalformed
	default:
		return TokenFailureInternal
	}
}

// TokenServiceConfig defines token lifetimes and rotation semantics.
type TokenServiceConfig struct {
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	StrictRotation bool
}

// TokenService issues, rotates and revokes token pairs. It keeps no in-process
// session state; refresh token liveness lives in the store.
type TokenService struct {
	codec    *security.Codec
	store    refreshTokenStore
	logger   *zap.Logger
	config   TokenServiceConfig
	resolver ClaimsResolver
	metrics  TokenOperationRecorder

	now   func() time.Time
	newID func() string
}

// NewTokenService constructs a TokenService.
func NewTokenService(codec *security.Codec, store refreshTokenStore, logger *zap.Logger, config TokenServiceConfig) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		codec:  codec,
		store:  store,
		logger: logger,
		config: config,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// SetClaimsResolver installs the hook used to enrich access tokens.
func (s *TokenService) SetClaimsResolver(resolver ClaimsResolver) {
	s.resolver = resolver
}

// SetMetrics installs the outcome recorder.
func (s *TokenService) SetMetrics(metrics TokenOperationRecorder) {
	s.metrics = metrics
}

// AccessTTL returns the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration {
	return s.config.AccessTTL
}

// CreatePair issues a new access and refresh token for subject. No pair is returned
// unless the refresh record was stored.
func (s *TokenService) CreatePair(ctx context.Context, subject string) (pair *models.TokenPair, err error) {
	defer func() { s.record("create", err) }()

	extra, err := s.resolveClaims(ctx, subject)
	if err != nil {
		return nil, err
	}
	pair, _, err = s.issue(ctx, subject, extra)
	return pair, err
}

// ValidateRefresh verifies a refresh token and checks that its record is still live.
func (s *TokenService) ValidateRefresh(ctx context.Context, refreshToken string) (claims *security.Claims, err error) {
	defer func() { s.record("validate", err) }()
	return s.validateRefresh(ctx, refreshToken)
}

// Rotate exchanges a live refresh token for a new pair and retires the old token.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (pair *models.TokenPair, err error) {
	defer func() { s.record("rotate", err) }()

	claims, err := s.validateRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	extra, err := s.resolveClaims(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	pair, newRefreshID, err := s.issue(ctx, claims.Subject, extra)
	if err != nil {
		return nil, err
	}

	existed, err := s.store.Delete(ctx, claims.TokenID, claims.Subject)
	if err != nil {
		s.logger.Warn("failed to retire rotated refresh token",
			zap.String("subject", claims.Subject),
			zap.String("token_id", claims.TokenID),
			zap.Error(err),
		)
		return pair, nil
	}

	if !existed && s.config.StrictRotation {
		// Another rotation of the same token won the delete.
		if _, cleanupErr := s.store.Delete(ctx, newRefreshID, claims.Subject); cleanupErr != nil {
			s.logger.Warn("failed to discard losing rotation",
				zap.String("subject", claims.Subject),
				zap.String("token_id", newRefreshID),
				zap.Error(cleanupErr),
			)
		}
		return nil, fmt.Errorf("%w: refresh token already rotated", security.ErrRevoked)
	}

	return pair, nil
}

// Revoke removes the record of a refresh token. Tokens that fail verification are
// already unusable, so they are ignored.
func (s *TokenService) Revoke(ctx context.Context, refreshToken string) (err error) {
	defer func() { s.record("revoke", err) }()

	claims, verifyErr := s.codec.Verify(refreshToken)
	if verifyErr == nil && claims.Kind != security.KindRefresh {
		verifyErr = fmt.Errorf("%w: not a refresh token", security.ErrMalformed)
	}
	if verifyErr != nil {
		s.logger.Debug("ignoring revoke of unverifiable token",
			zap.String("reason", string(ClassifyTokenError(verifyErr))),
		)
		return nil
	}

	_, err = s.store.Delete(ctx, claims.TokenID, claims.Subject)
	return err
}

// RevokeAll removes every refresh token of subject. Issued access tokens stay valid
// until they expire.
func (s *TokenService) RevokeAll(ctx context.Context, subject string) (removed int, err error) {
	defer func() { s.record("revoke_all", err) }()
	return s.store.DeleteAllForSubject(ctx, subject)
}

// Authenticate verifies an access token without touching the store.
func (s *TokenService) Authenticate(accessToken string) (claims *security.Claims, err error) {
	defer func() { s.record("authenticate", err) }()

	claims, err = s.codec.Verify(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.Kind != security.KindAccess {
		return nil, fmt.Errorf("%w: not an access token", security.ErrMalformed)
	}
	return claims, nil
}

// ActiveSessions counts the live refresh tokens of subject.
func (s *TokenService) ActiveSessions(ctx context.Context, subject string) (int, error) {
	ids, err := s.store.ActiveTokenIDs(ctx, subject)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *TokenService) validateRefresh(ctx context.Context, refreshToken string) (*security.Claims, error) {
	claims, err := s.codec.Verify(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.Kind != security.KindRefresh {
		return nil, fmt.Errorf("%w: not a refresh token", security.ErrMalformed)
	}

	owner, err := s.store.LookupOwner(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return nil, fmt.Errorf("%w: refresh token is no longer live", security.ErrRevoked)
		}
		return nil, err
	}
	if owner != claims.Subject {
		s.logger.Warn("refresh record owner mismatch",
			zap.String("token_id", claims.TokenID),
			zap.String("subject", claims.Subject),
		)
		return nil, fmt.Errorf("%w: refresh token owner mismatch", security.ErrRevoked)
	}
	return claims, nil
}

func (s *TokenService) resolveClaims(ctx context.Context, subject string) (map[string]interface{}, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", security.ErrMalformed)
	}
	if s.resolver == nil {
		return nil, nil
	}
	return s.resolver(ctx, subject)
}

func (s *TokenService) issue(ctx context.Context, subject string, extra map[string]interface{}) (*models.TokenPair, string, error) {
	issuedAt := s.now().UTC()
	refreshID := s.newID()

	accessToken, err := s.codec.Mint(security.KindAccess, subject, s.newID(), issuedAt, s.config.AccessTTL, extra)
	if err != nil {
		return nil, "", fmt.Errorf("mint access token: %w", err)
	}
	refreshToken, err := s.codec.Mint(security.KindRefresh, subject, refreshID, issuedAt, s.config.RefreshTTL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("mint refresh token: %w", err)
	}

	if err := s.store.Put(ctx, refreshID, subject, s.config.RefreshTTL); err != nil {
		return nil, "", err
	}

	return &models.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        models.TokenTypeBearer,
		ExpiresIn:        int64(s.config.AccessTTL.Seconds()),
		RefreshExpiresIn: int64(s.config.RefreshTTL.Seconds()),
		IssuedAt:         issuedAt,
	}, refreshID, nil
}

func (s *TokenService) record(operation string, err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = string(ClassifyTokenError(err))
	}
	s.metrics.RecordTokenOperation(operation, result)
}
