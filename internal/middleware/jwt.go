package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/voice-news-api/internal/models"
	"github.com/noah-isme/voice-news-api/internal/security"
	"github.com/noah-isme/voice-news-api/internal/service"
	appErrors "github.com/noah-isme/voice-news-api/pkg/errors"
	"github.com/noah-isme/voice-news-api/pkg/response"
)

// ContextUserKey is the gin context key storing the authenticated principal.
const ContextUserKey = "currentUser"

// AccessTokenVerifier verifies bearer access tokens without store I/O.
type AccessTokenVerifier interface {
	Authenticate(accessToken string) (*security.Claims, error)
}

// Authenticate attaches the principal of a valid bearer token to the request. It
// never rejects a request; RequireAuth and RBAC make the decision downstream.
func Authenticate(verifier AccessTokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}

		claims, err := verifier.Authenticate(token)
		if err != nil {
			logger.Debug("bearer token rejected",
				zap.String("reason", string(service.ClassifyTokenError(err))),
				zap.String("path", c.Request.URL.Path),
			)
			c.Next()
			return
		}

		c.Set(ContextUserKey, principalFromClaims(claims))
		c.Next()
	}
}

// RequireAuth aborts with 401 when the gate attached no principal.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentPrincipal(c); !ok {
			response.Error(c, appErrors.ErrTokenInvalid)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentPrincipal returns the principal attached by Authenticate.
func CurrentPrincipal(c *gin.Context) (*models.Principal, bool) {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	principal, ok := value.(*models.Principal)
	return principal, ok && principal != nil
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func principalFromClaims(claims *security.Claims) *models.Principal {
	var expiresAt time.Time
	if !claims.ExpiresAt.IsZero() {
		expiresAt = claims.ExpiresAt.UTC()
	}
	return &models.Principal{
		UserID:    claims.Subject,
		Username:  claims.StringClaim("username"),
		Role:      models.UserRole(claims.StringClaim("role")),
		TokenID:   claims.TokenID,
		ExpiresAt: expiresAt,
	}
}
