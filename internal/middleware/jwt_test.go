package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/voice-news-api/internal/models"
	"github.com/noah-isme/voice-news-api/internal/security"
)

type stubVerifier struct {
	tokens map[string]*security.Claims
	calls  int
}

func (v *stubVerifier) Authenticate(accessToken string) (*security.Claims, error) {
	v.calls++
	if claims, ok := v.tokens[accessToken]; ok {
		return claims, nil
	}
	return nil, security.ErrSignatureInvalid
}

func newStubVerifier() *stubVerifier {
	return &stubVerifier{tokens: map[string]*security.Claims{
		"good-admin": {
			Subject:   "user-1",
			TokenID:   "jti-1",
			Kind:      security.KindAccess,
			ExpiresAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
			Extra:     map[string]interface{}{"username": "alice", "role": "ADMIN"},
		},
		"good-user": {
			Subject: "user-2",
			TokenID: "jti-2",
			Kind:    security.KindAccess,
			Extra:   map[string]interface{}{"username": "bob", "role": "USER"},
		},
	}}
}

func principalRouter(verifier AccessTokenVerifier, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Authenticate(verifier, nil))
	handlers := append(extra, func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, principal.UserID+"|"+string(principal.Role)+"|"+principal.Username)
	})
	router.GET("/users/:id", handlers...)
	return router
}

func TestAuthenticateAttachesPrincipal(t *testing.T) {
	verifier := newStubVerifier()
	router := principalRouter(verifier)

	req := httptest.NewRequest(http.MethodGet, "/users/x", nil)
	req.Header.Set("Authorization", "Bearer good-admin")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1|ADMIN|alice", rec.Body.String())
}

func TestAuthenticateNeverRejects(t *testing.T) {
	cases := map[string]string{
		"no header":     "",
		"wrong scheme":  "Basic abc",
		"empty bearer":  "Bearer ",
		"invalid token": "Bearer forged",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			router := principalRouter(newStubVerifier())
			req := httptest.NewRequest(http.MethodGet, "/users/x", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "anonymous", rec.Body.String())
		})
	}
}

func TestAuthenticateSchemeIsCaseInsensitive(t *testing.T) {
	router := principalRouter(newStubVerifier())
	req := httptest.NewRequest(http.MethodGet, "/users/x", nil)
	req.Header.Set("Authorization", "bearer   good-user ")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "user-2|USER|bob", rec.Body.String())
}

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	router := principalRouter(newStubVerifier(), RequireAuth())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/x", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "TOKEN_INVALID")
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestCurrentPrincipalIgnoresForeignValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(ContextUserKey, "not-a-principal")

	_, ok := CurrentPrincipal(c)
	assert.False(t, ok)

	c.Set(ContextUserKey, &models.Principal{UserID: "u"})
	principal, ok := CurrentPrincipal(c)
	require.True(t, ok)
	assert.Equal(t, "u", principal.UserID)
}
