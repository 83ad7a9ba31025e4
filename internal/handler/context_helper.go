package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/voice-news-api/internal/middleware"
	"github.com/noah-isme/voice-news-api/internal/models"
	appErrors "github.com/noah-isme/voice-news-api/pkg/errors"
)

// requestMeta collects the actor and client details services attach to audit entries.
func requestMeta(c *gin.Context) models.RequestMeta {
	meta := models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if principal, ok := middleware.CurrentPrincipal(c); ok {
		meta.ActorID = principal.UserID
		meta.ActorRole = principal.Role
	}
	return meta
}

func invalidPayload(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
