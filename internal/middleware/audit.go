package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/voice-news-api/internal/models"
)

// AuditRecorder accepts audit entries without blocking the request.
type AuditRecorder interface {
	Record(ctx context.Context, entry models.AuditLog)
}

// AuditDenied records rejected access attempts (401 and 403) against a resource
// group. Install it ahead of RequireAuth and RBAC so it sees their verdict.
func AuditDenied(recorder AuditRecorder, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if recorder == nil || (status != http.StatusUnauthorized && status != http.StatusForbidden) {
			return
		}

		entry := models.AuditLog{
			Action:    models.AuditActionAccessDenied,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		if principal, ok := CurrentPrincipal(c); ok {
			userID := principal.UserID
			entry.UserID = &userID
		}
		entry.NewValues, _ = json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": status,
		})
		recorder.Record(c.Request.Context(), entry)
	}
}
