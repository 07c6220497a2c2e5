package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"marketplace-backend/internal/shared/telemetry"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		reqID := RequestIDFromContext(c)

		actorID, _ := c.Get(actorIDKey)
		role, _ := c.Get(actorRoleKey)
		companyID, _ := c.Get("companyId")
		documentID, _ := c.Get("documentId")
		itemID, _ := c.Get("itemId")
		statusTransition := ""
		if raw, ok := c.Get("statusTransition"); ok {
			if s, ok := raw.(string); ok {
				statusTransition = s
			}
		}

		telemetry.Info("request.complete", map[string]any{
			"request_id":        reqID,
			"method":            c.Request.Method,
			"path":              c.Request.URL.Path,
			"status":            status,
			"status_transition": statusTransition,
			"duration_ms":       float64(latency.Microseconds()) / 1000.0,
			"actor_id":          actorID,
			"actor_role":        role,
			"company_id":        companyID,
			"document_id":       documentID,
			"item_id":           itemID,
			"client_ip":         c.ClientIP(),
			"user_agent":        c.Request.UserAgent(),
		})
	}
}
