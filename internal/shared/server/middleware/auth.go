package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"marketplace-backend/internal/shared/auth"
	"marketplace-backend/internal/shared/server/respond"
)

const (
	actorIDKey   = "actorId"
	actorRoleKey = "actorRole"
	companyIDKey = "actorCompanyId"
)

// AuthConfig controls how callers are identified.
type AuthConfig struct {
	Tokens *auth.Tokens
	// AllowHeaderIdentity accepts X-Actor-Id / X-Actor-Role / X-Company-Id
	// headers when no bearer token is sent. Only enabled in dev.
	AllowHeaderIdentity bool
	// PublicPrefixes bypass authentication.
	PublicPrefixes []string
}

// Auth validates bearer tokens (or dev identity headers) and stores the actor in context.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		path := c.Request.URL.Path
		for _, prefix := range cfg.PublicPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") || cfg.Tokens == nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
			claims, err := cfg.Tokens.Verify(token)
			if err != nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}
			setActor(c, claims.Subject, claims.Role, claims.CompanyID)
			c.Next()
			return
		}

		if cfg.AllowHeaderIdentity {
			if actorID := strings.TrimSpace(c.GetHeader("X-Actor-Id")); actorID != "" {
				role := strings.TrimSpace(c.GetHeader("X-Actor-Role"))
				if role == "" {
					role = auth.RoleSeller
				}
				setActor(c, actorID, role, strings.TrimSpace(c.GetHeader("X-Company-Id")))
				c.Next()
				return
			}
		}

		respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
	}
}

func setActor(c *gin.Context, actorID, role, companyID string) {
	c.Set(actorIDKey, actorID)
	c.Set(actorRoleKey, role)
	if companyID != "" {
		c.Set(companyIDKey, companyID)
	}
}

// RequireRole rejects actors without one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := ActorRoleFromContext(c)
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		respond.Error(c, http.StatusForbidden, "forbidden", "insufficient role", nil)
	}
}

// RequireCompanyAccess lets admins through and restricts sellers to the
// company named by the :companyId path parameter.
func RequireCompanyAccess() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ActorRoleFromContext(c) == auth.RoleAdmin {
			c.Next()
			return
		}
		companyID := c.Param("companyId")
		if companyID != "" && companyID == ActorCompanyIDFromContext(c) {
			c.Set("companyId", companyID)
			c.Next()
			return
		}
		respond.Error(c, http.StatusForbidden, "forbidden", "no access to this company", nil)
	}
}

// ActorIDFromContext fetches the actor ID set by the auth middleware.
func ActorIDFromContext(c *gin.Context) string {
	return contextString(c, actorIDKey)
}

// ActorRoleFromContext fetches the actor role set by the auth middleware.
func ActorRoleFromContext(c *gin.Context) string {
	return contextString(c, actorRoleKey)
}

// ActorCompanyIDFromContext fetches the company the actor belongs to, if any.
func ActorCompanyIDFromContext(c *gin.Context) string {
	return contextString(c, companyIDKey)
}

func contextString(c *gin.Context, key string) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(key)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
