package server

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"marketplace-backend/internal/compliance"
	"marketplace-backend/internal/marketplace"
	"marketplace-backend/internal/services/health"
	"marketplace-backend/internal/shared/auth"
	"marketplace-backend/internal/shared/config"
	"marketplace-backend/internal/shared/metrics"
	"marketplace-backend/internal/shared/server/middleware"
	"marketplace-backend/internal/shared/server/respond"
	"marketplace-backend/internal/shared/storage/object"
	"marketplace-backend/internal/uploads"
)

// RouterDeps are the handlers and collaborators the router mounts.
type RouterDeps struct {
	Config             config.Config
	Tokens             *auth.Tokens
	ComplianceHandler  *compliance.Handler
	MarketplaceHandler *marketplace.Handler
	UploadsHandler     *uploads.Handler
	Health             *health.Service
	// LocalFiles serves /files/* for the local object store. Nil disables it.
	LocalFiles object.ObjectStore
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(middleware.AuthConfig{
			Tokens:              deps.Tokens,
			AllowHeaderIdentity: deps.Config.IsDev(),
			PublicPrefixes:      []string{"/api/v1/health", "/metrics", "/files/"},
		}),
		middleware.RateLimit(middleware.RateLimitConfig{
			GroupFor: rateLimitGroup,
			Exempt:   isAdmin,
			Rules: map[string]middleware.RateLimitRule{
				"READ":   {Rate: 20, Burst: 120},
				"WRITE":  {Rate: 5, Burst: 60},
				"UPLOAD": {Rate: 0.5, Burst: 20},
			},
		}),
	)

	r.GET("/metrics", metrics.Handler())
	if deps.LocalFiles != nil {
		r.GET("/files/*key", serveLocalFile(deps.LocalFiles))
	}

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		st := deps.Health.Check(c.Request.Context())
		code := http.StatusOK
		if !st.OK {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, st)
	})
	registerMeRoutes(api)
	if deps.ComplianceHandler != nil {
		deps.ComplianceHandler.RegisterRoutes(api)
	}
	if deps.MarketplaceHandler != nil {
		deps.MarketplaceHandler.RegisterRoutes(api)
	}
	if deps.UploadsHandler != nil {
		deps.UploadsHandler.RegisterRoutes(api)
	}

	return r
}

// rateLimitGroup puts document uploads in their own, slower bucket.
func rateLimitGroup(c *gin.Context) string {
	switch c.Request.Method {
	case http.MethodGet, http.MethodHead:
		return "READ"
	}
	switch c.FullPath() {
	case "/api/v1/companies/:companyId/compliance/documents", "/api/v1/uploads/presign":
		return "UPLOAD"
	}
	return "WRITE"
}

func isAdmin(c *gin.Context) bool {
	return middleware.ActorRoleFromContext(c) == "admin"
}

func serveLocalFile(store object.ObjectStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		if key == "" {
			respond.Error(c, http.StatusNotFound, "not_found", "file not found", nil)
			return
		}
		rc, err := store.Open(c.Request.Context(), key)
		if err != nil {
			respond.Error(c, http.StatusNotFound, "not_found", "file not found", nil)
			return
		}
		defer rc.Close()

		contentType := mime.TypeByExtension(path.Ext(key))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.Header("Content-Type", contentType)
		c.Status(http.StatusOK)
		_, _ = io.Copy(c.Writer, rc)
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
