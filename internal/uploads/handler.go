package uploads

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"marketplace-backend/internal/shared/auth"
	"marketplace-backend/internal/shared/server/middleware"
	"marketplace-backend/internal/shared/server/respond"
	"marketplace-backend/internal/shared/storage/object"
	"marketplace-backend/internal/shared/telemetry"
	"marketplace-backend/internal/shared/util"
)

const maxUploadBytes = 10 << 20

var allowedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/png":       {},
}

// Handler issues presigned upload URLs for compliance documents.
type Handler struct {
	Signer object.UploadSigner
}

// NewHandler constructs a Handler. A nil signer disables the route.
func NewHandler(signer object.UploadSigner) *Handler {
	return &Handler{Signer: signer}
}

type presignRequest struct {
	CompanyID   string `json:"companyId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
}

type presignResponse struct {
	UploadURL        string `json:"uploadUrl"`
	StorageKey       string `json:"storageKey"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

// RegisterRoutes attaches the presign route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/uploads/presign", h.presign)
}

func (h *Handler) presign(c *gin.Context) {
	if h.Signer == nil {
		respond.Error(c, http.StatusNotImplemented, "not_implemented", "direct uploads are not configured", nil)
		return
	}

	var req presignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	req.CompanyID = strings.TrimSpace(req.CompanyID)
	req.FileName = strings.TrimSpace(req.FileName)
	req.ContentType = strings.TrimSpace(req.ContentType)

	if req.CompanyID == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "companyId is required", nil)
		return
	}
	if middleware.ActorRoleFromContext(c) != auth.RoleAdmin && middleware.ActorCompanyIDFromContext(c) != req.CompanyID {
		respond.Error(c, http.StatusForbidden, "forbidden", "no access to this company", nil)
		return
	}
	c.Set("companyId", req.CompanyID)
	if req.FileName == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "fileName is required", nil)
		return
	}
	if _, ok := allowedContentTypes[req.ContentType]; !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "contentType is not allowed", nil)
		return
	}
	if req.SizeBytes <= 0 || req.SizeBytes > maxUploadBytes {
		respond.Error(c, http.StatusBadRequest, "validation_error", "sizeBytes exceeds limit", nil)
		return
	}

	sanitized, err := util.SanitizeFileName(req.FileName)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid fileName", nil)
		return
	}
	key := path.Join(util.HashNamespace(req.CompanyID), uuid.NewString()+"-"+sanitized)

	url, expires, err := h.Signer.UploadURL(c.Request.Context(), key, req.ContentType)
	if err != nil {
		telemetry.Error("uploads.presign.failed", map[string]any{
			"error":        err,
			"key":          key,
			"content_type": req.ContentType,
			"size_bytes":   req.SizeBytes,
			"request_id":   middleware.RequestIDFromContext(c),
		})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to generate upload url", nil)
		return
	}

	respond.JSON(c, http.StatusOK, presignResponse{
		UploadURL:        url,
		StorageKey:       key,
		ExpiresInSeconds: int64(expires.Seconds()),
	})
}
