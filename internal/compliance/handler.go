package compliance

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"marketplace-backend/internal/shared/auth"
	"marketplace-backend/internal/shared/server/middleware"
	"marketplace-backend/internal/shared/server/respond"
	"marketplace-backend/internal/shared/storage/object"
	"marketplace-backend/internal/shared/telemetry"
)

const maxUploadSize = 10 << 20 // 10MB

// Handler wires compliance HTTP routes to the service.
type Handler struct {
	Svc   *Service
	Files object.ObjectStore
}

// NewHandler constructs a Handler. files may be nil, in which case only JSON
// submissions referencing an already uploaded object are accepted.
func NewHandler(svc *Service, files object.ObjectStore) *Handler {
	return &Handler{Svc: svc, Files: files}
}

// RegisterRoutes attaches compliance routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	company := rg.Group("/companies/:companyId", middleware.RequireCompanyAccess())
	company.POST("/compliance/documents", h.submit)
	company.POST("/compliance/evaluate", h.evaluate)
	company.POST("/compliance/badge", h.badge)
	company.GET("/compliance", h.summary)
	company.GET("/compliance/eligibility", h.eligibility)

	admin := rg.Group("", middleware.RequireRole(auth.RoleAdmin))
	admin.POST("/compliance/documents/:documentId/review", h.review)
	admin.POST("/companies/:companyId/compliance/suspend", h.suspend)
	admin.POST("/companies/:companyId/compliance/reinstate", h.reinstate)
}

func (h *Handler) submit(c *gin.Context) {
	companyID := c.Param("companyId")
	c.Set("companyId", companyID)

	var (
		in  SubmitInput
		err error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		in, err = h.bindMultipart(c, companyID)
	} else {
		in, err = bindSubmitJSON(c)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	in.CompanyID = companyID
	in.ActorID = middleware.ActorIDFromContext(c)

	doc, err := h.Svc.SubmitDocument(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("documentId", doc.ID)
	respond.JSON(c, http.StatusCreated, toDocumentResponse(doc, ""))
}

func bindSubmitJSON(c *gin.Context) (SubmitInput, error) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return SubmitInput{}, Validation("invalid request body")
	}
	if req.File == nil {
		return SubmitInput{}, Validation("fileMetadata is required")
	}
	if strings.TrimSpace(req.File.StorageKey) == "" {
		return SubmitInput{}, Validation("fileMetadata.storageKey is required")
	}
	return SubmitInput{
		Type: DocumentType(strings.TrimSpace(req.Type)),
		File: FileMetadata{
			FileName:   strings.TrimSpace(req.File.FileName),
			MimeType:   strings.TrimSpace(req.File.MimeType),
			StorageKey: strings.TrimSpace(req.File.StorageKey),
			SizeBytes:  req.File.SizeBytes,
		},
		IssuedAt: req.IssuedAt,
		ExpiryAt: req.ExpiryAt,
		Metadata: req.Metadata,
	}, nil
}

func (h *Handler) bindMultipart(c *gin.Context, companyID string) (SubmitInput, error) {
	if h.Files == nil {
		return SubmitInput{}, Validation("file uploads are not enabled")
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return SubmitInput{}, Validation("file is required")
	}
	docType := DocumentType(strings.TrimSpace(c.PostForm("type")))
	if !h.Svc.Catalog().Contains(docType) {
		return SubmitInput{}, Validation("unsupported document type")
	}
	issuedAt, err := parseFormTime(c.PostForm("issuedAt"), "issuedAt")
	if err != nil {
		return SubmitInput{}, err
	}
	expiryAt, err := parseFormTime(c.PostForm("expiryAt"), "expiryAt")
	if err != nil {
		return SubmitInput{}, err
	}
	if expiryAt != nil && !expiryAt.After(h.Svc.now()) {
		return SubmitInput{}, Validation("expiryAt must be in the future")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return SubmitInput{}, Validation("unable to read file")
	}
	defer file.Close()

	key, size, mimeType, err := h.Files.Save(c.Request.Context(), companyID, fileHeader.Filename, file)
	if err != nil {
		return SubmitInput{}, err
	}
	return SubmitInput{
		Type: docType,
		File: FileMetadata{
			FileName:   fileHeader.Filename,
			MimeType:   mimeType,
			StorageKey: key,
			SizeBytes:  size,
		},
		IssuedAt: issuedAt,
		ExpiryAt: expiryAt,
	}, nil
}

func parseFormTime(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, Validation(field + " must be an RFC3339 timestamp")
	}
	return &t, nil
}

func (h *Handler) review(c *gin.Context) {
	documentID := c.Param("documentId")
	c.Set("documentId", documentID)

	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, Validation("invalid request body"))
		return
	}

	doc, err := h.Svc.ReviewDocument(c.Request.Context(), ReviewInput{
		DocumentID: documentID,
		ReviewerID: middleware.ActorIDFromContext(c),
		Decision:   Decision(strings.TrimSpace(req.Decision)),
		Reason:     strings.TrimSpace(req.Reason),
		Metadata:   req.Metadata,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("companyId", doc.CompanyID)
	respond.OK(c, toDocumentResponse(doc, ""))
}

func (h *Handler) evaluate(c *gin.Context) {
	companyID := c.Param("companyId")
	before := h.priorStatus(c, companyID)

	app, err := h.Svc.Evaluate(c.Request.Context(), companyID)
	if err != nil {
		writeError(c, err)
		return
	}
	setTransition(c, before, app.Status)
	respond.OK(c, NewApplicationView(app))
}

func (h *Handler) badge(c *gin.Context) {
	var req badgeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Visible == nil {
		writeError(c, Validation("visible is required"))
		return
	}
	app, err := h.Svc.ToggleBadge(c.Request.Context(), c.Param("companyId"), middleware.ActorIDFromContext(c), *req.Visible)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, NewApplicationView(app))
}

func (h *Handler) suspend(c *gin.Context) {
	companyID := c.Param("companyId")
	c.Set("companyId", companyID)

	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, Validation("invalid request body"))
		return
	}
	before := h.priorStatus(c, companyID)
	app, err := h.Svc.Suspend(c.Request.Context(), companyID, middleware.ActorIDFromContext(c), req.Reason, req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}
	setTransition(c, before, app.Status)
	respond.OK(c, NewApplicationView(app))
}

func (h *Handler) reinstate(c *gin.Context) {
	companyID := c.Param("companyId")
	c.Set("companyId", companyID)

	// The body is optional; an empty one leaves the reason blank.
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, Validation("invalid request body"))
		return
	}
	app, err := h.Svc.Reinstate(c.Request.Context(), companyID, middleware.ActorIDFromContext(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	setTransition(c, StatusSuspended, app.Status)
	respond.OK(c, NewApplicationView(app))
}

func (h *Handler) summary(c *gin.Context) {
	summary, err := h.Svc.GetCompanyComplianceSummary(c.Request.Context(), c.Param("companyId"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, toSummaryResponse(summary))
}

func (h *Handler) eligibility(c *gin.Context) {
	requireBadge, _ := strconv.ParseBool(c.DefaultQuery("requireBadge", "false"))
	snap, err := h.Svc.EnsureEligible(c.Request.Context(), c.Param("companyId"), GateOptions{RequireBadge: requireBadge})
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, eligibilityResponse{Eligible: true, Snapshot: snap})
}

// priorStatus reads the stored status for the access log transition. A company
// that was never evaluated has none.
func (h *Handler) priorStatus(c *gin.Context, companyID string) ApplicationStatus {
	app, err := h.Svc.Store.GetApplication(c.Request.Context(), companyID)
	if err != nil {
		if !errors.Is(err, ErrApplicationNotFound) {
			telemetry.Warn("compliance prior status lookup failed", map[string]any{
				"companyId": companyID,
				"error":     err.Error(),
			})
		}
		return ""
	}
	return app.Status
}

func setTransition(c *gin.Context, prev, next ApplicationStatus) {
	if prev != "" && prev != next {
		c.Set("statusTransition", string(prev)+"->"+string(next))
	}
}

func writeError(c *gin.Context, err error) {
	status := StatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	respond.Error(c, status, ErrorCode(err), msg, nil)
}
