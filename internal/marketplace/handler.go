package marketplace

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"marketplace-backend/internal/compliance"
	"marketplace-backend/internal/shared/auth"
	"marketplace-backend/internal/shared/server/middleware"
	"marketplace-backend/internal/shared/server/respond"
)

// Handler wires marketplace HTTP routes to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches marketplace routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	company := rg.Group("/companies/:companyId", middleware.RequireCompanyAccess())
	company.POST("/marketplace/items", h.create)
	company.GET("/marketplace/items", h.list)

	admin := rg.Group("/marketplace/items", middleware.RequireRole(auth.RoleAdmin))
	admin.POST("/:itemId/approve", h.approve)
	admin.POST("/:itemId/reject", h.reject)
}

type createRequest struct {
	Title       string `json:"title"`
	InsuredOnly bool   `json:"insuredOnly"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type itemResponse struct {
	ID                  string               `json:"id"`
	CompanyID           string               `json:"companyId"`
	Title               string               `json:"title"`
	Status              ItemStatus           `json:"status"`
	InsuredOnly         bool                 `json:"insuredOnly"`
	ComplianceSnapshot  *compliance.Snapshot `json:"complianceSnapshot"`
	ComplianceHoldUntil *time.Time           `json:"complianceHoldUntil"`
	ReviewedBy          string               `json:"reviewedBy,omitempty"`
	RejectionReason     string               `json:"rejectionReason,omitempty"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

func toResponse(item Item) itemResponse {
	return itemResponse{
		ID:                  item.ID,
		CompanyID:           item.CompanyID,
		Title:               item.Title,
		Status:              item.Status,
		InsuredOnly:         item.InsuredOnly,
		ComplianceSnapshot:  item.ComplianceSnapshot,
		ComplianceHoldUntil: item.ComplianceHoldUntil,
		ReviewedBy:          item.ReviewedBy,
		RejectionReason:     item.RejectionReason,
		CreatedAt:           item.CreatedAt,
		UpdatedAt:           item.UpdatedAt,
	}
}

func (h *Handler) create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, compliance.Validation("invalid request body"))
		return
	}
	item, err := h.Svc.Create(c.Request.Context(), c.Param("companyId"), CreateInput{Title: req.Title, InsuredOnly: req.InsuredOnly})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("itemId", item.ID)
	respond.JSON(c, http.StatusCreated, toResponse(item))
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.Svc.ListByCompany(c.Request.Context(), c.Param("companyId"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toResponse(item))
	}
	respond.OK(c, gin.H{"items": out})
}

func (h *Handler) approve(c *gin.Context) {
	itemID := c.Param("itemId")
	c.Set("itemId", itemID)
	item, err := h.Svc.Approve(c.Request.Context(), itemID, middleware.ActorIDFromContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("companyId", item.CompanyID)
	respond.OK(c, toResponse(item))
}

func (h *Handler) reject(c *gin.Context) {
	itemID := c.Param("itemId")
	c.Set("itemId", itemID)
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, compliance.Validation("invalid request body"))
		return
	}
	item, err := h.Svc.Reject(c.Request.Context(), itemID, middleware.ActorIDFromContext(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Set("companyId", item.CompanyID)
	respond.OK(c, toResponse(item))
}

func writeError(c *gin.Context, err error) {
	status := compliance.StatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	respond.Error(c, status, compliance.ErrorCode(err), msg, nil)
}
