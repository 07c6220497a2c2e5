package moderation

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entity types that moderation actions are recorded against.
const (
	EntityCompany            = "company"
	EntityComplianceDocument = "compliance_document"
	EntityMarketplaceItem    = "marketplace_item"
)

// Action names.
const (
	ActionDocumentSubmitted = "compliance_document_submitted"
	ActionDocumentApproved  = "compliance_document_approved"
	ActionDocumentRejected  = "compliance_document_rejected"
	ActionBadgeShown        = "insured_badge_enabled"
	ActionBadgeHidden       = "insured_badge_disabled"
	ActionSuspended         = "insured_seller_suspended"
	ActionReinstated        = "insured_seller_reinstated"
	ActionItemApproved      = "marketplace_item_approved"
	ActionItemRejected      = "marketplace_item_rejected"
)

// Action is one append-only moderation audit record.
type Action struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Action     string         `json:"action"`
	ActorID    string         `json:"actorId,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Validate checks the fields every record must carry.
func (a Action) Validate() error {
	switch {
	case a.ID == "":
		return fmt.Errorf("moderation action id is required")
	case a.EntityType == "" || a.EntityID == "":
		return fmt.Errorf("moderation action entity is required")
	case a.Action == "":
		return fmt.Errorf("moderation action name is required")
	}
	return nil
}

// MetadataJSON encodes metadata for storage, using {} for nil.
func (a Action) MetadataJSON() ([]byte, error) {
	if a.Metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a.Metadata)
}
