package marketplace

import (
	"time"

	"marketplace-backend/internal/compliance"
)

// ItemStatus is the moderation state of a listing.
type ItemStatus string

const (
	StatusPendingReview ItemStatus = "pending_review"
	StatusApproved      ItemStatus = "approved"
	StatusRejected      ItemStatus = "rejected"
)

// Item is a marketplace listing. Only the fields the insured seller gate
// touches are modelled.
type Item struct {
	ID                  string
	CompanyID           string
	Title               string
	Status              ItemStatus
	InsuredOnly         bool
	ComplianceSnapshot  *compliance.Snapshot
	ComplianceHoldUntil *time.Time
	ReviewedBy          string
	RejectionReason     string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
