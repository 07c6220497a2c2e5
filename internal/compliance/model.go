package compliance

import "time"

// DocumentType identifies an entry of the required document catalog.
type DocumentType string

// DocumentStatus is the stored lifecycle state of a compliance document.
// "in review" is derived from submitted documents and never stored.
type DocumentStatus string

const (
	DocumentStatusSubmitted DocumentStatus = "submitted"
	DocumentStatusApproved  DocumentStatus = "approved"
	DocumentStatusRejected  DocumentStatus = "rejected"
	DocumentStatusExpired   DocumentStatus = "expired"
)

// ApplicationStatus is the insured seller application state.
type ApplicationStatus string

const (
	StatusPendingDocuments ApplicationStatus = "pending_documents"
	StatusInReview         ApplicationStatus = "in_review"
	StatusApproved         ApplicationStatus = "approved"
	StatusSuspended        ApplicationStatus = "suspended"
)

// Decision is a reviewer verdict on a submitted document.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) documentStatus() DocumentStatus {
	if d == DecisionApprove {
		return DocumentStatusApproved
	}
	return DocumentStatusRejected
}

// Metadata keys written by the engine.
const (
	metadataReviewKey      = "review"
	metadataAutoExpiredKey = "autoExpiredAt"
)

// FileMetadata describes the stored blob behind a document. The blob itself is
// owned by the object store.
type FileMetadata struct {
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	StorageKey string `json:"storageKey"`
	SizeBytes  int64  `json:"sizeBytes"`
}

// Document is a compliance document submitted by a company.
type Document struct {
	ID              string
	CompanyID       string
	Type            DocumentType
	Status          DocumentStatus
	File            FileMetadata
	IssuedAt        *time.Time
	ExpiryAt        *time.Time
	SubmittedAt     time.Time
	ReviewedAt      *time.Time
	ReviewerID      string
	RejectionReason string
	Metadata        map[string]any
}

// recency orders documents of the same type; the newest one is authoritative.
func (d Document) recency() time.Time {
	if d.ReviewedAt != nil {
		return *d.ReviewedAt
	}
	return d.SubmittedAt
}

// EffectiveStatus treats an approved document past its expiry as expired even
// before the sweep rewrites it.
func (d Document) EffectiveStatus(now time.Time) DocumentStatus {
	if d.Status == DocumentStatusApproved && d.ExpiryAt != nil && !d.ExpiryAt.After(now) {
		return DocumentStatusExpired
	}
	return d.Status
}

// Application is the authoritative insured seller state of one company.
type Application struct {
	ID                string
	CompanyID         string
	Status            ApplicationStatus
	RequiredDocuments []RequirementSummary
	ComplianceScore   float64
	LastEvaluatedAt   *time.Time
	ApprovedAt        *time.Time
	ExpiresAt         *time.Time
	BadgeEnabled      bool
	Notes             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func newApplication(id, companyID string, now time.Time) Application {
	return Application{
		ID:                id,
		CompanyID:         companyID,
		Status:            StatusPendingDocuments,
		RequiredDocuments: []RequirementSummary{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (a Application) projection() Projection {
	return Projection{
		Status:          a.Status,
		ExpiresAt:       a.ExpiresAt,
		ComplianceScore: a.ComplianceScore,
		BadgeEnabled:    a.BadgeEnabled,
	}
}

// Snapshot is the point-in-time compliance view embedded into listings.
type Snapshot struct {
	ApplicationID   string            `json:"applicationId"`
	Status          ApplicationStatus `json:"status"`
	ExpiresAt       *time.Time        `json:"expiresAt"`
	ComplianceScore float64           `json:"complianceScore"`
}

func (a Application) snapshot() Snapshot {
	return Snapshot{
		ApplicationID:   a.ID,
		Status:          a.Status,
		ExpiresAt:       a.ExpiresAt,
		ComplianceScore: a.ComplianceScore,
	}
}

// Company carries the compliance fields denormalized onto the company row.
type Company struct {
	ID                        string
	Name                      string
	InsuredSellerStatus       ApplicationStatus
	InsuredSellerExpiresAt    *time.Time
	ComplianceScore           float64
	InsuredSellerBadgeVisible bool
	CreatedAt                 time.Time
}

// Projection is the input of the company compliance projector.
type Projection struct {
	Status          ApplicationStatus
	ExpiresAt       *time.Time
	ComplianceScore float64
	BadgeEnabled    bool
}

// CompanyCompliance is the write applied to the company row. A nil
// BadgeVisible leaves the stored flag untouched.
type CompanyCompliance struct {
	Status          ApplicationStatus
	ExpiresAt       *time.Time
	ComplianceScore float64
	BadgeVisible    *bool
}
