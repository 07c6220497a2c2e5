package compliance

import "time"

type submitRequest struct {
	Type     string         `json:"type"`
	File     *fileRequest   `json:"fileMetadata"`
	IssuedAt *time.Time     `json:"issuedAt"`
	ExpiryAt *time.Time     `json:"expiryAt"`
	Metadata map[string]any `json:"metadata"`
}

type fileRequest struct {
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	StorageKey string `json:"storageKey"`
	SizeBytes  int64  `json:"sizeBytes"`
}

type reviewRequest struct {
	Decision string         `json:"decision"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata"`
}

type badgeRequest struct {
	Visible *bool `json:"visible"`
}

type reasonRequest struct {
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata"`
}

type documentResponse struct {
	ID              string         `json:"id"`
	CompanyID       string         `json:"companyId"`
	Type            DocumentType   `json:"type"`
	Status          DocumentStatus `json:"status"`
	FileMetadata    FileMetadata   `json:"fileMetadata"`
	IssuedAt        *time.Time     `json:"issuedAt"`
	ExpiryAt        *time.Time     `json:"expiryAt"`
	SubmittedAt     time.Time      `json:"submittedAt"`
	ReviewedAt      *time.Time     `json:"reviewedAt"`
	ReviewerID      string         `json:"reviewerId,omitempty"`
	RejectionReason string         `json:"rejectionReason,omitempty"`
	Metadata        map[string]any `json:"metadata"`
	DownloadURL     string         `json:"downloadUrl,omitempty"`
}

// ApplicationView is the JSON shape of an application.
type ApplicationView struct {
	ID                string               `json:"id,omitempty"`
	CompanyID         string               `json:"companyId"`
	Status            ApplicationStatus    `json:"status"`
	RequiredDocuments []RequirementSummary `json:"requiredDocuments"`
	ComplianceScore   float64              `json:"complianceScore"`
	LastEvaluatedAt   *time.Time           `json:"lastEvaluatedAt"`
	ApprovedAt        *time.Time           `json:"approvedAt"`
	ExpiresAt         *time.Time           `json:"expiresAt"`
	BadgeEnabled      bool                 `json:"badgeEnabled"`
	Notes             string               `json:"notes,omitempty"`
	UpdatedAt         time.Time            `json:"updatedAt"`
}

type summaryResponse struct {
	Application ApplicationView    `json:"application"`
	Documents   []documentResponse `json:"documents"`
}

type eligibilityResponse struct {
	Eligible bool     `json:"eligible"`
	Snapshot Snapshot `json:"snapshot"`
}

func toDocumentResponse(d Document, downloadURL string) documentResponse {
	meta := d.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return documentResponse{
		ID:              d.ID,
		CompanyID:       d.CompanyID,
		Type:            d.Type,
		Status:          d.Status,
		FileMetadata:    d.File,
		IssuedAt:        d.IssuedAt,
		ExpiryAt:        d.ExpiryAt,
		SubmittedAt:     d.SubmittedAt,
		ReviewedAt:      d.ReviewedAt,
		ReviewerID:      d.ReviewerID,
		RejectionReason: d.RejectionReason,
		Metadata:        meta,
		DownloadURL:     downloadURL,
	}
}

// NewApplicationView renders a for API and CLI output.
func NewApplicationView(a Application) ApplicationView {
	required := a.RequiredDocuments
	if required == nil {
		required = []RequirementSummary{}
	}
	return ApplicationView{
		ID:                a.ID,
		CompanyID:         a.CompanyID,
		Status:            a.Status,
		RequiredDocuments: required,
		ComplianceScore:   a.ComplianceScore,
		LastEvaluatedAt:   a.LastEvaluatedAt,
		ApprovedAt:        a.ApprovedAt,
		ExpiresAt:         a.ExpiresAt,
		BadgeEnabled:      a.BadgeEnabled,
		Notes:             a.Notes,
		UpdatedAt:         a.UpdatedAt,
	}
}

func toSummaryResponse(s ComplianceSummary) summaryResponse {
	docs := make([]documentResponse, 0, len(s.Documents))
	for _, d := range s.Documents {
		docs = append(docs, toDocumentResponse(d.Document, d.DownloadURL))
	}
	return summaryResponse{Application: NewApplicationView(s.Application), Documents: docs}
}
