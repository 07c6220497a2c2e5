package compliance

import (
	"context"
	"errors"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketplace-backend/internal/moderation"
	"marketplace-backend/internal/shared/metrics"
	"marketplace-backend/internal/shared/storage/object"
	"marketplace-backend/internal/shared/telemetry"
	"marketplace-backend/internal/shared/util"
)

// Service exposes the compliance operations: document lifecycle, evaluation,
// badge and suspension actions, and the eligibility gate.
type Service struct {
	Store     Store
	Evaluator *Evaluator
	Files     object.DownloadSigner
	Recorder  moderation.Recorder
	Publisher moderation.Publisher
	Clock     func() time.Time
}

// NewService wires a Service around store and catalog with no collaborators.
func NewService(store Store, catalog *Catalog) *Service {
	return &Service{Store: store, Evaluator: &Evaluator{Catalog: catalog}}
}

// Catalog returns the catalog the service evaluates against.
func (s *Service) Catalog() *Catalog {
	return s.Evaluator.Catalog
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

// SubmitInput is a new document submission.
type SubmitInput struct {
	CompanyID string
	ActorID   string
	Type      DocumentType
	File      FileMetadata
	IssuedAt  *time.Time
	ExpiryAt  *time.Time
	Metadata  map[string]any
}

// OwnsStorageKey reports whether key lives under the company's hashed object
// namespace, the prefix both uploads and object stores assign.
func OwnsStorageKey(companyID, key string) bool {
	prefix := util.HashNamespace(companyID) + "/"
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) {
		return false
	}
	return path.Clean(key) == key
}

// SubmitDocument stores a submitted document. Unless the application is
// suspended it is bumped to in_review and projected with its current score;
// the full evaluation happens on review, and the gate always re-evaluates.
func (s *Service) SubmitDocument(ctx context.Context, in SubmitInput) (Document, error) {
	now := s.now()
	in.CompanyID = strings.TrimSpace(in.CompanyID)
	if in.CompanyID == "" {
		return Document{}, Validation("companyId is required")
	}
	if !s.Catalog().Contains(in.Type) {
		return Document{}, Validation("unsupported document type")
	}
	if in.File.SizeBytes <= 0 {
		return Document{}, Validation("fileSizeBytes must be a positive integer")
	}
	if in.ExpiryAt != nil && !in.ExpiryAt.After(now) {
		return Document{}, Validation("expiryAt must be in the future")
	}
	if !OwnsStorageKey(in.CompanyID, in.File.StorageKey) {
		return Document{}, Validation("fileMetadata.storageKey is outside the company namespace")
	}

	doc := Document{
		ID:          uuid.NewString(),
		CompanyID:   in.CompanyID,
		Type:        in.Type,
		Status:      DocumentStatusSubmitted,
		File:        in.File,
		IssuedAt:    utcPtr(in.IssuedAt),
		ExpiryAt:    utcPtr(in.ExpiryAt),
		SubmittedAt: now,
		Metadata:    cloneMetadata(in.Metadata),
	}

	var pending []moderation.Action
	err := s.Store.WithCompanyLock(ctx, in.CompanyID, func(ctx context.Context, tx Tx) error {
		app, err := tx.LockApplication(ctx, in.CompanyID, now)
		if err != nil {
			return err
		}
		if err := tx.InsertDocument(ctx, doc); err != nil {
			return err
		}
		if app.Status != StatusSuspended {
			app.Status = StatusInReview
			app.BadgeEnabled = false
			app.ExpiresAt = nil
			app.UpdatedAt = now
			if err := tx.SaveApplication(ctx, app); err != nil {
				return err
			}
			if err := Project(ctx, tx, in.CompanyID, app.projection()); err != nil {
				return err
			}
		}
		s.record(ctx, &pending, moderation.Action{
			EntityType: moderation.EntityComplianceDocument,
			EntityID:   doc.ID,
			Action:     moderation.ActionDocumentSubmitted,
			ActorID:    in.ActorID,
			Metadata:   map[string]any{"companyId": in.CompanyID, "type": string(doc.Type)},
		})
		return nil
	})
	if err != nil {
		return Document{}, translateStoreErr(err)
	}
	moderation.PublishAll(ctx, s.Publisher, pending)
	return doc, nil
}

// ReviewInput is a reviewer decision.
type ReviewInput struct {
	DocumentID string
	ReviewerID string
	Decision   Decision
	Reason     string
	Metadata   map[string]any
}

// ReviewDocument applies a decision and re-evaluates the owning company.
// Repeating the decision a document already carries returns it unchanged.
func (s *Service) ReviewDocument(ctx context.Context, in ReviewInput) (Document, error) {
	if in.Decision != DecisionApprove && in.Decision != DecisionReject {
		return Document{}, Validation("decision must be approve or reject")
	}
	if strings.TrimSpace(in.ReviewerID) == "" {
		return Document{}, Validation("reviewerId is required")
	}
	current, err := s.Store.GetDocument(ctx, in.DocumentID)
	if err != nil {
		return Document{}, translateStoreErr(err)
	}

	now := s.now()
	var result Document
	var pending []moderation.Action
	err = s.Store.WithCompanyLock(ctx, current.CompanyID, func(ctx context.Context, tx Tx) error {
		doc, err := tx.GetDocument(ctx, in.DocumentID)
		if err != nil {
			return err
		}
		if in.Decision == DecisionApprove && doc.ExpiryAt != nil && !doc.ExpiryAt.After(now) {
			return Conflict("approving an expired document is invalid")
		}
		if doc.Status == in.Decision.documentStatus() {
			result = doc
			return nil
		}

		doc.ReviewedAt = copyTime(&now)
		doc.ReviewerID = in.ReviewerID
		action := moderation.ActionDocumentApproved
		if in.Decision == DecisionApprove {
			doc.Status = DocumentStatusApproved
			doc.RejectionReason = ""
		} else {
			doc.Status = DocumentStatusRejected
			doc.RejectionReason = strings.TrimSpace(in.Reason)
			action = moderation.ActionDocumentRejected
		}
		doc.Metadata = appendReview(doc.Metadata, in, now)
		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return err
		}

		s.record(ctx, &pending, moderation.Action{
			EntityType: moderation.EntityComplianceDocument,
			EntityID:   doc.ID,
			Action:     action,
			ActorID:    in.ReviewerID,
			Reason:     doc.RejectionReason,
			Metadata:   map[string]any{"companyId": doc.CompanyID, "type": string(doc.Type)},
		})
		if _, err := s.Evaluator.Evaluate(ctx, tx, doc.CompanyID, now, EvaluateOptions{}); err != nil {
			return err
		}
		metrics.IncDocumentReview(string(in.Decision))
		result = doc
		return nil
	})
	if err != nil {
		return Document{}, translateStoreErr(err)
	}
	moderation.PublishAll(ctx, s.Publisher, pending)
	return result, nil
}

// Evaluate recomputes and persists the company's application.
func (s *Service) Evaluate(ctx context.Context, companyID string) (Application, error) {
	return s.evaluate(ctx, companyID, EvaluateOptions{})
}

func (s *Service) evaluate(ctx context.Context, companyID string, opts EvaluateOptions) (Application, error) {
	now := s.now()
	var app Application
	err := s.Store.WithCompanyLock(ctx, companyID, func(ctx context.Context, tx Tx) error {
		var err error
		app, err = s.Evaluator.Evaluate(ctx, tx, companyID, now, opts)
		return err
	})
	if err != nil {
		return Application{}, translateStoreErr(err)
	}
	return app, nil
}

// ToggleBadge shows or hides the insured seller badge. The application is
// re-evaluated first and must be approved.
func (s *Service) ToggleBadge(ctx context.Context, companyID, actorID string, visible bool) (Application, error) {
	now := s.now()
	var app Application
	var pending []moderation.Action
	err := s.Store.WithCompanyLock(ctx, companyID, func(ctx context.Context, tx Tx) error {
		var err error
		app, err = s.Evaluator.Evaluate(ctx, tx, companyID, now, EvaluateOptions{})
		if err != nil {
			return err
		}
		if app.Status != StatusApproved {
			return Conflict("insured seller badge requires an approved application")
		}
		app.BadgeEnabled = visible
		app.UpdatedAt = now
		if err := tx.SaveApplication(ctx, app); err != nil {
			return err
		}
		if err := tx.UpdateCompanyCompliance(ctx, companyID, CompanyCompliance{
			Status:          app.Status,
			ExpiresAt:       app.ExpiresAt,
			ComplianceScore: app.ComplianceScore,
			BadgeVisible:    &visible,
		}); err != nil {
			return err
		}
		action := moderation.ActionBadgeShown
		if !visible {
			action = moderation.ActionBadgeHidden
		}
		s.record(ctx, &pending, moderation.Action{
			EntityType: moderation.EntityCompany,
			EntityID:   companyID,
			Action:     action,
			ActorID:    actorID,
		})
		return nil
	})
	if err != nil {
		return Application{}, translateStoreErr(err)
	}
	moderation.PublishAll(ctx, s.Publisher, pending)
	return app, nil
}

// Suspend forces the application into suspended and hides the badge.
func (s *Service) Suspend(ctx context.Context, companyID, actorID, reason string, metadata map[string]any) (Application, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Application{}, Validation("suspension reason is required")
	}
	now := s.now()
	var app Application
	var pending []moderation.Action
	err := s.Store.WithCompanyLock(ctx, companyID, func(ctx context.Context, tx Tx) error {
		var err error
		app, err = tx.LockApplication(ctx, companyID, now)
		if err != nil {
			return err
		}
		prev := app.Status
		app.Status = StatusSuspended
		app.BadgeEnabled = false
		app.ExpiresAt = nil
		app.Notes = reason
		app.UpdatedAt = now
		if err := tx.SaveApplication(ctx, app); err != nil {
			return err
		}
		if err := Project(ctx, tx, companyID, app.projection()); err != nil {
			return err
		}
		s.record(ctx, &pending, moderation.Action{
			EntityType: moderation.EntityCompany,
			EntityID:   companyID,
			Action:     moderation.ActionSuspended,
			ActorID:    actorID,
			Reason:     reason,
			Metadata:   cloneMetadata(metadata),
		})
		telemetry.Info("insured seller suspended", map[string]any{
			"company_id":        companyID,
			"status_transition": string(prev) + "->" + string(StatusSuspended),
		})
		return nil
	})
	if err != nil {
		return Application{}, translateStoreErr(err)
	}
	moderation.PublishAll(ctx, s.Publisher, pending)
	return app, nil
}

// Reinstate lifts a suspension and lets a fresh evaluation decide the status.
func (s *Service) Reinstate(ctx context.Context, companyID, actorID, reason string) (Application, error) {
	now := s.now()
	var app Application
	var pending []moderation.Action
	err := s.Store.WithCompanyLock(ctx, companyID, func(ctx context.Context, tx Tx) error {
		current, err := tx.LockApplication(ctx, companyID, now)
		if err != nil {
			return err
		}
		if current.Status != StatusSuspended {
			return Conflict("application is not suspended")
		}
		current.Notes = ""
		if err := tx.SaveApplication(ctx, current); err != nil {
			return err
		}
		app, err = s.Evaluator.Evaluate(ctx, tx, companyID, now, EvaluateOptions{OverrideSuspended: true})
		if err != nil {
			return err
		}
		s.record(ctx, &pending, moderation.Action{
			EntityType: moderation.EntityCompany,
			EntityID:   companyID,
			Action:     moderation.ActionReinstated,
			ActorID:    actorID,
			Reason:     strings.TrimSpace(reason),
			Metadata:   map[string]any{"status": string(app.Status)},
		})
		return nil
	})
	if err != nil {
		return Application{}, translateStoreErr(err)
	}
	moderation.PublishAll(ctx, s.Publisher, pending)
	return app, nil
}

// GateOptions are the preconditions checked by the eligibility gate.
type GateOptions struct {
	RequireBadge bool
}

// EnsureEligible re-evaluates the company and returns a fresh snapshot when it
// may list insured items.
func (s *Service) EnsureEligible(ctx context.Context, companyID string, opts GateOptions) (Snapshot, error) {
	return s.WithEligibility(ctx, companyID, opts, nil)
}

// WithEligibility runs the gate and, when it passes, fn inside the same locked
// transaction so the listing write commits atomically with the evaluation. A
// failed gate still commits the evaluation it ran; fn is not called.
func (s *Service) WithEligibility(ctx context.Context, companyID string, opts GateOptions, fn func(ctx context.Context, snap Snapshot) error) (Snapshot, error) {
	now := s.now()
	var snap Snapshot
	var gateErr error
	err := s.Store.WithCompanyLock(ctx, companyID, func(ctx context.Context, tx Tx) error {
		app, err := s.Evaluator.Evaluate(ctx, tx, companyID, now, EvaluateOptions{})
		if err != nil {
			return err
		}
		company, err := tx.GetCompany(ctx, companyID)
		if err != nil {
			return err
		}
		outcome, gateFailure := checkGate(app, company, now, opts)
		metrics.IncGateCheck(outcome)
		if gateFailure != nil {
			gateErr = gateFailure
			return nil
		}
		snap = app.snapshot()
		if fn != nil {
			return fn(ctx, snap)
		}
		return nil
	})
	if err != nil {
		if KindOf(err) == "" {
			metrics.IncGateCheck("error")
		}
		return Snapshot{}, translateStoreErr(err)
	}
	if gateErr != nil {
		return Snapshot{}, gateErr
	}
	return snap, nil
}

func checkGate(app Application, company Company, now time.Time, opts GateOptions) (string, error) {
	if app.Status != StatusApproved {
		return "not_approved", Conflict("company is not an approved insured seller")
	}
	if app.ExpiresAt != nil && !app.ExpiresAt.After(now) {
		return "expired", Conflict("insured seller compliance has expired")
	}
	if opts.RequireBadge && !(app.BadgeEnabled && company.InsuredSellerBadgeVisible) {
		return "badge_hidden", Conflict("insured seller badge is not visible")
	}
	return "allowed", nil
}

// DocumentView is a document with a short-lived download link.
type DocumentView struct {
	Document
	DownloadURL string
}

// ComplianceSummary is the read model returned to compliance dashboards.
type ComplianceSummary struct {
	Application Application
	Documents   []DocumentView
}

// GetCompanyComplianceSummary returns the application and documents, newest
// first. A company that never submitted anything gets the default view; no
// row is written.
func (s *Service) GetCompanyComplianceSummary(ctx context.Context, companyID string) (ComplianceSummary, error) {
	if _, err := s.Store.GetCompany(ctx, companyID); err != nil {
		return ComplianceSummary{}, translateStoreErr(err)
	}
	now := s.now()
	app, err := s.Store.GetApplication(ctx, companyID)
	if errors.Is(err, ErrApplicationNotFound) {
		app = newApplication("", companyID, now)
		app.RequiredDocuments = Summarize(s.Catalog(), nil, now)
	} else if err != nil {
		return ComplianceSummary{}, err
	}

	docs, err := s.Store.ListDocuments(ctx, companyID)
	if err != nil {
		return ComplianceSummary{}, err
	}
	sort.SliceStable(docs, func(i, j int) bool { return newer(docs[i], docs[j]) })

	views := make([]DocumentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, DocumentView{Document: d, DownloadURL: s.downloadURL(ctx, d)})
	}
	return ComplianceSummary{Application: app, Documents: views}, nil
}

func (s *Service) downloadURL(ctx context.Context, d Document) string {
	if s.Files == nil || d.File.StorageKey == "" {
		return ""
	}
	link, err := s.Files.DownloadURL(ctx, d.File.StorageKey)
	if err != nil {
		telemetry.Warn("document download url failed", map[string]any{
			"company_id":  d.CompanyID,
			"document_id": d.ID,
			"error":       err,
		})
		return ""
	}
	return link
}

// record writes a moderation action inside the current transaction. Failures
// are logged and never fail the compliance operation.
func (s *Service) record(ctx context.Context, pending *[]moderation.Action, a moderation.Action) {
	a.ID = uuid.NewString()
	a.CreatedAt = s.now()
	if s.Recorder != nil {
		if err := s.Recorder.Record(ctx, a); err != nil {
			telemetry.Warn("moderation record failed", map[string]any{
				"entity_type": a.EntityType,
				"entity_id":   a.EntityID,
				"action":      a.Action,
				"error":       err,
			})
			return
		}
	}
	*pending = append(*pending, a)
}

// appendReview adds a structured entry to metadata.review, keeping history.
func appendReview(meta map[string]any, in ReviewInput, now time.Time) map[string]any {
	out := cloneMetadata(meta)
	if out == nil {
		out = map[string]any{}
	}
	entry := map[string]any{
		"decision":   string(in.Decision),
		"reviewerId": in.ReviewerID,
		"reviewedAt": now.Format(time.RFC3339),
	}
	if r := strings.TrimSpace(in.Reason); r != "" {
		entry["reason"] = r
	}
	if len(in.Metadata) > 0 {
		entry["metadata"] = cloneMetadata(in.Metadata)
	}

	var history []any
	switch prior := out[metadataReviewKey].(type) {
	case []any:
		history = append(history, prior...)
	case map[string]any:
		history = append(history, prior)
	}
	out[metadataReviewKey] = append(history, entry)
	return out
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return cloneValue(m).(map[string]any)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
