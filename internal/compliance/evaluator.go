package compliance

import (
	"context"
	"fmt"
	"time"

	"marketplace-backend/internal/shared/metrics"
	"marketplace-backend/internal/shared/telemetry"
)

// Evaluator recomputes a company's application from its documents. It is the
// only writer of Application.Status apart from explicit suspension.
type Evaluator struct {
	Catalog *Catalog
}

// EvaluateOptions tunes a single evaluation.
type EvaluateOptions struct {
	// OverrideSuspended lets the computed status replace a suspension.
	OverrideSuspended bool
}

// Evaluate runs inside tx, which must hold the company lock. The application
// row is locked before the document set is read so concurrent reviewers never
// evaluate a stale set.
func (e *Evaluator) Evaluate(ctx context.Context, tx Tx, companyID string, now time.Time, opts EvaluateOptions) (Application, error) {
	started := time.Now()

	app, err := tx.LockApplication(ctx, companyID, now)
	if err != nil {
		return Application{}, err
	}
	docs, err := tx.ListDocuments(ctx, companyID)
	if err != nil {
		return Application{}, fmt.Errorf("list documents: %w", err)
	}
	if docs, err = e.sweep(ctx, tx, docs, now); err != nil {
		return Application{}, err
	}

	summaries := Summarize(e.Catalog, docs, now)
	prev := app.Status
	status := Aggregate(summaries, app.Status, opts.OverrideSuspended)

	app.Status = status
	app.RequiredDocuments = summaries
	app.ComplianceScore = Score(summaries, e.Catalog.Len())
	app.ExpiresAt = ExpiryHorizon(summaries, status)
	if status != StatusApproved {
		app.BadgeEnabled = false
	}
	if status == StatusApproved && app.ApprovedAt == nil {
		app.ApprovedAt = copyTime(&now)
	}
	app.LastEvaluatedAt = copyTime(&now)
	app.UpdatedAt = now

	if err := tx.SaveApplication(ctx, app); err != nil {
		return Application{}, fmt.Errorf("save application: %w", err)
	}
	if err := Project(ctx, tx, companyID, app.projection()); err != nil {
		return Application{}, fmt.Errorf("project company compliance: %w", err)
	}

	metrics.IncEvaluation(string(status))
	metrics.ObserveEvaluationDuration(time.Since(started))
	fields := map[string]any{
		"company_id": companyID,
		"status":     status,
		"score":      app.ComplianceScore,
	}
	if prev != status {
		fields["status_transition"] = string(prev) + "->" + string(status)
		telemetry.Info("compliance status changed", fields)
	} else {
		telemetry.Debug("compliance evaluated", fields)
	}
	return app, nil
}

// sweep persists the downgrade of approved documents whose expiry has passed.
func (e *Evaluator) sweep(ctx context.Context, tx Tx, docs []Document, now time.Time) ([]Document, error) {
	for i, d := range docs {
		if d.Status != DocumentStatusApproved || d.EffectiveStatus(now) != DocumentStatusExpired {
			continue
		}
		d.Status = DocumentStatusExpired
		if d.Metadata == nil {
			d.Metadata = map[string]any{}
		}
		d.Metadata[metadataAutoExpiredKey] = now.UTC().Format(time.RFC3339)
		if err := tx.UpdateDocument(ctx, d); err != nil {
			return nil, fmt.Errorf("expire document %s: %w", d.ID, err)
		}
		docs[i] = d
	}
	return docs, nil
}
