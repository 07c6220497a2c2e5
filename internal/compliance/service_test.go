package compliance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketplace-backend/internal/moderation"
	"marketplace-backend/internal/shared/util"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type testEnv struct {
	svc      *Service
	store    *MemoryStore
	clock    *testClock
	actions  *moderation.MemoryStore
	company  string
	reviewer string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := NewMemoryStore()
	clock := &testClock{now: time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)}
	actions := moderation.NewMemoryStore()
	require.NoError(t, store.CreateCompany(context.Background(), Company{ID: "company-1", Name: "Acme Plumbing"}))

	svc := NewService(store, DefaultCatalog())
	svc.Clock = clock.Now
	svc.Recorder = actions
	return &testEnv{svc: svc, store: store, clock: clock, actions: actions, company: "company-1", reviewer: "reviewer-1"}
}

func (e *testEnv) submit(t *testing.T, docType DocumentType, expiresIn time.Duration) Document {
	t.Helper()
	var expiry *time.Time
	if expiresIn > 0 {
		at := e.clock.now.Add(expiresIn)
		expiry = &at
	}
	doc, err := e.svc.SubmitDocument(context.Background(), SubmitInput{
		CompanyID: e.company,
		ActorID:   "seller-1",
		Type:      docType,
		File: FileMetadata{
			FileName:   string(docType) + ".pdf",
			MimeType:   "application/pdf",
			StorageKey: util.HashNamespace(e.company) + "/" + string(docType) + ".pdf",
			SizeBytes:  2048,
		},
		ExpiryAt: expiry,
	})
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	return doc
}

func (e *testEnv) review(t *testing.T, docID string, decision Decision, reason string) Document {
	t.Helper()
	doc, err := e.svc.ReviewDocument(context.Background(), ReviewInput{
		DocumentID: docID,
		ReviewerID: e.reviewer,
		Decision:   decision,
		Reason:     reason,
	})
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	return doc
}

// approveAll submits and approves every default requirement. Expiries are
// 400, 200 and 300 days out.
func (e *testEnv) approveAll(t *testing.T) []Document {
	t.Helper()
	day := 24 * time.Hour
	docs := []Document{
		e.submit(t, "general_liability_insurance", 400*day),
		e.submit(t, "workers_compensation_insurance", 200*day),
		e.submit(t, "business_license", 300*day),
	}
	for i, d := range docs {
		docs[i] = e.review(t, d.ID, DecisionApprove, "")
	}
	return docs
}

func TestEvaluateWithoutDocuments(t *testing.T) {
	env := newTestEnv(t)

	app, err := env.svc.Evaluate(context.Background(), env.company)
	require.NoError(t, err)
	require.Equal(t, StatusPendingDocuments, app.Status)
	require.Zero(t, app.ComplianceScore)
	require.Len(t, app.RequiredDocuments, 3)
	for _, s := range app.RequiredDocuments {
		require.Equal(t, StateMissing, s.State, s.Type)
	}
	require.Nil(t, app.ExpiresAt)
	require.False(t, app.BadgeEnabled)
}

func TestApproveAllRequirements(t *testing.T) {
	env := newTestEnv(t)
	docs := env.approveAll(t)

	app, err := env.svc.Evaluate(context.Background(), env.company)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, app.Status)
	require.Equal(t, 100.0, app.ComplianceScore)
	require.NotNil(t, app.ExpiresAt)
	require.True(t, app.ExpiresAt.Equal(*docs[1].ExpiryAt), "expiresAt should be the earliest expiry")
	require.NotNil(t, app.ApprovedAt)

	company, err := env.store.GetCompany(context.Background(), env.company)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, company.InsuredSellerStatus)
	require.Equal(t, 100.0, company.ComplianceScore)
	require.False(t, company.InsuredSellerBadgeVisible)
}

func TestRejectionDropsScore(t *testing.T) {
	env := newTestEnv(t)
	docs := env.approveAll(t)

	rejected := env.review(t, docs[2].ID, DecisionReject, "license number does not match")
	require.Equal(t, DocumentStatusRejected, rejected.Status)
	require.Equal(t, "license number does not match", rejected.RejectionReason)

	app, err := env.svc.Evaluate(context.Background(), env.company)
	require.NoError(t, err)
	require.Equal(t, StatusPendingDocuments, app.Status)
	require.Equal(t, 66.67, app.ComplianceScore)
	require.Nil(t, app.ExpiresAt)
}

func TestExpiredDocumentHidesBadge(t *testing.T) {
	env := newTestEnv(t)
	docs := env.approveAll(t)
	ctx := context.Background()

	_, err := env.svc.ToggleBadge(ctx, env.company, "seller-1", true)
	require.NoError(t, err)
	company, err := env.store.GetCompany(ctx, env.company)
	require.NoError(t, err)
	require.True(t, company.InsuredSellerBadgeVisible)

	env.clock.now = docs[1].ExpiryAt.Add(24 * time.Hour)
	app, err := env.svc.Evaluate(ctx, env.company)
	require.NoError(t, err)
	require.Equal(t, StatusPendingDocuments, app.Status)
	require.False(t, app.BadgeEnabled)

	company, err = env.store.GetCompany(ctx, env.company)
	require.NoError(t, err)
	require.False(t, company.InsuredSellerBadgeVisible)
	require.Equal(t, StatusPendingDocuments, company.InsuredSellerStatus)

	stored, err := env.store.GetDocument(ctx, docs[1].ID)
	require.NoError(t, err)
	require.Equal(t, DocumentStatusExpired, stored.Status)
	require.Contains(t, stored.Metadata, metadataAutoExpiredKey)
}

func TestEligibilityRequiresVisibleBadge(t *testing.T) {
	env := newTestEnv(t)
	env.approveAll(t)
	ctx := context.Background()

	_, err := env.svc.EnsureEligible(ctx, env.company, GateOptions{RequireBadge: true})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrConflict))

	snap, err := env.svc.EnsureEligible(ctx, env.company, GateOptions{})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, snap.Status)

	_, err = env.svc.ToggleBadge(ctx, env.company, "seller-1", true)
	require.NoError(t, err)

	snap, err = env.svc.EnsureEligible(ctx, env.company, GateOptions{RequireBadge: true})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, snap.Status)
	require.Equal(t, 100.0, snap.ComplianceScore)
	require.NotEmpty(t, snap.ApplicationID)
}

func TestEligibilityRejectsPendingCompany(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "business_license", 30*24*time.Hour)

	_, err := env.svc.EnsureEligible(context.Background(), env.company, GateOptions{})
	require.True(t, errors.Is(err, ErrConflict))
	require.Equal(t, "company is not an approved insured seller", err.Error())
}

func TestWithEligibilitySkipsCallbackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	called := false
	_, err := env.svc.WithEligibility(context.Background(), env.company, GateOptions{}, func(ctx context.Context, snap Snapshot) error {
		called = true
		return nil
	})
	require.True(t, errors.Is(err, ErrConflict))
	require.False(t, called)

	// The evaluation the gate ran is still persisted.
	app, err := env.store.GetApplication(context.Background(), env.company)
	require.NoError(t, err)
	require.NotNil(t, app.LastEvaluatedAt)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.approveAll(t)
	ctx := context.Background()

	first, err := env.svc.Evaluate(ctx, env.company)
	require.NoError(t, err)
	second, err := env.svc.Evaluate(ctx, env.company)
	require.NoError(t, err)

	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.ComplianceScore, second.ComplianceScore)
	require.Equal(t, first.RequiredDocuments, second.RequiredDocuments)
	require.True(t, first.ExpiresAt.Equal(*second.ExpiresAt))
	require.True(t, first.ApprovedAt.Equal(*second.ApprovedAt))
}

func TestExpiredDocumentCannotBeApproved(t *testing.T) {
	env := newTestEnv(t)
	doc := env.submit(t, "business_license", time.Hour)
	env.clock.Advance(2 * time.Hour)

	_, err := env.svc.ReviewDocument(context.Background(), ReviewInput{
		DocumentID: doc.ID,
		ReviewerID: env.reviewer,
		Decision:   DecisionApprove,
	})
	require.True(t, errors.Is(err, ErrConflict))

	stored, err := env.store.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, DocumentStatusSubmitted, stored.Status)
}

func TestExpiredDocumentStaysExpired(t *testing.T) {
	env := newTestEnv(t)
	docs := env.approveAll(t)
	ctx := context.Background()

	env.clock.now = docs[1].ExpiryAt.Add(time.Hour)
	_, err := env.svc.Evaluate(ctx, env.company)
	require.NoError(t, err)

	// Moving the clock back does not resurrect the persisted expiry.
	env.clock.now = docs[1].ExpiryAt.Add(-time.Hour)
	app, err := env.svc.Evaluate(ctx, env.company)
	require.NoError(t, err)
	require.Equal(t, StatusPendingDocuments, app.Status)
	stored, err := env.store.GetDocument(ctx, docs[1].ID)
	require.NoError(t, err)
	require.Equal(t, DocumentStatusExpired, stored.Status)
}

func TestApprovingApprovedDocumentIsNoop(t *testing.T) {
	env := newTestEnv(t)
	docs := env.approveAll(t)

	again := env.review(t, docs[0].ID, DecisionApprove, "")
	require.Equal(t, docs[0].ReviewedAt, again.ReviewedAt)

	actions, err := env.actions.ListByEntity(context.Background(), moderation.EntityComplianceDocument, docs[0].ID)
	require.NoError(t, err)
	require.Len(t, actions, 2, "submitted + approved only")
}

func TestRejectingRejectedDocumentIsNoop(t *testing.T) {
	env := newTestEnv(t)
	doc := env.submit(t, "business_license", 90*24*time.Hour)
	first := env.review(t, doc.ID, DecisionReject, "blurry scan")

	again := env.review(t, doc.ID, DecisionReject, "still blurry")
	require.Equal(t, first.ReviewedAt, again.ReviewedAt)
	require.Equal(t, "blurry scan", again.RejectionReason)

	actions, err := env.actions.ListByEntity(context.Background(), moderation.EntityComplianceDocument, doc.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2, "submitted + rejected only")

	stored, err := env.store.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	history, ok := stored.Metadata[metadataReviewKey].([]any)
	require.True(t, ok)
	require.Len(t, history, 1)
}

func TestConcurrentReviewsSerializePerCompany(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var docs []Document
	for _, req := range env.svc.Catalog().Entries() {
		docs = append(docs, env.submit(t, req.Type, 90*24*time.Hour))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(docs))
	for _, d := range docs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := env.svc.ReviewDocument(ctx, ReviewInput{DocumentID: id, ReviewerID: env.reviewer, Decision: DecisionApprove})
			errs <- err
		}(d.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := env.store.GetApplication(ctx, env.company)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, stored.Status)
	require.Equal(t, 100.0, stored.ComplianceScore)

	company, err := env.store.GetCompany(ctx, env.company)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, company.InsuredSellerStatus)
	require.Equal(t, 100.0, company.ComplianceScore)
}

func TestReviewHistoryIsAppended(t *testing.T) {
	env := newTestEnv(t)
	doc := env.submit(t, "business_license", 90*24*time.Hour)
	env.review(t, doc.ID, DecisionReject, "blurry scan")
	env.review(t, doc.ID, DecisionApprove, "")

	stored, err := env.store.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	history, ok := stored.Metadata[metadataReviewKey].([]any)
	require.True(t, ok, "review metadata should be a list")
	require.Len(t, history, 2)
	require.Empty(t, stored.RejectionReason)
}

func TestSubmissionBumpsToInReview(t *testing.T) {
	env := newTestEnv(t)
	env.approveAll(t)
	ctx := context.Background()
	_, err := env.svc.ToggleBadge(ctx, env.company, "seller-1", true)
	require.NoError(t, err)

	env.submit(t, "business_license", 500*24*time.Hour)

	app, err := env.store.GetApplication(ctx, env.company)
	require.NoError(t, err)
	require.Equal(t, StatusInReview, app.Status)
	require.False(t, app.BadgeEnabled)
	require.Nil(t, app.ExpiresAt)

	company, err := env.store.GetCompany(ctx, env.company)
	require.NoError(t, err)
	require.False(t, company.InsuredSellerBadgeVisible)
}

func TestBadgeRequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.ToggleBadge(context.Background(), env.company, "seller-1", true)
	require.True(t, errors.Is(err, ErrConflict))

	company, err := env.store.GetCompany(context.Background(), env.company)
	require.NoError(t, err)
	require.False(t, company.InsuredSellerBadgeVisible)
}

func TestSuspensionIsSticky(t *testing.T) {
	env := newTestEnv(t)
	env.approveAll(t)
	ctx := context.Background()
	_, err := env.svc.ToggleBadge(ctx, env.company, "seller-1", true)
	require.NoError(t, err)

	_, err = env.svc.Suspend(ctx, env.company, env.reviewer, "", nil)
	require.True(t, errors.Is(err, ErrValidation))

	app, err := env.svc.Suspend(ctx, env.company, env.reviewer, "fraudulent certificate", map[string]any{"ticket": "T-1"})
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, app.Status)
	require.False(t, app.BadgeEnabled)
	require.Equal(t, "fraudulent certificate", app.Notes)

	app, err = env.svc.Evaluate(ctx, env.company)
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, app.Status)

	env.submit(t, "business_license", 90*24*time.Hour)
	app, err = env.store.GetApplication(ctx, env.company)
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, app.Status)

	_, err = env.svc.EnsureEligible(ctx, env.company, GateOptions{})
	require.True(t, errors.Is(err, ErrConflict))

	company, err := env.store.GetCompany(ctx, env.company)
	require.NoError(t, err)
	require.Equal(t, StatusSuspended, company.InsuredSellerStatus)
	require.False(t, company.InsuredSellerBadgeVisible)
}

func TestReinstateReevaluates(t *testing.T) {
	env := newTestEnv(t)
	env.approveAll(t)
	ctx := context.Background()

	_, err := env.svc.Reinstate(ctx, env.company, env.reviewer, "cleared")
	require.True(t, errors.Is(err, ErrConflict))

	_, err = env.svc.Suspend(ctx, env.company, env.reviewer, "audit", nil)
	require.NoError(t, err)

	app, err := env.svc.Reinstate(ctx, env.company, env.reviewer, "audit passed")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, app.Status)
	require.Empty(t, app.Notes)
	require.False(t, app.BadgeEnabled)

	actions, err := env.actions.ListByEntity(ctx, moderation.EntityCompany, env.company)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, moderation.ActionSuspended, actions[0].Action)
	require.Equal(t, moderation.ActionReinstated, actions[1].Action)
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	past := env.clock.now.Add(-time.Hour)

	cases := []struct {
		name string
		in   SubmitInput
		want string
	}{
		{"unknown type", SubmitInput{CompanyID: env.company, Type: "passport", File: FileMetadata{SizeBytes: 1}}, "unsupported document type"},
		{"empty file", SubmitInput{CompanyID: env.company, Type: "business_license"}, "fileSizeBytes must be a positive integer"},
		{"past expiry", SubmitInput{CompanyID: env.company, Type: "business_license", File: FileMetadata{SizeBytes: 1}, ExpiryAt: &past}, "expiryAt must be in the future"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.SubmitDocument(ctx, tc.in)
			require.True(t, errors.Is(err, ErrValidation))
			require.Equal(t, tc.want, err.Error())
		})
	}

	_, err := env.svc.SubmitDocument(ctx, SubmitInput{
		CompanyID: "nope",
		Type:      "business_license",
		File:      FileMetadata{StorageKey: util.HashNamespace("nope") + "/license.pdf", SizeBytes: 1},
	})
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestSubmitRejectsForeignStorageKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.CreateCompany(ctx, Company{ID: "company-2", Name: "Bolt Electric"}))

	own := util.HashNamespace(env.company)
	for _, key := range []string{
		"",
		"uploads/coi.pdf",
		own,
		own + "/",
		own + "/../" + util.HashNamespace("company-2") + "/coi.pdf",
		util.HashNamespace("company-2") + "/secret-coi.pdf",
	} {
		_, err := env.svc.SubmitDocument(ctx, SubmitInput{
			CompanyID: env.company,
			Type:      "business_license",
			File:      FileMetadata{FileName: "coi.pdf", StorageKey: key, SizeBytes: 1},
		})
		require.True(t, errors.Is(err, ErrValidation), "key %q", key)
	}

	docs, err := env.store.ListDocuments(ctx, env.company)
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestReviewValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.ReviewDocument(ctx, ReviewInput{DocumentID: "x", ReviewerID: env.reviewer, Decision: "maybe"})
	require.True(t, errors.Is(err, ErrValidation))

	_, err = env.svc.ReviewDocument(ctx, ReviewInput{DocumentID: "missing", ReviewerID: env.reviewer, Decision: DecisionApprove})
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestSummaryDefaultsAndOrdering(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	summary, err := env.svc.GetCompanyComplianceSummary(ctx, env.company)
	require.NoError(t, err)
	require.Equal(t, StatusPendingDocuments, summary.Application.Status)
	require.Len(t, summary.Application.RequiredDocuments, 3)
	require.Empty(t, summary.Documents)
	_, err = env.store.GetApplication(ctx, env.company)
	require.True(t, errors.Is(err, ErrApplicationNotFound), "summary must not write")

	first := env.submit(t, "business_license", 0)
	second := env.submit(t, "general_liability_insurance", 0)
	summary, err = env.svc.GetCompanyComplianceSummary(ctx, env.company)
	require.NoError(t, err)
	require.Len(t, summary.Documents, 2)
	require.Equal(t, second.ID, summary.Documents[0].ID)
	require.Equal(t, first.ID, summary.Documents[1].ID)

	_, err = env.svc.GetCompanyComplianceSummary(ctx, "missing")
	require.True(t, errors.Is(err, ErrNotFound))
}
