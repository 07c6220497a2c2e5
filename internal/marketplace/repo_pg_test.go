package marketplace

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"marketplace-backend/internal/compliance"
	"marketplace-backend/internal/shared/storage/db"
)

var itemRowColumns = []string{
	"id", "company_id", "title", "status", "insured_only", "compliance_snapshot", "compliance_hold_until",
	"reviewed_by", "rejection_reason", "created_at", "updated_at",
}

func TestPGRepoJoinsTransaction(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer sqlDB.Close()

	now := time.Date(2026, time.April, 1, 9, 0, 0, 0, time.UTC)
	expires := now.AddDate(0, 0, 30)
	item := Item{
		ID:                  "item-1",
		CompanyID:           "company-1",
		Title:               "Roof repair",
		Status:              StatusPendingReview,
		InsuredOnly:         true,
		ComplianceSnapshot:  &compliance.Snapshot{ApplicationID: "app-1", Status: compliance.StatusApproved, ExpiresAt: &expires, ComplianceScore: 100},
		ComplianceHoldUntil: &expires,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO marketplace_items`)).
		WithArgs("item-1", "company-1", "Roof repair", "pending_review", true, sqlmock.AnyArg(), expires, nil, nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM marketplace_items WHERE id = \$1 FOR UPDATE`).
		WithArgs("item-1").
		WillReturnRows(sqlmock.NewRows(itemRowColumns).AddRow(
			"item-1", "company-1", "Roof repair", "pending_review", true,
			[]byte(`{"applicationId":"app-1","status":"approved","expiresAt":"2026-05-01T09:00:00Z","complianceScore":100}`),
			expires, nil, nil, now, now,
		))
	mock.ExpectCommit()

	repo := &PGRepo{DB: sqlDB}
	var got Item
	err = db.InTx(context.Background(), sqlDB, func(ctx context.Context, tx *sql.Tx) error {
		if err := repo.Insert(ctx, item); err != nil {
			return err
		}
		var err error
		got, err = repo.Get(ctx, "item-1")
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if got.ComplianceSnapshot == nil || got.ComplianceSnapshot.ApplicationID != "app-1" {
		t.Fatalf("unexpected snapshot: %+v", got.ComplianceSnapshot)
	}
	if got.ComplianceHoldUntil == nil || !got.ComplianceHoldUntil.Equal(expires) {
		t.Fatalf("unexpected hold: %v", got.ComplianceHoldUntil)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRepoUpdateMissingItem(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE marketplace_items`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = (&PGRepo{DB: sqlDB}).Update(context.Background(), Item{ID: "missing", Status: StatusRejected})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
