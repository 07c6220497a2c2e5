package moderation

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"marketplace-backend/internal/shared/storage/db"
)

func TestPGStoreRecordUsesSavepointInsideTx(t *testing.T) {
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer database.Close()

	a := sampleAction()
	mock.ExpectBegin()
	mock.ExpectExec("SAVEPOINT moderation_action").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO moderation_actions").
		WithArgs(a.ID, a.EntityType, a.EntityID, a.Action, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), a.CreatedAt).
		WillReturnError(errors.New("disk full"))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT moderation_action").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	store := &PGStore{DB: database}
	var recordErr error
	err = db.InTx(context.Background(), database, func(ctx context.Context, tx *sql.Tx) error {
		recordErr = store.Record(ctx, a)
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	if recordErr == nil {
		t.Fatalf("expected record error to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreRecordWithoutTx(t *testing.T) {
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer database.Close()

	a := sampleAction()
	a.Metadata = nil
	mock.ExpectExec("INSERT INTO moderation_actions").
		WithArgs(a.ID, a.EntityType, a.EntityID, a.Action, sqlmock.AnyArg(), sqlmock.AnyArg(), []byte("{}"), a.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := (&PGStore{DB: database}).Record(context.Background(), a); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreListByEntity(t *testing.T) {
	database, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer database.Close()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "entity_type", "entity_id", "action", "actor_id", "reason", "metadata", "created_at"}).
		AddRow("act-1", EntityCompany, "company-1", ActionSuspended, "admin-1", nil, []byte(`{"ticket":"T-9"}`), created)
	mock.ExpectQuery("SELECT id, entity_type, entity_id, action").
		WithArgs(EntityCompany, "company-1").
		WillReturnRows(rows)

	got, err := (&PGStore{DB: database}).ListByEntity(context.Background(), EntityCompany, "company-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ActorID != "admin-1" || got[0].Reason != "" || got[0].Metadata["ticket"] != "T-9" {
		t.Fatalf("unexpected actions: %+v", got)
	}
}
