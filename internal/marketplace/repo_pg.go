package marketplace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketplace-backend/internal/compliance"
	"marketplace-backend/internal/shared/storage/db"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const itemColumns = `id, company_id, title, status, insured_only, compliance_snapshot, compliance_hold_until,
    reviewed_by, rejection_reason, created_at, updated_at`

// Insert adds a new item.
func (r *PGRepo) Insert(ctx context.Context, item Item) error {
	snap, err := encodeSnapshot(item.ComplianceSnapshot)
	if err != nil {
		return err
	}
	_, err = db.ExecutorFrom(ctx, r.DB).ExecContext(ctx, `
INSERT INTO marketplace_items (`+itemColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		item.ID,
		item.CompanyID,
		item.Title,
		string(item.Status),
		item.InsuredOnly,
		snap,
		nullTime(item.ComplianceHoldUntil),
		nullString(item.ReviewedBy),
		nullString(item.RejectionReason),
		item.CreatedAt,
		item.UpdatedAt,
	)
	return err
}

// Get loads an item. Inside a transaction the row is locked.
func (r *PGRepo) Get(ctx context.Context, itemID string) (Item, error) {
	query := `SELECT ` + itemColumns + ` FROM marketplace_items WHERE id = $1`
	if _, ok := db.TxFrom(ctx); ok {
		query += ` FOR UPDATE`
	}
	item, err := scanItem(db.ExecutorFrom(ctx, r.DB).QueryRowContext(ctx, query, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return item, err
}

// Update writes the moderation and compliance fields of an item.
func (r *PGRepo) Update(ctx context.Context, item Item) error {
	snap, err := encodeSnapshot(item.ComplianceSnapshot)
	if err != nil {
		return err
	}
	res, err := db.ExecutorFrom(ctx, r.DB).ExecContext(ctx, `
UPDATE marketplace_items
SET status = $2,
    compliance_snapshot = $3,
    compliance_hold_until = $4,
    reviewed_by = $5,
    rejection_reason = $6,
    updated_at = $7
WHERE id = $1`,
		item.ID,
		string(item.Status),
		snap,
		nullTime(item.ComplianceHoldUntil),
		nullString(item.ReviewedBy),
		nullString(item.RejectionReason),
		item.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByCompany returns a company's items, newest first.
func (r *PGRepo) ListByCompany(ctx context.Context, companyID string) ([]Item, error) {
	rows, err := db.ExecutorFrom(ctx, r.DB).QueryContext(ctx,
		`SELECT `+itemColumns+` FROM marketplace_items WHERE company_id = $1 ORDER BY created_at DESC, id DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	var status string
	var snap []byte
	var hold sql.NullTime
	var reviewedBy, reason sql.NullString
	if err := row.Scan(
		&item.ID,
		&item.CompanyID,
		&item.Title,
		&status,
		&item.InsuredOnly,
		&snap,
		&hold,
		&reviewedBy,
		&reason,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return Item{}, err
	}
	item.Status = ItemStatus(status)
	if hold.Valid {
		t := hold.Time
		item.ComplianceHoldUntil = &t
	}
	item.ReviewedBy = reviewedBy.String
	item.RejectionReason = reason.String
	if len(snap) > 0 && string(snap) != "null" {
		var s compliance.Snapshot
		if err := json.Unmarshal(snap, &s); err != nil {
			return Item{}, fmt.Errorf("decode compliance snapshot: %w", err)
		}
		item.ComplianceSnapshot = &s
	}
	return item, nil
}

func encodeSnapshot(s *compliance.Snapshot) (any, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode compliance snapshot: %w", err)
	}
	return b, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
