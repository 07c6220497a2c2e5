package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"marketplace-backend/internal/shared/storage/db"
)

// PGStore implements Store using Postgres. The company row is locked with
// SELECT ... FOR UPDATE before anything else is read, and the application and
// document rows are locked again as they are read inside the transaction.
type PGStore struct {
	DB *sql.DB
}

const (
	applicationColumns = `id, company_id, status, required_documents, compliance_score, last_evaluated_at,
    approved_at, expires_at, badge_enabled, notes, created_at, updated_at`
	documentColumns = `id, company_id, type, status, file_name, mime_type, storage_key, size_bytes,
    issued_at, expiry_at, submitted_at, reviewed_at, reviewer_id, rejection_reason, metadata`
	companyColumns = `id, name, insured_seller_status, insured_seller_expires_at, compliance_score,
    insured_seller_badge_visible, created_at`
)

// WithCompanyLock opens a transaction, locks the company row and runs fn.
func (s *PGStore) WithCompanyLock(ctx context.Context, companyID string, fn func(ctx context.Context, tx Tx) error) error {
	return db.InTx(ctx, s.DB, func(ctx context.Context, sqlTx *sql.Tx) error {
		var id string
		err := sqlTx.QueryRowContext(ctx, `SELECT id FROM companies WHERE id = $1 FOR UPDATE`, companyID).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrCompanyNotFound
			}
			return fmt.Errorf("lock company: %w", err)
		}
		return fn(ctx, &pgTx{tx: sqlTx})
	})
}

func (s *PGStore) GetCompany(ctx context.Context, companyID string) (Company, error) {
	return getCompany(ctx, db.ExecutorFrom(ctx, s.DB), companyID, false)
}

func (s *PGStore) GetApplication(ctx context.Context, companyID string) (Application, error) {
	row := db.ExecutorFrom(ctx, s.DB).QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM insured_seller_applications WHERE company_id = $1`, companyID)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Application{}, ErrApplicationNotFound
	}
	return app, err
}

func (s *PGStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	return getDocument(ctx, db.ExecutorFrom(ctx, s.DB), documentID, false)
}

func (s *PGStore) ListDocuments(ctx context.Context, companyID string) ([]Document, error) {
	return listDocuments(ctx, db.ExecutorFrom(ctx, s.DB), companyID, false)
}

func (s *PGStore) ListCompanyIDs(ctx context.Context) ([]string, error) {
	rows, err := db.ExecutorFrom(ctx, s.DB).QueryContext(ctx, `SELECT id FROM companies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateCompany inserts a company row if it does not exist yet.
func (s *PGStore) CreateCompany(ctx context.Context, c Company) error {
	_, err := db.ExecutorFrom(ctx, s.DB).ExecContext(ctx, `
INSERT INTO companies (id, name, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (id) DO NOTHING`, c.ID, c.Name, time.Now().UTC())
	return err
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) LockApplication(ctx context.Context, companyID string, now time.Time) (Application, error) {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO insured_seller_applications (id, company_id, status, required_documents, compliance_score, badge_enabled, created_at, updated_at)
VALUES ($1, $2, $3, '[]'::jsonb, 0, FALSE, $4, $4)
ON CONFLICT (company_id) DO NOTHING`, uuid.NewString(), companyID, string(StatusPendingDocuments), now)
	if err != nil {
		return Application{}, fmt.Errorf("ensure application: %w", err)
	}
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM insured_seller_applications WHERE company_id = $1 FOR UPDATE`, companyID)
	app, err := scanApplication(row)
	if err != nil {
		return Application{}, fmt.Errorf("lock application: %w", err)
	}
	return app, nil
}

func (t *pgTx) SaveApplication(ctx context.Context, app Application) error {
	summaries, err := json.Marshal(app.RequiredDocuments)
	if err != nil {
		return fmt.Errorf("encode required documents: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
UPDATE insured_seller_applications
SET status = $2,
    required_documents = $3,
    compliance_score = $4,
    last_evaluated_at = $5,
    approved_at = $6,
    expires_at = $7,
    badge_enabled = $8,
    notes = $9,
    updated_at = $10
WHERE id = $1`,
		app.ID,
		string(app.Status),
		summaries,
		app.ComplianceScore,
		nullTime(app.LastEvaluatedAt),
		nullTime(app.ApprovedAt),
		nullTime(app.ExpiresAt),
		app.BadgeEnabled,
		nullString(app.Notes),
		app.UpdatedAt,
	)
	return err
}

func (t *pgTx) ListDocuments(ctx context.Context, companyID string) ([]Document, error) {
	return listDocuments(ctx, t.tx, companyID, true)
}

func (t *pgTx) GetDocument(ctx context.Context, documentID string) (Document, error) {
	return getDocument(ctx, t.tx, documentID, true)
}

func (t *pgTx) InsertDocument(ctx context.Context, doc Document) error {
	meta, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO compliance_documents (`+documentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		doc.ID,
		doc.CompanyID,
		string(doc.Type),
		string(doc.Status),
		doc.File.FileName,
		doc.File.MimeType,
		doc.File.StorageKey,
		doc.File.SizeBytes,
		nullTime(doc.IssuedAt),
		nullTime(doc.ExpiryAt),
		doc.SubmittedAt,
		nullTime(doc.ReviewedAt),
		nullString(doc.ReviewerID),
		nullString(doc.RejectionReason),
		meta,
	)
	return err
}

func (t *pgTx) UpdateDocument(ctx context.Context, doc Document) error {
	meta, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
UPDATE compliance_documents
SET status = $2, reviewed_at = $3, reviewer_id = $4, rejection_reason = $5, metadata = $6
WHERE id = $1`,
		doc.ID,
		string(doc.Status),
		nullTime(doc.ReviewedAt),
		nullString(doc.ReviewerID),
		nullString(doc.RejectionReason),
		meta,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (t *pgTx) GetCompany(ctx context.Context, companyID string) (Company, error) {
	return getCompany(ctx, t.tx, companyID, true)
}

func (t *pgTx) UpdateCompanyCompliance(ctx context.Context, companyID string, cc CompanyCompliance) error {
	var badge sql.NullBool
	if cc.BadgeVisible != nil {
		badge = sql.NullBool{Bool: *cc.BadgeVisible, Valid: true}
	}
	res, err := t.tx.ExecContext(ctx, `
UPDATE companies
SET insured_seller_status = $2,
    insured_seller_expires_at = $3,
    compliance_score = $4,
    insured_seller_badge_visible = COALESCE($5, insured_seller_badge_visible),
    updated_at = now()
WHERE id = $1`,
		companyID,
		string(cc.Status),
		nullTime(cc.ExpiresAt),
		cc.ComplianceScore,
		badge,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrCompanyNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getCompany(ctx context.Context, q db.Executor, companyID string, forUpdate bool) (Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var c Company
	var status string
	var expires sql.NullTime
	err := q.QueryRowContext(ctx, query, companyID).Scan(
		&c.ID,
		&c.Name,
		&status,
		&expires,
		&c.ComplianceScore,
		&c.InsuredSellerBadgeVisible,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Company{}, ErrCompanyNotFound
		}
		return Company{}, err
	}
	c.InsuredSellerStatus = ApplicationStatus(status)
	c.InsuredSellerExpiresAt = timePtr(expires)
	return c, nil
}

func getDocument(ctx context.Context, q db.Executor, documentID string, forUpdate bool) (Document, error) {
	query := `SELECT ` + documentColumns + ` FROM compliance_documents WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	doc, err := scanDocument(q.QueryRowContext(ctx, query, documentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrDocumentNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

func listDocuments(ctx context.Context, q db.Executor, companyID string, forUpdate bool) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM compliance_documents WHERE company_id = $1 ORDER BY submitted_at ASC, id ASC`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var docType, status string
	var issued, expiry, reviewed sql.NullTime
	var reviewer, reason sql.NullString
	var meta []byte
	if err := row.Scan(
		&doc.ID,
		&doc.CompanyID,
		&docType,
		&status,
		&doc.File.FileName,
		&doc.File.MimeType,
		&doc.File.StorageKey,
		&doc.File.SizeBytes,
		&issued,
		&expiry,
		&doc.SubmittedAt,
		&reviewed,
		&reviewer,
		&reason,
		&meta,
	); err != nil {
		return Document{}, err
	}
	doc.Type = DocumentType(docType)
	doc.Status = DocumentStatus(status)
	doc.IssuedAt = timePtr(issued)
	doc.ExpiryAt = timePtr(expiry)
	doc.ReviewedAt = timePtr(reviewed)
	doc.ReviewerID = reviewer.String
	doc.RejectionReason = reason.String
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
			return Document{}, fmt.Errorf("decode document metadata: %w", err)
		}
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}
	return doc, nil
}

func scanApplication(row rowScanner) (Application, error) {
	var app Application
	var status string
	var summaries []byte
	var evaluated, approved, expires sql.NullTime
	var notes sql.NullString
	if err := row.Scan(
		&app.ID,
		&app.CompanyID,
		&status,
		&summaries,
		&app.ComplianceScore,
		&evaluated,
		&approved,
		&expires,
		&app.BadgeEnabled,
		&notes,
		&app.CreatedAt,
		&app.UpdatedAt,
	); err != nil {
		return Application{}, err
	}
	app.Status = ApplicationStatus(status)
	app.LastEvaluatedAt = timePtr(evaluated)
	app.ApprovedAt = timePtr(approved)
	app.ExpiresAt = timePtr(expires)
	app.Notes = notes.String
	app.RequiredDocuments = []RequirementSummary{}
	if len(summaries) > 0 {
		if err := json.Unmarshal(summaries, &app.RequiredDocuments); err != nil {
			return Application{}, fmt.Errorf("decode required documents: %w", err)
		}
	}
	return app, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode document metadata: %w", err)
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
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

var _ Store = (*PGStore)(nil)
