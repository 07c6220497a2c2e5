package compliance

import (
	"context"
	"time"
)

// Store is the persistence boundary of the compliance engine.
type Store interface {
	// WithCompanyLock runs fn in one transaction holding an exclusive lock on
	// the company's compliance aggregate. The ctx given to fn carries the
	// transaction for collaborators that join it. An error from fn rolls
	// everything back.
	WithCompanyLock(ctx context.Context, companyID string, fn func(ctx context.Context, tx Tx) error) error

	GetCompany(ctx context.Context, companyID string) (Company, error)
	GetApplication(ctx context.Context, companyID string) (Application, error)
	GetDocument(ctx context.Context, documentID string) (Document, error)
	ListDocuments(ctx context.Context, companyID string) ([]Document, error)
	ListCompanyIDs(ctx context.Context) ([]string, error)
}

// Tx is the locked, transactional view of one company.
type Tx interface {
	// LockApplication returns the application, creating it with defaults if absent.
	LockApplication(ctx context.Context, companyID string, now time.Time) (Application, error)
	SaveApplication(ctx context.Context, app Application) error

	ListDocuments(ctx context.Context, companyID string) ([]Document, error)
	GetDocument(ctx context.Context, documentID string) (Document, error)
	InsertDocument(ctx context.Context, doc Document) error
	UpdateDocument(ctx context.Context, doc Document) error

	GetCompany(ctx context.Context, companyID string) (Company, error)
	UpdateCompanyCompliance(ctx context.Context, companyID string, c CompanyCompliance) error
}
