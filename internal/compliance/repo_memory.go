package compliance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store. Writes made inside WithCompanyLock are
// staged and only become visible when fn returns nil.
type MemoryStore struct {
	mu        sync.RWMutex
	companies map[string]Company
	apps      map[string]Application // companyId -> application
	docs      map[string]Document

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		companies: make(map[string]Company),
		apps:      make(map[string]Application),
		docs:      make(map[string]Document),
		locks:     make(map[string]*sync.Mutex),
	}
}

// CreateCompany registers a company with default compliance fields.
func (s *MemoryStore) CreateCompany(ctx context.Context, c Company) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.InsuredSellerStatus == "" {
		c.InsuredSellerStatus = StatusPendingDocuments
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[c.ID]; !ok {
		s.companies[c.ID] = c
	}
	return nil
}

func (s *MemoryStore) companyLock(companyID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[companyID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[companyID] = l
	}
	return l
}

// WithCompanyLock serializes fn per company and commits staged writes on success.
func (s *MemoryStore) WithCompanyLock(ctx context.Context, companyID string, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.GetCompany(ctx, companyID); err != nil {
		return err
	}

	l := s.companyLock(companyID)
	l.Lock()
	defer l.Unlock()

	tx := &memoryTx{
		store:     s,
		companies: make(map[string]Company),
		apps:      make(map[string]Application),
		docs:      make(map[string]Document),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range tx.companies {
		s.companies[id] = c
	}
	for id, a := range tx.apps {
		s.apps[id] = a
	}
	for id, d := range tx.docs {
		s.docs[id] = d
	}
	return nil
}

func (s *MemoryStore) GetCompany(ctx context.Context, companyID string) (Company, error) {
	if err := ctx.Err(); err != nil {
		return Company{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[companyID]
	if !ok {
		return Company{}, ErrCompanyNotFound
	}
	return cloneCompany(c), nil
}

func (s *MemoryStore) GetApplication(ctx context.Context, companyID string) (Application, error) {
	if err := ctx.Err(); err != nil {
		return Application{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.apps[companyID]
	if !ok {
		return Application{}, ErrApplicationNotFound
	}
	return cloneApplication(a), nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[documentID]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return cloneDocument(d), nil
}

func (s *MemoryStore) ListDocuments(ctx context.Context, companyID string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Document{}
	for _, d := range s.docs {
		if d.CompanyID == companyID {
			out = append(out, cloneDocument(d))
		}
	}
	sortBySubmission(out)
	return out, nil
}

func (s *MemoryStore) ListCompanyIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.companies))
	for id := range s.companies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// memoryTx reads through its staged writes to the committed store.
type memoryTx struct {
	store     *MemoryStore
	companies map[string]Company
	apps      map[string]Application
	docs      map[string]Document
}

func (t *memoryTx) LockApplication(ctx context.Context, companyID string, now time.Time) (Application, error) {
	if err := ctx.Err(); err != nil {
		return Application{}, err
	}
	if a, ok := t.apps[companyID]; ok {
		return cloneApplication(a), nil
	}
	a, err := t.store.GetApplication(ctx, companyID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrApplicationNotFound) {
		return Application{}, err
	}
	a = newApplication(uuid.NewString(), companyID, now)
	t.apps[companyID] = a
	return cloneApplication(a), nil
}

func (t *memoryTx) SaveApplication(ctx context.Context, app Application) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.apps[app.CompanyID] = cloneApplication(app)
	return nil
}

func (t *memoryTx) ListDocuments(ctx context.Context, companyID string) ([]Document, error) {
	committed, err := t.store.ListDocuments(ctx, companyID)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(committed)+len(t.docs))
	seen := make(map[string]struct{}, len(t.docs))
	for _, d := range committed {
		if staged, ok := t.docs[d.ID]; ok {
			d = cloneDocument(staged)
			seen[d.ID] = struct{}{}
		}
		out = append(out, d)
	}
	for id, d := range t.docs {
		if _, ok := seen[id]; ok || d.CompanyID != companyID {
			continue
		}
		out = append(out, cloneDocument(d))
	}
	sortBySubmission(out)
	return out, nil
}

func (t *memoryTx) GetDocument(ctx context.Context, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	if d, ok := t.docs[documentID]; ok {
		return cloneDocument(d), nil
	}
	return t.store.GetDocument(ctx, documentID)
}

func (t *memoryTx) InsertDocument(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.docs[doc.ID] = cloneDocument(doc)
	return nil
}

func (t *memoryTx) UpdateDocument(ctx context.Context, doc Document) error {
	if _, err := t.GetDocument(ctx, doc.ID); err != nil {
		return err
	}
	t.docs[doc.ID] = cloneDocument(doc)
	return nil
}

func (t *memoryTx) GetCompany(ctx context.Context, companyID string) (Company, error) {
	if err := ctx.Err(); err != nil {
		return Company{}, err
	}
	if c, ok := t.companies[companyID]; ok {
		return cloneCompany(c), nil
	}
	return t.store.GetCompany(ctx, companyID)
}

func (t *memoryTx) UpdateCompanyCompliance(ctx context.Context, companyID string, cc CompanyCompliance) error {
	c, err := t.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}
	c.InsuredSellerStatus = cc.Status
	c.InsuredSellerExpiresAt = copyTime(cc.ExpiresAt)
	c.ComplianceScore = cc.ComplianceScore
	if cc.BadgeVisible != nil {
		c.InsuredSellerBadgeVisible = *cc.BadgeVisible
	}
	t.companies[companyID] = c
	return nil
}

func sortBySubmission(docs []Document) {
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].SubmittedAt.Equal(docs[j].SubmittedAt) {
			return docs[i].SubmittedAt.Before(docs[j].SubmittedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

func cloneCompany(c Company) Company {
	c.InsuredSellerExpiresAt = copyTime(c.InsuredSellerExpiresAt)
	return c
}

func cloneApplication(a Application) Application {
	a.RequiredDocuments = append([]RequirementSummary(nil), a.RequiredDocuments...)
	if a.RequiredDocuments == nil {
		a.RequiredDocuments = []RequirementSummary{}
	}
	a.LastEvaluatedAt = copyTime(a.LastEvaluatedAt)
	a.ApprovedAt = copyTime(a.ApprovedAt)
	a.ExpiresAt = copyTime(a.ExpiresAt)
	return a
}

func cloneDocument(d Document) Document {
	d.IssuedAt = copyTime(d.IssuedAt)
	d.ExpiryAt = copyTime(d.ExpiryAt)
	d.ReviewedAt = copyTime(d.ReviewedAt)
	if d.Metadata != nil {
		d.Metadata = cloneValue(d.Metadata).(map[string]any)
	}
	return d
}

// cloneValue deep-copies JSON-shaped values.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

var _ Store = (*MemoryStore)(nil)
