package marketplace

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Repo.
type MemoryRepo struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{items: make(map[string]Item)}
}

func (r *MemoryRepo) Insert(ctx context.Context, item Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = cloneItem(item)
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, itemID string) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[itemID]
	if !ok {
		return Item{}, ErrNotFound
	}
	return cloneItem(item), nil
}

func (r *MemoryRepo) Update(ctx context.Context, item Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; !ok {
		return ErrNotFound
	}
	r.items[item.ID] = cloneItem(item)
	return nil
}

// ListByCompany returns a company's items, newest first.
func (r *MemoryRepo) ListByCompany(ctx context.Context, companyID string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := []Item{}
	for _, item := range r.items {
		if item.CompanyID == companyID {
			out = append(out, cloneItem(item))
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func cloneItem(item Item) Item {
	if item.ComplianceSnapshot != nil {
		snap := *item.ComplianceSnapshot
		if snap.ExpiresAt != nil {
			t := *snap.ExpiresAt
			snap.ExpiresAt = &t
		}
		item.ComplianceSnapshot = &snap
	}
	if item.ComplianceHoldUntil != nil {
		t := *item.ComplianceHoldUntil
		item.ComplianceHoldUntil = &t
	}
	return item
}

var _ Repo = (*MemoryRepo)(nil)
