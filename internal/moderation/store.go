package moderation

import (
	"context"
	"sync"
)

// Recorder persists moderation actions. Implementations join the caller's
// transaction when one is carried by ctx.
type Recorder interface {
	Record(ctx context.Context, action Action) error
}

// MemoryStore keeps actions in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	actions []Action
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an action.
func (s *MemoryStore) Record(ctx context.Context, action Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := action.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, action)
	return nil
}

// ListByEntity returns actions for an entity in insertion order.
func (s *MemoryStore) ListByEntity(ctx context.Context, entityType, entityID string) ([]Action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Action{}
	for _, a := range s.actions {
		if a.EntityType == entityType && a.EntityID == entityID {
			out = append(out, a)
		}
	}
	return out, nil
}

var _ Recorder = (*MemoryStore)(nil)
