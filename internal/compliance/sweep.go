package compliance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"marketplace-backend/internal/shared/telemetry"
)

const defaultSweepConcurrency = 4

// SweepResult reports one EvaluateAll run.
type SweepResult struct {
	Evaluated int                       `json:"evaluated"`
	Statuses  map[ApplicationStatus]int `json:"statuses"`
	Failed    map[string]string         `json:"failed,omitempty"`
}

// EvaluateAll re-evaluates every company with at most concurrency evaluations
// in flight. A failing company is recorded in the result and does not stop the
// sweep; only a context error or a failure to list companies is returned.
func (s *Service) EvaluateAll(ctx context.Context, concurrency int) (SweepResult, error) {
	if concurrency <= 0 {
		concurrency = defaultSweepConcurrency
	}
	ids, err := s.Store.ListCompanyIDs(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list companies: %w", err)
	}

	res := SweepResult{Statuses: map[ApplicationStatus]int{}, Failed: map[string]string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range ids {
		g.Go(func() error {
			app, err := s.Evaluate(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				res.Failed[id] = err.Error()
				return nil
			}
			res.Evaluated++
			res.Statuses[app.Status]++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	telemetry.Info("compliance sweep finished", map[string]any{
		"companies": len(ids),
		"evaluated": res.Evaluated,
		"failed":    len(res.Failed),
	})
	return res, nil
}
