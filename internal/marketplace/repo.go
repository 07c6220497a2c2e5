package marketplace

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("marketplace item not found")

// Repo persists marketplace items. Implementations join the transaction
// carried by ctx, so writes made from an eligibility callback commit with the
// evaluation.
type Repo interface {
	Insert(ctx context.Context, item Item) error
	Get(ctx context.Context, itemID string) (Item, error)
	Update(ctx context.Context, item Item) error
	ListByCompany(ctx context.Context, companyID string) ([]Item, error)
}
