package sale

import (
	"context"

	"github.com/xraph/tiersale/id"
)

// Store persists sale ledgers. Sale counters are only written through the
// composite store's CommitPurchase.
type Store interface {
	Create(ctx context.Context, s *Sale) error
	Get(ctx context.Context, saleID id.SaleID) (*Sale, error)
	List(ctx context.Context, opts ListOpts) ([]*Sale, error)
}

type ListOpts struct {
	Owner  string
	Limit  int
	Offset int
}
