package participant

import (
	"context"

	"github.com/xraph/tiersale/id"
)

// Store reads participant ledgers. Ledgers are written only as part of a
// purchase commit.
type Store interface {
	Get(ctx context.Context, saleID id.SaleID, address string) (*Ledger, error)
	List(ctx context.Context, saleID id.SaleID, opts ListOpts) ([]*Ledger, error)
}

type ListOpts struct {
	Limit  int
	Offset int
}
