package purchase

import (
	"context"

	"github.com/xraph/tiersale/id"
)

// Store reads purchase receipts. Receipts are inserted by the composite
// store's CommitPurchase.
type Store interface {
	Get(ctx context.Context, purchaseID id.PurchaseID) (*Purchase, error)
	List(ctx context.Context, saleID id.SaleID, opts ListOpts) ([]*Purchase, error)
	UpdateStatus(ctx context.Context, purchaseID id.PurchaseID, status Status, reason string) error
}

type ListOpts struct {
	Participant string
	Status      Status
	Limit       int
	Offset      int
}
