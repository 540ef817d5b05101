// Package store defines the composite persistence contract for tiersale.
package store

import (
	"context"

	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
)

// Store is the unified storage interface for all tiersale entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Sale methods
	CreateSale(ctx context.Context, s *sale.Sale) error
	GetSale(ctx context.Context, saleID id.SaleID) (*sale.Sale, error)
	ListSales(ctx context.Context, opts sale.ListOpts) ([]*sale.Sale, error)

	// Participant methods
	GetParticipant(ctx context.Context, saleID id.SaleID, address string) (*participant.Ledger, error)
	ListParticipants(ctx context.Context, saleID id.SaleID, opts participant.ListOpts) ([]*participant.Ledger, error)

	// Purchase methods
	GetPurchase(ctx context.Context, purchaseID id.PurchaseID) (*purchase.Purchase, error)
	ListPurchases(ctx context.Context, saleID id.SaleID, opts purchase.ListOpts) ([]*purchase.Purchase, error)
	UpdatePurchaseStatus(ctx context.Context, purchaseID id.PurchaseID, status purchase.Status, reason string) error

	// CommitPurchase persists the outcome of one purchase as a single unit:
	// the sale counters, the participant ledger (created when new) and the
	// receipt. s.Version must already be incremented; the commit applies only
	// if the stored version is s.Version-1 and fails with
	// tiersale.ErrConcurrentUpdate otherwise, writing nothing.
	CommitPurchase(ctx context.Context, s *sale.Sale, l *participant.Ledger, p *purchase.Purchase) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
