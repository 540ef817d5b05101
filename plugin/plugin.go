// Package plugin provides an extensible plugin system for tiersale.
// Plugins can hook into sale lifecycle events to extend functionality.
package plugin

import (
	"context"

	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *tiersale.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Sale hooks
// ──────────────────────────────────────────────────

// OnSaleInitialized is called after a new sale has been persisted.
type OnSaleInitialized interface {
	Plugin
	OnSaleInitialized(ctx context.Context, s *sale.Sale) error
}

// OnTierAdvanced is called when a purchase sells out tier from and the sale
// moves on to the next one.
type OnTierAdvanced interface {
	Plugin
	OnTierAdvanced(ctx context.Context, s *sale.Sale, from int) error
}

// OnSaleExhausted is called when the last tier sells out.
type OnSaleExhausted interface {
	Plugin
	OnSaleExhausted(ctx context.Context, s *sale.Sale) error
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseCommitted is called after a purchase fully settled.
type OnPurchaseCommitted interface {
	Plugin
	OnPurchaseCommitted(ctx context.Context, p *purchase.Purchase) error
}

// OnPurchaseRejected is called when a purchase is refused before any funds
// moved.
type OnPurchaseRejected interface {
	Plugin
	OnPurchaseRejected(ctx context.Context, saleID id.SaleID, participant string, amount uint64, err error) error
}

// OnSettlementFailed is called when a purchase took payment but could not
// be settled. The receipt needs manual reconciliation.
type OnSettlementFailed interface {
	Plugin
	OnSettlementFailed(ctx context.Context, p *purchase.Purchase, err error) error
}
