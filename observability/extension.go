// Package observability provides a metrics extension for tiersale that
// records lifecycle event counts through a pluggable MetricFactory.
package observability

import (
	"context"
	"errors"

	"github.com/xraph/tiersale"
	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/plugin"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
	"github.com/xraph/tiersale/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnSaleInitialized   = (*MetricsExtension)(nil)
	_ plugin.OnTierAdvanced      = (*MetricsExtension)(nil)
	_ plugin.OnSaleExhausted     = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseCommitted = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseRejected  = (*MetricsExtension)(nil)
	_ plugin.OnSettlementFailed  = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records sale lifecycle metrics.
// Register it as a tiersale plugin to track purchases and tier progress.
type MetricsExtension struct {
	factory MetricFactory

	// Sale metrics
	SalesInitialized Counter
	TiersAdvanced    Counter
	SalesExhausted   Counter

	// Purchase metrics
	PurchasesCommitted Counter
	PaymentAmount      Histogram
	AllocationAmount   Histogram

	// Rejection metrics, one counter per cause
	RejectedWalletLimit Counter
	RejectedSoldOut     Counter
	RejectedInactive    Counter
	RejectedOverflow    Counter
	RejectedTransfer    Counter
	RejectedOther       Counter

	// Settlement metrics
	SettlementFailures Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Sale metrics
		SalesInitialized: factory.Counter("tiersale.sale.initialized"),
		TiersAdvanced:    factory.Counter("tiersale.tier.advanced"),
		SalesExhausted:   factory.Counter("tiersale.sale.exhausted"),

		// Purchase metrics
		PurchasesCommitted: factory.Counter("tiersale.purchase.committed"),
		PaymentAmount:      factory.Histogram("tiersale.purchase.payment_units"),
		AllocationAmount:   factory.Histogram("tiersale.purchase.allocation_tokens"),

		// Rejection metrics
		RejectedWalletLimit: factory.Counter("tiersale.purchase.rejected.wallet_limit"),
		RejectedSoldOut:     factory.Counter("tiersale.purchase.rejected.sold_out"),
		RejectedInactive:    factory.Counter("tiersale.purchase.rejected.inactive"),
		RejectedOverflow:    factory.Counter("tiersale.purchase.rejected.overflow"),
		RejectedTransfer:    factory.Counter("tiersale.purchase.rejected.transfer"),
		RejectedOther:       factory.Counter("tiersale.purchase.rejected.other"),

		// Settlement metrics
		SettlementFailures: factory.Counter("tiersale.settlement.failed"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Sale lifecycle hooks
// ──────────────────────────────────────────────────

// OnSaleInitialized implements plugin.OnSaleInitialized.
func (m *MetricsExtension) OnSaleInitialized(_ context.Context, _ *sale.Sale) error {
	m.SalesInitialized.Inc()
	return nil
}

// OnTierAdvanced implements plugin.OnTierAdvanced.
func (m *MetricsExtension) OnTierAdvanced(_ context.Context, _ *sale.Sale, _ int) error {
	m.TiersAdvanced.Inc()
	return nil
}

// OnSaleExhausted implements plugin.OnSaleExhausted.
func (m *MetricsExtension) OnSaleExhausted(_ context.Context, _ *sale.Sale) error {
	m.SalesExhausted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Purchase lifecycle hooks
// ──────────────────────────────────────────────────

// OnPurchaseCommitted implements plugin.OnPurchaseCommitted. Allocation is
// observed in whole tokens.
func (m *MetricsExtension) OnPurchaseCommitted(_ context.Context, p *purchase.Purchase) error {
	m.PurchasesCommitted.Inc()
	m.PaymentAmount.Observe(float64(p.Payment))
	m.AllocationAmount.Observe(types.UnitsFloat(p.Allocation))
	return nil
}

// OnPurchaseRejected implements plugin.OnPurchaseRejected.
func (m *MetricsExtension) OnPurchaseRejected(_ context.Context, _ id.SaleID, _ string, _ uint64, err error) error {
	switch {
	case errors.Is(err, participant.ErrExceededWalletLimit):
		m.RejectedWalletLimit.Inc()
	case errors.Is(err, sale.ErrTierSoldOut):
		m.RejectedSoldOut.Inc()
	case errors.Is(err, sale.ErrSaleInactive):
		m.RejectedInactive.Inc()
	case errors.Is(err, types.ErrArithmeticOverflow):
		m.RejectedOverflow.Inc()
	case errors.Is(err, tiersale.ErrTransferFailed):
		m.RejectedTransfer.Inc()
	default:
		m.RejectedOther.Inc()
	}
	return nil
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (m *MetricsExtension) OnSettlementFailed(_ context.Context, _ *purchase.Purchase, _ error) error {
	m.SettlementFailures.Inc()
	return nil
}
