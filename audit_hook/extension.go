// Package audithook bridges sale lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/plugin"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnSaleInitialized   = (*Extension)(nil)
	_ plugin.OnTierAdvanced      = (*Extension)(nil)
	_ plugin.OnSaleExhausted     = (*Extension)(nil)
	_ plugin.OnPurchaseCommitted = (*Extension)(nil)
	_ plugin.OnPurchaseRejected  = (*Extension)(nil)
	_ plugin.OnSettlementFailed  = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges sale lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Sale lifecycle hooks
// ──────────────────────────────────────────────────

// OnSaleInitialized implements plugin.OnSaleInitialized.
func (e *Extension) OnSaleInitialized(ctx context.Context, s *sale.Sale) error {
	supply, _ := s.TotalSupply() //nolint:errcheck // validated at initialization
	return e.record(ctx, ActionSaleInitialized, SeverityInfo, OutcomeSuccess,
		ResourceSale, s.ID.String(), CategorySale, nil,
		"owner", s.Owner,
		"tiers", len(s.Tiers),
		"total_supply", supply,
	)
}

// OnTierAdvanced implements plugin.OnTierAdvanced.
func (e *Extension) OnTierAdvanced(ctx context.Context, s *sale.Sale, from int) error {
	return e.record(ctx, ActionTierAdvanced, SeverityInfo, OutcomeSuccess,
		ResourceTier, s.ID.String(), CategorySale, nil,
		"from_tier", from,
		"to_tier", s.CurrentTier,
		"total_sold", s.TotalSold,
	)
}

// OnSaleExhausted implements plugin.OnSaleExhausted.
func (e *Extension) OnSaleExhausted(ctx context.Context, s *sale.Sale) error {
	return e.record(ctx, ActionSaleExhausted, SeverityInfo, OutcomeSuccess,
		ResourceSale, s.ID.String(), CategorySale, nil,
		"total_sold", s.TotalSold,
	)
}

// ──────────────────────────────────────────────────
// Purchase lifecycle hooks
// ──────────────────────────────────────────────────

// OnPurchaseCommitted implements plugin.OnPurchaseCommitted.
func (e *Extension) OnPurchaseCommitted(ctx context.Context, p *purchase.Purchase) error {
	return e.record(ctx, ActionPurchaseCommitted, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, p.ID.String(), CategoryPurchase, nil,
		"sale_id", p.SaleID.String(),
		"participant", p.Participant,
		"tier", p.TierIndex,
		"payment", p.Payment,
		"allocation", p.Allocation,
	)
}

// OnPurchaseRejected implements plugin.OnPurchaseRejected. Rejections carry
// no purchase ID, so the sale is the audited resource.
func (e *Extension) OnPurchaseRejected(ctx context.Context, saleID id.SaleID, participant string, amount uint64, err error) error {
	return e.record(ctx, ActionPurchaseRejected, SeverityWarning, OutcomeFailure,
		ResourceSale, saleID.String(), CategoryPurchase, err,
		"participant", participant,
		"payment", amount,
	)
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (e *Extension) OnSettlementFailed(ctx context.Context, p *purchase.Purchase, err error) error {
	return e.record(ctx, ActionSettlementFailed, SeverityCritical, OutcomePartial,
		ResourcePurchase, p.ID.String(), CategorySettlement, err,
		"sale_id", p.SaleID.String(),
		"participant", p.Participant,
		"payment", p.Payment,
		"allocation", p.Allocation,
		"payment_transfer_id", p.PaymentTransferID.String(),
		"allocation_transfer_id", p.AllocationTransferID.String(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
