package audithook

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
)

type captured struct {
	events []*AuditEvent
}

func (c *captured) recorder() Recorder {
	return RecorderFunc(func(_ context.Context, evt *AuditEvent) error {
		c.events = append(c.events, evt)
		return nil
	})
}

func testSale(t *testing.T) *sale.Sale {
	t.Helper()
	s, err := sale.Initialize("owner", []sale.Tier{{Supply: 100, Price: 1, MaxPerWallet: 10}})
	if err != nil {
		t.Fatal(err)
	}
	s.ID = id.NewSaleID()
	return s
}

func TestRecordsLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	c := &captured{}
	ext := New(c.recorder())
	s := testSale(t)
	p := &purchase.Purchase{ID: id.NewPurchaseID(), SaleID: s.ID, Participant: "alice", Payment: 5, Allocation: 5}

	_ = ext.OnSaleInitialized(ctx, s)
	_ = ext.OnPurchaseCommitted(ctx, p)
	_ = ext.OnPurchaseRejected(ctx, s.ID, "bob", 9, errors.New("wallet limit"))
	_ = ext.OnSettlementFailed(ctx, p, errors.New("reserve empty"))

	tests := []struct {
		action   string
		resource string
		id       string
		severity string
		outcome  string
	}{
		{ActionSaleInitialized, ResourceSale, s.ID.String(), SeverityInfo, OutcomeSuccess},
		{ActionPurchaseCommitted, ResourcePurchase, p.ID.String(), SeverityInfo, OutcomeSuccess},
		{ActionPurchaseRejected, ResourceSale, s.ID.String(), SeverityWarning, OutcomeFailure},
		{ActionSettlementFailed, ResourcePurchase, p.ID.String(), SeverityCritical, OutcomePartial},
	}

	if len(c.events) != len(tests) {
		t.Fatalf("recorded %d events, want %d", len(c.events), len(tests))
	}
	for i, tt := range tests {
		evt := c.events[i]
		if evt.Action != tt.action || evt.Resource != tt.resource || evt.ResourceID != tt.id {
			t.Errorf("event %d = %s/%s/%s, want %s/%s/%s", i, evt.Action, evt.Resource, evt.ResourceID, tt.action, tt.resource, tt.id)
		}
		if evt.Severity != tt.severity || evt.Outcome != tt.outcome {
			t.Errorf("event %d severity/outcome = %s/%s", i, evt.Severity, evt.Outcome)
		}
	}

	if c.events[2].Reason != "wallet limit" || c.events[2].Metadata["participant"] != "bob" {
		t.Errorf("rejection event = %+v", c.events[2])
	}
}

func TestEnabledActions(t *testing.T) {
	ctx := context.Background()
	c := &captured{}
	ext := New(c.recorder(), WithEnabledActions(ActionSettlementFailed))
	s := testSale(t)

	_ = ext.OnSaleInitialized(ctx, s)
	_ = ext.OnSettlementFailed(ctx, &purchase.Purchase{ID: id.NewPurchaseID(), SaleID: s.ID}, errors.New("boom"))

	if len(c.events) != 1 || c.events[0].Action != ActionSettlementFailed {
		t.Fatalf("events = %+v", c.events)
	}
}

func TestDisabledActions(t *testing.T) {
	ctx := context.Background()
	c := &captured{}
	ext := New(c.recorder(), WithDisabledActions(ActionPurchaseRejected))
	s := testSale(t)

	_ = ext.OnPurchaseRejected(ctx, s.ID, "bob", 1, errors.New("no"))
	_ = ext.OnSaleExhausted(ctx, s)

	if len(c.events) != 1 || c.events[0].Action != ActionSaleExhausted {
		t.Fatalf("events = %+v", c.events)
	}
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	ext := New(RecorderFunc(func(context.Context, *AuditEvent) error {
		return errors.New("backend down")
	}))
	if err := ext.OnTierAdvanced(context.Background(), testSale(t), 0); err != nil {
		t.Fatalf("hook returned %v", err)
	}
}
