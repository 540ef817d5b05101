package plugin

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
)

type recordingPlugin struct {
	name      string
	committed atomic.Int32
	rejected  atomic.Int32
	advanced  atomic.Int32
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) OnPurchaseCommitted(context.Context, *purchase.Purchase) error {
	p.committed.Add(1)
	return nil
}

func (p *recordingPlugin) OnPurchaseRejected(context.Context, id.SaleID, string, uint64, error) error {
	p.rejected.Add(1)
	return errors.New("hook failure is swallowed")
}

func (p *recordingPlugin) OnTierAdvanced(context.Context, *sale.Sale, int) error {
	p.advanced.Add(1)
	return nil
}

type slowPlugin struct{}

func (slowPlugin) Name() string { return "slow" }

func (slowPlugin) OnSaleExhausted(ctx context.Context, _ *sale.Sale) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func TestRegisterCachesHooks(t *testing.T) {
	r := NewRegistry()
	p := &recordingPlugin{name: "rec"}
	if err := r.Register(p); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	r.EmitPurchaseCommitted(ctx, &purchase.Purchase{})
	r.EmitPurchaseRejected(ctx, id.NewSaleID(), "alice", 1, errors.New("rejected"))
	r.EmitTierAdvanced(ctx, &sale.Sale{}, 0)
	r.EmitSaleExhausted(ctx, &sale.Sale{})

	if p.committed.Load() != 1 || p.rejected.Load() != 1 || p.advanced.Load() != 1 {
		t.Errorf("dispatch counts: committed=%d rejected=%d advanced=%d",
			p.committed.Load(), p.rejected.Load(), p.advanced.Load())
	}
	if got := implementedInterfaces(p); len(got) != 3 {
		t.Errorf("implementedInterfaces = %v", got)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&recordingPlugin{name: "rec"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(&recordingPlugin{name: "rec"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if r.Count() != 1 || r.Get("rec") == nil || len(r.List()) != 1 {
		t.Error("registry state after duplicate")
	}
}

func TestCallWithTimeout(t *testing.T) {
	r := NewRegistry().WithTimeout(20 * time.Millisecond)
	if err := r.Register(slowPlugin{}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	r.EmitSaleExhausted(context.Background(), &sale.Sale{})
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("emit blocked for %v", elapsed)
	}
}
