package tiersale_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/xraph/tiersale"
	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
	"github.com/xraph/tiersale/store/memory"
	"github.com/xraph/tiersale/transfer"
)

var testSettlement = tiersale.Settlement{
	Treasury:     "treasury",
	Reserve:      "reserve",
	PaymentAsset: "USDC",
	SaleAsset:    "SALE",
}

// twoTiers prices tier 0 at one payment unit per allocation unit.
func twoTiers() []tiersale.Tier {
	return []tiersale.Tier{
		{Supply: 1000, Price: tiersale.Scale, MaxPerWallet: 500},
		{Supply: 1000, Price: 2 * tiersale.Scale, MaxPerWallet: 1000},
	}
}

// recorder captures lifecycle events.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) add(format string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
	return nil
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) OnSaleInitialized(_ context.Context, _ *sale.Sale) error {
	return r.add("sale.initialized")
}

func (r *recorder) OnTierAdvanced(_ context.Context, s *sale.Sale, from int) error {
	return r.add("tier.advanced %d->%d", from, s.CurrentTier)
}

func (r *recorder) OnSaleExhausted(_ context.Context, _ *sale.Sale) error {
	return r.add("sale.exhausted")
}

func (r *recorder) OnPurchaseCommitted(_ context.Context, p *purchase.Purchase) error {
	return r.add("purchase.committed %s %d", p.Participant, p.Allocation)
}

func (r *recorder) OnPurchaseRejected(_ context.Context, _ id.SaleID, address string, _ uint64, _ error) error {
	return r.add("purchase.rejected %s", address)
}

func (r *recorder) OnSettlementFailed(_ context.Context, p *purchase.Purchase, _ error) error {
	return r.add("settlement.failed %s", p.Participant)
}

type fixture struct {
	eng   *tiersale.Engine
	store *memory.Store
	rec   *recorder
	sale  *tiersale.Sale
}

func newFixture(t *testing.T, tiers []tiersale.Tier, opts ...tiersale.Option) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), rec: &recorder{}}
	f.eng = tiersale.New(f.store, append([]tiersale.Option{tiersale.WithPlugin(f.rec)}, opts...)...)

	ctx := context.Background()
	if err := f.eng.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = f.eng.Stop() })

	s, err := f.eng.InitializeSale(ctx, "issuer", tiers, testSettlement)
	if err != nil {
		t.Fatal(err)
	}
	f.sale = s
	return f
}

// snapshot is the persisted state a rejected purchase must leave untouched.
type snapshot struct {
	sale      *tiersale.Sale
	ledger    *tiersale.Participant
	purchases int
}

func (f *fixture) snapshot(t *testing.T, address string) snapshot {
	t.Helper()
	ctx := context.Background()
	s, err := f.eng.GetSale(ctx, f.sale.ID)
	if err != nil {
		t.Fatal(err)
	}
	l, err := f.eng.GetParticipant(ctx, f.sale.ID, address)
	if err != nil {
		t.Fatal(err)
	}
	ps, err := f.eng.ListPurchases(ctx, f.sale.ID, purchase.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	return snapshot{sale: s, ledger: l, purchases: len(ps)}
}

func assertUnchanged(t *testing.T, before, after snapshot) {
	t.Helper()
	if !reflect.DeepEqual(before.sale, after.sale) {
		t.Errorf("sale changed:\nbefore %+v\nafter  %+v", before.sale, after.sale)
	}
	if !reflect.DeepEqual(before.ledger.Contributions, after.ledger.Contributions) ||
		before.ledger.TokensBought != after.ledger.TokensBought {
		t.Errorf("participant changed:\nbefore %+v\nafter  %+v", before.ledger, after.ledger)
	}
	if before.purchases != after.purchases {
		t.Errorf("purchases = %d, want %d", after.purchases, before.purchases)
	}
}

func TestPurchaseScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoTiers())

	p, err := f.eng.Purchase(ctx, f.sale.ID, "alice", 500)
	if err != nil {
		t.Fatal(err)
	}
	if p.Allocation != 500 || p.TierIndex != 0 || p.Advanced || p.Status != purchase.StatusCommitted {
		t.Errorf("receipt = %+v", p)
	}

	before := f.snapshot(t, "alice")
	if _, err := f.eng.Purchase(ctx, f.sale.ID, "alice", 1); !errors.Is(err, tiersale.ErrExceededWalletLimit) {
		t.Fatalf("got %v, want ErrExceededWalletLimit", err)
	}
	assertUnchanged(t, before, f.snapshot(t, "alice"))

	p, err = f.eng.Purchase(ctx, f.sale.ID, "bob", 500)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Advanced {
		t.Error("bob's purchase should sell out tier 0")
	}

	progress, err := f.eng.Progress(ctx, f.sale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if progress.CurrentTier != 1 || progress.TotalSold != 1000 || progress.State != sale.StateActive {
		t.Errorf("progress = %+v", progress)
	}

	// Tier 1 costs twice as much: 1000 payment buys 500 units.
	p, err = f.eng.Purchase(ctx, f.sale.ID, "alice", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if p.TierIndex != 1 || p.Allocation != 500 {
		t.Errorf("tier 1 receipt = %+v", p)
	}

	alice, err := f.eng.GetParticipant(ctx, f.sale.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(alice.Contributions, []uint64{500, 1000}) || alice.TokensBought != 1000 {
		t.Errorf("alice = %+v", alice)
	}

	want := []string{
		"sale.initialized",
		"purchase.committed alice 500",
		"purchase.rejected alice",
		"tier.advanced 0->1",
		"purchase.committed bob 500",
		"purchase.committed alice 500",
	}
	if got := f.rec.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %q\nwant     %q", got, want)
	}
}

func TestSaleExhaustion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []tiersale.Tier{{Supply: 100, Price: tiersale.Scale, MaxPerWallet: 100}})

	if _, err := f.eng.Purchase(ctx, f.sale.ID, "alice", 100); err != nil {
		t.Fatal(err)
	}

	s, err := f.eng.GetSale(ctx, f.sale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Exhausted() || s.State() != sale.StateExhausted {
		t.Fatalf("sale = %+v", s)
	}

	if _, err := f.eng.Purchase(ctx, f.sale.ID, "bob", 1); !errors.Is(err, tiersale.ErrSaleInactive) {
		t.Fatalf("got %v, want ErrSaleInactive", err)
	}

	events := f.rec.list()
	if !slicesContains(events, "sale.exhausted") {
		t.Errorf("events = %q, want sale.exhausted", events)
	}
}

func TestPurchaseRejections(t *testing.T) {
	tests := []struct {
		name    string
		tiers   []tiersale.Tier
		address string
		amount  uint64
		wantErr error
	}{
		{"zero amount", twoTiers(), "alice", 0, tiersale.ErrInvalidAmount},
		{"empty participant", twoTiers(), "", 10, tiersale.ErrInvalidInput},
		{"over wallet cap", twoTiers(), "alice", 501, tiersale.ErrExceededWalletLimit},
		{
			"allocation beyond tier supply",
			[]tiersale.Tier{{Supply: 100, Price: tiersale.Scale, MaxPerWallet: 500}},
			"alice", 101, tiersale.ErrTierSoldOut,
		},
		{
			"allocation beyond uint64",
			[]tiersale.Tier{{Supply: 1000, Price: 1, MaxPerWallet: 1000}},
			"alice", 19, tiersale.ErrArithmeticOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.tiers)
			before := f.snapshot(t, "alice")

			p, err := f.eng.Purchase(context.Background(), f.sale.ID, tt.address, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if p != nil {
				t.Error("rejected purchase returned a receipt")
			}
			if tt.wantErr != tiersale.ErrInvalidInput && !tiersale.IsRejection(err) {
				t.Errorf("IsRejection(%v) = false", err)
			}
			assertUnchanged(t, before, f.snapshot(t, "alice"))
		})
	}
}

func TestInitializeSaleRejectsBadSchedule(t *testing.T) {
	ctx := context.Background()
	eng := tiersale.New(memory.New())

	if _, err := eng.InitializeSale(ctx, "issuer", nil, testSettlement); !errors.Is(err, tiersale.ErrInvalidConfiguration) {
		t.Fatalf("got %v, want ErrInvalidConfiguration", err)
	}
	if _, err := eng.InitializeSale(ctx, "issuer", []tiersale.Tier{{Supply: 1, Price: 0, MaxPerWallet: 1}}, testSettlement); !errors.Is(err, tiersale.ErrInvalidConfiguration) {
		t.Fatalf("got %v, want ErrInvalidConfiguration", err)
	}

	sales, err := eng.ListSales(ctx, sale.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 0 {
		t.Errorf("invalid sales were stored: %d", len(sales))
	}
}

func TestQuoteDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, twoTiers())
	before := f.snapshot(t, "alice")

	q, err := f.eng.Quote(ctx, f.sale.ID, "alice", 200)
	if err != nil {
		t.Fatal(err)
	}
	if q.Allocation != 200 || q.Contribution != 200 || q.WalletRemaining != 300 || q.TierRemaining != 800 || q.Advances {
		t.Errorf("quote = %+v", q)
	}
	assertUnchanged(t, before, f.snapshot(t, "alice"))

	if _, err := f.eng.Quote(ctx, f.sale.ID, "alice", 600); !errors.Is(err, tiersale.ErrExceededWalletLimit) {
		t.Errorf("got %v, want ErrExceededWalletLimit", err)
	}
}

func TestPaymentTransferFailureChangesNothing(t *testing.T) {
	ctx := context.Background()
	declined := errors.New("card declined")
	f := newFixture(t, twoTiers(), tiersale.WithTransferer(transfer.Func(func(context.Context, *transfer.Transfer) error {
		return declined
	})))
	before := f.snapshot(t, "alice")

	_, err := f.eng.Purchase(ctx, f.sale.ID, "alice", 100)
	if !errors.Is(err, tiersale.ErrTransferFailed) || !errors.Is(err, declined) {
		t.Fatalf("got %v, want ErrTransferFailed wrapping the cause", err)
	}
	if errors.Is(err, tiersale.ErrInconsistentState) {
		t.Error("payment failure must not be reported as inconsistent")
	}
	assertUnchanged(t, before, f.snapshot(t, "alice"))
}

func TestAllocationTransferFailure(t *testing.T) {
	ctx := context.Background()
	var transfers []transfer.Transfer
	f := newFixture(t, twoTiers(), tiersale.WithTransferer(transfer.Func(func(_ context.Context, tr *transfer.Transfer) error {
		transfers = append(transfers, *tr)
		if tr.Asset == "SALE" {
			return errors.New("reserve empty")
		}
		return nil
	})))

	_, err := f.eng.Purchase(ctx, f.sale.ID, "alice", 100)
	if !errors.Is(err, tiersale.ErrInconsistentState) {
		t.Fatalf("got %v, want ErrInconsistentState", err)
	}
	var se *tiersale.SettlementError
	if !errors.As(err, &se) || se.Stage != tiersale.StageAllocationTransfer {
		t.Fatalf("expected allocation-stage SettlementError, got %#v", err)
	}

	stored, err := f.eng.GetPurchase(ctx, se.Purchase.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != purchase.StatusSettlementFailed || stored.Reason == "" {
		t.Errorf("stored receipt = %+v", stored)
	}

	// The ledgers stay committed for reconciliation.
	s, _ := f.eng.GetSale(ctx, f.sale.ID)
	if s.TotalSold != 100 {
		t.Errorf("total sold = %d, want 100", s.TotalSold)
	}

	if len(transfers) != 2 ||
		transfers[0].From != "alice" || transfers[0].To != "treasury" || transfers[0].Amount != 100 ||
		transfers[1].From != "reserve" || transfers[1].To != "alice" || transfers[1].Amount != 100 {
		t.Errorf("transfers = %+v", transfers)
	}
	if !slicesContains(f.rec.list(), "settlement.failed alice") {
		t.Errorf("events = %q", f.rec.list())
	}
}

// failingCommit rejects every commit.
type failingCommit struct {
	*memory.Store
}

func (failingCommit) CommitPurchase(context.Context, *sale.Sale, *participant.Ledger, *purchase.Purchase) error {
	return tiersale.ErrStoreNotReady
}

func TestCommitFailureAfterPayment(t *testing.T) {
	ctx := context.Background()
	st := failingCommit{memory.New()}
	var paid bool
	eng := tiersale.New(st, tiersale.WithTransferer(transfer.Func(func(_ context.Context, tr *transfer.Transfer) error {
		if tr.Asset == "SALE" {
			t.Error("allocation must not move when the commit failed")
		}
		paid = true
		return nil
	})))

	s, err := eng.InitializeSale(ctx, "issuer", twoTiers(), testSettlement)
	if err != nil {
		t.Fatal(err)
	}

	_, err = eng.Purchase(ctx, s.ID, "alice", 100)
	var se *tiersale.SettlementError
	if !errors.As(err, &se) || se.Stage != tiersale.StageCommit {
		t.Fatalf("expected commit-stage SettlementError, got %v", err)
	}
	if !errors.Is(err, tiersale.ErrStoreNotReady) || !paid {
		t.Errorf("err = %v, paid = %v", err, paid)
	}
	if se.Purchase.Status != purchase.StatusSettlementFailed {
		t.Errorf("receipt status = %s", se.Purchase.Status)
	}

	after, _ := eng.GetSale(ctx, s.ID)
	if after.TotalSold != 0 || after.Version != 0 {
		t.Errorf("sale changed: %+v", after)
	}
}

func TestConcurrentPurchasesNeverOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []tiersale.Tier{
		{Supply: 1000, Price: tiersale.Scale, MaxPerWallet: 40},
		{Supply: 500, Price: tiersale.Scale, MaxPerWallet: 40},
	})

	const buyers = 60
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		allocated uint64
	)
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			address := fmt.Sprintf("buyer-%02d", i)
			for range 2 {
				p, err := f.eng.Purchase(ctx, f.sale.ID, address, 20)
				if err != nil {
					if !tiersale.IsRejection(err) {
						t.Errorf("%s: unexpected error %v", address, err)
					}
					continue
				}
				mu.Lock()
				allocated += p.Allocation
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s, err := f.eng.GetSale(ctx, f.sale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	if s.TotalSold != allocated {
		t.Errorf("total sold %d != allocated %d", s.TotalSold, allocated)
	}
	if !s.Exhausted() || s.TotalSold != 1500 {
		t.Errorf("demand exceeds supply, sale should be exhausted: %+v", s.Progress())
	}
	for i, tier := range s.Tiers {
		if tier.Sold > tier.Supply {
			t.Errorf("tier %d oversold: %d > %d", i, tier.Sold, tier.Supply)
		}
	}

	ledgers, err := f.eng.ListParticipants(ctx, f.sale.ID, participant.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	var bought uint64
	for _, l := range ledgers {
		for i, c := range l.Contributions {
			if c > s.Tiers[i].MaxPerWallet {
				t.Errorf("%s over cap in tier %d: %d", l.Address, i, c)
			}
		}
		bought += l.TokensBought
	}
	if bought != s.TotalSold {
		t.Errorf("participants hold %d, sale sold %d", bought, s.TotalSold)
	}
}

func TestGetParticipantUnknown(t *testing.T) {
	f := newFixture(t, twoTiers())

	l, err := f.eng.GetParticipant(context.Background(), f.sale.ID, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Contributions) != 2 || l.TokensBought != 0 {
		t.Errorf("ledger = %+v", l)
	}

	if _, err := f.eng.GetParticipant(context.Background(), id.NewSaleID(), "nobody"); !tiersale.IsNotFound(err) {
		t.Errorf("unknown sale: got %v", err)
	}
}

func slicesContains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
