// Package storetest is a conformance suite run against every store.Store
// backend that can be exercised without an external server.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/tiersale"
	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
	"github.com/xraph/tiersale/store"
	"github.com/xraph/tiersale/types"
)

// Run executes the suite. newStore must return a fresh, migrated store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"SaleRoundTrip", testSaleRoundTrip},
		{"SaleNotFound", testSaleNotFound},
		{"DuplicateSale", testDuplicateSale},
		{"ListSales", testListSales},
		{"CommitPurchase", testCommitPurchase},
		{"CommitRejectsStaleVersion", testCommitRejectsStaleVersion},
		{"CommitIsAllOrNothing", testCommitIsAllOrNothing},
		{"UpdatePurchaseStatus", testUpdatePurchaseStatus},
		{"ListPurchasesFilters", testListPurchasesFilters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// NewSale builds a valid, unsaved two-tier sale.
func NewSale(t *testing.T, owner string) *sale.Sale {
	t.Helper()

	s, err := sale.Initialize(owner, []sale.Tier{
		{Supply: 1000, Price: types.Scale, MaxPerWallet: 500},
		{Supply: 18_000_000_000_000_000_000, Price: 2, MaxPerWallet: 1000},
	})
	if err != nil {
		t.Fatal(err)
	}
	s.ID = id.NewSaleID()
	s.Entity = types.NewEntity()
	s.Settlement = sale.Settlement{Treasury: "treasury", Reserve: "reserve", PaymentAsset: "USDC", SaleAsset: "SALE"}
	s.Metadata = map[string]string{"round": "seed"}
	return s
}

// commit books a purchase of allocation units against s the way the engine
// does and persists it.
func commit(t *testing.T, st store.Store, s *sale.Sale, address string, payment, allocation uint64) (*sale.Sale, *purchase.Purchase) {
	t.Helper()
	ctx := context.Background()

	l, err := st.GetParticipant(ctx, s.ID, address)
	if errors.Is(err, tiersale.ErrParticipantNotFound) {
		l = participant.New(s.ID, address, len(s.Tiers))
		l.ID = id.NewParticipantID()
		l.Entity = types.NewEntity()
	} else if err != nil {
		t.Fatal(err)
	}

	next := s.Clone()
	tierIndex := next.CurrentTier
	advanced, err := next.RecordSale(tierIndex, allocation)
	if err != nil {
		t.Fatal(err)
	}
	next.Version++
	contribution, err := l.CheckAndReserve(tierIndex, s.Tiers[tierIndex], payment)
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Commit(tierIndex, contribution)
	_ = l.RecordAllocation(allocation)

	p := &purchase.Purchase{
		Entity:               types.NewEntity(),
		ID:                   id.NewPurchaseID(),
		SaleID:               s.ID,
		Participant:          address,
		LedgerID:             l.ID,
		TierIndex:            tierIndex,
		Payment:              payment,
		Allocation:           allocation,
		Price:                s.Tiers[tierIndex].Price,
		Advanced:             advanced,
		Status:               purchase.StatusCommitted,
		PaymentTransferID:    id.NewTransferID(),
		AllocationTransferID: id.NewTransferID(),
	}
	if err := st.CommitPurchase(ctx, next, l, p); err != nil {
		t.Fatalf("CommitPurchase: %v", err)
	}
	return next, p
}

func testSaleRoundTrip(t *testing.T, st store.Store) {
	ctx := context.Background()
	s := NewSale(t, "owner")
	if err := st.CreateSale(ctx, s); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetSale(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID.String() != s.ID.String() || got.Owner != "owner" || len(got.Tiers) != 2 {
		t.Errorf("sale = %+v", got)
	}
	// Values above the int64 range must survive.
	if got.Tiers[1].Supply != s.Tiers[1].Supply {
		t.Errorf("tier supply = %d, want %d", got.Tiers[1].Supply, s.Tiers[1].Supply)
	}
	if got.Settlement != s.Settlement || got.Metadata["round"] != "seed" {
		t.Errorf("settlement/metadata = %+v / %v", got.Settlement, got.Metadata)
	}
}

func testSaleNotFound(t *testing.T, st store.Store) {
	ctx := context.Background()
	if _, err := st.GetSale(ctx, id.NewSaleID()); !errors.Is(err, tiersale.ErrSaleNotFound) {
		t.Errorf("GetSale: got %v, want ErrSaleNotFound", err)
	}
	if _, err := st.GetParticipant(ctx, id.NewSaleID(), "nobody"); !errors.Is(err, tiersale.ErrParticipantNotFound) {
		t.Errorf("GetParticipant: got %v, want ErrParticipantNotFound", err)
	}
	if _, err := st.GetPurchase(ctx, id.NewPurchaseID()); !errors.Is(err, tiersale.ErrPurchaseNotFound) {
		t.Errorf("GetPurchase: got %v, want ErrPurchaseNotFound", err)
	}
}

func testDuplicateSale(t *testing.T, st store.Store) {
	ctx := context.Background()
	s := NewSale(t, "owner")
	if err := st.CreateSale(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := st.CreateSale(ctx, s); !errors.Is(err, tiersale.ErrAlreadyExists) {
		t.Errorf("got %v, want ErrAlreadyExists", err)
	}
}

func testListSales(t *testing.T, st store.Store) {
	ctx := context.Background()
	for _, owner := range []string{"a", "b", "a"} {
		if err := st.CreateSale(ctx, NewSale(t, owner)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := st.ListSales(ctx, sale.ListOpts{})
	if err != nil || len(all) != 3 {
		t.Fatalf("ListSales = %d, %v", len(all), err)
	}
	owned, err := st.ListSales(ctx, sale.ListOpts{Owner: "a"})
	if err != nil || len(owned) != 2 {
		t.Errorf("owner filter = %d, want 2", len(owned))
	}
	paged, err := st.ListSales(ctx, sale.ListOpts{Limit: 1, Offset: 1})
	if err != nil || len(paged) != 1 {
		t.Errorf("paged = %d, want 1", len(paged))
	}
}

func testCommitPurchase(t *testing.T, st store.Store) {
	ctx := context.Background()
	s := NewSale(t, "owner")
	if err := st.CreateSale(ctx, s); err != nil {
		t.Fatal(err)
	}

	s, _ = commit(t, st, s, "alice", 500, 500)
	s, p := commit(t, st, s, "bob", 500, 500)

	got, err := st.GetSale(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 2 || got.TotalSold != 1000 || got.CurrentTier != 1 || got.Tiers[0].Sold != 1000 {
		t.Errorf("sale after commits = %+v", got)
	}

	l, err := st.GetParticipant(ctx, s.ID, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if l.Contributions[0] != 500 || l.TokensBought != 500 {
		t.Errorf("ledger = %+v", l)
	}

	ledgers, err := st.ListParticipants(ctx, s.ID, participant.ListOpts{})
	if err != nil || len(ledgers) != 2 {
		t.Errorf("participants = %d, want 2", len(ledgers))
	}

	receipt, err := st.GetPurchase(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !receipt.Advanced || receipt.Allocation != 500 || receipt.Status != purchase.StatusCommitted {
		t.Errorf("receipt = %+v", receipt)
	}
}

func testCommitRejectsStaleVersion(t *testing.T, st store.Store) {
	ctx := context.Background()
	s := NewSale(t, "owner")
	if err := st.CreateSale(ctx, s); err != nil {
		t.Fatal(err)
	}
	commit(t, st, s, "alice", 100, 100)

	// A second writer still holding version 0.
	stale := s.Clone()
	if _, err := stale.RecordSale(0, 50); err != nil {
		t.Fatal(err)
	}
	stale.Version++
	l := participant.New(s.ID, "bob", len(s.Tiers))
	l.ID = id.NewParticipantID()
	p := &purchase.Purchase{ID: id.NewPurchaseID(), SaleID: s.ID, Participant: "bob", Status: purchase.StatusCommitted}

	if err := st.CommitPurchase(ctx, stale, l, p); !errors.Is(err, tiersale.ErrConcurrentUpdate) {
		t.Fatalf("got %v, want ErrConcurrentUpdate", err)
	}
	if _, err := st.GetParticipant(ctx, s.ID, "bob"); !errors.Is(err, tiersale.ErrParticipantNotFound) {
		t.Error("participant written by rejected commit")
	}
	if _, err := st.GetPurchase(ctx, p.ID); !errors.Is(err, tiersale.ErrPurchaseNotFound) {
		t.Error("receipt written by rejected commit")
	}
	got, err := st.GetSale(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalSold != 100 {
		t.Errorf("total sold = %d, want 100", got.TotalSold)
	}
}

// A commit whose receipt cannot be written must leave the sale and the
// participant exactly as they were.
func testCommitIsAllOrNothing(t *testing.T, st store.Store) {
	ctx := context.Background()
	s := NewSale(t, "owner")
	if err := st.CreateSale(ctx, s); err != nil {
		t.Fatal(err)
	}
	s, first := commit(t, st, s, "alice", 10, 10)

	// The next version is valid, but the receipt ID is already taken.
	next := s.Clone()
	if _, err := next.RecordSale(0, 20); err != nil {
		t.Fatal(err)
	}
	next.Version++
	l := participant.New(s.ID, "bob", len(s.Tiers))
	l.ID = id.NewParticipantID()
	l.Entity = types.NewEntity()
	l.Contributions[0] = 20
	l.TokensBought = 20
	dup := *first
	dup.Participant = "bob"
	dup.LedgerID = l.ID

	if err := st.CommitPurchase(ctx, next, l, &dup); !errors.Is(err, tiersale.ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}

	got, err := st.GetSale(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != s.Version || got.TotalSold != 10 || got.Tiers[0].Sold != 10 {
		t.Errorf("sale moved by failed commit: version=%d total_sold=%d", got.Version, got.TotalSold)
	}
	if _, err := st.GetParticipant(ctx, s.ID, "bob"); !errors.Is(err, tiersale.ErrParticipantNotFound) {
		t.Errorf("participant written by failed commit: %v", err)
	}
	receipt, err := st.GetPurchase(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if receipt.Participant != "alice" {
		t.Errorf("receipt overwritten: %+v", receipt)
	}

	// The sale still accepts the next valid commit.
	commit(t, st, s, "bob", 20, 20)
}

func testUpdatePurchaseStatus(t *testing.T, st store.Store) {
	ctx := context.Background()
	s := NewSale(t, "owner")
	if err := st.CreateSale(ctx, s); err != nil {
		t.Fatal(err)
	}
	_, p := commit(t, st, s, "alice", 10, 10)

	if err := st.UpdatePurchaseStatus(ctx, p.ID, purchase.StatusSettlementFailed, "allocation_transfer: reserve empty"); err != nil {
		t.Fatal(err)
	}
	got, err := st.GetPurchase(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != purchase.StatusSettlementFailed || got.Reason == "" {
		t.Errorf("receipt = %+v", got)
	}

	if err := st.UpdatePurchaseStatus(ctx, id.NewPurchaseID(), purchase.StatusSettlementFailed, ""); !errors.Is(err, tiersale.ErrPurchaseNotFound) {
		t.Errorf("got %v, want ErrPurchaseNotFound", err)
	}
}

func testListPurchasesFilters(t *testing.T, st store.Store) {
	ctx := context.Background()
	s := NewSale(t, "owner")
	if err := st.CreateSale(ctx, s); err != nil {
		t.Fatal(err)
	}
	s, first := commit(t, st, s, "alice", 10, 10)
	s, _ = commit(t, st, s, "bob", 10, 10)
	commit(t, st, s, "alice", 10, 10)
	if err := st.UpdatePurchaseStatus(ctx, first.ID, purchase.StatusSettlementFailed, "x"); err != nil {
		t.Fatal(err)
	}

	all, err := st.ListPurchases(ctx, s.ID, purchase.ListOpts{})
	if err != nil || len(all) != 3 {
		t.Fatalf("ListPurchases = %d, %v", len(all), err)
	}
	alice, err := st.ListPurchases(ctx, s.ID, purchase.ListOpts{Participant: "alice"})
	if err != nil || len(alice) != 2 {
		t.Errorf("participant filter = %d, want 2", len(alice))
	}
	failed, err := st.ListPurchases(ctx, s.ID, purchase.ListOpts{Status: purchase.StatusSettlementFailed})
	if err != nil || len(failed) != 1 || failed[0].ID.String() != first.ID.String() {
		t.Errorf("status filter = %v", failed)
	}
	limited, err := st.ListPurchases(ctx, s.ID, purchase.ListOpts{Limit: 2})
	if err != nil || len(limited) != 2 {
		t.Errorf("limit = %d, want 2", len(limited))
	}
}
