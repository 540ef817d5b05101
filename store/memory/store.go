// Package memory provides an in-memory Store for tests and development.
// Records are deep-copied on the way in and out so callers never share
// state with the store.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xraph/tiersale"
	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
	"github.com/xraph/tiersale/store"
)

// Compile-time check.
var _ store.Store = (*Store)(nil)

type Store struct {
	mu     sync.RWMutex
	closed bool

	// Sale storage, plus creation order for listing
	sales     map[string]*sale.Sale
	saleOrder []string

	// Participant storage keyed by sale ID then address
	participants map[string]map[string]*participant.Ledger
	ledgerOrder  map[string][]string

	// Purchase storage
	purchases     map[string]*purchase.Purchase
	purchaseOrder map[string][]string
}

func New() *Store {
	return &Store{
		sales:         make(map[string]*sale.Sale),
		participants:  make(map[string]map[string]*participant.Ledger),
		ledgerOrder:   make(map[string][]string),
		purchases:     make(map[string]*purchase.Purchase),
		purchaseOrder: make(map[string][]string),
	}
}

// ──────────────────────────────────────────────────
// Sale methods
// ──────────────────────────────────────────────────

func (s *Store) CreateSale(_ context.Context, sl *sale.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tiersale.ErrStoreClosed
	}
	key := sl.ID.String()
	if _, exists := s.sales[key]; exists {
		return tiersale.ErrAlreadyExists
	}
	s.sales[key] = sl.Clone()
	s.saleOrder = append(s.saleOrder, key)
	return nil
}

func (s *Store) GetSale(_ context.Context, saleID id.SaleID) (*sale.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sl, ok := s.sales[saleID.String()]; ok {
		return sl.Clone(), nil
	}
	return nil, tiersale.ErrSaleNotFound
}

func (s *Store) ListSales(_ context.Context, opts sale.ListOpts) ([]*sale.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*sale.Sale, 0)
	for _, key := range s.saleOrder {
		sl := s.sales[key]
		if opts.Owner == "" || sl.Owner == opts.Owner {
			result = append(result, sl.Clone())
		}
	}
	return page(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Participant methods
// ──────────────────────────────────────────────────

func (s *Store) GetParticipant(_ context.Context, saleID id.SaleID, address string) (*participant.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if l, ok := s.participants[saleID.String()][address]; ok {
		return l.Clone(), nil
	}
	return nil, tiersale.ErrParticipantNotFound
}

func (s *Store) ListParticipants(_ context.Context, saleID id.SaleID, opts participant.ListOpts) ([]*participant.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := saleID.String()
	result := make([]*participant.Ledger, 0, len(s.ledgerOrder[key]))
	for _, addr := range s.ledgerOrder[key] {
		result = append(result, s.participants[key][addr].Clone())
	}
	return page(result, opts.Limit, opts.Offset), nil
}

// ──────────────────────────────────────────────────
// Purchase methods
// ──────────────────────────────────────────────────

func (s *Store) GetPurchase(_ context.Context, purchaseID id.PurchaseID) (*purchase.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.purchases[purchaseID.String()]; ok {
		c := *p
		return &c, nil
	}
	return nil, tiersale.ErrPurchaseNotFound
}

func (s *Store) ListPurchases(_ context.Context, saleID id.SaleID, opts purchase.ListOpts) ([]*purchase.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*purchase.Purchase, 0)
	for _, key := range s.purchaseOrder[saleID.String()] {
		p := s.purchases[key]
		if opts.Participant != "" && p.Participant != opts.Participant {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		c := *p
		result = append(result, &c)
	}
	return page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) UpdatePurchaseStatus(_ context.Context, purchaseID id.PurchaseID, status purchase.Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[purchaseID.String()]
	if !ok {
		return tiersale.ErrPurchaseNotFound
	}
	p.Status = status
	p.Reason = reason
	p.Touch()
	return nil
}

// ──────────────────────────────────────────────────
// Commit
// ──────────────────────────────────────────────────

func (s *Store) CommitPurchase(_ context.Context, sl *sale.Sale, l *participant.Ledger, p *purchase.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tiersale.ErrStoreClosed
	}

	saleKey := sl.ID.String()
	current, ok := s.sales[saleKey]
	if !ok {
		return tiersale.ErrSaleNotFound
	}
	if current.Version != sl.Version-1 {
		return tiersale.ErrConcurrentUpdate
	}
	if _, exists := s.purchases[p.ID.String()]; exists {
		return tiersale.ErrAlreadyExists
	}

	s.sales[saleKey] = sl.Clone()

	if s.participants[saleKey] == nil {
		s.participants[saleKey] = make(map[string]*participant.Ledger)
	}
	if _, known := s.participants[saleKey][l.Address]; !known {
		s.ledgerOrder[saleKey] = append(s.ledgerOrder[saleKey], l.Address)
	}
	s.participants[saleKey][l.Address] = l.Clone()

	c := *p
	s.purchases[p.ID.String()] = &c
	s.purchaseOrder[saleKey] = append(s.purchaseOrder[saleKey], p.ID.String())
	return nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return tiersale.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// page applies limit/offset to a listing.
func page[T any](items []T, limit, offset int) []T {
	start := min(max(offset, 0), len(items))
	end := len(items)
	if limit > 0 {
		end = min(start+limit, len(items))
	}
	return slices.Clip(items[start:end])
}
