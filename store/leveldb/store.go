// Package leveldb implements store.Store on an embedded LevelDB database.
//
// Records are JSON documents under typed key prefixes. TypeIDs sort by
// creation time, so prefix scans return sales and receipts oldest first.
// A purchase commit is written as one leveldb.Batch.
package leveldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/xraph/tiersale"
	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
	"github.com/xraph/tiersale/store"
)

// Compile-time check.
var _ store.Store = (*Store)(nil)

const (
	prefixSale         = "sale:"
	prefixParticipant  = "participant:"
	prefixPurchase     = "purchase:"
	prefixSalePurchase = "sale_purchase:"
)

// Store wraps a LevelDB handle.
type Store struct {
	// mu serializes read-check-write sequences; LevelDB itself only
	// guarantees atomic batches.
	mu   sync.Mutex
	conn *leveldb.DB
	sync bool
}

// Option configures a Store.
type Option func(*Store)

// WithSync makes every write fsync before returning.
func WithSync(enabled bool) Option {
	return func(s *Store) { s.sync = enabled }
}

// Open opens (or creates) a LevelDB database at path.
func Open(path string, opts ...Option) (*Store, error) {
	conn, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: open %s: %w", path, err)
	}
	return New(conn, opts...), nil
}

// New wraps an already open database.
func New(conn *leveldb.DB, opts ...Option) *Store {
	s := &Store{conn: conn, sync: true}
	for _, o := range opts {
		o(s)
	}
	return s
}

func saleKey(saleID id.SaleID) []byte {
	return []byte(prefixSale + saleID.String())
}

func participantKey(saleID id.SaleID, address string) []byte {
	return []byte(prefixParticipant + saleID.String() + ":" + address)
}

func purchaseKey(purchaseID id.PurchaseID) []byte {
	return []byte(prefixPurchase + purchaseID.String())
}

func salePurchaseKey(saleID id.SaleID, purchaseID id.PurchaseID) []byte {
	return []byte(prefixSalePurchase + saleID.String() + ":" + purchaseID.String())
}

func (s *Store) writeOptions() *opt.WriteOptions {
	return &opt.WriteOptions{Sync: s.sync}
}

// getJSON loads key into v, translating a missing key into notFound.
func (s *Store) getJSON(key []byte, v any, notFound error) error {
	data, err := s.conn.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return notFound
	}
	if err != nil {
		return mapErr(err)
	}
	return json.Unmarshal(data, v)
}

func mapErr(err error) error {
	if errors.Is(err, leveldb.ErrClosed) {
		return tiersale.ErrStoreClosed
	}
	return err
}

// ──────────────────────────────────────────────────
// Sale methods
// ──────────────────────────────────────────────────

func (s *Store) CreateSale(_ context.Context, sl *sale.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := saleKey(sl.ID)
	exists, err := s.conn.Has(key, nil)
	if err != nil {
		return mapErr(err)
	}
	if exists {
		return tiersale.ErrAlreadyExists
	}

	data, err := json.Marshal(sl)
	if err != nil {
		return err
	}
	return mapErr(s.conn.Put(key, data, s.writeOptions()))
}

func (s *Store) GetSale(_ context.Context, saleID id.SaleID) (*sale.Sale, error) {
	var sl sale.Sale
	if err := s.getJSON(saleKey(saleID), &sl, tiersale.ErrSaleNotFound); err != nil {
		return nil, err
	}
	return &sl, nil
}

func (s *Store) ListSales(_ context.Context, opts sale.ListOpts) ([]*sale.Sale, error) {
	iter := s.conn.NewIterator(util.BytesPrefix([]byte(prefixSale)), nil)
	defer iter.Release()

	result := make([]*sale.Sale, 0)
	skipped := 0
	for iter.Next() {
		var sl sale.Sale
		if err := json.Unmarshal(iter.Value(), &sl); err != nil {
			return nil, err
		}
		if opts.Owner != "" && sl.Owner != opts.Owner {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		result = append(result, &sl)
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, mapErr(iter.Error())
}

// ──────────────────────────────────────────────────
// Participant methods
// ──────────────────────────────────────────────────

func (s *Store) GetParticipant(_ context.Context, saleID id.SaleID, address string) (*participant.Ledger, error) {
	var l participant.Ledger
	if err := s.getJSON(participantKey(saleID, address), &l, tiersale.ErrParticipantNotFound); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) ListParticipants(_ context.Context, saleID id.SaleID, opts participant.ListOpts) ([]*participant.Ledger, error) {
	iter := s.conn.NewIterator(util.BytesPrefix([]byte(prefixParticipant+saleID.String()+":")), nil)
	defer iter.Release()

	result := make([]*participant.Ledger, 0)
	for iter.Next() {
		var l participant.Ledger
		if err := json.Unmarshal(iter.Value(), &l); err != nil {
			return nil, err
		}
		result = append(result, &l)
	}
	if err := iter.Error(); err != nil {
		return nil, mapErr(err)
	}

	// Keys sort by address; listings are by first purchase.
	slices.SortStableFunc(result, func(a, b *participant.Ledger) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	start := min(max(opts.Offset, 0), len(result))
	end := len(result)
	if opts.Limit > 0 {
		end = min(start+opts.Limit, len(result))
	}
	return result[start:end], nil
}

// ──────────────────────────────────────────────────
// Purchase methods
// ──────────────────────────────────────────────────

func (s *Store) GetPurchase(_ context.Context, purchaseID id.PurchaseID) (*purchase.Purchase, error) {
	var p purchase.Purchase
	if err := s.getJSON(purchaseKey(purchaseID), &p, tiersale.ErrPurchaseNotFound); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPurchases(_ context.Context, saleID id.SaleID, opts purchase.ListOpts) ([]*purchase.Purchase, error) {
	iter := s.conn.NewIterator(util.BytesPrefix([]byte(prefixSalePurchase+saleID.String()+":")), nil)
	defer iter.Release()

	result := make([]*purchase.Purchase, 0)
	skipped := 0
	for iter.Next() {
		var p purchase.Purchase
		if err := s.getJSON(iter.Value(), &p, tiersale.ErrPurchaseNotFound); err != nil {
			return nil, err
		}
		if opts.Participant != "" && p.Participant != opts.Participant {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		result = append(result, &p)
		if opts.Limit > 0 && len(result) == opts.Limit {
			break
		}
	}
	return result, mapErr(iter.Error())
}

func (s *Store) UpdatePurchaseStatus(_ context.Context, purchaseID id.PurchaseID, status purchase.Status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := purchaseKey(purchaseID)
	var p purchase.Purchase
	if err := s.getJSON(key, &p, tiersale.ErrPurchaseNotFound); err != nil {
		return err
	}
	p.Status = status
	p.Reason = reason
	p.Touch()

	data, err := json.Marshal(&p)
	if err != nil {
		return err
	}
	return mapErr(s.conn.Put(key, data, s.writeOptions()))
}

// ──────────────────────────────────────────────────
// Commit
// ──────────────────────────────────────────────────

func (s *Store) CommitPurchase(_ context.Context, sl *sale.Sale, l *participant.Ledger, p *purchase.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current sale.Sale
	if err := s.getJSON(saleKey(sl.ID), &current, tiersale.ErrSaleNotFound); err != nil {
		return err
	}
	if current.Version != sl.Version-1 {
		return tiersale.ErrConcurrentUpdate
	}
	exists, err := s.conn.Has(purchaseKey(p.ID), nil)
	if err != nil {
		return mapErr(err)
	}
	if exists {
		return tiersale.ErrAlreadyExists
	}

	saleData, err := json.Marshal(sl)
	if err != nil {
		return err
	}
	ledgerData, err := json.Marshal(l)
	if err != nil {
		return err
	}
	purchaseData, err := json.Marshal(p)
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(saleKey(sl.ID), saleData)
	batch.Put(participantKey(sl.ID, l.Address), ledgerData)
	batch.Put(purchaseKey(p.ID), purchaseData)
	batch.Put(salePurchaseKey(sl.ID, p.ID), purchaseKey(p.ID))
	return mapErr(s.conn.Write(batch, s.writeOptions()))
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

// Migrate is a no-op; LevelDB is schemaless.
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	_, err := s.conn.GetProperty("leveldb.stats")
	return mapErr(err)
}

func (s *Store) Close() error {
	return s.conn.Close()
}
