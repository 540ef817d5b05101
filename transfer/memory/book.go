// Package memory provides an in-process balance book that settles transfers
// between named accounts. It backs the development daemon and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xraph/tiersale/transfer"
	"github.com/xraph/tiersale/types"
)

// ErrInsufficientFunds is returned when the source account cannot cover a
// transfer.
var ErrInsufficientFunds = errors.New("transfer: insufficient funds")

// Compile-time check.
var _ transfer.Transferer = (*Book)(nil)

type account struct {
	owner string
	asset string
}

// Book is a thread-safe balance map keyed by account and asset.
type Book struct {
	mu       sync.Mutex
	balances map[account]uint64
	log      []transfer.Transfer
}

// New returns an empty Book.
func New() *Book {
	return &Book{balances: make(map[account]uint64)}
}

// Credit mints amount of asset into owner's account.
func (b *Book) Credit(owner, asset string, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := account{owner, asset}
	next, err := types.CheckedAdd(b.balances[key], amount)
	if err != nil {
		return err
	}
	b.balances[key] = next
	return nil
}

// Balance returns owner's holding of asset.
func (b *Book) Balance(owner, asset string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account{owner, asset}]
}

// Transfer moves t.Amount of t.Asset from t.From to t.To, or nothing.
func (b *Book) Transfer(ctx context.Context, t *transfer.Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	from, to := account{t.From, t.Asset}, account{t.To, t.Asset}
	if b.balances[from] < t.Amount {
		return fmt.Errorf("%w: %s holds %d %s, needs %d", ErrInsufficientFunds, t.From, b.balances[from], t.Asset, t.Amount)
	}
	if t.From == t.To {
		b.log = append(b.log, *t)
		return nil
	}
	credited, err := types.CheckedAdd(b.balances[to], t.Amount)
	if err != nil {
		return err
	}

	b.balances[from] -= t.Amount
	b.balances[to] = credited
	b.log = append(b.log, *t)
	return nil
}

// History returns the transfers settled so far, oldest first.
func (b *Book) History() []transfer.Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]transfer.Transfer(nil), b.log...)
}
