package participant

import (
	"errors"
	"fmt"

	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/sale"
	"github.com/xraph/tiersale/types"
)

var (
	// ErrExceededWalletLimit is returned when a payment would take a
	// participant's contribution to a tier past its wallet cap.
	ErrExceededWalletLimit = errors.New("tiersale: exceeded wallet limit")

	// ErrTierMismatch is returned when a tier index falls outside the
	// participant's contribution vector.
	ErrTierMismatch = errors.New("tiersale: participant tier schedule mismatch")
)

// New creates an empty ledger for a participant seen for the first time.
// No ID or timestamps are assigned.
func New(saleID id.SaleID, address string, tierCount int) *Ledger {
	return &Ledger{
		SaleID:        saleID,
		Address:       address,
		Contributions: make([]uint64, tierCount),
	}
}

// Contribution returns the amount paid into a tier so far.
func (l *Ledger) Contribution(tierIndex int) (uint64, error) {
	if tierIndex < 0 || tierIndex >= len(l.Contributions) {
		return 0, fmt.Errorf("%w: tier %d of %d", ErrTierMismatch, tierIndex, len(l.Contributions))
	}
	return l.Contributions[tierIndex], nil
}

// CheckAndReserve returns the contribution the participant would hold in a
// tier after paying payment, without recording it. The ledger is never
// mutated.
func (l *Ledger) CheckAndReserve(tierIndex int, tier sale.Tier, payment uint64) (uint64, error) {
	current, err := l.Contribution(tierIndex)
	if err != nil {
		return 0, err
	}

	next, err := types.CheckedAdd(current, payment)
	if err != nil {
		return 0, err
	}
	if next > tier.MaxPerWallet {
		return 0, ErrExceededWalletLimit
	}
	return next, nil
}

// Commit stores a contribution previously returned by CheckAndReserve.
func (l *Ledger) Commit(tierIndex int, contribution uint64) error {
	if _, err := l.Contribution(tierIndex); err != nil {
		return err
	}
	l.Contributions[tierIndex] = contribution
	return nil
}

// RecordAllocation adds received units to the lifetime total.
func (l *Ledger) RecordAllocation(units uint64) error {
	total, err := types.CheckedAdd(l.TokensBought, units)
	if err != nil {
		return err
	}
	l.TokensBought = total
	return nil
}

// Remaining returns how much more the participant may pay into a tier.
func (l *Ledger) Remaining(tierIndex int, tier sale.Tier) uint64 {
	current, err := l.Contribution(tierIndex)
	if err != nil || current >= tier.MaxPerWallet {
		return 0
	}
	return tier.MaxPerWallet - current
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	c := *l
	c.Contributions = append([]uint64(nil), l.Contributions...)
	return &c
}
