package sale

import (
	"errors"
	"fmt"
	"maps"

	"github.com/gaze-network/uint128"

	"github.com/xraph/tiersale/types"
)

var (
	// ErrInvalidConfiguration is returned for a malformed tier schedule.
	ErrInvalidConfiguration = errors.New("tiersale: invalid sale configuration")

	// ErrSaleInactive is returned once every tier has sold out.
	ErrSaleInactive = errors.New("tiersale: sale is not active")

	// ErrTierSoldOut is returned when a purchase asks for more units than the
	// active tier has left.
	ErrTierSoldOut = errors.New("tiersale: tier is sold out")

	// ErrSupplyExceeded is returned by RecordSale when a tier would be
	// oversold.
	ErrSupplyExceeded = errors.New("tiersale: tier supply exceeded")

	// ErrTierIndex is returned for a tier index outside the schedule.
	ErrTierIndex = errors.New("tiersale: tier index out of range")
)

// TierError describes why a tier schedule was rejected. Index is -1 for
// errors that concern the schedule as a whole.
type TierError struct {
	Index  int
	Field  string
	Reason string
}

func (e *TierError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("tiersale: invalid sale configuration: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("tiersale: invalid sale configuration: tier %d %s: %s", e.Index, e.Field, e.Reason)
}

// Unwrap makes a TierError match ErrInvalidConfiguration.
func (e *TierError) Unwrap() error { return ErrInvalidConfiguration }

// Initialize validates a tier schedule and returns a fresh sale ledger
// positioned on the first tier. The tiers are copied. No ID or timestamps are
// assigned; that is the host's job.
func Initialize(owner string, tiers []Tier) (*Sale, error) {
	if owner == "" {
		return nil, &TierError{Index: -1, Field: "owner", Reason: "must not be empty"}
	}
	if err := ValidateTiers(tiers); err != nil {
		return nil, err
	}

	return &Sale{
		Owner:       owner,
		Tiers:       append([]Tier(nil), tiers...),
		CurrentTier: 0,
		TotalSold:   0,
	}, nil
}

// ValidateTiers checks a schedule against the initialization rules.
func ValidateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return &TierError{Index: -1, Field: "tiers", Reason: "at least one tier is required"}
	}
	if len(tiers) > MaxTiers {
		return &TierError{Index: -1, Field: "tiers", Reason: fmt.Sprintf("at most %d tiers are allowed", MaxTiers)}
	}

	for i, t := range tiers {
		switch {
		case t.Supply == 0:
			return &TierError{Index: i, Field: "supply", Reason: "must be positive"}
		case t.Price == 0:
			return &TierError{Index: i, Field: "price", Reason: "must be positive"}
		case t.MaxPerWallet == 0:
			return &TierError{Index: i, Field: "max_per_wallet", Reason: "must be positive"}
		case t.Sold != 0:
			return &TierError{Index: i, Field: "sold", Reason: "must be zero at initialization"}
		}
	}
	return nil
}

// ActiveTier returns the index and a pointer to the tier currently accepting
// purchases, or ErrSaleInactive once the sale is exhausted.
func (s *Sale) ActiveTier() (int, *Tier, error) {
	if s.CurrentTier >= len(s.Tiers) {
		return len(s.Tiers), nil, ErrSaleInactive
	}
	return s.CurrentTier, &s.Tiers[s.CurrentTier], nil
}

// RecordSale books units against a tier and the sale total. When the tier
// becomes exactly sold out and it is the active one, the sale moves to the
// next tier and advanced is true. The ledger is unchanged on error.
func (s *Sale) RecordSale(tierIndex int, units uint64) (advanced bool, err error) {
	if tierIndex < 0 || tierIndex >= len(s.Tiers) {
		return false, fmt.Errorf("%w: %d", ErrTierIndex, tierIndex)
	}
	tier := &s.Tiers[tierIndex]

	sold, err := types.CheckedAdd(tier.Sold, units)
	if err != nil {
		return false, err
	}
	total, err := types.CheckedAdd(s.TotalSold, units)
	if err != nil {
		return false, err
	}
	if sold > tier.Supply {
		return false, ErrSupplyExceeded
	}

	tier.Sold = sold
	s.TotalSold = total

	if sold == tier.Supply && tierIndex == s.CurrentTier {
		s.CurrentTier++
		return true, nil
	}
	return false, nil
}

// Exhausted reports whether every tier has sold out.
func (s *Sale) Exhausted() bool { return s.CurrentTier >= len(s.Tiers) }

// State returns the lifecycle state of the sale.
func (s *Sale) State() State {
	if s.Exhausted() {
		return StateExhausted
	}
	return StateActive
}

// TotalSupply returns the sum of all tier supplies.
func (s *Sale) TotalSupply() (uint64, error) {
	var total uint64
	for _, t := range s.Tiers {
		var err error
		if total, err = types.CheckedAdd(total, t.Supply); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Progress builds the read model of the sale.
func (s *Sale) Progress() Progress {
	p := Progress{
		SaleID:      s.ID,
		State:       s.State(),
		CurrentTier: s.CurrentTier,
		TotalSold:   s.TotalSold,
		Tiers:       make([]TierProgress, len(s.Tiers)),
	}
	var supply uint128.Uint128
	for i, t := range s.Tiers {
		p.Tiers[i] = TierProgress{
			Index:     i,
			Supply:    t.Supply,
			Sold:      t.Sold,
			Available: t.Available(),
			Price:     t.Price,
			Active:    i == s.CurrentTier,
			SoldBP:    types.BasisPoints(t.Sold, t.Supply),
		}
		supply = supply.Add64(t.Supply)
	}
	if s.CurrentTier >= 0 && s.CurrentTier < len(s.Tiers) {
		p.ActiveTierBP = p.Tiers[s.CurrentTier].SoldBP
	}
	p.SoldBP = types.ShareBP(uint128.From64(s.TotalSold), supply)

	// A schedule that passed ValidateTiers can still sum past uint64.
	if total, err := s.TotalSupply(); err == nil {
		p.TotalSupply = total
	}
	return p
}

// CheckInvariants verifies sold <= supply per tier, total_sold == Σ sold and
// the tier pointer bounds.
func (s *Sale) CheckInvariants() error {
	if s.CurrentTier < 0 || s.CurrentTier > len(s.Tiers) {
		return fmt.Errorf("tiersale: current tier %d outside [0, %d]", s.CurrentTier, len(s.Tiers))
	}

	var sum uint64
	for i, t := range s.Tiers {
		if t.Sold > t.Supply {
			return fmt.Errorf("tiersale: tier %d sold %d exceeds supply %d", i, t.Sold, t.Supply)
		}
		if i < s.CurrentTier && !t.SoldOut() {
			return fmt.Errorf("tiersale: tier %d passed before selling out", i)
		}
		var err error
		if sum, err = types.CheckedAdd(sum, t.Sold); err != nil {
			return err
		}
	}
	if sum != s.TotalSold {
		return fmt.Errorf("tiersale: total sold %d does not match tier sum %d", s.TotalSold, sum)
	}
	return nil
}

// Clone returns a deep copy of the sale.
func (s *Sale) Clone() *Sale {
	c := *s
	c.Tiers = append([]Tier(nil), s.Tiers...)
	if s.Metadata != nil {
		c.Metadata = maps.Clone(s.Metadata)
	}
	return &c
}
