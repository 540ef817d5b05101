// Package types provides the arithmetic shared by the sale and participant
// ledgers: checked unsigned counters, the 18-decimal fixed-point conversion
// from payment units to allocation units, and human-readable formatting.
package types

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/gaze-network/uint128"
	"github.com/shopspring/decimal"
)

// Decimals is the precision of the allocation asset.
const Decimals = 18

// Scale is 10^Decimals, the fixed-point multiplier applied to payments.
const Scale uint64 = 1_000_000_000_000_000_000

var (
	// ErrArithmeticOverflow is returned when a counter or conversion leaves
	// the uint64 range.
	ErrArithmeticOverflow = errors.New("tiersale: arithmetic overflow")

	// ErrDivisionByZero is returned when converting at a zero price.
	ErrDivisionByZero = errors.New("tiersale: division by zero")

	// ErrInvalidUnits is returned when a decimal amount cannot be expressed in
	// whole smallest-denomination units.
	ErrInvalidUnits = errors.New("tiersale: invalid unit amount")
)

// CheckedAdd returns a+b or ErrArithmeticOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, ErrArithmeticOverflow
	}
	return a + b, nil
}

// CheckedSub returns a-b or ErrArithmeticOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrArithmeticOverflow
	}
	return a - b, nil
}

// ToAllocation converts a payment into allocation units:
//
//	floor(payment * 10^18 / price)
//
// The product is held in 128 bits so it can never wrap; only a quotient that
// does not fit back into uint64 is reported as an overflow. Remainders are
// dropped, never rounded up.
func ToAllocation(payment, price uint64) (uint64, error) {
	if price == 0 {
		return 0, ErrDivisionByZero
	}

	q := uint128.From64(payment).Mul64(Scale).Div64(price)
	if q.Hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	return q.Lo, nil
}

// MaxBasisPoints is a whole expressed in basis points.
const MaxBasisPoints = 10_000

// BasisPoints returns floor(part * 10000 / whole). A zero whole yields zero.
func BasisPoints(part, whole uint64) uint64 {
	return ShareBP(uint128.From64(part), uint128.From64(whole))
}

// ShareBP is BasisPoints over 128-bit operands, for totals summed across
// tiers.
func ShareBP(part, whole uint128.Uint128) uint64 {
	if whole.IsZero() {
		return 0
	}
	return part.Mul64(MaxBasisPoints).Div(whole).Lo
}

// FormatUnits renders v smallest units as a decimal string with the given
// number of decimals, e.g. FormatUnits(1500000, 6) == "1.5".
func FormatUnits(v uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -decimals).String()
}

// ParseUnits parses a decimal string into smallest units. Amounts with more
// fractional digits than decimals, negative amounts, and amounts beyond the
// uint64 range are rejected.
func ParseUnits(s string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidUnits, s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidUnits, s)
	}

	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidUnits, s, decimals)
	}

	n := shifted.BigInt()
	if !n.IsUint64() {
		return 0, fmt.Errorf("%w: %q", ErrArithmeticOverflow, s)
	}
	return n.Uint64(), nil
}

// UnitsFloat converts v allocation units to whole tokens as a float64. The
// result is approximate and meant for metrics only.
func UnitsFloat(v uint64) float64 {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -Decimals).InexactFloat64()
}
