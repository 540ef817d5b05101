package types

import (
	"errors"
	"math"
	"testing"
)

func TestToAllocation(t *testing.T) {
	tests := []struct {
		name    string
		payment uint64
		price   uint64
		want    uint64
	}{
		{"one to one", 500, Scale, 500},
		{"floor one third", 1, 3, 333333333333333333},
		{"tenth of a token", 100, 100_000_000_000_000_000, 1000},
		{"whole token per unit", 1, 1, Scale},
		{"remainder dropped", 10, 3 * Scale, 3},
		{"zero payment", 0, 7, 0},
		{"max payment at max price", math.MaxUint64, math.MaxUint64, Scale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToAllocation(tt.payment, tt.price)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ToAllocation(%d, %d) = %d, want %d", tt.payment, tt.price, got, tt.want)
			}
		})
	}
}

func TestToAllocationErrors(t *testing.T) {
	if _, err := ToAllocation(1, 0); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("zero price: got %v, want ErrDivisionByZero", err)
	}

	// 19 * 10^18 does not fit in uint64 once divided by 1.
	if _, err := ToAllocation(19, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("narrowing: got %v, want ErrArithmeticOverflow", err)
	}

	// The product overflows 64 bits but the quotient fits.
	got, err := ToAllocation(math.MaxUint64, 2*Scale)
	if err != nil {
		t.Fatalf("wide intermediate: unexpected error %v", err)
	}
	if got != math.MaxUint64/2 {
		t.Errorf("wide intermediate: got %d, want %d", got, uint64(math.MaxUint64/2))
	}
}

func TestCheckedArithmetic(t *testing.T) {
	if v, err := CheckedAdd(1, 2); err != nil || v != 3 {
		t.Errorf("CheckedAdd(1, 2) = (%d, %v)", v, err)
	}
	if _, err := CheckedAdd(math.MaxUint64, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("CheckedAdd overflow: got %v", err)
	}
	if v, err := CheckedAdd(math.MaxUint64, 0); err != nil || v != math.MaxUint64 {
		t.Errorf("CheckedAdd(max, 0) = (%d, %v)", v, err)
	}
	if v, err := CheckedSub(5, 5); err != nil || v != 0 {
		t.Errorf("CheckedSub(5, 5) = (%d, %v)", v, err)
	}
	if _, err := CheckedSub(1, 2); !errors.Is(err, ErrArithmeticOverflow) {
		t.Errorf("CheckedSub underflow: got %v", err)
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		v        uint64
		decimals int32
		want     string
	}{
		{1_500_000, 6, "1.5"},
		{0, 6, "0"},
		{333333333333333333, 18, "0.333333333333333333"},
		{10 * Scale, 18, "10"},
		{42, 0, "42"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatUnits(tt.v, tt.decimals); got != tt.want {
				t.Errorf("FormatUnits(%d, %d) = %q, want %q", tt.v, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals int32
		want     uint64
		wantErr  error
	}{
		{"1.5", 6, 1_500_000, nil},
		{"0.1", 18, 100_000_000_000_000_000, nil},
		{"42", 0, 42, nil},
		{"0.0000001", 6, 0, ErrInvalidUnits},
		{"-1", 6, 0, ErrInvalidUnits},
		{"abc", 6, 0, ErrInvalidUnits},
		{"18446744073709551616", 0, 0, ErrArithmeticOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnits(tt.in, tt.decimals)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseUnits(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseUnits(%q, %d) = %d, want %d", tt.in, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestUnitsFloat(t *testing.T) {
	if got := UnitsFloat(1_500_000_000_000_000_000); got != 1.5 {
		t.Errorf("UnitsFloat = %v, want 1.5", got)
	}
	if got := UnitsFloat(0); got != 0 {
		t.Errorf("UnitsFloat(0) = %v", got)
	}
}

func TestBasisPoints(t *testing.T) {
	tests := []struct {
		name        string
		part, whole uint64
		want        uint64
	}{
		{"nothing sold", 0, 1000, 0},
		{"quarter", 250, 1000, 2500},
		{"rounds down", 1, 3, 3333},
		{"all sold", 1000, 1000, MaxBasisPoints},
		{"zero whole", 5, 0, 0},
		{"near uint64 max", math.MaxUint64 / 2, math.MaxUint64, 4999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BasisPoints(tt.part, tt.whole); got != tt.want {
				t.Errorf("BasisPoints(%d, %d) = %d, want %d", tt.part, tt.whole, got, tt.want)
			}
		})
	}
}
