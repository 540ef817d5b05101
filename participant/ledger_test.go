package participant

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/sale"
	"github.com/xraph/tiersale/types"
)

func TestNew(t *testing.T) {
	saleID := id.NewSaleID()
	l := New(saleID, "alice", 3)

	if l.SaleID.String() != saleID.String() || l.Address != "alice" {
		t.Errorf("ledger = %+v", l)
	}
	if len(l.Contributions) != 3 || l.TokensBought != 0 {
		t.Errorf("expected zeroed ledger over 3 tiers, got %+v", l)
	}
}

func TestCheckAndReserve(t *testing.T) {
	tier := sale.Tier{Supply: 1000, Price: types.Scale, MaxPerWallet: 500}

	tests := []struct {
		name    string
		current uint64
		payment uint64
		want    uint64
		wantErr error
	}{
		{"first contribution", 0, 200, 200, nil},
		{"exactly at cap", 300, 200, 500, nil},
		{"one over cap", 500, 1, 0, ErrExceededWalletLimit},
		{"overflow wins over cap", math.MaxUint64, 1, 0, types.ErrArithmeticOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(id.NewSaleID(), "alice", 1)
			l.Contributions[0] = tt.current

			got, err := l.CheckAndReserve(0, tier, tt.payment)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
			} else if err != nil || got != tt.want {
				t.Fatalf("CheckAndReserve = (%d, %v), want %d", got, err, tt.want)
			}

			if l.Contributions[0] != tt.current {
				t.Error("CheckAndReserve mutated the ledger")
			}
		})
	}
}

func TestCheckAndReserveTierMismatch(t *testing.T) {
	l := New(id.NewSaleID(), "alice", 1)
	if _, err := l.CheckAndReserve(1, sale.Tier{MaxPerWallet: 10}, 1); !errors.Is(err, ErrTierMismatch) {
		t.Fatalf("got %v, want ErrTierMismatch", err)
	}
	if err := l.Commit(-1, 1); !errors.Is(err, ErrTierMismatch) {
		t.Fatalf("Commit: got %v, want ErrTierMismatch", err)
	}
}

func TestCommitAndRecordAllocation(t *testing.T) {
	tier := sale.Tier{Supply: 1000, Price: types.Scale, MaxPerWallet: 500}
	l := New(id.NewSaleID(), "alice", 2)

	next, err := l.CheckAndReserve(1, tier, 120)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Commit(1, next); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordAllocation(120); err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(l.Contributions, []uint64{0, 120}) || l.TokensBought != 120 {
		t.Errorf("ledger = %+v", l)
	}
	if got := l.Remaining(1, tier); got != 380 {
		t.Errorf("Remaining = %d, want 380", got)
	}

	l.TokensBought = math.MaxUint64
	if err := l.RecordAllocation(1); !errors.Is(err, types.ErrArithmeticOverflow) {
		t.Fatalf("got %v, want ErrArithmeticOverflow", err)
	}
	if l.TokensBought != math.MaxUint64 {
		t.Error("RecordAllocation mutated on overflow")
	}
}

func TestClone(t *testing.T) {
	l := New(id.NewSaleID(), "alice", 2)
	l.Contributions[0] = 7

	c := l.Clone()
	c.Contributions[0] = 9
	if l.Contributions[0] != 7 {
		t.Error("Clone shares contributions with the original")
	}
}
