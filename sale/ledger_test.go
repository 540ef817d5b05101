package sale

import (
	"errors"
	"math"
	"testing"
)

const unit = 1_000_000_000_000_000_000

func validTiers() []Tier {
	return []Tier{
		{Supply: 1000, Price: unit, MaxPerWallet: 500},
		{Supply: 2000, Price: 2 * unit, MaxPerWallet: 1000},
	}
}

func TestInitialize(t *testing.T) {
	tiers := validTiers()
	s, err := Initialize("owner", tiers)
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if s.CurrentTier != 0 || s.TotalSold != 0 {
		t.Errorf("fresh sale: current=%d total=%d", s.CurrentTier, s.TotalSold)
	}
	if s.Owner != "owner" {
		t.Errorf("owner = %q", s.Owner)
	}

	// The ledger owns its copy of the schedule.
	tiers[0].Supply = 1
	if s.Tiers[0].Supply != 1000 {
		t.Error("Initialize must copy tiers")
	}
}

func TestInitializeRejects(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		tiers []Tier
		field string
	}{
		{"empty list", "owner", nil, "tiers"},
		{"empty owner", "", validTiers(), "owner"},
		{"zero supply", "owner", []Tier{{Supply: 0, Price: 1, MaxPerWallet: 1}}, "supply"},
		{"zero price", "owner", []Tier{{Supply: 1, Price: 0, MaxPerWallet: 1}}, "price"},
		{"zero wallet cap", "owner", []Tier{{Supply: 1, Price: 1, MaxPerWallet: 0}}, "max_per_wallet"},
		{"pre-sold", "owner", []Tier{{Supply: 10, Sold: 1, Price: 1, MaxPerWallet: 1}}, "sold"},
		{"too many tiers", "owner", make([]Tier, MaxTiers+1), "tiers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Initialize(tt.owner, tt.tiers)
			if s != nil {
				t.Error("no ledger should be created")
			}
			if !errors.Is(err, ErrInvalidConfiguration) {
				t.Fatalf("got %v, want ErrInvalidConfiguration", err)
			}
			var te *TierError
			if !errors.As(err, &te) {
				t.Fatalf("expected *TierError, got %T", err)
			}
			if te.Field != tt.field {
				t.Errorf("field = %q, want %q", te.Field, tt.field)
			}
		})
	}
}

func TestActiveTier(t *testing.T) {
	s, _ := Initialize("owner", validTiers())

	idx, tier, err := s.ActiveTier()
	if err != nil || idx != 0 || tier.Supply != 1000 {
		t.Fatalf("ActiveTier = (%d, %+v, %v)", idx, tier, err)
	}

	s.CurrentTier = len(s.Tiers)
	if _, _, err := s.ActiveTier(); !errors.Is(err, ErrSaleInactive) {
		t.Errorf("exhausted: got %v, want ErrSaleInactive", err)
	}
	if s.State() != StateExhausted {
		t.Errorf("state = %q", s.State())
	}
}

func TestRecordSaleAdvancesExactlyAtSupply(t *testing.T) {
	s, _ := Initialize("owner", validTiers())

	advanced, err := s.RecordSale(0, 999)
	if err != nil || advanced {
		t.Fatalf("partial sale: advanced=%v err=%v", advanced, err)
	}
	if s.CurrentTier != 0 {
		t.Fatalf("tier advanced early: %d", s.CurrentTier)
	}

	advanced, err = s.RecordSale(0, 1)
	if err != nil || !advanced {
		t.Fatalf("final unit: advanced=%v err=%v", advanced, err)
	}
	if s.CurrentTier != 1 {
		t.Errorf("current tier = %d, want 1", s.CurrentTier)
	}
	if s.TotalSold != 1000 {
		t.Errorf("total sold = %d, want 1000", s.TotalSold)
	}

	if _, err := s.RecordSale(1, 2000); err != nil {
		t.Fatal(err)
	}
	if !s.Exhausted() {
		t.Error("sale should be exhausted")
	}
	if err := s.CheckInvariants(); err != nil {
		t.Error(err)
	}
}

func TestRecordSaleRejects(t *testing.T) {
	t.Run("supply exceeded", func(t *testing.T) {
		s, _ := Initialize("owner", validTiers())
		before := s.Clone()
		if _, err := s.RecordSale(0, 1001); !errors.Is(err, ErrSupplyExceeded) {
			t.Fatalf("got %v, want ErrSupplyExceeded", err)
		}
		if s.Tiers[0].Sold != before.Tiers[0].Sold || s.TotalSold != before.TotalSold {
			t.Error("ledger mutated on error")
		}
	})

	t.Run("tier overflow", func(t *testing.T) {
		s, _ := Initialize("owner", []Tier{{Supply: math.MaxUint64, Price: 1, MaxPerWallet: 1}})
		s.Tiers[0].Sold = math.MaxUint64 - 1
		s.TotalSold = math.MaxUint64 - 1
		if _, err := s.RecordSale(0, 2); err == nil {
			t.Fatal("expected overflow")
		}
	})

	t.Run("total overflow", func(t *testing.T) {
		s, _ := Initialize("owner", []Tier{
			{Supply: math.MaxUint64, Price: 1, MaxPerWallet: 1},
			{Supply: 10, Price: 1, MaxPerWallet: 1},
		})
		s.Tiers[0].Sold = math.MaxUint64
		s.TotalSold = math.MaxUint64
		s.CurrentTier = 1
		_, err := s.RecordSale(1, 1)
		if err == nil || s.Tiers[1].Sold != 0 {
			t.Fatalf("expected overflow without mutation, got err=%v sold=%d", err, s.Tiers[1].Sold)
		}
	})

	t.Run("bad index", func(t *testing.T) {
		s, _ := Initialize("owner", validTiers())
		if _, err := s.RecordSale(2, 1); !errors.Is(err, ErrTierIndex) {
			t.Fatalf("got %v, want ErrTierIndex", err)
		}
	})
}

func TestProgressAndClone(t *testing.T) {
	s, _ := Initialize("owner", validTiers())
	s.Metadata = map[string]string{"round": "seed"}
	if _, err := s.RecordSale(0, 250); err != nil {
		t.Fatal(err)
	}

	p := s.Progress()
	if p.State != StateActive || p.TotalSupply != 3000 || p.TotalSold != 250 {
		t.Errorf("progress = %+v", p)
	}
	if p.Tiers[0].Available != 750 || !p.Tiers[0].Active || p.Tiers[1].Active {
		t.Errorf("tier progress = %+v", p.Tiers)
	}
	if p.Tiers[0].SoldBP != 2500 || p.ActiveTierBP != 2500 || p.SoldBP != 833 {
		t.Errorf("basis points: tier0=%d active=%d overall=%d", p.Tiers[0].SoldBP, p.ActiveTierBP, p.SoldBP)
	}

	c := s.Clone()
	c.Tiers[0].Sold = 0
	c.Metadata["round"] = "public"
	if s.Tiers[0].Sold != 250 || s.Metadata["round"] != "seed" {
		t.Error("Clone shares state with the original")
	}
}

func TestProgressBasisPoints(t *testing.T) {
	// The summed supply does not fit in uint64.
	s, err := Initialize("owner", []Tier{
		{Supply: math.MaxUint64, Price: 1, MaxPerWallet: 1},
		{Supply: math.MaxUint64, Price: 1, MaxPerWallet: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.RecordSale(0, math.MaxUint64); err != nil {
		t.Fatal(err)
	}

	p := s.Progress()
	if p.SoldBP != 5000 {
		t.Errorf("overall = %d, want 5000", p.SoldBP)
	}
	if p.Tiers[0].SoldBP != 10_000 || p.ActiveTierBP != 0 || p.CurrentTier != 1 {
		t.Errorf("tier0=%d active=%d current=%d", p.Tiers[0].SoldBP, p.ActiveTierBP, p.CurrentTier)
	}

	if _, err := s.RecordSale(1, math.MaxUint64); err == nil {
		t.Fatal("total sold cannot exceed uint64")
	}
}

func TestCheckInvariantsDetectsDrift(t *testing.T) {
	s, _ := Initialize("owner", validTiers())
	s.Tiers[0].Sold = 10
	if err := s.CheckInvariants(); err == nil {
		t.Error("expected total mismatch")
	}
}
