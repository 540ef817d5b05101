// Package sale implements the sale-wide ledger of a tiered token sale: the
// ordered tier schedule, the active tier pointer and cumulative units sold.
package sale

import (
	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/types"
)

// MaxTiers bounds the tier schedule. The tier pointer is persisted in a
// single byte by existing deployments.
const MaxTiers = 255

// State is the lifecycle state of a sale.
type State string

const (
	StateActive    State = "active"
	StateExhausted State = "exhausted"
)

// Tier is one pricing bracket of the sale.
type Tier struct {
	// Supply is the number of allocation units offered in this tier.
	Supply uint64 `json:"supply" bson:"supply"`
	// Sold is the number of allocation units already distributed.
	Sold uint64 `json:"sold" bson:"sold"`
	// Price is the payment amount, in smallest payment units, for 10^18
	// allocation units.
	Price uint64 `json:"price" bson:"price"`
	// MaxPerWallet caps the cumulative payment a participant may contribute
	// to this tier.
	MaxPerWallet uint64 `json:"max_per_wallet" bson:"max_per_wallet"`
}

// Available returns the units still for sale in the tier.
func (t Tier) Available() uint64 { return t.Supply - t.Sold }

// SoldOut reports whether the tier has no units left.
func (t Tier) SoldOut() bool { return t.Sold == t.Supply }

// Settlement names the accounts and assets the two transfers of a purchase
// move between. It is host configuration and never consulted by the ledger
// rules.
type Settlement struct {
	Treasury     string `json:"treasury"      bson:"treasury"`
	Reserve      string `json:"reserve"       bson:"reserve"`
	PaymentAsset string `json:"payment_asset" bson:"payment_asset"`
	SaleAsset    string `json:"sale_asset"    bson:"sale_asset"`
}

// Sale is the global ledger of one tiered sale.
type Sale struct {
	types.Entity
	ID          id.SaleID         `json:"id"`
	Owner       string            `json:"owner"`
	Tiers       []Tier            `json:"tiers"`
	CurrentTier int               `json:"current_tier"`
	TotalSold   uint64            `json:"total_sold"`
	Settlement  Settlement        `json:"settlement"`
	Version     uint64            `json:"version"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// TierProgress is the read model of one tier. SoldBP is the share of the
// tier's supply sold, in basis points.
type TierProgress struct {
	Index     int    `json:"index"`
	Supply    uint64 `json:"supply"`
	Sold      uint64 `json:"sold"`
	Available uint64 `json:"available"`
	Price     uint64 `json:"price"`
	Active    bool   `json:"active"`
	SoldBP    uint64 `json:"sold_bp"`
}

// Progress summarizes how far a sale has advanced. SoldBP covers the whole
// schedule; ActiveTierBP is the current tier's SoldBP, zero once exhausted.
type Progress struct {
	SaleID       id.SaleID      `json:"sale_id"`
	State        State          `json:"state"`
	CurrentTier  int            `json:"current_tier"`
	TotalSold    uint64         `json:"total_sold"`
	TotalSupply  uint64         `json:"total_supply"`
	SoldBP       uint64         `json:"sold_bp"`
	ActiveTierBP uint64         `json:"active_tier_bp"`
	Tiers        []TierProgress `json:"tiers"`
}
