// Package participant implements the per-participant ledger of a tiered
// sale: running contribution totals per tier and the lifetime allocation a
// participant has received.
package participant

import (
	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/types"
)

// Ledger tracks one participant's position in one sale.
type Ledger struct {
	types.Entity
	ID      id.ParticipantID `json:"id"`
	SaleID  id.SaleID        `json:"sale_id"`
	Address string           `json:"address"`
	// Contributions holds the cumulative payment per tier, indexed like the
	// sale's tier schedule.
	Contributions []uint64 `json:"contributions"`
	// TokensBought is the cumulative allocation received across all tiers.
	TokensBought uint64 `json:"tokens_bought"`
}
