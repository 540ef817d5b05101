// Package purchase defines the receipt the engine records for every
// committed purchase.
package purchase

import (
	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/types"
)

// Status is the settlement status of a purchase.
type Status string

const (
	// StatusCommitted means both transfers and the ledger commit succeeded.
	StatusCommitted Status = "committed"
	// StatusSettlementFailed means the payment was taken but the ledger
	// commit or the allocation transfer did not complete. The host must
	// reconcile these by hand.
	StatusSettlementFailed Status = "settlement_failed"
)

// Purchase is the receipt of one purchase.
type Purchase struct {
	types.Entity
	ID          id.PurchaseID    `json:"id"`
	SaleID      id.SaleID        `json:"sale_id"`
	Participant string           `json:"participant"`
	LedgerID    id.ParticipantID `json:"ledger_id"`
	TierIndex   int              `json:"tier_index"`
	Payment     uint64           `json:"payment"`
	Allocation  uint64           `json:"allocation"`
	Price       uint64           `json:"price"`
	// Advanced is true when this purchase sold out its tier.
	Advanced bool   `json:"advanced"`
	Status   Status `json:"status"`
	// Reason explains a settlement failure.
	Reason               string        `json:"reason,omitempty"`
	PaymentTransferID    id.TransferID `json:"payment_transfer_id"`
	AllocationTransferID id.TransferID `json:"allocation_transfer_id"`
}

// Quote is the dry-run result of a purchase: what the participant would
// receive if they bought now.
type Quote struct {
	SaleID       id.SaleID `json:"sale_id"`
	Participant  string    `json:"participant"`
	TierIndex    int       `json:"tier_index"`
	Payment      uint64    `json:"payment"`
	Allocation   uint64    `json:"allocation"`
	Price        uint64    `json:"price"`
	Contribution uint64    `json:"contribution"`
	// WalletRemaining is what the participant may still pay into the tier
	// after this purchase.
	WalletRemaining uint64 `json:"wallet_remaining"`
	// TierRemaining is the tier's unsold supply after this purchase.
	TierRemaining uint64 `json:"tier_remaining"`
	// Advances is true when the purchase would sell out the tier.
	Advances bool `json:"advances"`
}
