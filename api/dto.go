package api

import (
	"strconv"
	"time"

	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
)

// Units is a uint64 amount carried as a JSON string so clients that decode
// numbers into float64 keep every digit.
type Units uint64

// MarshalText implements encoding.TextMarshaler.
func (u Units) MarshalText() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(u), 10), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Units) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return err
	}
	*u = Units(v)
	return nil
}

// TierJSON is one tier on the wire.
type TierJSON struct {
	Supply       Units `json:"supply"`
	Sold         Units `json:"sold"`
	Price        Units `json:"price"`
	MaxPerWallet Units `json:"max_per_wallet"`
}

// CreateSaleRequest is the body of POST /sales.
type CreateSaleRequest struct {
	Owner      string            `json:"owner"`
	Tiers      []TierJSON        `json:"tiers"`
	Settlement sale.Settlement   `json:"settlement"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AmountRequest is the body of the quote and purchase endpoints.
type AmountRequest struct {
	Amount Units `json:"amount"`
}

// SaleResponse is a sale on the wire.
type SaleResponse struct {
	ID          string            `json:"id"`
	Owner       string            `json:"owner"`
	State       sale.State        `json:"state"`
	Tiers       []TierJSON        `json:"tiers"`
	CurrentTier int               `json:"current_tier"`
	TotalSold   Units             `json:"total_sold"`
	Settlement  sale.Settlement   `json:"settlement"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TierProgressResponse is one tier of a progress report.
type TierProgressResponse struct {
	Index     int    `json:"index"`
	Supply    Units  `json:"supply"`
	Sold      Units  `json:"sold"`
	Available Units  `json:"available"`
	Price     Units  `json:"price"`
	Active    bool   `json:"active"`
	SoldBP    uint64 `json:"sold_bp"`
}

// ProgressResponse is the body of GET /sales/{saleID}/progress.
type ProgressResponse struct {
	SaleID       string                 `json:"sale_id"`
	State        sale.State             `json:"state"`
	CurrentTier  int                    `json:"current_tier"`
	TotalSold    Units                  `json:"total_sold"`
	TotalSupply  Units                  `json:"total_supply"`
	SoldBP       uint64                 `json:"sold_bp"`
	ActiveTierBP uint64                 `json:"active_tier_bp"`
	Tiers        []TierProgressResponse `json:"tiers"`
}

// ParticipantResponse is a participant ledger on the wire.
type ParticipantResponse struct {
	SaleID        string  `json:"sale_id"`
	Address       string  `json:"address"`
	Contributions []Units `json:"contributions"`
	TokensBought  Units   `json:"tokens_bought"`
}

// PurchaseResponse is a receipt on the wire.
type PurchaseResponse struct {
	ID                   string          `json:"id"`
	SaleID               string          `json:"sale_id"`
	Participant          string          `json:"participant"`
	TierIndex            int             `json:"tier_index"`
	Payment              Units           `json:"payment"`
	Allocation           Units           `json:"allocation"`
	Price                Units           `json:"price"`
	Advanced             bool            `json:"advanced"`
	Status               purchase.Status `json:"status"`
	Reason               string          `json:"reason,omitempty"`
	PaymentTransferID    string          `json:"payment_transfer_id"`
	AllocationTransferID string          `json:"allocation_transfer_id"`
	CreatedAt            time.Time       `json:"created_at"`
}

// QuoteResponse is the body of POST /sales/{saleID}/quote.
type QuoteResponse struct {
	SaleID          string `json:"sale_id"`
	Participant     string `json:"participant"`
	TierIndex       int    `json:"tier_index"`
	Payment         Units  `json:"payment"`
	Allocation      Units  `json:"allocation"`
	Price           Units  `json:"price"`
	Contribution    Units  `json:"contribution"`
	WalletRemaining Units  `json:"wallet_remaining"`
	TierRemaining   Units  `json:"tier_remaining"`
	Advances        bool   `json:"advances"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error    string            `json:"error"`
	Purchase *PurchaseResponse `json:"purchase,omitempty"`
}

func toTiers(in []TierJSON) []sale.Tier {
	out := make([]sale.Tier, len(in))
	for i, t := range in {
		out[i] = sale.Tier{
			Supply:       uint64(t.Supply),
			Sold:         uint64(t.Sold),
			Price:        uint64(t.Price),
			MaxPerWallet: uint64(t.MaxPerWallet),
		}
	}
	return out
}

func fromTiers(in []sale.Tier) []TierJSON {
	out := make([]TierJSON, len(in))
	for i, t := range in {
		out[i] = TierJSON{
			Supply:       Units(t.Supply),
			Sold:         Units(t.Sold),
			Price:        Units(t.Price),
			MaxPerWallet: Units(t.MaxPerWallet),
		}
	}
	return out
}

func toSaleResponse(s *sale.Sale) SaleResponse {
	return SaleResponse{
		ID:          s.ID.String(),
		Owner:       s.Owner,
		State:       s.State(),
		Tiers:       fromTiers(s.Tiers),
		CurrentTier: s.CurrentTier,
		TotalSold:   Units(s.TotalSold),
		Settlement:  s.Settlement,
		Metadata:    s.Metadata,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func toProgressResponse(p *sale.Progress) ProgressResponse {
	tiers := make([]TierProgressResponse, len(p.Tiers))
	for i, t := range p.Tiers {
		tiers[i] = TierProgressResponse{
			Index:     t.Index,
			Supply:    Units(t.Supply),
			Sold:      Units(t.Sold),
			Available: Units(t.Available),
			Price:     Units(t.Price),
			Active:    t.Active,
			SoldBP:    t.SoldBP,
		}
	}
	return ProgressResponse{
		SaleID:       p.SaleID.String(),
		State:        p.State,
		CurrentTier:  p.CurrentTier,
		TotalSold:    Units(p.TotalSold),
		TotalSupply:  Units(p.TotalSupply),
		SoldBP:       p.SoldBP,
		ActiveTierBP: p.ActiveTierBP,
		Tiers:        tiers,
	}
}

func toParticipantResponse(l *participant.Ledger) ParticipantResponse {
	contributions := make([]Units, len(l.Contributions))
	for i, c := range l.Contributions {
		contributions[i] = Units(c)
	}
	return ParticipantResponse{
		SaleID:        l.SaleID.String(),
		Address:       l.Address,
		Contributions: contributions,
		TokensBought:  Units(l.TokensBought),
	}
}

func toPurchaseResponse(p *purchase.Purchase) PurchaseResponse {
	return PurchaseResponse{
		ID:                   p.ID.String(),
		SaleID:               p.SaleID.String(),
		Participant:          p.Participant,
		TierIndex:            p.TierIndex,
		Payment:              Units(p.Payment),
		Allocation:           Units(p.Allocation),
		Price:                Units(p.Price),
		Advanced:             p.Advanced,
		Status:               p.Status,
		Reason:               p.Reason,
		PaymentTransferID:    p.PaymentTransferID.String(),
		AllocationTransferID: p.AllocationTransferID.String(),
		CreatedAt:            p.CreatedAt,
	}
}

func toQuoteResponse(q *purchase.Quote) QuoteResponse {
	return QuoteResponse{
		SaleID:          q.SaleID.String(),
		Participant:     q.Participant,
		TierIndex:       q.TierIndex,
		Payment:         Units(q.Payment),
		Allocation:      Units(q.Allocation),
		Price:           Units(q.Price),
		Contribution:    Units(q.Contribution),
		WalletRemaining: Units(q.WalletRemaining),
		TierRemaining:   Units(q.TierRemaining),
		Advances:        q.Advances,
	}
}
