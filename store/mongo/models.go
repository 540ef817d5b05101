package mongo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
	"github.com/xraph/tiersale/types"
)

// BSON has no unsigned 64-bit integer, so every token and payment counter
// is kept as a decimal string.

// ==================== Sale models ====================

type saleModel struct {
	grove.BaseModel `grove:"table:tiersale_sales"`

	ID          string            `grove:"id,pk"        bson:"_id"`
	Owner       string            `grove:"owner"        bson:"owner"`
	Tiers       []tierModel       `grove:"tiers"        bson:"tiers"`
	CurrentTier int               `grove:"current_tier" bson:"current_tier"`
	TotalSold   string            `grove:"total_sold"   bson:"total_sold"`
	Settlement  settlementModel   `grove:"settlement"   bson:"settlement"`
	Version     int64             `grove:"version"      bson:"version"`
	Metadata    map[string]string `grove:"metadata"     bson:"metadata,omitempty"`
	CreatedAt   time.Time         `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"   bson:"updated_at"`
}

type tierModel struct {
	Supply       string `bson:"supply"`
	Sold         string `bson:"sold"`
	Price        string `bson:"price"`
	MaxPerWallet string `bson:"max_per_wallet"`
}

type settlementModel struct {
	Treasury     string `bson:"treasury"`
	Reserve      string `bson:"reserve"`
	PaymentAsset string `bson:"payment_asset"`
	SaleAsset    string `bson:"sale_asset"`
}

func toTierModels(tiers []sale.Tier) []tierModel {
	out := make([]tierModel, len(tiers))
	for i, t := range tiers {
		out[i] = tierModel{
			Supply:       formatUint(t.Supply),
			Sold:         formatUint(t.Sold),
			Price:        formatUint(t.Price),
			MaxPerWallet: formatUint(t.MaxPerWallet),
		}
	}
	return out
}

func fromTierModels(models []tierModel) ([]sale.Tier, error) {
	out := make([]sale.Tier, len(models))
	for i, m := range models {
		var err error
		if out[i].Supply, err = parseUint(m.Supply); err != nil {
			return nil, err
		}
		if out[i].Sold, err = parseUint(m.Sold); err != nil {
			return nil, err
		}
		if out[i].Price, err = parseUint(m.Price); err != nil {
			return nil, err
		}
		if out[i].MaxPerWallet, err = parseUint(m.MaxPerWallet); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func toSaleModel(s *sale.Sale) *saleModel {
	return &saleModel{
		ID:          s.ID.String(),
		Owner:       s.Owner,
		Tiers:       toTierModels(s.Tiers),
		CurrentTier: s.CurrentTier,
		TotalSold:   formatUint(s.TotalSold),
		Settlement: settlementModel{
			Treasury:     s.Settlement.Treasury,
			Reserve:      s.Settlement.Reserve,
			PaymentAsset: s.Settlement.PaymentAsset,
			SaleAsset:    s.Settlement.SaleAsset,
		},
		Version:   int64(s.Version), //nolint:gosec // versions count commits
		Metadata:  s.Metadata,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func fromSaleModel(m *saleModel) (*sale.Sale, error) {
	saleID, err := id.ParseSaleID(m.ID)
	if err != nil {
		return nil, err
	}
	tiers, err := fromTierModels(m.Tiers)
	if err != nil {
		return nil, err
	}
	totalSold, err := parseUint(m.TotalSold)
	if err != nil {
		return nil, err
	}

	return &sale.Sale{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          saleID,
		Owner:       m.Owner,
		Tiers:       tiers,
		CurrentTier: m.CurrentTier,
		TotalSold:   totalSold,
		Settlement: sale.Settlement{
			Treasury:     m.Settlement.Treasury,
			Reserve:      m.Settlement.Reserve,
			PaymentAsset: m.Settlement.PaymentAsset,
			SaleAsset:    m.Settlement.SaleAsset,
		},
		Version:  uint64(m.Version), //nolint:gosec // never negative
		Metadata: m.Metadata,
	}, nil
}

// ==================== Participant models ====================

type participantModel struct {
	grove.BaseModel `grove:"table:tiersale_participants"`

	ID            string    `grove:"id,pk"         bson:"_id"`
	SaleID        string    `grove:"sale_id"       bson:"sale_id"`
	Address       string    `grove:"address"       bson:"address"`
	Contributions []string  `grove:"contributions" bson:"contributions"`
	TokensBought  string    `grove:"tokens_bought" bson:"tokens_bought"`
	CreatedAt     time.Time `grove:"created_at"    bson:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"    bson:"updated_at"`
}

func toParticipantModel(l *participant.Ledger) *participantModel {
	contributions := make([]string, len(l.Contributions))
	for i, c := range l.Contributions {
		contributions[i] = formatUint(c)
	}
	return &participantModel{
		ID:            l.ID.String(),
		SaleID:        l.SaleID.String(),
		Address:       l.Address,
		Contributions: contributions,
		TokensBought:  formatUint(l.TokensBought),
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

func fromParticipantModel(m *participantModel) (*participant.Ledger, error) {
	ledgerID, err := id.ParseParticipantID(m.ID)
	if err != nil {
		return nil, err
	}
	saleID, err := id.ParseSaleID(m.SaleID)
	if err != nil {
		return nil, err
	}
	bought, err := parseUint(m.TokensBought)
	if err != nil {
		return nil, err
	}
	contributions := make([]uint64, len(m.Contributions))
	for i, c := range m.Contributions {
		if contributions[i], err = parseUint(c); err != nil {
			return nil, err
		}
	}

	return &participant.Ledger{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            ledgerID,
		SaleID:        saleID,
		Address:       m.Address,
		Contributions: contributions,
		TokensBought:  bought,
	}, nil
}

// ==================== Purchase models ====================

type purchaseModel struct {
	grove.BaseModel `grove:"table:tiersale_purchases"`

	ID                   string    `grove:"id,pk"                  bson:"_id"`
	SaleID               string    `grove:"sale_id"                bson:"sale_id"`
	Participant          string    `grove:"participant"            bson:"participant"`
	LedgerID             string    `grove:"ledger_id"              bson:"ledger_id"`
	TierIndex            int       `grove:"tier_index"             bson:"tier_index"`
	Payment              string    `grove:"payment"                bson:"payment"`
	Allocation           string    `grove:"allocation"             bson:"allocation"`
	Price                string    `grove:"price"                  bson:"price"`
	Advanced             bool      `grove:"advanced"               bson:"advanced"`
	Status               string    `grove:"status"                 bson:"status"`
	Reason               string    `grove:"reason"                 bson:"reason,omitempty"`
	PaymentTransferID    string    `grove:"payment_transfer_id"    bson:"payment_transfer_id"`
	AllocationTransferID string    `grove:"allocation_transfer_id" bson:"allocation_transfer_id"`
	CreatedAt            time.Time `grove:"created_at"             bson:"created_at"`
	UpdatedAt            time.Time `grove:"updated_at"             bson:"updated_at"`
}

func toPurchaseModel(p *purchase.Purchase) *purchaseModel {
	return &purchaseModel{
		ID:                   p.ID.String(),
		SaleID:               p.SaleID.String(),
		Participant:          p.Participant,
		LedgerID:             p.LedgerID.String(),
		TierIndex:            p.TierIndex,
		Payment:              formatUint(p.Payment),
		Allocation:           formatUint(p.Allocation),
		Price:                formatUint(p.Price),
		Advanced:             p.Advanced,
		Status:               string(p.Status),
		Reason:               p.Reason,
		PaymentTransferID:    p.PaymentTransferID.String(),
		AllocationTransferID: p.AllocationTransferID.String(),
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

func fromPurchaseModel(m *purchaseModel) (*purchase.Purchase, error) {
	purchaseID, err := id.ParsePurchaseID(m.ID)
	if err != nil {
		return nil, err
	}
	saleID, err := id.ParseSaleID(m.SaleID)
	if err != nil {
		return nil, err
	}
	var ledgerID, paymentID, allocationID id.ID
	for _, f := range []struct {
		dst *id.ID
		src string
	}{
		{&ledgerID, m.LedgerID},
		{&paymentID, m.PaymentTransferID},
		{&allocationID, m.AllocationTransferID},
	} {
		if err := f.dst.Scan(f.src); err != nil {
			return nil, err
		}
	}

	payment, err := parseUint(m.Payment)
	if err != nil {
		return nil, err
	}
	allocation, err := parseUint(m.Allocation)
	if err != nil {
		return nil, err
	}
	price, err := parseUint(m.Price)
	if err != nil {
		return nil, err
	}

	return &purchase.Purchase{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                   purchaseID,
		SaleID:               saleID,
		Participant:          m.Participant,
		LedgerID:             ledgerID,
		TierIndex:            m.TierIndex,
		Payment:              payment,
		Allocation:           allocation,
		Price:                price,
		Advanced:             m.Advanced,
		Status:               purchase.Status(m.Status),
		Reason:               m.Reason,
		PaymentTransferID:    paymentID,
		AllocationTransferID: allocationID,
	}, nil
}

// ==================== Helpers ====================

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("tiersale/mongo: counter %q: %w", s, err)
	}
	return v, nil
}
