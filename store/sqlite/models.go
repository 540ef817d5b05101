package sqlite

import (
	"encoding/json"
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

// SQLite INTEGER is signed 64-bit, so uint64 counters are stored as decimal
// TEXT. Tier schedules, settlement, metadata and contribution vectors are
// JSON documents in TEXT columns.

// ==================== Sale models ====================

type saleModel struct {
	grove.BaseModel `grove:"table:tiersale_sales"`

	ID          string            `grove:"id,pk"`
	Owner       string            `grove:"owner"`
	Tiers       string            `grove:"tiers"`
	CurrentTier int               `grove:"current_tier"`
	TotalSold   string            `grove:"total_sold"`
	Settlement  string            `grove:"settlement"`
	Version     int64             `grove:"version"`
	Metadata    string            `grove:"metadata"`
	CreatedAt   time.Time         `grove:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"`
}

func toSaleModel(s *sale.Sale) (*saleModel, error) {
	tiers, err := json.Marshal(s.Tiers)
	if err != nil {
		return nil, err
	}
	settlement, err := json.Marshal(s.Settlement)
	if err != nil {
		return nil, err
	}
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return nil, err
	}
	return &saleModel{
		ID:          s.ID.String(),
		Owner:       s.Owner,
		Tiers:       string(tiers),
		CurrentTier: s.CurrentTier,
		TotalSold:   formatUint(s.TotalSold),
		Settlement:  string(settlement),
		Version:     int64(s.Version), //nolint:gosec // versions count commits
		Metadata:    string(metadata),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}, nil
}

func fromSaleModel(m *saleModel) (*sale.Sale, error) {
	saleID, err := id.ParseSaleID(m.ID)
	if err != nil {
		return nil, err
	}
	totalSold, err := parseUint(m.TotalSold)
	if err != nil {
		return nil, err
	}

	var tiers []sale.Tier
	if err := json.Unmarshal([]byte(m.Tiers), &tiers); err != nil {
		return nil, fmt.Errorf("tiersale/sqlite: decode tiers of %s: %w", m.ID, err)
	}
	var settlement sale.Settlement
	if len(m.Settlement) > 0 {
		if err := json.Unmarshal([]byte(m.Settlement), &settlement); err != nil {
			return nil, fmt.Errorf("tiersale/sqlite: decode settlement of %s: %w", m.ID, err)
		}
	}

	var metadata map[string]string
	if m.Metadata != "" && m.Metadata != "null" {
		if err := json.Unmarshal([]byte(m.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("tiersale/sqlite: decode metadata of %s: %w", m.ID, err)
		}
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
		Settlement:  settlement,
		Version:     uint64(m.Version), //nolint:gosec // never negative
		Metadata:    metadata,
	}, nil
}

// ==================== Participant models ====================

type participantModel struct {
	grove.BaseModel `grove:"table:tiersale_participants"`

	ID            string          `grove:"id,pk"`
	SaleID        string          `grove:"sale_id"`
	Address       string          `grove:"address"`
	Contributions string          `grove:"contributions"`
	TokensBought  string          `grove:"tokens_bought"`
	CreatedAt     time.Time       `grove:"created_at"`
	UpdatedAt     time.Time       `grove:"updated_at"`
}

func toParticipantModel(l *participant.Ledger) (*participantModel, error) {
	contributions, err := json.Marshal(l.Contributions)
	if err != nil {
		return nil, err
	}
	return &participantModel{
		ID:            l.ID.String(),
		SaleID:        l.SaleID.String(),
		Address:       l.Address,
		Contributions: string(contributions),
		TokensBought:  formatUint(l.TokensBought),
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}, nil
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
	var contributions []uint64
	if err := json.Unmarshal([]byte(m.Contributions), &contributions); err != nil {
		return nil, fmt.Errorf("tiersale/sqlite: decode contributions of %s: %w", m.ID, err)
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

	ID                   string    `grove:"id,pk"`
	SaleID               string    `grove:"sale_id"`
	Participant          string    `grove:"participant"`
	LedgerID             string    `grove:"ledger_id"`
	TierIndex            int       `grove:"tier_index"`
	Payment              string    `grove:"payment"`
	Allocation           string    `grove:"allocation"`
	Price                string    `grove:"price"`
	Advanced             bool      `grove:"advanced"`
	Status               string    `grove:"status"`
	Reason               string    `grove:"reason"`
	PaymentTransferID    string    `grove:"payment_transfer_id"`
	AllocationTransferID string    `grove:"allocation_transfer_id"`
	CreatedAt            time.Time `grove:"created_at"`
	UpdatedAt            time.Time `grove:"updated_at"`
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
	if err := ledgerID.Scan(m.LedgerID); err != nil {
		return nil, err
	}
	if err := paymentID.Scan(m.PaymentTransferID); err != nil {
		return nil, err
	}
	if err := allocationID.Scan(m.AllocationTransferID); err != nil {
		return nil, err
	}

	var amounts [3]uint64
	for i, v := range []string{m.Payment, m.Allocation, m.Price} {
		if amounts[i], err = parseUint(v); err != nil {
			return nil, err
		}
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
		Payment:              amounts[0],
		Allocation:           amounts[1],
		Price:                amounts[2],
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
		return 0, fmt.Errorf("tiersale/sqlite: counter %q: %w", s, err)
	}
	return v, nil
}
