package tiersale

import (
	"context"
	"fmt"

	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
	"github.com/xraph/tiersale/transfer"
	"github.com/xraph/tiersale/types"
)

// attempt is a purchase evaluated against working copies of the ledgers.
// Nothing in it has been persisted.
type attempt struct {
	sale         *sale.Sale
	ledger       *participant.Ledger
	tierIndex    int
	price        uint64
	contribution uint64
	allocation   uint64
	advanced     bool
}

// evaluate runs every ledger rule of a purchase in order against clones of
// s and l. The originals are never touched.
func evaluate(s *sale.Sale, l *participant.Ledger, amount uint64) (*attempt, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}

	tierIndex, tier, err := s.ActiveTier()
	if err != nil {
		return nil, err
	}

	contribution, err := l.CheckAndReserve(tierIndex, *tier, amount)
	if err != nil {
		return nil, err
	}

	allocation, err := types.ToAllocation(amount, tier.Price)
	if err != nil {
		return nil, err
	}

	if allocation > tier.Available() {
		return nil, ErrTierSoldOut
	}

	a := &attempt{
		sale:         s.Clone(),
		ledger:       l.Clone(),
		tierIndex:    tierIndex,
		price:        tier.Price,
		contribution: contribution,
		allocation:   allocation,
	}

	// The remaining mutations run now so that no ledger error can surface
	// once payment has been taken.
	if a.advanced, err = a.sale.RecordSale(tierIndex, allocation); err != nil {
		return nil, err
	}
	if err := a.ledger.Commit(tierIndex, contribution); err != nil {
		return nil, err
	}
	if err := a.ledger.RecordAllocation(allocation); err != nil {
		return nil, err
	}
	return a, nil
}

// Quote evaluates a purchase without moving funds or writing anything.
func (e *Engine) Quote(ctx context.Context, saleID id.SaleID, address string, amount uint64) (*purchase.Quote, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: participant is required", ErrInvalidInput)
	}

	s, err := e.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	l, _, err := e.loadParticipant(ctx, s, address)
	if err != nil {
		return nil, err
	}

	a, err := evaluate(s, l, amount)
	if err != nil {
		return nil, err
	}

	tier := a.sale.Tiers[a.tierIndex]
	return &purchase.Quote{
		SaleID:          saleID,
		Participant:     address,
		TierIndex:       a.tierIndex,
		Payment:         amount,
		Allocation:      a.allocation,
		Price:           a.price,
		Contribution:    a.contribution,
		WalletRemaining: a.ledger.Remaining(a.tierIndex, tier),
		TierRemaining:   tier.Available(),
		Advances:        a.advanced,
	}, nil
}

// Purchase buys allocation in the active tier of a sale for amount payment
// units.
//
// Every ledger rule is checked before any funds move. A rejected purchase
// returns one of ErrInvalidAmount, ErrSaleInactive, ErrExceededWalletLimit,
// ErrArithmeticOverflow or ErrTierSoldOut and changes nothing. If the
// payment transfer fails the error wraps ErrTransferFailed and nothing is
// written. Once payment has been taken, a failed commit or allocation
// transfer is returned as a *SettlementError matching ErrInconsistentState;
// those purchases are not compensated and need reconciliation.
func (e *Engine) Purchase(ctx context.Context, saleID id.SaleID, address string, amount uint64) (*purchase.Purchase, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: participant is required", ErrInvalidInput)
	}

	unlock := e.lock(saleID)
	defer unlock()

	s, err := e.store.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	l, isNew, err := e.loadParticipant(ctx, s, address)
	if err != nil {
		return nil, err
	}

	a, err := evaluate(s, l, amount)
	if err != nil {
		e.reject(ctx, saleID, address, amount, err)
		return nil, err
	}

	a.sale.Version++
	a.sale.Touch()
	if isNew {
		a.ledger.ID = id.NewParticipantID()
		a.ledger.Entity = types.NewEntity()
	} else {
		a.ledger.Touch()
	}

	receipt := &purchase.Purchase{
		Entity:               types.NewEntity(),
		ID:                   id.NewPurchaseID(),
		SaleID:               saleID,
		Participant:          address,
		LedgerID:             a.ledger.ID,
		TierIndex:            a.tierIndex,
		Payment:              amount,
		Allocation:           a.allocation,
		Price:                a.price,
		Advanced:             a.advanced,
		Status:               purchase.StatusCommitted,
		PaymentTransferID:    id.NewTransferID(),
		AllocationTransferID: id.NewTransferID(),
	}

	// Payment in. Nothing has been written yet.
	if err := e.transfer(ctx, &transfer.Transfer{
		ID:     receipt.PaymentTransferID,
		From:   address,
		To:     s.Settlement.Treasury,
		Amount: amount,
		Asset:  s.Settlement.PaymentAsset,
	}); err != nil {
		err = fmt.Errorf("%w: payment: %w", ErrTransferFailed, err)
		e.reject(ctx, saleID, address, amount, err)
		return nil, err
	}

	if err := e.store.CommitPurchase(ctx, a.sale, a.ledger, receipt); err != nil {
		return nil, e.settlementFailed(ctx, receipt, StageCommit, err, false)
	}

	if a.advanced {
		e.logger.Info("tier advanced",
			"sale_id", saleID.String(),
			"tier", a.tierIndex,
			"next_tier", a.sale.CurrentTier,
		)
		e.plugins.EmitTierAdvanced(ctx, a.sale, a.tierIndex)
		if a.sale.Exhausted() {
			e.logger.Info("sale exhausted", "sale_id", saleID.String(), "total_sold", a.sale.TotalSold)
			e.plugins.EmitSaleExhausted(ctx, a.sale)
		}
	}

	// Allocation out. The ledgers are already committed.
	if err := e.transfer(ctx, &transfer.Transfer{
		ID:     receipt.AllocationTransferID,
		From:   s.Settlement.Reserve,
		To:     address,
		Amount: a.allocation,
		Asset:  s.Settlement.SaleAsset,
	}); err != nil {
		err = fmt.Errorf("%w: allocation: %w", ErrTransferFailed, err)
		return nil, e.settlementFailed(ctx, receipt, StageAllocationTransfer, err, true)
	}

	e.logger.Info("purchase committed",
		"sale_id", saleID.String(),
		"purchase_id", receipt.ID.String(),
		"participant", address,
		"tier", a.tierIndex,
		"amount", amount,
		"allocation", a.allocation,
	)
	e.plugins.EmitPurchaseCommitted(ctx, receipt)
	return receipt, nil
}

// transfer runs one transfer under the configured timeout.
func (e *Engine) transfer(ctx context.Context, t *transfer.Transfer) error {
	if e.transferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.transferTimeout)
		defer cancel()
	}
	return e.transferer.Transfer(ctx, t)
}

func (e *Engine) reject(ctx context.Context, saleID id.SaleID, address string, amount uint64, err error) {
	e.logger.Info("purchase rejected",
		"sale_id", saleID.String(),
		"participant", address,
		"amount", amount,
		"error", err,
	)
	e.plugins.EmitPurchaseRejected(ctx, saleID, address, amount, err)
}

// settlementFailed flags a purchase whose payment was taken but which did
// not settle. persisted reports whether the receipt reached the store.
func (e *Engine) settlementFailed(ctx context.Context, receipt *purchase.Purchase, stage string, cause error, persisted bool) error {
	receipt.Status = purchase.StatusSettlementFailed
	receipt.Reason = stage + ": " + cause.Error()

	if persisted {
		// Detach from ctx: the caller's deadline may be what failed the transfer.
		if err := e.store.UpdatePurchaseStatus(context.WithoutCancel(ctx), receipt.ID, receipt.Status, receipt.Reason); err != nil {
			e.logger.Error("failed to flag purchase for reconciliation",
				"purchase_id", receipt.ID.String(),
				"error", err,
			)
		}
	}

	e.logger.Error("purchase settlement failed",
		"sale_id", receipt.SaleID.String(),
		"purchase_id", receipt.ID.String(),
		"participant", receipt.Participant,
		"stage", stage,
		"amount", receipt.Payment,
		"allocation", receipt.Allocation,
		"error", cause,
	)
	e.plugins.EmitSettlementFailed(ctx, receipt, cause)

	return &SettlementError{Purchase: receipt, Stage: stage, Err: cause}
}
