package tiersale

import (
	"errors"
	"fmt"

	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
	"github.com/xraph/tiersale/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("tiersale: not found")
	ErrAlreadyExists = errors.New("tiersale: already exists")
	ErrInvalidInput  = errors.New("tiersale: invalid input")

	// Sale errors
	ErrSaleNotFound         = errors.New("tiersale: sale not found")
	ErrInvalidConfiguration = sale.ErrInvalidConfiguration
	ErrSaleInactive         = sale.ErrSaleInactive
	ErrTierSoldOut          = sale.ErrTierSoldOut
	ErrSupplyExceeded       = sale.ErrSupplyExceeded
	ErrTierIndex            = sale.ErrTierIndex

	// Participant errors
	ErrParticipantNotFound = errors.New("tiersale: participant not found")
	ErrExceededWalletLimit = participant.ErrExceededWalletLimit
	ErrTierMismatch        = participant.ErrTierMismatch

	// Purchase errors
	ErrPurchaseNotFound = errors.New("tiersale: purchase not found")
	ErrInvalidAmount    = errors.New("tiersale: invalid amount")
	ErrTransferFailed   = errors.New("tiersale: transfer failed")

	// ErrInconsistentState marks a purchase whose payment was taken but whose
	// settlement did not complete.
	ErrInconsistentState = errors.New("tiersale: inconsistent settlement state")

	// Arithmetic errors
	ErrArithmeticOverflow = types.ErrArithmeticOverflow
	ErrDivisionByZero     = types.ErrDivisionByZero
	ErrInvalidUnits       = types.ErrInvalidUnits

	// Store errors
	ErrConcurrentUpdate = errors.New("tiersale: concurrent update")
	ErrStoreNotReady    = errors.New("tiersale: store not ready")
	ErrStoreClosed      = errors.New("tiersale: store is closed")
	ErrMigrationFailed  = errors.New("tiersale: migration failed")
)

// SettlementError reports a purchase that took payment but did not settle:
// either the ledger commit or the allocation transfer failed afterwards.
// It matches ErrInconsistentState and unwraps to the underlying cause.
type SettlementError struct {
	Purchase *purchase.Purchase
	Stage    string
	Err      error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("tiersale: purchase %s settlement failed at %s: %v", e.Purchase.ID, e.Stage, e.Err)
}

func (e *SettlementError) Unwrap() []error { return []error{ErrInconsistentState, e.Err} }

// Settlement stages reported by SettlementError.
const (
	StageCommit             = "commit"
	StageAllocationTransfer = "allocation_transfer"
)

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tiersale: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tiersale: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSaleNotFound) ||
		errors.Is(err, ErrParticipantNotFound) ||
		errors.Is(err, ErrPurchaseNotFound)
}

// IsRejection returns true if a purchase was refused before any funds moved
// and nothing was written.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrSaleInactive) ||
		errors.Is(err, ErrExceededWalletLimit) ||
		errors.Is(err, ErrTierSoldOut) ||
		errors.Is(err, ErrSupplyExceeded) ||
		(errors.Is(err, ErrArithmeticOverflow) && !errors.Is(err, ErrInconsistentState))
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentUpdate) ||
		errors.Is(err, ErrStoreNotReady)
}
