// Package transfer defines the contract for moving assets between accounts.
// The engine moves payment in and allocation out through a Transferer and
// treats each call as atomic: it either moves the full amount or nothing.
package transfer

import (
	"context"

	"github.com/xraph/tiersale/id"
)

// Transfer is a single movement instruction.
type Transfer struct {
	ID     id.TransferID `json:"id"`
	From   string        `json:"from"`
	To     string        `json:"to"`
	Amount uint64        `json:"amount"`
	Asset  string        `json:"asset"`
}

// Transferer executes transfers.
type Transferer interface {
	Transfer(ctx context.Context, t *Transfer) error
}

// Func adapts a function to a Transferer.
type Func func(ctx context.Context, t *Transfer) error

// Transfer calls f(ctx, t).
func (f Func) Transfer(ctx context.Context, t *Transfer) error { return f(ctx, t) }

// Nop accepts every transfer without moving anything. It is the engine's
// default, for hosts that settle outside the engine.
var Nop Transferer = Func(func(context.Context, *Transfer) error { return nil })
