package tiersale

import (
	"github.com/xraph/tiersale/participant"
	"github.com/xraph/tiersale/purchase"
	"github.com/xraph/tiersale/sale"
	"github.com/xraph/tiersale/types"
)

// Re-export common types for convenience so users don't have to import the
// domain packages.

type (
	Sale        = sale.Sale
	Tier        = sale.Tier
	Settlement  = sale.Settlement
	Progress    = sale.Progress
	Participant = participant.Ledger
	Purchase    = purchase.Purchase
	Quote       = purchase.Quote
	Entity      = types.Entity
)

// Decimals is the precision of the allocation asset.
const Decimals = types.Decimals

// Scale is the fixed-point multiplier applied to payments.
const Scale = types.Scale

// Re-export conversion helpers.
var (
	ToAllocation = types.ToAllocation
	FormatUnits  = types.FormatUnits
	ParseUnits   = types.ParseUnits
	NewEntity    = types.NewEntity
)
