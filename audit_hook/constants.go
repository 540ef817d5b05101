package audithook

// Action constants for audit events.
const (
	// Sale actions
	ActionSaleInitialized = "sale.initialized"
	ActionTierAdvanced    = "tier.advanced"
	ActionSaleExhausted   = "sale.exhausted"

	// Purchase actions
	ActionPurchaseCommitted = "purchase.committed"
	ActionPurchaseRejected  = "purchase.rejected"

	// Settlement actions
	ActionSettlementFailed = "settlement.failed"
)

// Resource constants for audit events.
const (
	ResourceSale     = "sale"
	ResourceTier     = "tier"
	ResourcePurchase = "purchase"
)

// Category constants for audit events.
const (
	CategorySale       = "sale"
	CategoryPurchase   = "purchase"
	CategorySettlement = "settlement"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
