// Package tiersale provides a tiered token sale allocation engine for Go
// applications.
//
// tiersale is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - An ordered schedule of price tiers with a per-participant payment cap
//   - Exact 18-decimal fixed-point conversion from payment to allocation
//   - Purchases that check every rule before any funds move
//   - Pluggable persistence (memory, LevelDB, PostgreSQL, SQLite, MongoDB)
//   - Lifecycle hooks for audit trails and metrics
//
// # Quick Start
//
// Create an engine with your preferred store and a Transferer that moves
// funds between accounts:
//
//	import (
//	    "github.com/xraph/tiersale"
//	    "github.com/xraph/tiersale/store/memory"
//	)
//
//	eng := tiersale.New(memory.New(), tiersale.WithTransferer(myTransferer))
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// A sale is an ordered list of tiers. Only the first tier that is not sold
// out accepts purchases; it advances the moment its last unit is sold:
//
//	s, err := eng.InitializeSale(ctx, "issuer", []tiersale.Tier{
//	    {Supply: 10 * tiersale.Scale, Price: 1_000_000, MaxPerWallet: 5_000_000},
//	    {Supply: 5 * tiersale.Scale, Price: 2_500_000, MaxPerWallet: 10_000_000},
//	}, tiersale.Settlement{
//	    Treasury: "treasury", Reserve: "reserve",
//	    PaymentAsset: "USDC", SaleAsset: "SALE",
//	})
//
// Price is the payment, in smallest payment units, for one whole token
// (10^18 allocation units). A purchase pays into the active tier and
// receives floor(payment * 10^18 / price) allocation units:
//
//	receipt, err := eng.Purchase(ctx, s.ID, "alice", 2_000_000)
//
// Quote runs the same checks without moving funds or writing anything.
//
// # Settlement
//
// A purchase moves payment from the participant to the treasury, commits
// both ledgers, then moves allocation from the reserve to the participant.
// A rejected purchase changes nothing. Once payment has been taken, a
// failed commit or allocation transfer returns a *SettlementError matching
// ErrInconsistentState; such receipts are marked settlement_failed and must
// be reconciled by the host.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	sale_01h2xcejqtf2nbrexx3vqjhp41  // Sale ID
//	ptc_01h2xcejqtf2nbrexx3vqjhp41   // Participant ledger ID
//	pur_01h455vb4pex5vsknk084sn02q   // Purchase ID
//	xfer_01h455vb4pex5vsknk084sn02q  // Transfer ID
package tiersale
