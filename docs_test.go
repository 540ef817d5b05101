package tiersale_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/tiersale"
	"github.com/xraph/tiersale/store/memory"
	transfermem "github.com/xraph/tiersale/transfer/memory"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation work as written.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		book := transfermem.New()
		if err := book.Credit("alice", "USDC", 10_000_000); err != nil {
			t.Fatal(err)
		}
		if err := book.Credit("reserve", "SALE", 15*tiersale.Scale); err != nil {
			t.Fatal(err)
		}

		eng := tiersale.New(memory.New(),
			tiersale.WithLogger(slog.Default()),
			tiersale.WithTransferer(book),
			tiersale.WithTransferTimeout(5*time.Second),
		)

		ctx := context.Background()
		if err := eng.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer eng.Stop()

		s, err := eng.InitializeSale(ctx, "issuer", []tiersale.Tier{
			{Supply: 10 * tiersale.Scale, Price: 1_000_000, MaxPerWallet: 5_000_000},
			{Supply: 5 * tiersale.Scale, Price: 2_500_000, MaxPerWallet: 10_000_000},
		}, tiersale.Settlement{
			Treasury: "treasury", Reserve: "reserve",
			PaymentAsset: "USDC", SaleAsset: "SALE",
		})
		if err != nil {
			t.Fatal(err)
		}

		// 2 USDC at 1 USDC per token buys 2 tokens.
		receipt, err := eng.Purchase(ctx, s.ID, "alice", 2_000_000)
		if err != nil {
			t.Fatal(err)
		}
		if receipt.Allocation != 2*tiersale.Scale {
			t.Errorf("allocation = %s tokens, want 2", tiersale.FormatUnits(receipt.Allocation, tiersale.Decimals))
		}
		if got := book.Balance("alice", "SALE"); got != receipt.Allocation {
			t.Errorf("alice holds %d SALE, want %d", got, receipt.Allocation)
		}
		if got := book.Balance("treasury", "USDC"); got != 2_000_000 {
			t.Errorf("treasury holds %d USDC", got)
		}
	})
}
