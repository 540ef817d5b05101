package memory

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/xraph/tiersale/id"
	"github.com/xraph/tiersale/transfer"
)

func TestBookTransfer(t *testing.T) {
	ctx := context.Background()
	b := New()
	if err := b.Credit("alice", "USDC", 100); err != nil {
		t.Fatal(err)
	}

	err := b.Transfer(ctx, &transfer.Transfer{ID: id.NewTransferID(), From: "alice", To: "treasury", Amount: 60, Asset: "USDC"})
	if err != nil {
		t.Fatal(err)
	}
	if got := b.Balance("alice", "USDC"); got != 40 {
		t.Errorf("alice = %d, want 40", got)
	}
	if got := b.Balance("treasury", "USDC"); got != 60 {
		t.Errorf("treasury = %d, want 60", got)
	}
	if len(b.History()) != 1 {
		t.Errorf("history = %v", b.History())
	}
}

func TestBookInsufficientFunds(t *testing.T) {
	b := New()
	_ = b.Credit("alice", "USDC", 10)

	err := b.Transfer(context.Background(), &transfer.Transfer{From: "alice", To: "treasury", Amount: 11, Asset: "USDC"})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
	if b.Balance("alice", "USDC") != 10 || b.Balance("treasury", "USDC") != 0 {
		t.Error("failed transfer moved funds")
	}
	if len(b.History()) != 0 {
		t.Error("failed transfer recorded")
	}
}

func TestBookAssetsAreSeparate(t *testing.T) {
	b := New()
	_ = b.Credit("alice", "USDC", 10)

	err := b.Transfer(context.Background(), &transfer.Transfer{From: "alice", To: "bob", Amount: 1, Asset: "SALE"})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
}

func TestBookCreditOverflow(t *testing.T) {
	b := New()
	_ = b.Credit("alice", "USDC", math.MaxUint64)
	if err := b.Credit("alice", "USDC", 1); err == nil {
		t.Fatal("expected overflow")
	}
}

func TestBookCanceledContext(t *testing.T) {
	b := New()
	_ = b.Credit("alice", "USDC", 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Transfer(ctx, &transfer.Transfer{From: "alice", To: "bob", Amount: 1, Asset: "USDC"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
