package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"amora-platform/internal/coins"
)

type fakeWallet struct {
	mu      sync.Mutex
	balance int64
	debits  []coins.DebitRequest
}

func (w *fakeWallet) Debit(ctx context.Context, userID string, req coins.DebitRequest) (coins.LedgerEntry, coins.Balance, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.balance < req.Coins {
		return coins.LedgerEntry{}, coins.Balance{}, coins.ErrInsufficientFunds
	}
	w.balance -= req.Coins
	w.debits = append(w.debits, req)
	return coins.LedgerEntry{}, coins.Balance{UserID: userID, Coins: w.balance}, nil
}

type fakeBlocks struct{ blocked bool }

func (f *fakeBlocks) IsBlockedEither(ctx context.Context, a, b string) (bool, error) {
	return f.blocked, nil
}

type fixedCost int64

func (c fixedCost) MessageCost(ctx context.Context, at time.Time) (int64, error) {
	return int64(c), nil
}

func TestSend_DebitsSenderAndStores(t *testing.T) {
	repo := NewMemoryRepo()
	wallet := &fakeWallet{balance: 25}
	svc := NewService(repo, wallet, &fakeBlocks{}, fixedCost(10))

	msg, err := svc.Send(context.Background(), "alice", "bob", "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Cost != 10 {
		t.Fatalf("cost = %d, want 10", msg.Cost)
	}
	if wallet.balance != 15 {
		t.Fatalf("balance = %d, want 15", wallet.balance)
	}
	if len(wallet.debits) != 1 {
		t.Fatalf("debits = %d, want 1", len(wallet.debits))
	}
	d := wallet.debits[0]
	if d.ExternalRef != msg.ID || d.IdempotencyKey != "message:"+msg.ID {
		t.Fatalf("debit not keyed to the message: %+v", d)
	}

	conv, err := svc.Conversation(context.Background(), "bob", "alice", 10)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if len(conv) != 1 || conv[0].Body != "hi" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
}

func TestSend_BlockedPairRefused(t *testing.T) {
	wallet := &fakeWallet{balance: 100}
	svc := NewService(NewMemoryRepo(), wallet, &fakeBlocks{blocked: true}, fixedCost(10))

	_, err := svc.Send(context.Background(), "alice", "bob", "hi")
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if len(wallet.debits) != 0 {
		t.Fatalf("blocked send still debited")
	}
}

func TestSend_InsufficientFunds(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, &fakeWallet{balance: 5}, &fakeBlocks{}, fixedCost(10))

	_, err := svc.Send(context.Background(), "alice", "bob", "hi")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	conv, _ := svc.Conversation(context.Background(), "alice", "bob", 10)
	if len(conv) != 0 {
		t.Fatalf("unpaid message was stored")
	}
}

func TestSend_Validation(t *testing.T) {
	svc := NewService(NewMemoryRepo(), &fakeWallet{balance: 100}, &fakeBlocks{}, fixedCost(10))
	ctx := context.Background()

	cases := []struct{ from, to, body string }{
		{"", "bob", "hi"},
		{"alice", "", "hi"},
		{"alice", "alice", "hi"},
		{"alice", "bob", ""},
	}
	for _, c := range cases {
		if _, err := svc.Send(ctx, c.from, c.to, c.body); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("send(%q,%q,%q) = %v, want ErrInvalidArgument", c.from, c.to, c.body, err)
		}
	}
}
