package messaging

import (
	"context"
	"errors"
	"time"

	"amora-platform/internal/coins"

	"github.com/google/uuid"
)

// Repository persists messages.
type Repository interface {
	Insert(ctx context.Context, msg Message) error
	ListConversation(ctx context.Context, a, b string, limit int) ([]Message, error)
}

// Wallet posts the sender's debit. Satisfied by coins.Service.
type Wallet interface {
	Debit(ctx context.Context, userID string, req coins.DebitRequest) (coins.LedgerEntry, coins.Balance, error)
}

// BlockChecker reports whether a block edge exists in either direction.
type BlockChecker interface {
	IsBlockedEither(ctx context.Context, a, b string) (bool, error)
}

// CostProvider resolves the per-message charge.
type CostProvider interface {
	MessageCost(ctx context.Context, at time.Time) (int64, error)
}

// Service sends paid messages: the sender is debited from the same wallet the
// call metering uses, with the message id as the ledger's external ref.
type Service struct {
	repo   Repository
	wallet Wallet
	blocks BlockChecker
	cost   CostProvider
	clock  func() time.Time
}

func NewService(repo Repository, wallet Wallet, blocks BlockChecker, cost CostProvider) *Service {
	return &Service{
		repo:   repo,
		wallet: wallet,
		blocks: blocks,
		cost:   cost,
		clock:  time.Now,
	}
}

// Send debits the sender and stores the message. The debit's idempotency key
// is derived from the message id, so a retried insert after a debit success
// cannot double-charge.
func (s *Service) Send(ctx context.Context, from, to, body string) (Message, error) {
	if from == "" || to == "" || from == to {
		return Message{}, ErrInvalidArgument
	}
	if body == "" || len(body) > maxBodyLen {
		return Message{}, ErrInvalidArgument
	}

	blocked, err := s.blocks.IsBlockedEither(ctx, from, to)
	if err != nil {
		return Message{}, err
	}
	if blocked {
		return Message{}, ErrBlocked
	}

	now := s.clock().UTC()
	cost, err := s.cost.MessageCost(ctx, now)
	if err != nil {
		return Message{}, err
	}

	msg := Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Body:      body,
		Cost:      cost,
		CreatedAt: now,
	}

	if cost > 0 {
		_, _, err := s.wallet.Debit(ctx, from, coins.DebitRequest{
			Coins:          cost,
			ExternalRef:    msg.ID,
			IdempotencyKey: "message:" + msg.ID,
			Description:    "paid message",
		})
		if errors.Is(err, coins.ErrInsufficientFunds) {
			return Message{}, ErrInsufficientFunds
		}
		if err != nil {
			return Message{}, err
		}
	}

	if err := s.repo.Insert(ctx, msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Conversation returns the most recent messages between two users, either
// direction, newest first.
func (s *Service) Conversation(ctx context.Context, a, b string, limit int) ([]Message, error) {
	if a == "" || b == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListConversation(ctx, a, b, limit)
}
