package payments

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"amora-platform/internal/coins"

	"github.com/google/uuid"
	razorpayutils "github.com/razorpay/razorpay-go/utils"
)

// Repository persists topup orders.
type Repository interface {
	InsertOrder(ctx context.Context, o TopupOrder) error
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (TopupOrder, bool, error)
	SetStatus(ctx context.Context, id string, status OrderStatus, paymentID string, at time.Time) error
	ListByUser(ctx context.Context, userID string, limit int) ([]TopupOrder, error)
}

// CreditWallet credits purchased coins. Satisfied by coins.Service.
type CreditWallet interface {
	Credit(ctx context.Context, userID string, req coins.CreditRequest) (coins.LedgerEntry, coins.Balance, error)
}

// Service sells coin packs: it creates gateway orders and converts captured
// payments into wallet credits. The webhook is the single source of truth for
// payment success; the client's own confirmation is never trusted.
type Service struct {
	repo          Repository
	gateway       Gateway
	wallet        CreditWallet
	packs         []CoinPack
	webhookSecret string
	log           *slog.Logger
	clock         func() time.Time
}

func NewService(repo Repository, gateway Gateway, wallet CreditWallet, webhookSecret string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:          repo,
		gateway:       gateway,
		wallet:        wallet,
		packs:         DefaultPacks,
		webhookSecret: webhookSecret,
		log:           log,
		clock:         time.Now,
	}
}

// Packs returns the recharge catalog.
func (s *Service) Packs() []CoinPack {
	out := make([]CoinPack, len(s.packs))
	copy(out, s.packs)
	return out
}

// CreateTopup creates a gateway order for one coin pack. The returned order's
// ProviderOrderID is what the client hands to the checkout SDK.
func (s *Service) CreateTopup(ctx context.Context, userID, packID string) (TopupOrder, error) {
	if userID == "" {
		return TopupOrder{}, ErrInvalidArgument
	}
	pack, ok := s.findPack(packID)
	if !ok {
		return TopupOrder{}, ErrUnknownPack
	}

	now := s.clock().UTC()
	order := TopupOrder{
		ID:          uuid.NewString(),
		UserID:      userID,
		PackID:      pack.ID,
		Coins:       pack.Coins,
		AmountPaise: pack.AmountPaise,
		Currency:    "INR",
		Status:      OrderCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	providerID, err := s.gateway.CreateOrder(ctx, pack.AmountPaise, order.Currency, order.ID, map[string]interface{}{
		"user_id": userID,
		"pack_id": pack.ID,
	})
	if err != nil {
		return TopupOrder{}, err
	}
	order.ProviderOrderID = providerID

	if err := s.repo.InsertOrder(ctx, order); err != nil {
		return TopupOrder{}, err
	}
	return order, nil
}

// Orders returns a user's recent topup orders.
func (s *Service) Orders(ctx context.Context, userID string, limit int) ([]TopupOrder, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, limit)
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook verifies and applies one gateway event. Credits are keyed on
// the payment id, so redelivered webhooks cannot double-credit.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !razorpayutils.VerifyWebhookSignature(string(body), signature, s.webhookSecret) {
		return ErrBadSignature
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ErrMalformedPayload
	}

	switch ev.Event {
	case "payment.captured":
		return s.applyCapture(ctx, ev.Payload.Payment.Entity.OrderID, ev.Payload.Payment.Entity.ID)
	case "payment.failed":
		return s.applyFailure(ctx, ev.Payload.Payment.Entity.OrderID, ev.Payload.Payment.Entity.ID)
	default:
		s.log.Debug("ignoring webhook event", "event", ev.Event)
		return nil
	}
}

func (s *Service) applyCapture(ctx context.Context, providerOrderID, paymentID string) error {
	if providerOrderID == "" || paymentID == "" {
		return ErrMalformedPayload
	}
	order, ok, err := s.repo.GetByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOrderNotFound
	}

	if _, _, err := s.wallet.Credit(ctx, order.UserID, coins.CreditRequest{
		Coins:          order.Coins,
		ExternalRef:    paymentID,
		IdempotencyKey: "payment:" + paymentID,
		Description:    "coin recharge",
	}); err != nil {
		return err
	}

	if err := s.repo.SetStatus(ctx, order.ID, OrderPaid, paymentID, s.clock().UTC()); err != nil {
		// The credit landed; the order row is catch-up state.
		s.log.Error("order status update failed after credit", "order_id", order.ID, "err", err)
		return err
	}
	s.log.Info("topup captured", "order_id", order.ID, "user_id", order.UserID, "coins", order.Coins)
	return nil
}

func (s *Service) applyFailure(ctx context.Context, providerOrderID, paymentID string) error {
	if providerOrderID == "" {
		return ErrMalformedPayload
	}
	order, ok, err := s.repo.GetByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOrderNotFound
	}
	// A capture may already have landed on a retried payment; never regress it.
	if order.Status == OrderPaid {
		return nil
	}
	return s.repo.SetStatus(ctx, order.ID, OrderFailed, paymentID, s.clock().UTC())
}

func (s *Service) findPack(id string) (CoinPack, bool) {
	for _, p := range s.packs {
		if p.ID == id {
			return p, true
		}
	}
	return CoinPack{}, false
}
