package payments

import (
	"errors"
	"time"
)

// CoinPack is one purchasable recharge option. Amounts are in paise.
type CoinPack struct {
	ID          string `json:"id"`
	Coins       int64  `json:"coins"`
	AmountPaise int64  `json:"amount_paise"`
}

// DefaultPacks is the recharge catalog offered when none is configured.
var DefaultPacks = []CoinPack{
	{ID: "pack_small", Coins: 500, AmountPaise: 9900},
	{ID: "pack_medium", Coins: 1500, AmountPaise: 24900},
	{ID: "pack_large", Coins: 5000, AmountPaise: 69900},
}

type OrderStatus string

const (
	OrderCreated OrderStatus = "created"
	OrderPaid    OrderStatus = "paid"
	OrderFailed  OrderStatus = "failed"
)

// TopupOrder tracks one recharge attempt from order creation through the
// gateway webhook.
type TopupOrder struct {
	ID              string      `json:"id" db:"id"`
	UserID          string      `json:"user_id" db:"user_id"`
	PackID          string      `json:"pack_id" db:"pack_id"`
	Coins           int64       `json:"coins" db:"coins"`
	AmountPaise     int64       `json:"amount_paise" db:"amount_paise"`
	Currency        string      `json:"currency" db:"currency"`
	ProviderOrderID string      `json:"provider_order_id" db:"provider_order_id"`
	Status          OrderStatus `json:"status" db:"status"`
	PaymentID       string      `json:"payment_id,omitempty" db:"payment_id"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnknownPack      = errors.New("unknown coin pack")
	ErrOrderNotFound    = errors.New("order not found")
	ErrBadSignature     = errors.New("webhook signature mismatch")
	ErrMalformedPayload = errors.New("malformed webhook payload")
)
