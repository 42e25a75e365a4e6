package messaging

import (
	"errors"
	"time"
)

// Message is one paid text message between two users. Cost records the coins
// debited from the sender at send time, matching the ledger entry whose
// external ref is the message id.
type Message struct {
	ID        string    `json:"id" db:"id"`
	From      string    `json:"from" db:"from_id"`
	To        string    `json:"to" db:"to_id"`
	Body      string    `json:"body" db:"body"`
	Cost      int64     `json:"cost" db:"cost"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

const maxBodyLen = 2000

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrBlocked           = errors.New("blocked")
	ErrInsufficientFunds = errors.New("insufficient funds")
)
