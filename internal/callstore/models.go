package callstore

import (
	"errors"
	"time"
)

// Status is the remotely-synchronized call status. Both participants' clients
// write it; the record is last-writer-wins by design, and convergence relies
// on every terminal status being treated as final by all observers.
type Status string

const (
	StatusRinging  Status = "ringing"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusEnded    Status = "ended"
	StatusTimeout  Status = "timeout"
)

// Terminal reports whether no further transition should occur after s.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusEnded, StatusTimeout:
		return true
	default:
		return false
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusRinging, StatusAccepted, StatusRejected, StatusEnded, StatusTimeout:
		return true
	default:
		return false
	}
}

// Record is one call. The id doubles as the signaling-channel name.
type Record struct {
	ID   string `json:"id" db:"id"`
	From string `json:"from" db:"from_id"`
	To   string `json:"to" db:"to_id"`

	Status Status `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

var (
	ErrNotFound          = errors.New("call not found")
	ErrBlocked           = errors.New("blocked")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidArgument   = errors.New("invalid argument")

	// ErrAlreadyTerminal is returned by conditional writes that would
	// resurrect a finished call. Callers treat it as convergence.
	ErrAlreadyTerminal = errors.New("call already terminal")
)
