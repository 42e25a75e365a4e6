package pricing

import "time"

// Rates are expressed in coins using int64. A rate row applies within its
// effective window; the most recently effective active row wins.

// CallRate defines the per-started-minute coin charge for voice calls.
type CallRate struct {
	ID string `json:"id" db:"id"`

	CoinsPerMinute int64 `json:"coins_per_minute" db:"coins_per_minute"`

	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`

	Status RateStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MessageRate defines the per-message coin charge for chat messages.
type MessageRate struct {
	ID string `json:"id" db:"id"`

	CoinsPerMessage int64 `json:"coins_per_message" db:"coins_per_message"`

	EffectiveFrom time.Time  `json:"effective_from" db:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty" db:"effective_to"`

	Status RateStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type RateStatus string

const (
	RateStatusActive   RateStatus = "active"
	RateStatusInactive RateStatus = "inactive"
)
