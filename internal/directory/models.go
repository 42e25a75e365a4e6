package directory

import "time"

// User is a dating profile as the rest of the service sees it.
//
// Coin balance is intentionally NOT a field here: the coins package owns money
// state, and a profile row must never be the source of truth for a balance.
type User struct {
	ID     string `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Gender string `json:"gender,omitempty" db:"gender"`

	AvatarURL string `json:"avatar_url,omitempty" db:"avatar_url"`
	Bio       string `json:"bio,omitempty" db:"bio"`

	// Locale is the user's preferred UI language tag (e.g. "en", "pt-BR").
	Locale string `json:"locale,omitempty" db:"locale"`

	// Certified is set after a successful camera-capture profile review.
	Certified bool `json:"certified" db:"certified"`

	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Block is a directed block edge. Either direction blocks calls and messages
// between the pair.
type Block struct {
	UserID    string    `json:"user_id" db:"user_id"`
	BlockedID string    `json:"blocked_id" db:"blocked_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
