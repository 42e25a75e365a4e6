package coins

import "time"

// LedgerEntry is an immutable append-only entry.
// Each row represents coins credited to or debited from a user.
//
// Money invariant: any balance change MUST have a corresponding ledger entry.
// No code should ever mutate a balance without writing one.
type LedgerEntry struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	// Type categorizes the ledger entry. Keep stable.
	Type EntryType `json:"type" db:"type"`

	// Coins is the signed amount. Credits are positive, debits are negative.
	Coins int64 `json:"coins" db:"coins"`

	// ExternalRef is optional: call_id, message_id, payment_id, etc.
	ExternalRef string `json:"external_ref,omitempty" db:"external_ref"`

	// IdempotencyKey is required for safe retries of money-posting operations.
	IdempotencyKey string `json:"idempotency_key" db:"idempotency_key"`

	// Description is the human-readable reason shown in the coin history view.
	Description string `json:"description,omitempty" db:"description"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EntryType string

const (
	EntryTypeCredit EntryType = "credit" // top-up, gift, admin adjustment
	EntryTypeDebit  EntryType = "debit"  // call metering, paid message
)

// AdminAdjustment tracks privileged/manual balance changes performed by staff.
// This is not the ledger itself: any admin mutation of coins must also create a
// LedgerEntry to preserve the money invariant.
type AdminAdjustment struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`

	AdminUserID string `json:"admin_user_id" db:"admin_user_id"`
	Reason      string `json:"reason" db:"reason"`

	Coins int64 `json:"coins" db:"coins"`

	// RelatedLedgerID links to the ledger entry created by the adjustment.
	RelatedLedgerID string `json:"related_ledger_id,omitempty" db:"related_ledger_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
