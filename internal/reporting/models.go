package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummary aggregates one user's call history over a range. A call counts
// as answered when it ran to a normal end; rejected and timed-out calls never
// connected.
type CallsSummary struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`

	TotalCalls    int `json:"total_calls"`
	PlacedCalls   int `json:"placed_calls"`
	ReceivedCalls int `json:"received_calls"`

	AnsweredCalls int `json:"answered_calls"`
	RejectedCalls int `json:"rejected_calls"`
	TimedOutCalls int `json:"timed_out_calls"`
	ActiveCalls   int `json:"active_calls"`

	AnswerRate float64 `json:"answer_rate"`
}

// SpendSummary aggregates one user's coin movement over a range, derived from
// the immutable ledger. Categories come from the entry keys: call metering,
// paid messages, topups, admin adjustments.
type SpendSummary struct {
	UserID string    `json:"user_id"`
	Range  TimeRange `json:"range"`

	TotalDebit  int64 `json:"total_debit"`
	TotalCredit int64 `json:"total_credit"`
	NetDelta    int64 `json:"net_delta"`

	CallSpend    int64 `json:"call_spend"`
	MessageSpend int64 `json:"message_spend"`
	TopupCredit  int64 `json:"topup_credit"`

	// AdminDelta is the signed net of staff adjustments: credits raise it,
	// clawbacks lower it.
	AdminDelta int64 `json:"admin_delta"`
}
