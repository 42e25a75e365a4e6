package reporting

import (
	"context"
	"errors"
	"strings"
	"time"

	"amora-platform/internal/callstore"
	"amora-platform/internal/coins"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// Implementations should query immutable sources when possible (coin ledger,
// call records).
type Repository interface {
	ListCalls(ctx context.Context, userID string, from, to time.Time) ([]callstore.Record, error)
	ListLedger(ctx context.Context, userID string, from, to time.Time) ([]coins.LedgerEntry, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, userID string, rng TimeRange) (CallsSummary, error) {
	if err := validate(userID, rng); err != nil {
		return CallsSummary{}, err
	}

	rows, err := s.repo.ListCalls(ctx, userID, rng.From, rng.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{UserID: userID, Range: rng}
	for _, rec := range rows {
		out.TotalCalls++
		if rec.From == userID {
			out.PlacedCalls++
		} else {
			out.ReceivedCalls++
		}
		switch rec.Status {
		case callstore.StatusEnded:
			out.AnsweredCalls++
		case callstore.StatusRejected:
			out.RejectedCalls++
		case callstore.StatusTimeout:
			out.TimedOutCalls++
		case callstore.StatusRinging, callstore.StatusAccepted:
			out.ActiveCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AnswerRate = float64(out.AnsweredCalls) / float64(out.TotalCalls)
	}
	return out, nil
}

func (s *Service) SpendSummary(ctx context.Context, userID string, rng TimeRange) (SpendSummary, error) {
	if err := validate(userID, rng); err != nil {
		return SpendSummary{}, err
	}

	entries, err := s.repo.ListLedger(ctx, userID, rng.From, rng.To)
	if err != nil {
		return SpendSummary{}, err
	}

	out := SpendSummary{UserID: userID, Range: rng}
	for _, e := range entries {
		if e.Coins > 0 {
			out.TotalCredit += e.Coins
		} else {
			out.TotalDebit += -e.Coins
		}

		switch {
		case strings.HasPrefix(e.IdempotencyKey, "call:"):
			out.CallSpend += -e.Coins
		case strings.HasPrefix(e.IdempotencyKey, "message:"):
			out.MessageSpend += -e.Coins
		case strings.HasPrefix(e.IdempotencyKey, "payment:"):
			out.TopupCredit += e.Coins
		case e.ExternalRef == "admin_adjustment":
			out.AdminDelta += e.Coins
		}
	}
	out.NetDelta = out.TotalCredit - out.TotalDebit
	return out, nil
}

func validate(userID string, rng TimeRange) error {
	if userID == "" {
		return ErrInvalidRequest
	}
	if rng.From.IsZero() || rng.To.IsZero() || !rng.To.After(rng.From) {
		return ErrInvalidRequest
	}
	return nil
}
