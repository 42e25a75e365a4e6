package pricing

import (
	"context"
	"errors"
	"time"
)

// Service resolves coin costs for paid features.
//
// Contract:
// - Pure calculation + repository lookups, no side effects.
// - A call is billed per started minute: connecting at all bills the first
//   minute, and every further started minute bills one more unit.
type Service struct {
	repo  RateRepository
	clock func() time.Time

	// Fallbacks used when no rate row is effective, so a missing pricing
	// table never makes calls free or unpriceable.
	defaultCallCost    int64
	defaultMessageCost int64
}

func NewService(repo RateRepository, defaultCallCost, defaultMessageCost int64) *Service {
	return &Service{
		repo:               repo,
		clock:              time.Now,
		defaultCallCost:    defaultCallCost,
		defaultMessageCost: defaultMessageCost,
	}
}

var (
	ErrRateNotFound   = errors.New("rate not found")
	ErrInvalidRateReq = errors.New("invalid pricing request")
)

// RateRepository abstracts rate persistence.
type RateRepository interface {
	FindCallRate(ctx context.Context, at time.Time) (CallRate, bool, error)
	FindMessageRate(ctx context.Context, at time.Time) (MessageRate, bool, error)
}

// CostPerMinute returns the coin charge per started call minute effective at t.
// A zero t means "now".
func (s *Service) CostPerMinute(ctx context.Context, at time.Time) (int64, error) {
	if at.IsZero() {
		at = s.clock().UTC()
	}
	r, ok, err := s.repo.FindCallRate(ctx, at)
	if err != nil {
		return 0, err
	}
	if !ok {
		if s.defaultCallCost > 0 {
			return s.defaultCallCost, nil
		}
		return 0, ErrRateNotFound
	}
	return r.CoinsPerMinute, nil
}

// MessageCost returns the coin charge for sending one message effective at t.
func (s *Service) MessageCost(ctx context.Context, at time.Time) (int64, error) {
	if at.IsZero() {
		at = s.clock().UTC()
	}
	r, ok, err := s.repo.FindMessageRate(ctx, at)
	if err != nil {
		return 0, err
	}
	if !ok {
		if s.defaultMessageCost > 0 {
			return s.defaultMessageCost, nil
		}
		return 0, ErrRateNotFound
	}
	return r.CoinsPerMessage, nil
}

// CallCost computes the total coin charge for a call connected for the given
// duration: one unit per started minute, minimum one (connecting bills the
// first minute immediately).
func (s *Service) CallCost(ctx context.Context, connected time.Duration, at time.Time) (int64, error) {
	if connected < 0 {
		return 0, ErrInvalidRateReq
	}
	perMinute, err := s.CostPerMinute(ctx, at)
	if err != nil {
		return 0, err
	}
	return perMinute * int64(startedMinutes(connected)), nil
}

// startedMinutes maps a connected duration onto billed minutes:
// [0s, 60s) -> 1, [60s, 120s) -> 2, and so on.
func startedMinutes(connected time.Duration) int {
	if connected < 0 {
		return 0
	}
	return 1 + int(connected/time.Minute)
}
