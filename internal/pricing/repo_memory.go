package pricing

import (
	"context"
	"time"
)

// MemoryRepo is a simple in-memory repository useful for tests and early development.
//
// NOTE: This is not intended for production; replace with Postgres implementation.
type MemoryRepo struct {
	Calls    []CallRate
	Messages []MessageRate
}

func (r *MemoryRepo) FindCallRate(ctx context.Context, at time.Time) (CallRate, bool, error) {
	_ = ctx

	// Prefer the most recently effective rate row.
	var best CallRate
	found := false

	for _, p := range r.Calls {
		if p.Status != RateStatusActive {
			continue
		}
		if at.Before(p.EffectiveFrom) {
			continue
		}
		if p.EffectiveTo != nil && !at.Before(*p.EffectiveTo) {
			continue
		}

		if !found || p.EffectiveFrom.After(best.EffectiveFrom) {
			best = p
			found = true
		}
	}

	return best, found, nil
}

func (r *MemoryRepo) FindMessageRate(ctx context.Context, at time.Time) (MessageRate, bool, error) {
	_ = ctx

	var best MessageRate
	found := false

	for _, p := range r.Messages {
		if p.Status != RateStatusActive {
			continue
		}
		if at.Before(p.EffectiveFrom) {
			continue
		}
		if p.EffectiveTo != nil && !at.Before(*p.EffectiveTo) {
			continue
		}

		if !found || p.EffectiveFrom.After(best.EffectiveFrom) {
			best = p
			found = true
		}
	}

	return best, found, nil
}
