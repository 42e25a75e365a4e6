package reporting

import (
	"context"
	"time"

	"amora-platform/internal/callstore"
	"amora-platform/internal/coins"
)

// MemoryRepo is a simple in-memory repository useful for tests.
type MemoryRepo struct {
	Calls  []callstore.Record
	Ledger []coins.LedgerEntry
}

func (r *MemoryRepo) ListCalls(ctx context.Context, userID string, from, to time.Time) ([]callstore.Record, error) {
	var out []callstore.Record
	for _, rec := range r.Calls {
		if rec.From != userID && rec.To != userID {
			continue
		}
		if rec.CreatedAt.Before(from) || !rec.CreatedAt.Before(to) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *MemoryRepo) ListLedger(ctx context.Context, userID string, from, to time.Time) ([]coins.LedgerEntry, error) {
	var out []coins.LedgerEntry
	for _, e := range r.Ledger {
		if e.UserID != userID {
			continue
		}
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
