package pricing

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo implements RateRepository over database/sql.
//
// NOTE: This repository assumes call_rates and message_rates tables.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) FindCallRate(ctx context.Context, at time.Time) (CallRate, bool, error) {
	const q = `
SELECT id, coins_per_minute, effective_from, effective_to, status, created_at, updated_at
FROM call_rates
WHERE status = 'active'
  AND effective_from <= $1
  AND (effective_to IS NULL OR effective_to > $1)
ORDER BY effective_from DESC
LIMIT 1
`
	var p CallRate
	err := r.db.QueryRowContext(ctx, q, at).Scan(
		&p.ID,
		&p.CoinsPerMinute,
		&p.EffectiveFrom,
		&p.EffectiveTo,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRate{}, false, nil
		}
		return CallRate{}, false, err
	}
	return p, true, nil
}

func (r *PostgresRepo) FindMessageRate(ctx context.Context, at time.Time) (MessageRate, bool, error) {
	const q = `
SELECT id, coins_per_message, effective_from, effective_to, status, created_at, updated_at
FROM message_rates
WHERE status = 'active'
  AND effective_from <= $1
  AND (effective_to IS NULL OR effective_to > $1)
ORDER BY effective_from DESC
LIMIT 1
`
	var p MessageRate
	err := r.db.QueryRowContext(ctx, q, at).Scan(
		&p.ID,
		&p.CoinsPerMessage,
		&p.EffectiveFrom,
		&p.EffectiveTo,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MessageRate{}, false, nil
		}
		return MessageRate{}, false, err
	}
	return p, true, nil
}
