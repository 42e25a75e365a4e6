package reporting

import (
	"context"
	"database/sql"
	"time"

	"amora-platform/internal/callstore"
	"amora-platform/internal/coins"
)

// PostgresRepo implements Repository over database/sql, reading the call
// records and coin ledger tables directly.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) ListCalls(ctx context.Context, userID string, from, to time.Time) ([]callstore.Record, error) {
	const q = `
SELECT id, from_id, to_id, status, created_at, updated_at
FROM call_records
WHERE (from_id = $1 OR to_id = $1)
  AND created_at >= $2 AND created_at < $3
ORDER BY created_at DESC
`
	rows, err := r.db.QueryContext(ctx, q, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []callstore.Record
	for rows.Next() {
		var rec callstore.Record
		if err := rows.Scan(&rec.ID, &rec.From, &rec.To, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListLedger(ctx context.Context, userID string, from, to time.Time) ([]coins.LedgerEntry, error) {
	const q = `
SELECT id, user_id, type, coins, external_ref, idempotency_key, description, created_at
FROM coin_ledger
WHERE user_id = $1
  AND created_at >= $2 AND created_at < $3
ORDER BY created_at DESC
`
	rows, err := r.db.QueryContext(ctx, q, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []coins.LedgerEntry
	for rows.Next() {
		var e coins.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Coins, &e.ExternalRef, &e.IdempotencyKey, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
