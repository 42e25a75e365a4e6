package coins

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following tables exist:
// - coin_ledger (immutable append-only)
// - coin_balances (projection)
// - coin_admin_adjustments
//
// It also assumes an idempotency constraint:
// UNIQUE (user_id, idempotency_key)

func getBalance(ctx context.Context, db *sql.DB, userID string) (Balance, error) {
	const q = `
SELECT user_id, coins, updated_at
FROM coin_balances
WHERE user_id = $1
`
	var b Balance
	if err := db.QueryRowContext(ctx, q, userID).Scan(
		&b.UserID,
		&b.Coins,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func getBalanceTx(ctx context.Context, tx *sql.Tx, userID string) (Balance, error) {
	const q = `
SELECT user_id, coins, updated_at
FROM coin_balances
WHERE user_id = $1
`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, userID).Scan(
		&b.UserID,
		&b.Coins,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func getBalanceForUpdate(ctx context.Context, tx *sql.Tx, userID string) (Balance, error) {
	// Lock the projection row to serialize concurrent money operations per user.
	const q = `
SELECT user_id, coins, updated_at
FROM coin_balances
WHERE user_id = $1
FOR UPDATE
`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, userID).Scan(
		&b.UserID,
		&b.Coins,
		&b.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Balance{}, ErrNotFound
		}
		return Balance{}, err
	}
	return b, nil
}

func findLedgerByIdempotency(ctx context.Context, tx *sql.Tx, userID, key string) (LedgerEntry, bool, error) {
	const q = `
SELECT id, user_id, type, coins, external_ref, idempotency_key, description, created_at
FROM coin_ledger
WHERE user_id = $1 AND idempotency_key = $2
LIMIT 1
`
	var e LedgerEntry
	err := tx.QueryRowContext(ctx, q, userID, key).Scan(
		&e.ID,
		&e.UserID,
		&e.Type,
		&e.Coins,
		&e.ExternalRef,
		&e.IdempotencyKey,
		&e.Description,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LedgerEntry{}, false, nil
		}
		return LedgerEntry{}, false, err
	}
	return e, true, nil
}

func insertLedger(ctx context.Context, tx *sql.Tx, e LedgerEntry) error {
	const q = `
INSERT INTO coin_ledger (
  id, user_id, type, coins, external_ref, idempotency_key, description, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID,
		e.UserID,
		e.Type,
		e.Coins,
		e.ExternalRef,
		e.IdempotencyKey,
		e.Description,
		e.CreatedAt,
	)
	return err
}

func applyBalanceDelta(ctx context.Context, tx *sql.Tx, userID string, delta int64, now time.Time) (Balance, error) {
	// Upsert the projection row. The service-level funds check (with the row
	// locked) prevents this from ever going negative.
	const q = `
INSERT INTO coin_balances (user_id, coins, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (user_id)
DO UPDATE SET coins = coin_balances.coins + EXCLUDED.coins,
              updated_at = EXCLUDED.updated_at
RETURNING user_id, coins, updated_at
`
	var b Balance
	if err := tx.QueryRowContext(ctx, q, userID, delta, now).Scan(
		&b.UserID,
		&b.Coins,
		&b.UpdatedAt,
	); err != nil {
		return Balance{}, err
	}
	return b, nil
}

func insertAdminAdjustment(ctx context.Context, tx *sql.Tx, a AdminAdjustment) error {
	const q = `
INSERT INTO coin_admin_adjustments (
  id, user_id, admin_user_id, reason, coins, related_ledger_id, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7
)
`
	_, err := tx.ExecContext(ctx, q,
		a.ID,
		a.UserID,
		a.AdminUserID,
		a.Reason,
		a.Coins,
		a.RelatedLedgerID,
		a.CreatedAt,
	)
	return err
}

func listLedgerByRef(ctx context.Context, db *sql.DB, userID, ref string) ([]LedgerEntry, error) {
	const q = `
SELECT id, user_id, type, coins, external_ref, idempotency_key, description, created_at
FROM coin_ledger
WHERE user_id = $1 AND external_ref = $2
ORDER BY created_at ASC
`
	return queryLedger(ctx, db, q, userID, ref)
}

func listLedger(ctx context.Context, db *sql.DB, userID string, limit int) ([]LedgerEntry, error) {
	const q = `
SELECT id, user_id, type, coins, external_ref, idempotency_key, description, created_at
FROM coin_ledger
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	return queryLedger(ctx, db, q, userID, limit)
}

func queryLedger(ctx context.Context, db *sql.DB, q string, args ...any) ([]LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.Type,
			&e.Coins,
			&e.ExternalRef,
			&e.IdempotencyKey,
			&e.Description,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
