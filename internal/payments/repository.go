package payments

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo implements Repository over database/sql.
//
// NOTE: This repository assumes a topup_orders table with a unique index on
// provider_order_id.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) InsertOrder(ctx context.Context, o TopupOrder) error {
	const q = `
INSERT INTO topup_orders (id, user_id, pack_id, coins, amount_paise, currency, provider_order_id, status, payment_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`
	_, err := r.db.ExecContext(ctx, q,
		o.ID, o.UserID, o.PackID, o.Coins, o.AmountPaise, o.Currency,
		o.ProviderOrderID, o.Status, o.PaymentID, o.CreatedAt, o.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) GetByProviderOrderID(ctx context.Context, providerOrderID string) (TopupOrder, bool, error) {
	const q = `
SELECT id, user_id, pack_id, coins, amount_paise, currency, provider_order_id, status, payment_id, created_at, updated_at
FROM topup_orders
WHERE provider_order_id = $1
`
	var o TopupOrder
	err := r.db.QueryRowContext(ctx, q, providerOrderID).Scan(
		&o.ID, &o.UserID, &o.PackID, &o.Coins, &o.AmountPaise, &o.Currency,
		&o.ProviderOrderID, &o.Status, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TopupOrder{}, false, nil
		}
		return TopupOrder{}, false, err
	}
	return o, true, nil
}

func (r *PostgresRepo) SetStatus(ctx context.Context, id string, status OrderStatus, paymentID string, at time.Time) error {
	const q = `
UPDATE topup_orders
SET status = $2, payment_id = $3, updated_at = $4
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, status, paymentID, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string, limit int) ([]TopupOrder, error) {
	const q = `
SELECT id, user_id, pack_id, coins, amount_paise, currency, provider_order_id, status, payment_id, created_at, updated_at
FROM topup_orders
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TopupOrder
	for rows.Next() {
		var o TopupOrder
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.PackID, &o.Coins, &o.AmountPaise, &o.Currency,
			&o.ProviderOrderID, &o.Status, &o.PaymentID, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
