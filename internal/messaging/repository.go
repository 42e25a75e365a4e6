package messaging

import (
	"context"
	"database/sql"
)

// PostgresRepo implements Repository over database/sql.
//
// NOTE: This repository assumes a messages table keyed by id.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Insert(ctx context.Context, msg Message) error {
	const q = `
INSERT INTO messages (id, from_id, to_id, body, cost, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := r.db.ExecContext(ctx, q, msg.ID, msg.From, msg.To, msg.Body, msg.Cost, msg.CreatedAt)
	return err
}

func (r *PostgresRepo) ListConversation(ctx context.Context, a, b string, limit int) ([]Message, error) {
	const q = `
SELECT id, from_id, to_id, body, cost, created_at
FROM messages
WHERE (from_id = $1 AND to_id = $2)
   OR (from_id = $2 AND to_id = $1)
ORDER BY created_at DESC
LIMIT $3
`
	rows, err := r.db.QueryContext(ctx, q, a, b, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Body, &m.Cost, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
