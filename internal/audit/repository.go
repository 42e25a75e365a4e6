package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo implements Repository over database/sql.
//
// NOTE: The audit_events table must be INSERT-only.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, actor_user_id, ip_address, target_user_id, call_id, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.Type, e.ActorUserID, e.IPAddress,
		e.TargetUserID, e.CallID, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
