package directory

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo implements Repository over database/sql.
//
// NOTE: This repository assumes the following tables exist:
// - users
// - user_blocks with PRIMARY KEY (user_id, blocked_id)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) GetUser(ctx context.Context, id string) (User, bool, error) {
	const q = `
SELECT id, name, gender, avatar_url, bio, locale, certified, last_seen_at, created_at, updated_at
FROM users
WHERE id = $1
`
	var u User
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&u.ID,
		&u.Name,
		&u.Gender,
		&u.AvatarURL,
		&u.Bio,
		&u.Locale,
		&u.Certified,
		&u.LastSeenAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return u, true, nil
}

func (r *PostgresRepo) UpsertUser(ctx context.Context, u User) error {
	const q = `
INSERT INTO users (id, name, gender, avatar_url, bio, locale, certified, last_seen_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id)
DO UPDATE SET name = EXCLUDED.name,
              gender = EXCLUDED.gender,
              avatar_url = EXCLUDED.avatar_url,
              bio = EXCLUDED.bio,
              locale = EXCLUDED.locale,
              updated_at = EXCLUDED.updated_at
`
	_, err := r.db.ExecContext(ctx, q,
		u.ID,
		u.Name,
		u.Gender,
		u.AvatarURL,
		u.Bio,
		u.Locale,
		u.Certified,
		u.LastSeenAt,
		u.CreatedAt,
		u.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) ListDiscover(ctx context.Context, viewerID string, limit int) ([]User, error) {
	const q = `
SELECT u.id, u.name, u.gender, u.avatar_url, u.bio, u.locale, u.certified, u.last_seen_at, u.created_at, u.updated_at
FROM users u
WHERE u.id <> $1
  AND NOT EXISTS (
    SELECT 1 FROM user_blocks b
    WHERE (b.user_id = $1 AND b.blocked_id = u.id)
       OR (b.user_id = u.id AND b.blocked_id = $1)
  )
ORDER BY u.last_seen_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, viewerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(
			&u.ID,
			&u.Name,
			&u.Gender,
			&u.AvatarURL,
			&u.Bio,
			&u.Locale,
			&u.Certified,
			&u.LastSeenAt,
			&u.CreatedAt,
			&u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SetBlocked(ctx context.Context, userID, blockedID string, blocked bool) error {
	if blocked {
		const q = `
INSERT INTO user_blocks (user_id, blocked_id, created_at)
VALUES ($1,$2,NOW())
ON CONFLICT (user_id, blocked_id) DO NOTHING
`
		_, err := r.db.ExecContext(ctx, q, userID, blockedID)
		return err
	}
	const q = `DELETE FROM user_blocks WHERE user_id = $1 AND blocked_id = $2`
	_, err := r.db.ExecContext(ctx, q, userID, blockedID)
	return err
}

func (r *PostgresRepo) IsBlockedEither(ctx context.Context, a, b string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM user_blocks
  WHERE (user_id = $1 AND blocked_id = $2)
     OR (user_id = $2 AND blocked_id = $1)
)
`
	var blocked bool
	if err := r.db.QueryRowContext(ctx, q, a, b).Scan(&blocked); err != nil {
		return false, err
	}
	return blocked, nil
}

func (r *PostgresRepo) SetCertified(ctx context.Context, userID string, certified bool) error {
	const q = `UPDATE users SET certified = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, userID, certified)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) TouchLastSeen(ctx context.Context, userID string, at time.Time) error {
	const q = `UPDATE users SET last_seen_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, userID, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
