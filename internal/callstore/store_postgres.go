package callstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// PostgresStore persists call records in Postgres and fans out every write via
// Redis pub/sub, one channel per call. A deleted record is published as a JSON
// null tombstone so subscribers observe it as nil.
//
// NOTE: assumes a call_records table with PRIMARY KEY (id).
type PostgresStore struct {
	db    *sql.DB
	rdb   *redis.Client
	log   *slog.Logger
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB, rdb *redis.Client, log *slog.Logger) *PostgresStore {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresStore{db: db, rdb: rdb, log: log, clock: time.Now}
}

func callChannel(id string) string { return "call:" + id }

func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	if rec.ID == "" || rec.From == "" || rec.To == "" || !rec.Status.Valid() {
		return ErrInvalidArgument
	}
	now := s.clock().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	const q = `
INSERT INTO call_records (id, from_id, to_id, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	if _, err := s.db.ExecContext(ctx, q, rec.ID, rec.From, rec.To, rec.Status, rec.CreatedAt, rec.UpdatedAt); err != nil {
		return err
	}
	s.publish(ctx, rec.ID, &rec)
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, bool, error) {
	const q = `
SELECT id, from_id, to_id, status, created_at, updated_at
FROM call_records
WHERE id = $1
`
	var rec Record
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID,
		&rec.From,
		&rec.To,
		&rec.Status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status Status) (Record, error) {
	if !status.Valid() {
		return Record{}, ErrInvalidArgument
	}
	const q = `
UPDATE call_records
SET status = $2, updated_at = $3
WHERE id = $1
RETURNING id, from_id, to_id, status, created_at, updated_at
`
	return s.writeStatus(ctx, q, id, status)
}

func (s *PostgresStore) SetStatusIfActive(ctx context.Context, id string, status Status) (Record, error) {
	if !status.Valid() {
		return Record{}, ErrInvalidArgument
	}
	// Compare-and-swap in SQL: terminal statuses win and are never overwritten.
	const q = `
UPDATE call_records
SET status = $2, updated_at = $3
WHERE id = $1 AND status NOT IN ('rejected','ended','timeout')
RETURNING id, from_id, to_id, status, created_at, updated_at
`
	rec, err := s.writeStatus(ctx, q, id, status)
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish "gone" from "already terminal".
		existing, ok, gerr := s.Get(ctx, id)
		if gerr != nil {
			return Record{}, gerr
		}
		if !ok {
			return Record{}, ErrNotFound
		}
		return existing, ErrAlreadyTerminal
	}
	return rec, err
}

func (s *PostgresStore) writeStatus(ctx context.Context, q, id string, status Status) (Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, q, id, status, s.clock().UTC()).Scan(
		&rec.ID,
		&rec.From,
		&rec.To,
		&rec.Status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, err
	}
	s.publish(ctx, id, &rec)
	return rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM call_records WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	s.publish(ctx, id, nil)
	return nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, id string) (<-chan *Record, func(), error) {
	if id == "" {
		return nil, nil, ErrInvalidArgument
	}
	pubsub := s.rdb.Subscribe(ctx, callChannel(id))
	// Force the subscription to be established before returning, so a write
	// issued right after Subscribe is never missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan *Record, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var rec *Record
			if msg.Payload != "null" {
				var r Record
				if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
					s.log.Warn("call record decode failed", "call_id", id, "err", err)
					continue
				}
				rec = &r
			}
			select {
			case out <- rec:
			default:
				// Slow subscriber; the next write supersedes this one.
			}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}

func (s *PostgresStore) publish(ctx context.Context, id string, rec *Record) {
	payload := []byte("null")
	if rec != nil {
		b, err := json.Marshal(rec)
		if err != nil {
			s.log.Error("call record encode failed", "call_id", id, "err", err)
			return
		}
		payload = b
	}
	if err := s.rdb.Publish(ctx, callChannel(id), payload).Err(); err != nil {
		// Publish failure degrades realtime updates but the row is committed;
		// log and carry on.
		s.log.Warn("call record publish failed", "call_id", id, "err", err)
	}
}
