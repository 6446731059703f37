// Package db is the PostgreSQL persistence layer.
package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, databaseURL)
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id    TEXT PRIMARY KEY,
	name  TEXT NOT NULL,
	email TEXT UNIQUE NOT NULL,
	role  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS period_assignments (
	student_id TEXT NOT NULL REFERENCES users(id),
	period     TEXT NOT NULL,
	room       TEXT NOT NULL,
	PRIMARY KEY (student_id, period)
);

CREATE TABLE IF NOT EXISTS passes (
	id              UUID PRIMARY KEY,
	student_id      TEXT NOT NULL REFERENCES users(id),
	date            DATE NOT NULL,
	period          TEXT NOT NULL DEFAULT '',
	origin_room     TEXT NOT NULL,
	room_in         TEXT,
	checkout_at     TIMESTAMPTZ NOT NULL,
	checkin_at      TIMESTAMPTZ,
	is_override     BOOLEAN NOT NULL DEFAULT FALSE,
	note            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'pending_start'
		CHECK (status IN ('pending_start','active','pending_return','returned')),
	total_pass_time INTEGER NOT NULL DEFAULT 0
);

-- The concurrency-critical invariant: at most one open pass per student,
-- enforced by the database so it holds under concurrent writers.
CREATE UNIQUE INDEX IF NOT EXISTS uq_student_one_open_pass
	ON passes (student_id) WHERE checkin_at IS NULL;

CREATE TABLE IF NOT EXISTS pass_events (
	id        UUID PRIMARY KEY,
	pass_id   UUID NOT NULL REFERENCES passes(id) ON DELETE CASCADE,
	station   TEXT NOT NULL,
	event     TEXT NOT NULL CHECK (event IN ('in','out')),
	timestamp TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pass_events_pass
	ON pass_events (pass_id, timestamp);

CREATE TABLE IF NOT EXISTS active_rooms (
	room  TEXT PRIMARY KEY,
	added TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id       BIGSERIAL PRIMARY KEY,
	actor_id TEXT,
	time     TIMESTAMPTZ NOT NULL,
	reason   TEXT NOT NULL
);
`

// EnsureSchema creates missing tables and indexes at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}
