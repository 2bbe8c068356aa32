// Package postgres implements the repository interfaces on PostgreSQL via
// pgx's connection pool.
//
// CONCURRENCY MODEL:
// Unlike the SQLite backend this pool hands out many connections, so booking
// transactions really do run side by side. LoadUser and LoadTime therefore
// read with SELECT ... FOR UPDATE: the first transaction to touch a slot
// holds its row lock until COMMIT, and every other booking of the same slot
// queues behind it and then sees the capacity it wrote.
//
// Deadlocks between two bookings that lock the same pair of slots in
// opposite order are detected by Postgres, which aborts one side with
// 40P01. That error maps to a Conflict, which the service layer retries.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/graduation-photo/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a pgx pool and provides repository methods.
type DB struct {
	pool *pgxpool.Pool
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New connects to databaseURL, retrying while the server comes up, and runs
// migrations.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing config: %w", err)
	}

	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("postgres: connecting: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return db, nil
}

// Close releases every pooled connection.
func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

func (db *DB) migrate(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS campuses (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS times (
			id        TEXT PRIMARY KEY,
			start_at  TIMESTAMPTZ NOT NULL,
			end_at    TIMESTAMPTZ NOT NULL,
			capacity  INTEGER NOT NULL DEFAULT 0 CHECK (capacity >= 0),
			campus_id TEXT NOT NULL REFERENCES campuses(id)
		);
		CREATE INDEX IF NOT EXISTS idx_times_campus_id ON times(campus_id);

		CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			sdu_id       TEXT NOT NULL UNIQUE,
			name         TEXT NOT NULL,
			signed_up    BOOLEAN NOT NULL DEFAULT FALSE,
			phone_number TEXT,
			qq           TEXT,
			gender       TEXT,
			multi_person BOOLEAN,
			time_id      TEXT REFERENCES times(id)
		);
		CREATE INDEX IF NOT EXISTS idx_users_time_id ON users(time_id);
	`)
	return err
}

// inTx runs fn inside a transaction: commit on nil, rollback on error or panic.
func (db *DB) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return translate(fmt.Errorf("postgres: beginning transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return translate(fmt.Errorf("postgres: committing transaction: %w", err))
	}
	return nil
}

// WithinTx implements repository.TxRunner.
func (db *DB) WithinTx(ctx context.Context, fn func(tx repository.BookingTx) error) error {
	return db.inTx(ctx, func(tx pgx.Tx) error {
		return fn(&bookingTx{q: tx})
	})
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
