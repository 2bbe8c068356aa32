// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, and the same
// binary cross-compiles everywhere. ":memory:" gives every test its own
// throwaway database.
//
// CONCURRENCY MODEL:
// The pool is limited to ONE connection. database/sql hands that connection
// to one transaction at a time, so two bookings can never interleave: the
// second one waits until the first commits and then reads the capacity the
// first one wrote. That is the "strict transaction scope" the booking engine
// relies on. It also keeps ":memory:" databases alive, since every
// connection to ":memory:" would otherwise see its own empty database.
//
// Rule that follows from it: code running inside a transaction must only use
// the *sql.Tx. Reaching for db.conn there would wait forever for the single
// connection the transaction is holding.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/graduation-photo/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// querier is the subset of *sql.DB and *sql.Tx the query helpers need, so the
// same SELECT can run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/gradphoto.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers in other processes (backups, sqlite3 shell) proceed
	// while we write.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. users.time_id and
	// times.campus_id depend on them.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS makes it safe to run
// on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS campuses (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating campuses table: %w", err)
	}

	// capacity counts the seats still free; the CHECK is the last line of
	// defence against a negative counter.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS times (
			id        TEXT PRIMARY KEY,
			start_at  DATETIME NOT NULL,
			end_at    DATETIME NOT NULL,
			capacity  INTEGER NOT NULL DEFAULT 0 CHECK (capacity >= 0),
			campus_id TEXT NOT NULL REFERENCES campuses(id)
		);
		CREATE INDEX IF NOT EXISTS idx_times_campus_id ON times(campus_id);
	`)
	if err != nil {
		return fmt.Errorf("creating times table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			sdu_id       TEXT NOT NULL UNIQUE,
			name         TEXT NOT NULL,
			signed_up    BOOLEAN NOT NULL DEFAULT 0,
			phone_number TEXT,
			qq           TEXT,
			gender       TEXT,
			multi_person BOOLEAN,
			time_id      TEXT REFERENCES times(id)
		);
		CREATE INDEX IF NOT EXISTS idx_users_time_id ON users(time_id);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	return nil
}

// inTx runs fn inside a transaction: commit on nil, rollback on error or panic.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return translate(fmt.Errorf("sqlite: beginning transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return translate(fmt.Errorf("sqlite: committing transaction: %w", err))
	}
	return nil
}

// WithinTx implements repository.TxRunner.
func (db *DB) WithinTx(ctx context.Context, fn func(tx repository.BookingTx) error) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		return fn(&bookingTx{q: tx})
	})
}
