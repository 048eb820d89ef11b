// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// DOCUMENTS IN A RELATIONAL DATABASE:
// Profiles are schemaless JSON documents: older clients wrote fields newer
// ones never heard of, and we must preserve them. Each user is therefore one
// row holding the whole document in a TEXT column, and partial updates use
// SQLite's JSON1 json_set() so untouched fields survive. Two columns sit
// beside the document:
//   - slug    mirrors doc.slug (lowercased) so slug lookups can use an index
//   - version increments on every write; transactions use it to detect that
//     someone else changed a document after they read it
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C toolchain and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation of
// SQLite, JSON1 included.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	sqlitedriver "modernc.org/sqlite" // also registers the "sqlite" driver
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	// DefaultTxAttempts bounds how often RunInTransaction re-runs a body
	// after losing a race.
	DefaultTxAttempts = 5
	// DefaultTxBackoff is the base wait between attempts; attempt n waits n×backoff.
	DefaultTxBackoff = 15 * time.Millisecond

	busyTimeout = 5 * time.Second
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger

	txAttempts int
	txBackoff  time.Duration

	// now is swapped in tests that need stable timestamps.
	now func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger used for transaction retries and migrations.
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// WithTxRetry sets the transaction retry policy. Values below 1 attempt or
// a negative backoff are ignored.
func WithTxRetry(attempts int, backoff time.Duration) Option {
	return func(db *DB) {
		if attempts >= 1 {
			db.txAttempts = attempts
		}
		if backoff >= 0 {
			db.txBackoff = backoff
		}
	}
}

// New opens the database and runs migrations.
//
// dbPath examples:
//   - "data/neuro.db"  → file-based database (persistent, WAL mode)
//   - ":memory:"       → in-memory database (tests)
//
// File databases get a busy timeout and IMMEDIATE transactions, so a
// writer waits for the write lock up front instead of failing half way
// through a commit.
func New(dbPath string, opts ...Option) (*DB, error) {
	memory := dbPath == ":memory:"

	dsn := dbPath
	if !memory {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_txlock=immediate",
			dbPath, busyTimeout.Milliseconds())
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database.
	// Pin the pool to one connection so all queries see the same data.
	if memory {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if !memory {
		// WAL lets readers proceed while a writer commits. The setting is
		// stored in the file, so one connection setting it is enough.
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
		}
	}

	db := &DB{
		conn:       conn,
		logger:     slog.Default(),
		txAttempts: DefaultTxAttempts,
		txBackoff:  DefaultTxBackoff,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(db)
	}

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

// migrate creates the tables and brings older files up to date.
//
// CREATE TABLE IF NOT EXISTS and addColumnIfNotExists make every step safe
// to run on each start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			doc        TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// The slug and version columns arrived after the first imports of
	// legacy documents.
	if err := db.addColumnIfNotExists("users", "slug", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding slug to users: %w", err)
	}
	if err := db.addColumnIfNotExists("users", "version", "INTEGER NOT NULL DEFAULT 1"); err != nil {
		return fmt.Errorf("adding version to users: %w", err)
	}

	// Copy slugs that only exist inside documents into the indexed column.
	res, err := db.conn.Exec(`
		UPDATE users
		SET slug = lower(trim(json_extract(doc, '$.slug')))
		WHERE slug = ''
		  AND CASE WHEN json_valid(doc) THEN json_type(doc, '$.slug') END = 'text'
		  AND trim(json_extract(doc, '$.slug')) <> ''
	`)
	if err != nil {
		return fmt.Errorf("indexing document slugs: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		db.logger.Info("indexed legacy document slugs", slog.Int64("count", n))
	}

	_, err = db.conn.Exec(`CREATE INDEX IF NOT EXISTS idx_users_slug ON users(slug);`)
	if err != nil {
		return fmt.Errorf("creating users slug index: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS experiences (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			doc        TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_experiences_user ON experiences(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating experiences table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, so they are safe to run on every start.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// withTx runs fn inside a database/sql transaction, committing when fn
// returns nil and rolling back otherwise.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// isBusy reports whether err is SQLite refusing a lock because another
// connection holds it. Inside RunInTransaction that is a lost race, the
// same as a version mismatch.
func isBusy(err error) bool {
	var liteErr *sqlitedriver.Error
	if !errors.As(err, &liteErr) {
		return false
	}
	switch liteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// userColumns is the column list every user query selects, in scanUser order.
var userColumns = []string{"id", "doc", "version", "created_at", "updated_at"}

func selectUsers() sq.SelectBuilder {
	return sq.Select(userColumns...).From("users")
}
