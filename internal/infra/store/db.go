// Package store provides the relational storage for the gamification
// ledger. SQLite (pure Go, single writer) is the default; Postgres is
// supported through the pgx stdlib driver for multi-instance deployments.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "modernc.org/sqlite"              // Pure-Go SQLite driver (no CGO required)
)

// Dialect selects SQL flavour differences.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Config describes how to open the database.
type Config struct {
	Driver       string // "sqlite" or "postgres"
	DSN          string // postgres connection string; ignored for sqlite
	Dir          string // sqlite data directory
	MaxOpenConns int    // postgres pool size
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn carries the ledger queries. DB runs them in autocommit mode and Tx
// runs them inside one transaction; both expose the same method set.
type conn struct {
	q       querier
	dialect Dialect
}

// DB wraps the connection pool and migrations.
type DB struct {
	*conn
	db *sql.DB
}

// Tx is a unit of work. Every write made through it commits or rolls back
// together.
type Tx struct {
	*conn
	tx *sql.Tx
}

// Open opens the database described by cfg and runs migrations.
func Open(cfg Config) (*DB, error) {
	switch Dialect(strings.ToLower(cfg.Driver)) {
	case DialectPostgres:
		return OpenPostgres(cfg.DSN, cfg.MaxOpenConns)
	case DialectSQLite, "":
		return OpenSQLite(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// OpenSQLite creates or opens the SQLite database at dir/karma.db.
// Enables WAL mode, foreign keys, a 5-second busy timeout, and
// BEGIN IMMEDIATE so a transaction takes the write lock up front.
func OpenSQLite(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "karma.db")
	dsn := "file:" + dbPath +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return finishOpen(db, DialectSQLite)
}

// OpenPostgres opens a Postgres database through pgx.
func OpenPostgres(dsn string, maxOpen int) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return finishOpen(db, DialectPostgres)
}

func finishOpen(db *sql.DB, dialect Dialect) (*DB, error) {
	d := &DB{conn: &conn{q: db, dialect: dialect}, db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Dialect reports which backend is in use.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// InTx runs fn inside a transaction. fn's error (or a panic) rolls back;
// otherwise the transaction commits. Driver errors are classified so
// callers can test for domain.ErrConcurrencyConflict.
func (d *DB) InTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}
	tx := &Tx{conn: &conn{q: sqlTx, dialect: d.dialect}, tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classify("commit", err)
	}
	return nil
}

// ─── Query helpers ──────────────────────────────────────────────────────────

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.rebind(query), args...)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

// rebind rewrites "?" placeholders to "$n" for Postgres.
func (c *conn) rebind(query string) string {
	if c.dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// forUpdate is appended to reads that must lock the row for the rest of
// the transaction. SQLite transactions are already exclusive.
func (c *conn) forUpdate() string {
	if c.dialect == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Timestamps are stored as Unix milliseconds in BIGINT columns.
func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
