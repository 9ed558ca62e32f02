// Package store is the relational backing for the shop: the product
// catalog, orders and their lines, customer accounts, and the
// conversation audit log. SQLite (either the cgo or the pure-Go driver)
// serves development and tests; PostgreSQL serves production. Every
// state-changing operation runs in a single transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour for placeholders and DDL.
type Dialect int

const (
	// SQLite covers both the mattn (sqlite3) and modernc (sqlite) drivers.
	SQLite Dialect = iota
	// Postgres is lib/pq.
	Postgres
)

// Store wraps a *sql.DB with the shop's queries. All public methods are
// safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger

	historyMu    sync.Mutex
	historyReady bool
}

// Open connects to the database named by driver and dsn, verifies the
// connection and creates the schema. driver is one of "sqlite3",
// "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*Store, error) {
	dialect := SQLite
	switch driver {
	case "sqlite3", "sqlite":
	case "postgres":
		dialect = Postgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, sqliteDSN(driver, dsn))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dialect == SQLite {
		// One writer at a time; stock transactions queue here rather
		// than failing with SQLITE_BUSY. Also keeps :memory: on one
		// connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(db, dialect, logger)
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// New wraps an existing connection without touching the schema.
func New(db *sql.DB, dialect Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dialect: dialect, logger: logger}
}

// sqliteDSN turns on foreign keys and a busy timeout for file databases
// unless the caller already passed query parameters.
func sqliteDSN(driver, dsn string) string {
	if strings.Contains(dsn, "?") || dsn == ":memory:" {
		return dsn
	}
	switch driver {
	case "sqlite3":
		return "file:" + dsn + "?_foreign_keys=on&_busy_timeout=5000"
	case "sqlite":
		return "file:" + dsn + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	return dsn
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == Postgres {
		id = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			category_id   ` + id + `,
			category_name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			product_id         ` + id + `,
			product_name       TEXT NOT NULL,
			name_key           TEXT NOT NULL,
			category_id        BIGINT NOT NULL REFERENCES categories(category_id),
			description        TEXT NOT NULL DEFAULT '',
			price              DOUBLE PRECISION NOT NULL,
			quantity           INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			image_url          TEXT NOT NULL DEFAULT '',
			url                TEXT NOT NULL DEFAULT '',
			usage_instructions TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_name_key ON products(name_key)`,
		`CREATE TABLE IF NOT EXISTS customers (
			customer_id   ` + id + `,
			username      TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			phone         TEXT NOT NULL UNIQUE,
			address       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id    ` + id + `,
			customer_id BIGINT NOT NULL,
			order_date  TEXT NOT NULL,
			status      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id, order_date)`,
		`CREATE TABLE IF NOT EXISTS order_details (
			order_detail_id ` + id + `,
			order_id        BIGINT NOT NULL REFERENCES orders(order_id),
			product_id      BIGINT NOT NULL REFERENCES products(product_id),
			quantity        INTEGER NOT NULL CHECK (quantity > 0),
			unit_price      DOUBLE PRECISION NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
