// Package sqlite persists the profit-and-loss ledger, the order journal and
// an archive of fetched bars in a single SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// DB wraps the shared database handle.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database with WAL mode and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite database opened", "path", path)
	return &DB{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pl (
			ts     INTEGER PRIMARY KEY, -- unix millis
			equity REAL    NOT NULL,
			side   TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS orders (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			order_link_id TEXT    NOT NULL,
			order_id      TEXT,
			side          TEXT    NOT NULL,
			order_type    TEXT    NOT NULL,
			qty           INTEGER NOT NULL,
			price         REAL,
			reason        TEXT    NOT NULL,
			status        TEXT,
			error         TEXT,
			created_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);
		CREATE INDEX IF NOT EXISTS idx_orders_link_id ON orders(order_link_id);

		CREATE TABLE IF NOT EXISTS bars (
			symbol   TEXT    NOT NULL,
			interval TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			open     REAL    NOT NULL,
			high     REAL    NOT NULL,
			low      REAL    NOT NULL,
			close    REAL    NOT NULL,
			PRIMARY KEY (symbol, interval, ts)
		);
	`)
	return err
}

// SQL returns the underlying sql.DB for health checks.
func (d *DB) SQL() *sql.DB { return d.db }

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}
