package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"

	"breakout-trader/internal/model"
)

// Ledger is the model.Ledger backed by the pl table. Entries are keyed by
// timestamp at millisecond precision.
type Ledger struct {
	db *sql.DB

	// OnDuplicate is called when an insert is swallowed. Optional.
	OnDuplicate func(ts time.Time)
}

var _ model.Ledger = (*Ledger)(nil)

// Ledger returns the P&L ledger.
func (d *DB) Ledger() *Ledger {
	return &Ledger{db: d.db}
}

// Insert stores pl. A duplicate timestamp is logged and swallowed.
func (l *Ledger) Insert(ctx context.Context, pl model.PL) error {
	err := l.InsertStrict(ctx, pl)
	if errors.Is(err, model.ErrDuplicateKey) {
		slog.Warn("ledger entry already exists, skipping", "ts", pl.Timestamp, "error", err)
		if l.OnDuplicate != nil {
			l.OnDuplicate(pl.Timestamp)
		}
		return nil
	}
	return err
}

// InsertStrict stores pl and reports a duplicate timestamp as a
// *model.PersistenceIntegrityError.
func (l *Ledger) InsertStrict(ctx context.Context, pl model.PL) error {
	side := pl.Side
	if side == "" {
		side = model.SideNone
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO pl (ts, equity, side) VALUES (?, ?, ?)`,
		pl.Timestamp.UnixMilli(), pl.Equity, string(side))
	if err == nil {
		return nil
	}

	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return &model.PersistenceIntegrityError{Timestamp: pl.Timestamp, Err: err}
	}
	return fmt.Errorf("sqlite insert pl: %w", err)
}

// Get returns the entry at ts, or nil if none exists.
func (l *Ledger) Get(ctx context.Context, ts time.Time) (*model.PL, error) {
	var (
		ms     int64
		equity float64
		side   string
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT ts, equity, side FROM pl WHERE ts = ?`, ts.UnixMilli(),
	).Scan(&ms, &equity, &side)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get pl: %w", err)
	}
	return &model.PL{Timestamp: time.UnixMilli(ms).UTC(), Equity: equity, Side: model.Side(side)}, nil
}

// Delete removes the entry at ts. Deleting a missing entry is not an error.
func (l *Ledger) Delete(ctx context.Context, ts time.Time) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM pl WHERE ts = ?`, ts.UnixMilli()); err != nil {
		return fmt.Errorf("sqlite delete pl: %w", err)
	}
	return nil
}

// Recent returns the last limit entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]model.PL, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT ts, equity, side FROM pl ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query pl: %w", err)
	}
	defer rows.Close()

	var out []model.PL
	for rows.Next() {
		var (
			ms   int64
			pl   model.PL
			side string
		)
		if err := rows.Scan(&ms, &pl.Equity, &side); err != nil {
			return nil, fmt.Errorf("sqlite scan pl: %w", err)
		}
		pl.Timestamp = time.UnixMilli(ms).UTC()
		pl.Side = model.Side(side)
		out = append(out, pl)
	}
	return out, rows.Err()
}
