package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"breakout-trader/internal/model"
)

// BarArchive stores fetched bars so feature tables can be rebuilt offline.
type BarArchive struct {
	db *sql.DB
}

// Bars returns the bar archive.
func (d *DB) Bars() *BarArchive {
	return &BarArchive{db: d.db}
}

// Save upserts bars in a single transaction.
func (a *BarArchive) Save(ctx context.Context, symbol, interval string, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, interval, ts, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, interval, b.OpenTime.Unix(), b.Open, b.High, b.Low, b.Close); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar: %w", err)
		}
	}
	return tx.Commit()
}

// Read returns archived bars with open time at or after from, oldest first.
// A non-positive limit returns all of them.
func (a *BarArchive) Read(ctx context.Context, symbol, interval string, from time.Time, limit int) ([]model.Bar, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close FROM bars
		WHERE symbol = ? AND interval = ? AND ts >= ?
		ORDER BY ts ASC
		LIMIT ?
	`, symbol, interval, from.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var (
			b  model.Bar
			ts int64
		)
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		b.OpenTime = time.Unix(ts, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// LastOpenTime returns the newest archived open time, or zero.
func (a *BarArchive) LastOpenTime(ctx context.Context, symbol, interval string) (time.Time, error) {
	var ts sql.NullInt64
	err := a.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM bars WHERE symbol = ? AND interval = ?`, symbol, interval,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}
