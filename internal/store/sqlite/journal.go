package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"breakout-trader/internal/model"
)

// Journal is the model.OrderJournal backed by the orders table.
type Journal struct {
	db *sql.DB
}

var _ model.OrderJournal = (*Journal)(nil)

// Journal returns the order journal.
func (d *DB) Journal() *Journal {
	return &Journal{db: d.db}
}

// RecordOrder persists one submission attempt.
func (j *Journal) RecordOrder(ctx context.Context, e model.JournalEntry) error {
	var price sql.NullFloat64
	if e.Intent.Price != nil {
		price = sql.NullFloat64{Float64: *e.Intent.Price, Valid: true}
	} else if e.Price > 0 {
		price = sql.NullFloat64{Float64: e.Price, Valid: true}
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO orders (order_link_id, order_id, side, order_type, qty, price, reason, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Intent.LinkID,
		e.Ack.OrderID,
		string(e.Intent.Side),
		string(e.Intent.Type),
		e.Intent.Qty,
		price,
		e.Reason,
		e.Ack.Status,
		e.Err,
		created.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert order: %w", err)
	}
	return nil
}

// OrderRecord is a row from the orders table.
type OrderRecord struct {
	ID        int64     `json:"id"`
	LinkID    string    `json:"order_link_id"`
	OrderID   string    `json:"order_id"`
	Side      string    `json:"side"`
	Type      string    `json:"order_type"`
	Qty       int64     `json:"qty"`
	Price     *float64  `json:"price,omitempty"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Recent returns the last limit orders, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]OrderRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, order_link_id, order_id, side, order_type, qty, price, reason, status, error, created_at
		 FROM orders ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query orders: %w", err)
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		var (
			r                       OrderRecord
			orderID, status, errStr sql.NullString
			price                   sql.NullFloat64
			created                 int64
		)
		if err := rows.Scan(&r.ID, &r.LinkID, &orderID, &r.Side, &r.Type, &r.Qty,
			&price, &r.Reason, &status, &errStr, &created); err != nil {
			return nil, fmt.Errorf("sqlite scan orders: %w", err)
		}
		r.OrderID = orderID.String
		r.Status = status.String
		r.Error = errStr.String
		if price.Valid {
			p := price.Float64
			r.Price = &p
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
