package model

import (
	"context"
	"time"
)

// ── Ports ──
// These interfaces decouple the trading core from the venue client and the
// storage backends. The core consumes and produces only the types in this
// package.

// Gateway is the broker capability set consumed by the trading core.
type Gateway interface {
	// FetchBalance returns the available balance of asset.
	FetchBalance(ctx context.Context, asset string) (float64, error)

	// FetchBars returns one page of bars starting at from, oldest first.
	// Callers advance from until they have caught up to now.
	FetchBars(ctx context.Context, interval string, from time.Time) ([]Bar, error)

	// FetchPosition returns the current position for symbol.
	FetchPosition(ctx context.Context, symbol string) (Position, error)

	// FetchOpenOrders lists orders that have not been filled or cancelled.
	FetchOpenOrders(ctx context.Context, symbol string) ([]Order, error)

	// SubmitOrder places an order for the configured symbol.
	SubmitOrder(ctx context.Context, intent OrderIntent) (OrderAck, error)

	// CancelAllOrders cancels every open order for symbol.
	CancelAllOrders(ctx context.Context, symbol string) error
}

// Ledger persists profit-and-loss entries keyed by timestamp.
type Ledger interface {
	// Insert stores pl. Duplicate timestamps are logged and swallowed.
	Insert(ctx context.Context, pl PL) error

	// Get returns the entry at ts, or nil if none exists.
	Get(ctx context.Context, ts time.Time) (*PL, error)

	// Delete removes the entry at ts.
	Delete(ctx context.Context, ts time.Time) error
}

// OrderJournal records every submission attempt for audit.
type OrderJournal interface {
	RecordOrder(ctx context.Context, entry JournalEntry) error
}

// JournalEntry is one submission attempt and its outcome.
type JournalEntry struct {
	Intent    OrderIntent
	Ack       OrderAck
	Reason    string // "open" | "close" | "stop_loss"
	Price     float64
	Err       string
	CreatedAt time.Time
}

// SnapshotPublisher fans feature snapshots and decisions out to observers.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, symbol string, snap *FeatureSnapshot)
	PublishDecision(ctx context.Context, symbol string, res SignalResult, at time.Time)
}
