package model

import "time"

// PL is one profit-and-loss ledger entry, keyed by timestamp.
type PL struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Side      Side      `json:"side"`
}
