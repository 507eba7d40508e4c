package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInsufficientHistory marks a bar sequence shorter than the warm-up window.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrDuplicateKey marks a ledger insert whose timestamp already exists.
	ErrDuplicateKey = errors.New("duplicate ledger key")
)

// DataFetchError wraps any failure to fetch or parse bars, balance or position.
type DataFetchError struct {
	Op  string // e.g. "fetch_bars"
	Err error
}

func (e *DataFetchError) Error() string { return "data fetch " + e.Op + ": " + e.Err.Error() }
func (e *DataFetchError) Unwrap() error { return e.Err }

// NewDataFetchError wraps err unless it is already a DataFetchError.
func NewDataFetchError(op string, err error) error {
	if err == nil {
		return nil
	}
	var dfe *DataFetchError
	if errors.As(err, &dfe) {
		return err
	}
	return &DataFetchError{Op: op, Err: err}
}

// InsufficientHistoryError reports how many bars were available vs required.
type InsufficientHistoryError struct {
	Have int
	Need int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: have %d bars, need %d", e.Have, e.Need)
}

func (e *InsufficientHistoryError) Is(target error) bool { return target == ErrInsufficientHistory }

// SizingError means no valid order quantity could be derived this cycle.
type SizingError struct {
	Reason  string
	Balance float64
	Price   float64
	ATR     float64
}

func (e *SizingError) Error() string {
	return fmt.Sprintf("sizing: %s (balance=%g price=%g atr=%g)", e.Reason, e.Balance, e.Price, e.ATR)
}

// OrderSubmissionError means the gateway rejected or failed an order.
type OrderSubmissionError struct {
	Intent OrderIntent
	Err    error
}

func (e *OrderSubmissionError) Error() string {
	return fmt.Sprintf("submit %s %s qty=%d: %v", e.Intent.Type, e.Intent.Side, e.Intent.Qty, e.Err)
}

func (e *OrderSubmissionError) Unwrap() error { return e.Err }

// PersistenceIntegrityError reports a ledger key collision.
type PersistenceIntegrityError struct {
	Timestamp time.Time
	Err       error
}

func (e *PersistenceIntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity at %s: %v", e.Timestamp.Format(time.RFC3339), e.Err)
}

func (e *PersistenceIntegrityError) Unwrap() error { return e.Err }

func (e *PersistenceIntegrityError) Is(target error) bool { return target == ErrDuplicateKey }
