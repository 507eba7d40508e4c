package portfolio

import (
	"sync"
	"time"

	"breakout-trader/internal/model"
)

// EquitySample is one observation of account equity.
type EquitySample struct {
	Equity    float64    `json:"equity"`
	Side      model.Side `json:"side"`
	Timestamp time.Time  `json:"timestamp"`
}

// EquityTracker keeps the running peak and drawdown of the equity the
// decision loop observes each cycle.
type EquityTracker struct {
	mu      sync.RWMutex
	last    EquitySample
	start   float64
	peak    float64
	samples int
}

// NewEquityTracker creates an empty tracker.
func NewEquityTracker() *EquityTracker {
	return &EquityTracker{}
}

// Record adds a sample and returns the current drawdown in percent.
func (t *EquityTracker) Record(s EquitySample) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.samples == 0 {
		t.start = s.Equity
	}
	t.samples++
	t.last = s
	if s.Equity > t.peak {
		t.peak = s.Equity
	}
	return t.drawdownLocked()
}

func (t *EquityTracker) drawdownLocked() float64 {
	if t.peak <= 0 {
		return 0
	}
	return (t.peak - t.last.Equity) / t.peak * 100
}

// EquitySummary is the tracker state exposed to the control API.
type EquitySummary struct {
	Last        EquitySample `json:"last"`
	Start       float64      `json:"start"`
	Peak        float64      `json:"peak"`
	Change      float64      `json:"change"`
	DrawdownPct float64      `json:"drawdown_pct"`
	Samples     int          `json:"samples"`
}

// Summary returns the current equity summary.
func (t *EquityTracker) Summary() EquitySummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return EquitySummary{
		Last:        t.last,
		Start:       t.start,
		Peak:        t.peak,
		Change:      t.last.Equity - t.start,
		DrawdownPct: t.drawdownLocked(),
		Samples:     t.samples,
	}
}
