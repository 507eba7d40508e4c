package indicator

import (
	"strconv"

	"breakout-trader/internal/model"
)

// EMA calculates the Exponential Moving Average of close.
// Seeded with the first close it sees, so it is defined from the first bar.
// O(1) per update, no window storage needed.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA_" + strconv.Itoa(e.period) }

func (e *EMA) Update(bar model.Bar) { e.Push(bar.Close) }

// Push feeds a raw value. MACD uses it to smooth the macd series.
func (e *EMA) Push(v float64) {
	e.count++
	if e.count == 1 {
		e.current = v
		return
	}
	// EMA = (value * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (v * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count > 0 }
