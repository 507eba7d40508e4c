package indicator

import (
	"strconv"

	"breakout-trader/internal/model"
)

// ATR is a range-based average: (sum(high, w) - sum(low, w)) / w.
// It deliberately ignores gaps between bars, unlike the classical true range.
type ATR struct {
	period  int
	highs   *window
	lows    *window
	current float64
}

// NewATR creates a new ATR indicator with the given period.
func NewATR(period int) *ATR {
	return &ATR{period: period, highs: newWindow(period), lows: newWindow(period)}
}

func (a *ATR) Name() string { return "ATR_" + strconv.Itoa(a.period) }

func (a *ATR) Update(bar model.Bar) {
	a.highs.push(bar.High)
	a.lows.push(bar.Low)
	if a.highs.full() {
		a.current = (a.highs.sum - a.lows.sum) / float64(a.period)
	}
}

func (a *ATR) Value() float64 { return a.current }
func (a *ATR) Ready() bool    { return a.highs.full() }
