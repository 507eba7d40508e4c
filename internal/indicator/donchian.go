package indicator

import (
	"strconv"

	"breakout-trader/internal/model"
)

// Donchian tracks the rolling max(high) and min(low) over a window.
type Donchian struct {
	period int
	highs  *window
	lows   *window
}

// NewDonchian creates a Donchian channel with the given period.
func NewDonchian(period int) *Donchian {
	return &Donchian{period: period, highs: newWindow(period), lows: newWindow(period)}
}

func (d *Donchian) Name() string { return "DONCHIAN_" + strconv.Itoa(d.period) }

func (d *Donchian) Update(bar model.Bar) {
	d.highs.push(bar.High)
	d.lows.push(bar.Low)
}

// Value returns the upper band.
func (d *Donchian) Value() float64 { return d.Upper() }

// Upper returns max(high) over the window, or 0 before warm-up.
func (d *Donchian) Upper() float64 {
	if !d.Ready() {
		return 0
	}
	return d.highs.max()
}

// Lower returns min(low) over the window, or 0 before warm-up.
func (d *Donchian) Lower() float64 {
	if !d.Ready() {
		return 0
	}
	return d.lows.min()
}

func (d *Donchian) Ready() bool { return d.highs.full() }
