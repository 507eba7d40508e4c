package indicator

import (
	"strconv"

	"breakout-trader/internal/model"
)

// SMA calculates the Simple Moving Average of close over a rolling window.
type SMA struct {
	period  int
	win     *window
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{period: period, win: newWindow(period)}
}

func (s *SMA) Name() string { return "SMA_" + strconv.Itoa(s.period) }

func (s *SMA) Update(bar model.Bar) {
	s.win.push(bar.Close)
	if s.win.full() {
		s.current = s.win.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.win.full() }
