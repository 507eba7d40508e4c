package indicator

import (
	"math"
	"strconv"

	"breakout-trader/internal/model"
)

// STD calculates the sample standard deviation (n-1) of close over a rolling window.
// Uses a two-pass sum over the window to avoid cancellation on flat series.
type STD struct {
	period  int
	win     *window
	current float64
}

// NewSTD creates a new STD indicator with the given period.
func NewSTD(period int) *STD {
	return &STD{period: period, win: newWindow(period)}
}

func (s *STD) Name() string { return "STD_" + strconv.Itoa(s.period) }

func (s *STD) Update(bar model.Bar) {
	s.win.push(bar.Close)
	if !s.win.full() || s.period < 2 {
		return
	}
	mean := s.win.sum / float64(s.period)
	var ss float64
	for _, v := range s.win.buf {
		d := v - mean
		ss += d * d
	}
	s.current = math.Sqrt(ss / float64(s.period-1))
}

func (s *STD) Value() float64 { return s.current }
func (s *STD) Ready() bool    { return s.win.full() && s.period >= 2 }
