package model

import (
	"fmt"
	"math"
	"time"
)

// Bar is one OHLC observation for a fixed interval. Immutable once produced.
type Bar struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
}

// Validate checks that every price is positive and finite.
func (b Bar) Validate() error {
	for _, p := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if p <= 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("bar %s: invalid price %v", b.OpenTime.Format(time.RFC3339), p)
		}
	}
	if b.OpenTime.IsZero() {
		return fmt.Errorf("bar: zero open time")
	}
	return nil
}

// ValidateBars checks each bar and that open times are strictly increasing.
func ValidateBars(bars []Bar) error {
	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			return err
		}
		if i > 0 && !bars[i].OpenTime.After(bars[i-1].OpenTime) {
			return fmt.Errorf("bar %d: open time %s not after %s", i,
				bars[i].OpenTime.Format(time.RFC3339), bars[i-1].OpenTime.Format(time.RFC3339))
		}
	}
	return nil
}

// MergeBars appends page onto bars, dropping any bar whose open time is not
// after the last one already held. Pages from the venue overlap at the edges.
func MergeBars(bars, page []Bar) []Bar {
	for _, b := range page {
		if n := len(bars); n > 0 && !b.OpenTime.After(bars[n-1].OpenTime) {
			continue
		}
		bars = append(bars, b)
	}
	return bars
}
