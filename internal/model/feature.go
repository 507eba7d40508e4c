package model

import "time"

// FeatureRow is a bar plus the indicator values computed at that bar.
// Windowed values are keyed by window length.
type FeatureRow struct {
	Bar

	SMA map[int]float64 `json:"sma"`
	STD map[int]float64 `json:"std"`
	EMA map[int]float64 `json:"ema"`

	ATR        float64 `json:"atr"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MaxPrice   float64 `json:"max_price"` // Donchian upper
	MinPrice   float64 `json:"min_price"` // Donchian lower
}

// FeatureSnapshot is a time-ordered feature table. It is built once and
// never mutated after it has been handed to a FeatureStore.
type FeatureSnapshot struct {
	Rows      []FeatureRow `json:"rows"`
	CreatedAt time.Time    `json:"created_at"`
}

// Len returns the number of rows.
func (s *FeatureSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// Empty reports whether the snapshot holds no rows.
func (s *FeatureSnapshot) Empty() bool { return s.Len() == 0 }

// Last returns the row n positions from the end (0 = latest).
func (s *FeatureSnapshot) Last(n int) (FeatureRow, bool) {
	i := s.Len() - 1 - n
	if i < 0 || n < 0 {
		return FeatureRow{}, false
	}
	return s.Rows[i], true
}

// LatestOpenTime returns the open time of the newest row, or zero.
func (s *FeatureSnapshot) LatestOpenTime() time.Time {
	r, ok := s.Last(0)
	if !ok {
		return time.Time{}
	}
	return r.OpenTime
}
