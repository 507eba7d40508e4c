package model

import (
	"fmt"
	"time"
)

var intervals = map[string]time.Duration{
	"1":   time.Minute,
	"3":   3 * time.Minute,
	"5":   5 * time.Minute,
	"15":  15 * time.Minute,
	"30":  30 * time.Minute,
	"60":  time.Hour,
	"120": 2 * time.Hour,
	"240": 4 * time.Hour,
	"360": 6 * time.Hour,
	"720": 12 * time.Hour,
	"D":   24 * time.Hour,
	"W":   7 * 24 * time.Hour,
}

// IntervalDuration maps a venue kline interval ("1", "5", "60", "D", ...)
// to its length.
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervals[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported bar interval %q", interval)
	}
	return d, nil
}
