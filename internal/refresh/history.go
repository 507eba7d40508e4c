package refresh

import (
	"context"
	"fmt"
	"time"

	"breakout-trader/internal/model"
)

// FetchHistory pages bars from the gateway, starting n intervals before now
// and advancing the window until it reaches now. It returns at most the
// newest n bars and the number of pages fetched.
func FetchHistory(ctx context.Context, gw model.Gateway, interval string, n int, now time.Time) ([]model.Bar, int, error) {
	step, err := model.IntervalDuration(interval)
	if err != nil {
		return nil, 0, err
	}
	if n <= 0 {
		return nil, 0, fmt.Errorf("history length must be positive, got %d", n)
	}

	start := now.Add(-time.Duration(n) * step)
	bars := make([]model.Bar, 0, n)
	pages := 0

	for start.Before(now) {
		if err := ctx.Err(); err != nil {
			return nil, pages, err
		}
		page, err := gw.FetchBars(ctx, interval, start)
		if err != nil {
			return nil, pages, model.NewDataFetchError("fetch_bars", err)
		}
		pages++
		if len(page) == 0 {
			break
		}

		before := len(bars)
		bars = model.MergeBars(bars, page)
		if len(bars) == before {
			// The venue returned only bars we already hold.
			break
		}
		start = bars[len(bars)-1].OpenTime.Add(step)
	}

	if err := model.ValidateBars(bars); err != nil {
		return nil, pages, model.NewDataFetchError("fetch_bars", err)
	}
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	return bars, pages, nil
}
