package indicator

import (
	"fmt"

	"breakout-trader/internal/model"
)

// Config specifies which indicators Compute produces.
type Config struct {
	SMAWindows []int
	STDWindows []int
	EMAWindows []int

	MACDShort  int
	MACDLong   int
	MACDSignal int

	DonchianWindow int
	ATRWindow      int
}

// DefaultConfig returns SMA/STD/EMA 10 and 50, MACD 9/17/7, Donchian 20, ATR 5.
func DefaultConfig() Config {
	return Config{
		SMAWindows:     []int{10, 50},
		STDWindows:     []int{10, 50},
		EMAWindows:     []int{10, 50},
		MACDShort:      9,
		MACDLong:       17,
		MACDSignal:     7,
		DonchianWindow: 20,
		ATRWindow:      5,
	}
}

// Validate rejects non-positive windows.
func (c Config) Validate() error {
	check := func(name string, w int) error {
		if w < 1 {
			return fmt.Errorf("indicator config: %s window must be >= 1, got %d", name, w)
		}
		return nil
	}
	for _, w := range c.SMAWindows {
		if err := check("SMA", w); err != nil {
			return err
		}
	}
	for _, w := range c.STDWindows {
		if w < 2 {
			return fmt.Errorf("indicator config: STD window must be >= 2, got %d", w)
		}
	}
	for _, w := range c.EMAWindows {
		if err := check("EMA", w); err != nil {
			return err
		}
	}
	for name, w := range map[string]int{
		"MACD short":  c.MACDShort,
		"MACD long":   c.MACDLong,
		"MACD signal": c.MACDSignal,
		"Donchian":    c.DonchianWindow,
		"ATR":         c.ATRWindow,
	} {
		if err := check(name, w); err != nil {
			return err
		}
	}
	return nil
}

// WarmUp returns the number of bars needed before the first row is emitted.
// EMA and MACD are defined from the first bar and do not contribute.
func (c Config) WarmUp() int {
	w := 1
	for _, n := range c.SMAWindows {
		w = max(w, n)
	}
	for _, n := range c.STDWindows {
		w = max(w, n)
	}
	return max(w, c.DonchianWindow, c.ATRWindow)
}

// CheckHistory returns an InsufficientHistoryError when n bars cannot
// produce a single row.
func (c Config) CheckHistory(n int) error {
	if need := c.WarmUp(); n < need {
		return &model.InsufficientHistoryError{Have: n, Need: need}
	}
	return nil
}

// rowIndicators holds one pass worth of indicator instances.
type rowIndicators struct {
	sma      map[int]*SMA
	std      map[int]*STD
	ema      map[int]*EMA
	macd     *MACD
	atr      *ATR
	donchian *Donchian
	all      []Indicator
}

func newRowIndicators(cfg Config) *rowIndicators {
	ri := &rowIndicators{
		sma:      make(map[int]*SMA, len(cfg.SMAWindows)),
		std:      make(map[int]*STD, len(cfg.STDWindows)),
		ema:      make(map[int]*EMA, len(cfg.EMAWindows)),
		macd:     NewMACD(cfg.MACDShort, cfg.MACDLong, cfg.MACDSignal),
		atr:      NewATR(cfg.ATRWindow),
		donchian: NewDonchian(cfg.DonchianWindow),
	}
	for _, w := range cfg.SMAWindows {
		ri.sma[w] = NewSMA(w)
		ri.all = append(ri.all, ri.sma[w])
	}
	for _, w := range cfg.STDWindows {
		ri.std[w] = NewSTD(w)
		ri.all = append(ri.all, ri.std[w])
	}
	for _, w := range cfg.EMAWindows {
		ri.ema[w] = NewEMA(w)
		ri.all = append(ri.all, ri.ema[w])
	}
	ri.all = append(ri.all, ri.macd, ri.atr, ri.donchian)
	return ri
}

func (ri *rowIndicators) ready() bool {
	for _, ind := range ri.all {
		if !ind.Ready() {
			return false
		}
	}
	return true
}

func (ri *rowIndicators) row(bar model.Bar) model.FeatureRow {
	r := model.FeatureRow{
		Bar:        bar,
		SMA:        make(map[int]float64, len(ri.sma)),
		STD:        make(map[int]float64, len(ri.std)),
		EMA:        make(map[int]float64, len(ri.ema)),
		ATR:        ri.atr.Value(),
		MACD:       ri.macd.Value(),
		MACDSignal: ri.macd.Signal(),
		MaxPrice:   ri.donchian.Upper(),
		MinPrice:   ri.donchian.Lower(),
	}
	for w, ind := range ri.sma {
		r.SMA[w] = ind.Value()
	}
	for w, ind := range ri.std {
		r.STD[w] = ind.Value()
	}
	for w, ind := range ri.ema {
		r.EMA[w] = ind.Value()
	}
	return r
}

// Compute runs every configured indicator across bars (oldest first) and
// returns one row per bar from the warm-up row onward. Fewer bars than the
// warm-up window yields an empty snapshot. Compute is pure: the same input
// always produces the same output, and CreatedAt is left for the caller.
func Compute(bars []model.Bar, cfg Config) model.FeatureSnapshot {
	warm := cfg.WarmUp()
	if len(bars) < warm {
		return model.FeatureSnapshot{}
	}

	ri := newRowIndicators(cfg)
	rows := make([]model.FeatureRow, 0, len(bars)-warm+1)
	for i, bar := range bars {
		for _, ind := range ri.all {
			ind.Update(bar)
		}
		if i < warm-1 || !ri.ready() {
			continue
		}
		rows = append(rows, ri.row(bar))
	}
	return model.FeatureSnapshot{Rows: rows}
}
