package indicator

import (
	"strconv"

	"breakout-trader/internal/model"
)

// MACD is EMA(short) - EMA(long), with the signal line an EMA of that difference.
// All three EMAs share the first-value seeding rule, so MACD has no warm-up.
type MACD struct {
	short, long, signal int

	fast, slow, sig *EMA
}

// NewMACD creates a MACD with the given short, long and signal periods.
func NewMACD(short, long, signal int) *MACD {
	return &MACD{
		short:  short,
		long:   long,
		signal: signal,
		fast:   NewEMA(short),
		slow:   NewEMA(long),
		sig:    NewEMA(signal),
	}
}

func (m *MACD) Name() string {
	return "MACD_" + strconv.Itoa(m.short) + "_" + strconv.Itoa(m.long) + "_" + strconv.Itoa(m.signal)
}

func (m *MACD) Update(bar model.Bar) {
	m.fast.Update(bar)
	m.slow.Update(bar)
	m.sig.Push(m.fast.Value() - m.slow.Value())
}

// Value returns the macd line.
func (m *MACD) Value() float64 { return m.fast.Value() - m.slow.Value() }

// Signal returns the signal line.
func (m *MACD) Signal() float64 { return m.sig.Value() }

func (m *MACD) Ready() bool { return m.sig.Ready() }
