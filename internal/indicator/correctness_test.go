package indicator

import (
	"math"
	"testing"

	"breakout-trader/internal/model"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSMA_Window(t *testing.T) {
	s := NewSMA(3)
	for i, c := range []float64{1, 2, 3, 4, 5} {
		s.Update(model.Bar{Close: c})
		if i < 2 && s.Ready() {
			t.Fatalf("bar %d: ready too early", i)
		}
	}
	if !approx(s.Value(), 4) {
		t.Errorf("SMA(3) = %v, want 4", s.Value())
	}
	if s.Name() != "SMA_3" {
		t.Errorf("name = %s", s.Name())
	}
}

func TestSTD_Sample(t *testing.T) {
	s := NewSTD(4)
	for _, c := range []float64{1, 2, 3, 4} {
		s.Update(model.Bar{Close: c})
	}
	want := math.Sqrt(5.0 / 3.0)
	if !approx(s.Value(), want) {
		t.Errorf("STD(4) = %v, want %v", s.Value(), want)
	}
}

func TestEMA_Recurrence(t *testing.T) {
	closes := []float64{10, 11, 9, 14, 13, 12, 18, 17}
	e := NewEMA(4)
	alpha := 2.0 / 5.0
	var prev float64
	for i, c := range closes {
		e.Update(model.Bar{Close: c})
		want := c
		if i > 0 {
			want = alpha*c + (1-alpha)*prev
		}
		if e.Value() != want {
			t.Fatalf("bar %d: EMA = %v, want exactly %v", i, e.Value(), want)
		}
		prev = want
	}
}

func TestATR_RangeBased(t *testing.T) {
	a := NewATR(2)
	a.Update(model.Bar{High: 12, Low: 10})
	if a.Ready() {
		t.Fatal("ready after one bar")
	}
	a.Update(model.Bar{High: 15, Low: 11})
	// (12+15 - (10+11)) / 2 = 3
	if !approx(a.Value(), 3) {
		t.Errorf("ATR = %v, want 3", a.Value())
	}
	// A gap is ignored: only high-low of the window matters.
	a.Update(model.Bar{High: 40, Low: 39})
	if !approx(a.Value(), 2.5) {
		t.Errorf("ATR = %v, want 2.5", a.Value())
	}
}

func TestDonchian_Extremes(t *testing.T) {
	d := NewDonchian(3)
	bars := []model.Bar{
		{High: 10, Low: 5},
		{High: 12, Low: 6},
		{High: 11, Low: 4},
		{High: 9, Low: 7},
	}
	for _, b := range bars[:3] {
		d.Update(b)
	}
	if d.Upper() != 12 || d.Lower() != 4 {
		t.Errorf("got upper=%v lower=%v, want 12/4", d.Upper(), d.Lower())
	}
	d.Update(bars[3])
	if d.Upper() != 12 || d.Lower() != 4 {
		t.Errorf("got upper=%v lower=%v, want 12/4", d.Upper(), d.Lower())
	}
	d.Update(model.Bar{High: 8, Low: 8})
	if d.Upper() != 11 || d.Lower() != 4 {
		t.Errorf("got upper=%v lower=%v, want 11/4", d.Upper(), d.Lower())
	}
}

func TestMACD_MatchesEMAs(t *testing.T) {
	closes := []float64{100, 102, 101, 105, 107, 104, 103, 108, 110, 109}
	m := NewMACD(3, 6, 2)
	fast, slow, sig := NewEMA(3), NewEMA(6), NewEMA(2)
	for _, c := range closes {
		b := model.Bar{Close: c}
		m.Update(b)
		fast.Update(b)
		slow.Update(b)
		sig.Push(fast.Value() - slow.Value())
	}
	if !approx(m.Value(), fast.Value()-slow.Value()) {
		t.Errorf("macd = %v, want %v", m.Value(), fast.Value()-slow.Value())
	}
	if !approx(m.Signal(), sig.Value()) {
		t.Errorf("signal = %v, want %v", m.Signal(), sig.Value())
	}
}

func TestCompute_FieldsMatchStreaming(t *testing.T) {
	cfg := DefaultConfig()
	bars := rampBars(75)
	snap := Compute(bars, cfg)
	last, ok := snap.Last(0)
	if !ok {
		t.Fatal("expected rows")
	}

	var highs, lows float64
	maxH, minL := math.Inf(-1), math.Inf(1)
	for _, b := range bars[len(bars)-cfg.ATRWindow:] {
		highs += b.High
		lows += b.Low
	}
	for _, b := range bars[len(bars)-cfg.DonchianWindow:] {
		maxH = math.Max(maxH, b.High)
		minL = math.Min(minL, b.Low)
	}
	if !approx(last.ATR, (highs-lows)/float64(cfg.ATRWindow)) {
		t.Errorf("ATR = %v", last.ATR)
	}
	if last.MaxPrice != maxH || last.MinPrice != minL {
		t.Errorf("donchian = %v/%v, want %v/%v", last.MaxPrice, last.MinPrice, maxH, minL)
	}

	var sum float64
	for _, b := range bars[len(bars)-10:] {
		sum += b.Close
	}
	if math.Abs(last.SMA[10]-sum/10) > 1e-9 {
		t.Errorf("SMA_10 = %v, want %v", last.SMA[10], sum/10)
	}
}
