package portfolio

import (
	"errors"
	"math"
	"testing"

	"breakout-trader/internal/model"
)

func TestSizer_Size(t *testing.T) {
	s, err := NewSizer(2.0, 0.001)
	if err != nil {
		t.Fatalf("NewSizer: %v", err)
	}

	tests := []struct {
		name    string
		balance float64
		price   float64
		atr     float64
		want    int64
		wantErr bool
	}{
		{"reference case", 1000, 50, 10, 125, false},
		{"btc sized", 0.5, 30000, 150, 1500, false},
		{"zero atr", 1000, 50, 0, 0, true},
		{"zero balance", 0, 50, 10, 0, true},
		{"negative price", 1000, -1, 10, 0, true},
		{"below one contract", 0.00001, 50, 10, 0, true},
		{"nan atr", 1000, 50, math.NaN(), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Size(tt.balance, tt.price, tt.atr)
			if tt.wantErr {
				var se *model.SizingError
				if !errors.As(err, &se) {
					t.Fatalf("expected SizingError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("qty = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewSizer_Validation(t *testing.T) {
	for _, tc := range []struct{ rng, rate float64 }{{0, 0.001}, {2, 0}, {2, 1.5}, {-1, 0.01}} {
		if _, err := NewSizer(tc.rng, tc.rate); err == nil {
			t.Errorf("NewSizer(%g, %g): expected error", tc.rng, tc.rate)
		}
	}
}

func TestSizer_StopBreached(t *testing.T) {
	s, _ := NewSizer(2.0, 0.001)

	long := model.Position{Side: model.SideLong, Size: 10, EntryPrice: 100}
	short := model.Position{Side: model.SideShort, Size: 10, EntryPrice: 100}

	tests := []struct {
		name string
		pos  model.Position
		now  float64
		atr  float64
		want bool
	}{
		// trigger = 95 - 1*2*2 = 91; 100 > 91
		{"long below entry", long, 95, 2, true},
		// trigger = 110 - 4 = 106; 100 > 106 false
		{"long above entry", long, 110, 2, false},
		// trigger = 90 + 4 = 94; 100 > -94 true
		{"short any price", short, 90, 2, true},
		{"flat never breaches", model.Position{Side: model.SideNone}, 1, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.StopBreached(tt.pos, tt.now, tt.atr); got != tt.want {
				t.Errorf("StopBreached = %v, want %v (trigger=%g)",
					got, tt.want, s.StopTrigger(tt.pos.Side, tt.now, tt.atr))
			}
		})
	}
}

func TestEquityTracker(t *testing.T) {
	tr := NewEquityTracker()
	tr.Record(EquitySample{Equity: 100})
	tr.Record(EquitySample{Equity: 120})
	dd := tr.Record(EquitySample{Equity: 90, Side: model.SideLong})

	if dd != 25 {
		t.Errorf("drawdown = %g, want 25", dd)
	}
	sum := tr.Summary()
	if sum.Start != 100 || sum.Peak != 120 || sum.Change != -10 || sum.Samples != 3 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if sum.Last.Side != model.SideLong {
		t.Errorf("last side = %s", sum.Last.Side)
	}
}
