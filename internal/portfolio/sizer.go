// Package portfolio sizes orders against a risk budget and tracks the
// account equity seen by the decision loop.
package portfolio

import (
	"fmt"
	"math"

	"breakout-trader/internal/model"
)

// floorEpsilon absorbs float representation error so that an exact
// quotient such as 124.99999999999999 still floors to 125.
const floorEpsilon = 1e-9

// Sizer derives order quantity from an ATR-based stop distance.
type Sizer struct {
	StopRange float64 // stop distance in ATR multiples
	LossRate  float64 // fraction of available quote risked per trade
}

// NewSizer creates a Sizer. Both parameters must be positive.
func NewSizer(stopRange, lossRate float64) (*Sizer, error) {
	if stopRange <= 0 {
		return nil, fmt.Errorf("stop range must be positive, got %g", stopRange)
	}
	if lossRate <= 0 || lossRate >= 1 {
		return nil, fmt.Errorf("loss rate must be in (0,1), got %g", lossRate)
	}
	return &Sizer{StopRange: stopRange, LossRate: lossRate}, nil
}

// Size returns the integer contract quantity:
//
//	stop_distance   = atr * stopRange / price
//	available_quote = balance * price
//	qty             = floor(available_quote * lossRate / stop_distance)
//
// A *model.SizingError is returned when no positive quantity can be derived.
func (s *Sizer) Size(balance, price, atr float64) (int64, error) {
	fail := func(reason string) (int64, error) {
		return 0, &model.SizingError{Reason: reason, Balance: balance, Price: price, ATR: atr}
	}

	if price <= 0 || math.IsNaN(price) {
		return fail("non-positive price")
	}
	if balance <= 0 || math.IsNaN(balance) {
		return fail("non-positive balance")
	}
	stopDistance := atr * s.StopRange / price
	if stopDistance <= 0 || math.IsNaN(stopDistance) || math.IsInf(stopDistance, 0) {
		return fail("zero stop distance")
	}

	available := balance * price
	qty := math.Floor(available*s.LossRate/stopDistance + floorEpsilon)
	if qty < 1 {
		return fail("quantity below one contract")
	}
	if qty > math.MaxInt64/2 {
		return fail("quantity overflow")
	}
	return int64(qty), nil
}

// StopTrigger returns the price level the entry is compared against:
// nowPrice - sign*atr*stopRange.
func (s *Sizer) StopTrigger(side model.Side, nowPrice, atr float64) float64 {
	return nowPrice - side.Sign()*atr*s.StopRange
}

// StopBreached evaluates the stop-loss rule for an open position:
//
//	trigger  = nowPrice - sign*atr*stopRange
//	breached = entry > trigger*sign
//
// The comparison is kept exactly as the reference strategy defines it; for a
// short it multiplies the trigger by -1 rather than flipping the inequality.
// Flat positions never breach.
func (s *Sizer) StopBreached(pos model.Position, nowPrice, atr float64) bool {
	if !pos.Open() {
		return false
	}
	sign := pos.Side.Sign()
	return pos.EntryPrice > s.StopTrigger(pos.Side, nowPrice, atr)*sign
}
