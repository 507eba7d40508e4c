// Package indicator computes technical-indicator features over bar data.
//
// Each indicator is a streaming calculation fed one bar at a time; Compute
// drives all configured indicators across a bar sequence and emits one
// FeatureRow per bar once every window is satisfied.
package indicator

import "breakout-trader/internal/model"

// Indicator is the interface for all streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_20", "EMA_9").
	Name() string

	// Update feeds the next bar and recalculates.
	Update(bar model.Bar)

	// Value returns the current value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}
