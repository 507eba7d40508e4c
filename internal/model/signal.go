package model

// Direction is the resolved trading signal.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionNone Direction = "NONE"
)

// OrderSide maps a non-NONE direction to the side that follows it.
func (d Direction) OrderSide() OrderSide {
	if d == DirectionSell {
		return OrderSell
	}
	return OrderBuy
}

// SignalResult is derived per evaluation and never persisted.
type SignalResult struct {
	Direction   Direction      `json:"direction"`
	HasPosition bool           `json:"has_position"`
	Net         int            `json:"net"`
	Votes       map[string]int `json:"votes,omitempty"`
}
