package model

import "time"

// Side is the direction of a held position as reported by the venue.
type Side string

const (
	SideNone  Side = "None"
	SideLong  Side = "Buy"
	SideShort Side = "Sell"
)

// Sign returns +1 for long, -1 for short and 0 for flat.
func (s Side) Sign() float64 {
	switch s {
	case SideLong:
		return 1
	case SideShort:
		return -1
	default:
		return 0
	}
}

func (s Side) String() string {
	switch s {
	case SideLong:
		return "LONG"
	case SideShort:
		return "SHORT"
	default:
		return "NONE"
	}
}

// Position is the venue-reported holding for one symbol.
// Always fetched fresh at decision time, never cached.
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Size       float64   `json:"size"`
	EntryPrice float64   `json:"entry_price"`
	Leverage   float64   `json:"leverage"`
	LiqPrice   float64   `json:"liq_price"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Normalize enforces Side == None <=> Size == 0.
func (p Position) Normalize() Position {
	if p.Size <= 0 || p.Side == "" || p.Side == SideNone {
		p.Side = SideNone
		p.Size = 0
	}
	return p
}

// Open reports whether a non-zero position is held.
func (p Position) Open() bool {
	return p.Side != SideNone && p.Side != "" && p.Size > 0
}
