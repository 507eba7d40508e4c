package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderSide is the side of an order submission.
type OrderSide string

const (
	OrderBuy  OrderSide = "Buy"
	OrderSell OrderSide = "Sell"
)

// Opposite returns the side that flattens a position held on s.
func (s Side) Opposite() OrderSide {
	if s == SideShort {
		return OrderBuy
	}
	return OrderSell
}

// OrderType is the venue order type.
type OrderType string

const (
	OrderMarket OrderType = "Market"
	OrderLimit  OrderType = "Limit"
	OrderStop   OrderType = "Stop"
)

// OrderIntent is a single order to submit. Built fresh per decision.
type OrderIntent struct {
	Side   OrderSide `json:"side"`
	Type   OrderType `json:"order_type"`
	Qty    int64     `json:"qty"`
	Price  *float64  `json:"price,omitempty"` // nil for market orders
	LinkID string    `json:"order_link_id"`   // client idempotency key
}

// NewMarketOrder builds a market OrderIntent with a fresh link ID.
func NewMarketOrder(side OrderSide, qty int64) (OrderIntent, error) {
	o := OrderIntent{
		Side:   side,
		Type:   OrderMarket,
		Qty:    qty,
		LinkID: uuid.NewString(),
	}
	return o, o.Validate()
}

// Validate checks the intent before it leaves the process.
func (o OrderIntent) Validate() error {
	if o.Side != OrderBuy && o.Side != OrderSell {
		return fmt.Errorf("order: invalid side %q", o.Side)
	}
	if o.Qty <= 0 {
		return fmt.Errorf("order: qty must be positive, got %d", o.Qty)
	}
	switch o.Type {
	case OrderMarket:
	case OrderLimit, OrderStop:
		if o.Price == nil || *o.Price <= 0 {
			return fmt.Errorf("order: %s order requires a positive price", o.Type)
		}
	default:
		return fmt.Errorf("order: invalid type %q", o.Type)
	}
	return nil
}

// Order is an open (unfilled) order as listed by the venue.
type Order struct {
	OrderID   string    `json:"order_id"`
	LinkID    string    `json:"order_link_id"`
	Side      OrderSide `json:"side"`
	Type      OrderType `json:"order_type"`
	Qty       int64     `json:"qty"`
	Price     float64   `json:"price"`
	Status    string    `json:"order_status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderAck is the venue acknowledgement of a submission.
type OrderAck struct {
	OrderID string `json:"order_id"`
	LinkID  string `json:"order_link_id"`
	Status  string `json:"order_status"`
}
