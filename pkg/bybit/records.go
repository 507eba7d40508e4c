package bybit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"breakout-trader/internal/model"
)

// number decodes a price or size the venue sends either as a JSON number
// or as a quoted decimal string. Empty strings decode to zero.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", s, err)
		}
		*n = number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

func parseTime(s string) time.Time {
	if s == "" || s == "0" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

type klineRecord struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	OpenTime int64  `json:"open_time"` // unix seconds
	Open     number `json:"open"`
	High     number `json:"high"`
	Low      number `json:"low"`
	Close    number `json:"close"`
	Volume   number `json:"volume"`
}

func (r klineRecord) bar() (model.Bar, error) {
	b := model.Bar{
		OpenTime: time.Unix(r.OpenTime, 0).UTC(),
		Open:     float64(r.Open),
		High:     float64(r.High),
		Low:      float64(r.Low),
		Close:    float64(r.Close),
	}
	return b, b.Validate()
}

type walletRecord struct {
	Equity           number `json:"equity"`
	AvailableBalance number `json:"available_balance"`
	WalletBalance    number `json:"wallet_balance"`
}

type positionRecord struct {
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Size       number `json:"size"`
	EntryPrice number `json:"entry_price"`
	Leverage   number `json:"leverage"`
	LiqPrice   number `json:"liq_price"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func (r positionRecord) position() (model.Position, error) {
	side := model.Side(r.Side)
	switch side {
	case model.SideNone, model.SideLong, model.SideShort:
	case "":
		side = model.SideNone
	default:
		return model.Position{}, fmt.Errorf("unknown position side %q", r.Side)
	}
	return model.Position{
		Symbol:     r.Symbol,
		Side:       side,
		Size:       float64(r.Size),
		EntryPrice: float64(r.EntryPrice),
		Leverage:   float64(r.Leverage),
		LiqPrice:   float64(r.LiqPrice),
		CreatedAt:  parseTime(r.CreatedAt),
		UpdatedAt:  parseTime(r.UpdatedAt),
	}.Normalize(), nil
}

type orderRecord struct {
	OrderID     string `json:"order_id"`
	OrderLinkID string `json:"order_link_id"`
	Side        string `json:"side"`
	OrderType   string `json:"order_type"`
	Price       number `json:"price"`
	Qty         number `json:"qty"`
	OrderStatus string `json:"order_status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func (r orderRecord) order() model.Order {
	return model.Order{
		OrderID:   r.OrderID,
		LinkID:    r.OrderLinkID,
		Side:      model.OrderSide(r.Side),
		Type:      model.OrderType(r.OrderType),
		Qty:       int64(r.Qty),
		Price:     float64(r.Price),
		Status:    r.OrderStatus,
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
}

type orderListResult struct {
	Data   []orderRecord `json:"data"`
	Cursor string        `json:"cursor"`
}

type orderAckRecord struct {
	OrderID     string `json:"order_id"`
	OrderLinkID string `json:"order_link_id"`
	OrderStatus string `json:"order_status"`
}
