package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"breakout-trader/internal/model"
)

// ErrPaperOrderType is returned for anything but market orders in paper mode.
var ErrPaperOrderType = errors.New("paper: only market orders are simulated")

// permanentError tells the retry layer not to resubmit.
type permanentError struct{ error }

func (e permanentError) Unwrap() error   { return e.error }
func (e permanentError) Permanent() bool { return true }

// Fill is one simulated execution.
type Fill struct {
	OrderID  string            `json:"order_id"`
	Intent   model.OrderIntent `json:"intent"`
	Price    float64           `json:"price"`
	Slippage float64           `json:"slippage"`
	Realized float64           `json:"realized"` // in balance currency
	FilledAt time.Time         `json:"filled_at"`
}

// PaperGateway simulates balance, position and fills on top of a real bar
// source. Bars, and therefore the mark price, come from the wrapped gateway;
// nothing else reaches the venue.
//
// Quantities are inverse-contract USD notional and the balance is held in
// the base coin, so realized P&L is qty * (1/entry - 1/exit) for a long.
type PaperGateway struct {
	bars   model.Gateway
	symbol string

	mu          sync.Mutex
	balance     float64
	pos         model.Position
	mark        float64
	fills       []Fill
	orderSeq    int64
	slippageBps float64

	now func() time.Time
}

// NewPaperGateway creates a simulated account holding balance.
// slippageBps worsens every fill by that many basis points.
func NewPaperGateway(bars model.Gateway, symbol string, balance, slippageBps float64) *PaperGateway {
	return &PaperGateway{
		bars:        bars,
		symbol:      symbol,
		balance:     balance,
		slippageBps: slippageBps,
		pos:         model.Position{Symbol: symbol, Side: model.SideNone},
		now:         time.Now,
	}
}

// SetMark overrides the simulated mark price.
func (p *PaperGateway) SetMark(price float64) {
	p.mu.Lock()
	p.mark = price
	p.mu.Unlock()
}

// Fills returns a copy of every simulated fill.
func (p *PaperGateway) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

func (p *PaperGateway) FetchBalance(ctx context.Context, asset string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

// FetchBars passes through to the real bar source and tracks the latest close
// as the mark price.
func (p *PaperGateway) FetchBars(ctx context.Context, interval string, from time.Time) ([]model.Bar, error) {
	bars, err := p.bars.FetchBars(ctx, interval, from)
	if err != nil {
		return nil, err
	}
	if n := len(bars); n > 0 {
		p.SetMark(bars[n-1].Close)
	}
	return bars, nil
}

func (p *PaperGateway) FetchPosition(ctx context.Context, symbol string) (model.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos, nil
}

// FetchOpenOrders always reports none: market orders fill on submission.
func (p *PaperGateway) FetchOpenOrders(ctx context.Context, symbol string) ([]model.Order, error) {
	return nil, nil
}

func (p *PaperGateway) CancelAllOrders(ctx context.Context, symbol string) error {
	return nil
}

func (p *PaperGateway) SubmitOrder(ctx context.Context, intent model.OrderIntent) (model.OrderAck, error) {
	if err := intent.Validate(); err != nil {
		return model.OrderAck{}, &model.OrderSubmissionError{Intent: intent, Err: permanentError{err}}
	}
	if intent.Type != model.OrderMarket {
		return model.OrderAck{}, &model.OrderSubmissionError{Intent: intent, Err: permanentError{ErrPaperOrderType}}
	}

	p.mu.Lock()
	if p.mark <= 0 {
		p.mu.Unlock()
		return model.OrderAck{}, &model.OrderSubmissionError{Intent: intent, Err: errors.New("paper: no mark price yet")}
	}

	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)

	price := p.mark
	slippage := price * p.slippageBps / 10000
	if intent.Side == model.OrderBuy {
		price += slippage // buy higher
	} else {
		price -= slippage // sell lower
	}

	realized := p.applyLocked(intent, price)
	fill := Fill{
		OrderID:  orderID,
		Intent:   intent,
		Price:    price,
		Slippage: slippage,
		Realized: realized,
		FilledAt: p.now(),
	}
	p.fills = append(p.fills, fill)
	balance := p.balance
	pos := p.pos
	p.mu.Unlock()

	slog.Info("paper fill",
		"order_id", orderID,
		"side", intent.Side,
		"qty", intent.Qty,
		"price", price,
		"slippage", slippage,
		"realized", realized,
		"balance", balance,
		"position", pos.Side.String(),
		"size", pos.Size)

	return model.OrderAck{OrderID: orderID, LinkID: intent.LinkID, Status: "Filled"}, nil
}

// applyLocked updates the position for a fill at price and returns the
// realized P&L credited to the balance.
func (p *PaperGateway) applyLocked(intent model.OrderIntent, price float64) float64 {
	qty := float64(intent.Qty)
	fillSign := 1.0
	if intent.Side == model.OrderSell {
		fillSign = -1
	}
	now := p.now()

	cur := p.pos.Side.Sign()
	var realized float64

	switch {
	case cur == 0:
		p.pos.Side = sideFor(fillSign)
		p.pos.Size = qty
		p.pos.EntryPrice = price
		p.pos.CreatedAt = now

	case cur == fillSign:
		// Inverse contracts average entry harmonically.
		total := p.pos.Size + qty
		p.pos.EntryPrice = total / (p.pos.Size/p.pos.EntryPrice + qty/price)
		p.pos.Size = total

	default:
		closed := min(qty, p.pos.Size)
		realized = cur * closed * (1/p.pos.EntryPrice - 1/price)
		p.balance += realized
		p.pos.Size -= closed
		if rest := qty - closed; rest > 0 {
			p.pos.Side = sideFor(fillSign)
			p.pos.Size = rest
			p.pos.EntryPrice = price
			p.pos.CreatedAt = now
		} else if p.pos.Size == 0 {
			p.pos = model.Position{Symbol: p.symbol, Side: model.SideNone}
		}
	}
	p.pos.Symbol = p.symbol
	p.pos.UpdatedAt = now
	return realized
}

func sideFor(sign float64) model.Side {
	if sign > 0 {
		return model.SideLong
	}
	return model.SideShort
}

var _ model.Gateway = (*PaperGateway)(nil)
