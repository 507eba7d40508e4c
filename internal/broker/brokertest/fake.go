// Package brokertest provides a scriptable in-memory model.Gateway for
// tests.
package brokertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"breakout-trader/internal/model"
)

// FakeGateway records every call and returns scripted values. Errors queued
// in an op's error list are returned one per call before normal results
// resume.
type FakeGateway struct {
	mu sync.Mutex

	Balance    float64
	Bars       []model.Bar // full history; FetchBars pages over it
	PageSize   int
	Position   model.Position
	OpenOrders []model.Order

	// FillOnSubmit updates Position as if market orders filled instantly.
	FillOnSubmit bool
	FillPrice    float64

	// SubmitDelay blocks SubmitOrder, for in-flight tests.
	SubmitDelay time.Duration

	errs      map[string][]error
	calls     map[string]int
	submitted []model.OrderIntent
	seq       int
}

// New creates an empty FakeGateway.
func New() *FakeGateway {
	return &FakeGateway{
		PageSize: 200,
		Position: model.Position{Side: model.SideNone},
		errs:     make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// FailNext queues errs to be returned by the next calls of op.
// Ops: fetch_balance, fetch_bars, fetch_position, fetch_open_orders,
// submit_order, cancel_all.
func (f *FakeGateway) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = append(f.errs[op], errs...)
}

// Calls returns how many times op was called.
func (f *FakeGateway) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Submitted returns a copy of every submitted intent.
func (f *FakeGateway) Submitted() []model.OrderIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.OrderIntent, len(f.submitted))
	copy(out, f.submitted)
	return out
}

// SetPosition replaces the reported position.
func (f *FakeGateway) SetPosition(p model.Position) {
	f.mu.Lock()
	f.Position = p
	f.mu.Unlock()
}

// SetBars replaces the bar history.
func (f *FakeGateway) SetBars(bars []model.Bar) {
	f.mu.Lock()
	f.Bars = bars
	f.mu.Unlock()
}

func (f *FakeGateway) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if q := f.errs[op]; len(q) > 0 {
		f.errs[op] = q[1:]
		return q[0]
	}
	return nil
}

func (f *FakeGateway) FetchBalance(ctx context.Context, asset string) (float64, error) {
	if err := f.enter("fetch_balance"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Balance, nil
}

func (f *FakeGateway) FetchBars(ctx context.Context, interval string, from time.Time) ([]model.Bar, error) {
	if err := f.enter("fetch_bars"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var page []model.Bar
	for _, b := range f.Bars {
		if b.OpenTime.Before(from) {
			continue
		}
		page = append(page, b)
		if f.PageSize > 0 && len(page) == f.PageSize {
			break
		}
	}
	return page, nil
}

func (f *FakeGateway) FetchPosition(ctx context.Context, symbol string) (model.Position, error) {
	if err := f.enter("fetch_position"); err != nil {
		return model.Position{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.Position
	p.Symbol = symbol
	return p, nil
}

func (f *FakeGateway) FetchOpenOrders(ctx context.Context, symbol string) ([]model.Order, error) {
	if err := f.enter("fetch_open_orders"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Order, len(f.OpenOrders))
	copy(out, f.OpenOrders)
	return out, nil
}

func (f *FakeGateway) SubmitOrder(ctx context.Context, intent model.OrderIntent) (model.OrderAck, error) {
	if f.SubmitDelay > 0 {
		select {
		case <-time.After(f.SubmitDelay):
		case <-ctx.Done():
			return model.OrderAck{}, ctx.Err()
		}
	}
	if err := f.enter("submit_order"); err != nil {
		return model.OrderAck{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.submitted = append(f.submitted, intent)
	if f.FillOnSubmit {
		f.fillLocked(intent)
	}
	return model.OrderAck{
		OrderID: fmt.Sprintf("FAKE-%d", f.seq),
		LinkID:  intent.LinkID,
		Status:  "Created",
	}, nil
}

func (f *FakeGateway) fillLocked(intent model.OrderIntent) {
	signed := float64(intent.Qty)
	if intent.Side == model.OrderSell {
		signed = -signed
	}
	cur := f.Position.Size * f.Position.Side.Sign()
	next := cur + signed
	switch {
	case next > 0:
		f.Position.Side = model.SideLong
		f.Position.Size = next
	case next < 0:
		f.Position.Side = model.SideShort
		f.Position.Size = -next
	default:
		f.Position.Side = model.SideNone
		f.Position.Size = 0
	}
	if cur == 0 {
		f.Position.EntryPrice = f.FillPrice
	}
}

func (f *FakeGateway) CancelAllOrders(ctx context.Context, symbol string) error {
	if err := f.enter("cancel_all"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenOrders = nil
	return nil
}

var _ model.Gateway = (*FakeGateway)(nil)
