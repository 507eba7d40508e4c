package broker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"breakout-trader/internal/logger"
	"breakout-trader/internal/metrics"
	"breakout-trader/internal/model"
)

// Options configures a ResilientGateway.
type Options struct {
	Timeout time.Duration // per attempt
	Retry   RetryPolicy
	Breaker *CircuitBreaker
	Metrics *metrics.Metrics // optional
}

// ResilientGateway decorates a model.Gateway so no venue call can block a
// cycle indefinitely: every attempt has a deadline, transient failures are
// retried with backoff and repeated failures trip a breaker shared by all
// operations.
type ResilientGateway struct {
	next    model.Gateway
	timeout time.Duration
	retry   RetryPolicy
	breaker *CircuitBreaker
	m       *metrics.Metrics
}

var _ model.Gateway = (*ResilientGateway)(nil)

// NewResilientGateway wraps next.
func NewResilientGateway(next model.Gateway, opts Options) *ResilientGateway {
	if opts.Timeout <= 0 {
		opts.Timeout = 7 * time.Second
	}
	if opts.Breaker == nil {
		opts.Breaker = NewCircuitBreaker("gateway", 5, 30*time.Second)
	}
	if opts.Metrics != nil {
		m := opts.Metrics
		prev := opts.Breaker.OnStateChange
		opts.Breaker.OnStateChange = func(name string, from, to State) {
			m.BreakerState.WithLabelValues(name).Set(float64(to))
			if to == StateOpen {
				m.BreakerTrips.WithLabelValues(name).Inc()
			}
			if prev != nil {
				prev(name, from, to)
			}
		}
	}
	return &ResilientGateway{
		next:    next,
		timeout: opts.Timeout,
		retry:   opts.Retry,
		breaker: opts.Breaker,
		m:       opts.Metrics,
	}
}

// Breaker exposes the breaker for health reporting.
func (g *ResilientGateway) Breaker() *CircuitBreaker { return g.breaker }

func (g *ResilientGateway) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()

	err := Retry(ctx, g.retry, func(ctx context.Context) error {
		return g.breaker.ExecuteCounting(func() error {
			callCtx, cancel := context.WithTimeout(ctx, g.timeout)
			defer cancel()
			return fn(callCtx)
		}, IsRetryable)
	}, func(attempt int, err error) {
		if g.m != nil {
			g.m.GatewayRetries.WithLabelValues(op).Inc()
		}
		slog.Warn("gateway call failed, retrying",
			append(logger.Attrs(ctx), "op", op, "attempt", attempt, "error", err)...)
	})

	if g.m != nil {
		g.m.GatewayCallDur.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			g.m.GatewayErrors.WithLabelValues(op).Inc()
		}
	}
	return err
}

func (g *ResilientGateway) FetchBalance(ctx context.Context, asset string) (float64, error) {
	var out float64
	err := g.do(ctx, "fetch_balance", func(ctx context.Context) error {
		var err error
		out, err = g.next.FetchBalance(ctx, asset)
		return err
	})
	return out, model.NewDataFetchError("fetch_balance", err)
}

func (g *ResilientGateway) FetchBars(ctx context.Context, interval string, from time.Time) ([]model.Bar, error) {
	var out []model.Bar
	err := g.do(ctx, "fetch_bars", func(ctx context.Context) error {
		var err error
		out, err = g.next.FetchBars(ctx, interval, from)
		return err
	})
	return out, model.NewDataFetchError("fetch_bars", err)
}

func (g *ResilientGateway) FetchPosition(ctx context.Context, symbol string) (model.Position, error) {
	var out model.Position
	err := g.do(ctx, "fetch_position", func(ctx context.Context) error {
		var err error
		out, err = g.next.FetchPosition(ctx, symbol)
		return err
	})
	return out, model.NewDataFetchError("fetch_position", err)
}

func (g *ResilientGateway) FetchOpenOrders(ctx context.Context, symbol string) ([]model.Order, error) {
	var out []model.Order
	err := g.do(ctx, "fetch_open_orders", func(ctx context.Context) error {
		var err error
		out, err = g.next.FetchOpenOrders(ctx, symbol)
		return err
	})
	return out, model.NewDataFetchError("fetch_open_orders", err)
}

// SubmitOrder retries with the same link ID, so a submission that reached
// the venue but lost its response is rejected as a duplicate rather than
// placed twice.
func (g *ResilientGateway) SubmitOrder(ctx context.Context, intent model.OrderIntent) (model.OrderAck, error) {
	var out model.OrderAck
	err := g.do(ctx, "submit_order", func(ctx context.Context) error {
		var err error
		out, err = g.next.SubmitOrder(ctx, intent)
		return err
	})
	if err != nil {
		var ose *model.OrderSubmissionError
		if errors.As(err, &ose) {
			return out, err
		}
		return out, &model.OrderSubmissionError{Intent: intent, Err: err}
	}
	return out, nil
}

func (g *ResilientGateway) CancelAllOrders(ctx context.Context, symbol string) error {
	return g.do(ctx, "cancel_all", func(ctx context.Context) error {
		return g.next.CancelAllOrders(ctx, symbol)
	})
}
