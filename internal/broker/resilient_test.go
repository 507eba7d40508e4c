package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"breakout-trader/internal/broker/brokertest"
	"breakout-trader/internal/metrics"
	"breakout-trader/internal/model"
)

func newResilient(fake *brokertest.FakeGateway, attempts int) *ResilientGateway {
	return NewResilientGateway(fake, Options{
		Timeout: 50 * time.Millisecond,
		Retry:   fastPolicy(attempts),
		Breaker: NewCircuitBreaker("gateway", 10, time.Minute),
		Metrics: metrics.NewTestMetrics(),
	})
}

func TestResilient_RetriesTransientFetch(t *testing.T) {
	fake := brokertest.New()
	fake.Balance = 1.5
	fake.FailNext("fetch_balance", errors.New("conn reset"), errors.New("conn reset"))

	g := newResilient(fake, 3)
	bal, err := g.FetchBalance(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if bal != 1.5 || fake.Calls("fetch_balance") != 3 {
		t.Errorf("balance=%g calls=%d", bal, fake.Calls("fetch_balance"))
	}
}

func TestResilient_FetchErrorsAreDataFetchErrors(t *testing.T) {
	fake := brokertest.New()
	fake.FailNext("fetch_position", errors.New("a"), errors.New("b"))

	g := newResilient(fake, 2)
	_, err := g.FetchPosition(context.Background(), "BTCUSD")
	var dfe *model.DataFetchError
	if !errors.As(err, &dfe) || dfe.Op != "fetch_position" {
		t.Fatalf("expected DataFetchError for fetch_position, got %v", err)
	}
}

func TestResilient_SubmitErrorIsOrderSubmissionError(t *testing.T) {
	fake := brokertest.New()
	fake.FailNext("submit_order", permanentErr{})

	g := newResilient(fake, 3)
	intent, _ := model.NewMarketOrder(model.OrderBuy, 10)
	_, err := g.SubmitOrder(context.Background(), intent)

	var ose *model.OrderSubmissionError
	if !errors.As(err, &ose) || ose.Intent.LinkID != intent.LinkID {
		t.Fatalf("expected OrderSubmissionError carrying the intent, got %v", err)
	}
	if fake.Calls("submit_order") != 1 {
		t.Errorf("permanent rejection retried: %d calls", fake.Calls("submit_order"))
	}
}

func TestResilient_TimeoutPerAttempt(t *testing.T) {
	fake := brokertest.New()
	fake.SubmitDelay = time.Second

	g := newResilient(fake, 2)
	intent, _ := model.NewMarketOrder(model.OrderSell, 1)

	start := time.Now()
	_, err := g.SubmitOrder(context.Background(), intent)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("call was not bounded by the per-attempt timeout")
	}
}

func TestResilient_BreakerOpensAcrossOps(t *testing.T) {
	fake := brokertest.New()
	g := NewResilientGateway(fake, Options{
		Timeout: 50 * time.Millisecond,
		Retry:   fastPolicy(1),
		Breaker: NewCircuitBreaker("gateway", 2, time.Minute),
	})
	fake.FailNext("fetch_balance", errors.New("down"))
	fake.FailNext("fetch_bars", errors.New("down"))

	g.FetchBalance(context.Background(), "BTC")
	g.FetchBars(context.Background(), "1", time.Time{})

	if g.Breaker().CurrentState() != StateOpen {
		t.Fatalf("expected breaker open, got %v", g.Breaker().CurrentState())
	}
	_, err := g.FetchPosition(context.Background(), "BTCUSD")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if fake.Calls("fetch_position") != 0 {
		t.Error("open breaker let a call through")
	}
}
