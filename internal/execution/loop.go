// Package execution runs the decision loop: wait for a new feature snapshot,
// evaluate the signal against the freshly fetched position, then open,
// close or stay idle.
//
// Only one decision is in flight at a time. Every cycle records equity into
// the P&L ledger, and every submission attempt is journaled.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"breakout-trader/internal/featurestore"
	"breakout-trader/internal/logger"
	"breakout-trader/internal/metrics"
	"breakout-trader/internal/model"
	"breakout-trader/internal/notification"
	"breakout-trader/internal/portfolio"
	"breakout-trader/internal/strategy"
)

// Action is the outcome of one decision cycle.
type Action string

const (
	ActionOpen   Action = "open"
	ActionClose  Action = "close"
	ActionIdle   Action = "idle"
	ActionSkip   Action = "skip"   // in-flight guard or outstanding open orders
	ActionPaused Action = "paused" // signal suppressed by the operator
	ActionError  Action = "error"
)

// Close reasons recorded in the order journal.
const (
	ReasonOpen     = "open"
	ReasonClose    = "close"
	ReasonStopLoss = "stop_loss"
)

// ErrInFlight is returned when a decision is attempted while another
// submission is outstanding.
var ErrInFlight = errors.New("execution: decision already in flight")

// Config configures the loop.
type Config struct {
	Symbol       string
	Asset        string        // balance currency, e.g. BTC for BTCUSD
	PollInterval time.Duration // fallback re-check of the updated flag; default 500ms
	StopLoss     bool          // enable the ATR stop-loss check
}

// Decision describes one completed cycle.
type Decision struct {
	CycleID  string             `json:"cycle_id"`
	At       time.Time          `json:"at"`
	Version  uint64             `json:"snapshot_version"`
	Action   Action             `json:"action"`
	Reason   string             `json:"reason,omitempty"`
	Signal   model.SignalResult `json:"signal"`
	Position model.Position     `json:"position"`
	Balance  float64            `json:"balance"`
	Price    float64            `json:"price"`
	Intent   *model.OrderIntent `json:"intent,omitempty"`
	Ack      *model.OrderAck    `json:"ack,omitempty"`
	Err      string             `json:"error,omitempty"`
}

// Loop is the execution task. The FeatureStore is the only state it shares
// with the refresher.
type Loop struct {
	cfg    Config
	gw     model.Gateway
	store  *featurestore.Store
	engine *strategy.Engine
	sizer  *portfolio.Sizer

	ledger  model.Ledger
	journal model.OrderJournal
	pub     model.SnapshotPublisher
	equity  *portfolio.EquityTracker
	alerts  Alerter
	m       *metrics.Metrics
	health  *metrics.HealthStatus

	inFlight atomic.Bool
	paused   atomic.Bool

	mu   sync.RWMutex
	last *Decision

	now func() time.Time
}

// Alerter queues operator alerts. Notify must not block.
type Alerter interface {
	Notify(alert notification.Alert)
}

// Option configures optional collaborators.
type Option func(*Loop)

// WithLedger records equity and side every cycle.
func WithLedger(l model.Ledger) Option { return func(x *Loop) { x.ledger = l } }

// WithJournal records every submission attempt.
func WithJournal(j model.OrderJournal) Option { return func(x *Loop) { x.journal = j } }

// WithPublisher fans decisions out to observers.
func WithPublisher(p model.SnapshotPublisher) Option { return func(x *Loop) { x.pub = p } }

// WithAlerts sends submissions, failures and stop-loss exits to a.
func WithAlerts(a Alerter) Option { return func(x *Loop) { x.alerts = a } }

// WithEquityTracker replaces the default tracker.
func WithEquityTracker(t *portfolio.EquityTracker) Option { return func(x *Loop) { x.equity = t } }

// WithMetrics records decision metrics and health.
func WithMetrics(m *metrics.Metrics, h *metrics.HealthStatus) Option {
	return func(x *Loop) { x.m, x.health = m, h }
}

// NewLoop creates an execution loop.
func NewLoop(cfg Config, gw model.Gateway, store *featurestore.Store, engine *strategy.Engine, sizer *portfolio.Sizer, opts ...Option) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	l := &Loop{
		cfg:    cfg,
		gw:     gw,
		store:  store,
		engine: engine,
		sizer:  sizer,
		equity: portfolio.NewEquityTracker(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Pause suppresses OPEN and CLOSE actions until Resume.
func (l *Loop) Pause() {
	l.paused.Store(true)
	if l.health != nil {
		l.health.SetPaused(true)
	}
	slog.Warn("trading paused", "symbol", l.cfg.Symbol)
	l.alert(context.Background(), notification.AlertWarning, "Trading paused", "order submission suppressed by operator")
}

// Resume re-enables order submission.
func (l *Loop) Resume() {
	l.paused.Store(false)
	if l.health != nil {
		l.health.SetPaused(false)
	}
	slog.Info("trading resumed", "symbol", l.cfg.Symbol)
	l.alert(context.Background(), notification.AlertInfo, "Trading resumed", "order submission re-enabled")
}

// Paused reports whether order submission is suppressed.
func (l *Loop) Paused() bool { return l.paused.Load() }

// LastDecision returns the most recent completed cycle, or nil.
func (l *Loop) LastDecision() *Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.last == nil {
		return nil
	}
	d := *l.last
	return &d
}

// Equity returns the running equity summary.
func (l *Loop) Equity() portfolio.EquitySummary { return l.equity.Summary() }

// CancelAll cancels every open order for the symbol. It takes the in-flight
// guard so it cannot interleave with a submission.
func (l *Loop) CancelAll(ctx context.Context) error {
	if !l.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer l.inFlight.Store(false)
	if err := l.gw.CancelAllOrders(ctx, l.cfg.Symbol); err != nil {
		return fmt.Errorf("cancel all: %w", err)
	}
	slog.Warn("all open orders cancelled", "symbol", l.cfg.Symbol)
	return nil
}

// Run waits for new snapshots and decides on each one until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("execution loop started",
		"symbol", l.cfg.Symbol,
		"rules", l.engine.Rules(),
		"stop_loss", l.cfg.StopLoss,
		"poll", l.cfg.PollInterval)

	for {
		snap, version, err := l.store.Wait(ctx, l.cfg.PollInterval)
		if err != nil {
			return err
		}
		if _, err := l.Decide(ctx, snap, version); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Decide runs one cycle against snap. Failures are logged, counted and
// returned; they never panic or leave the in-flight guard set.
func (l *Loop) Decide(ctx context.Context, snap *model.FeatureSnapshot, version uint64) (*Decision, error) {
	start := l.now()
	ctx = logger.WithSymbol(ctx, l.cfg.Symbol)
	ctx = logger.WithCycleID(ctx, logger.NewCycleID("decide", start))

	d := &Decision{CycleID: logger.CycleID(ctx), At: start, Version: version}

	if !l.inFlight.CompareAndSwap(false, true) {
		d.Action = ActionSkip
		d.Reason = "in_flight"
		if l.m != nil {
			l.m.InFlightRejects.Inc()
		}
		slog.Warn("decision skipped, submission in flight", logger.Attrs(ctx)...)
		l.finish(ctx, d, start)
		return d, ErrInFlight
	}
	defer l.inFlight.Store(false)

	err := l.decide(ctx, snap, d)
	if err != nil {
		d.Action = ActionError
		d.Err = err.Error()
		slog.Error("decision failed", append(logger.Attrs(ctx), "error", err)...)
	}
	l.finish(ctx, d, start)
	return d, err
}

func (l *Loop) decide(ctx context.Context, snap *model.FeatureSnapshot, d *Decision) error {
	row, ok := snap.Last(0)
	if !ok {
		d.Action = ActionIdle
		d.Reason = "empty_snapshot"
		return nil
	}
	d.Price = row.Close

	pos, err := l.gw.FetchPosition(ctx, l.cfg.Symbol)
	if err != nil {
		return err
	}
	pos = pos.Normalize()
	d.Position = pos

	// Exits never depend on the wallet; only OPEN sizing and the ledger do.
	balance, balErr := l.gw.FetchBalance(ctx, l.cfg.Asset)
	if balErr != nil {
		slog.Warn("balance unavailable", append(logger.Attrs(ctx), "error", balErr)...)
	} else {
		d.Balance = balance
		l.recordEquity(ctx, balance, pos, d.At)
	}

	sig := l.engine.Evaluate(ctx, snap, pos.Side)
	d.Signal = sig
	if l.m != nil {
		l.m.SignalsTotal.WithLabelValues(string(sig.Direction)).Inc()
	}
	if l.pub != nil {
		l.pub.PublishDecision(ctx, l.cfg.Symbol, sig, d.At)
	}

	reason := ""
	switch {
	case l.cfg.StopLoss && l.sizer.StopBreached(pos, row.Close, row.ATR):
		reason = ReasonStopLoss
		if l.m != nil {
			l.m.StopLossHits.Inc()
		}
		slog.Warn("stop loss breached", append(logger.Attrs(ctx),
			"entry", pos.EntryPrice,
			"trigger", l.sizer.StopTrigger(pos.Side, row.Close, row.ATR),
			"side", pos.Side.String())...)
	case sig.Direction == model.DirectionNone:
		d.Action = ActionIdle
		return nil
	case pos.Open():
		reason = ReasonClose
	default:
		reason = ReasonOpen
	}

	if l.paused.Load() {
		d.Action = ActionPaused
		d.Reason = reason
		slog.Info("signal suppressed while paused", append(logger.Attrs(ctx),
			"direction", sig.Direction, "would", reason)...)
		return nil
	}

	// A working order means the fetched position may be stale.
	orders, err := l.gw.FetchOpenOrders(ctx, l.cfg.Symbol)
	if err != nil {
		return err
	}
	if len(orders) > 0 {
		d.Action = ActionSkip
		d.Reason = "open_orders"
		slog.Warn("open orders outstanding, not submitting", append(logger.Attrs(ctx),
			"count", len(orders), "would", reason)...)
		return nil
	}

	if reason == ReasonOpen {
		if balErr != nil {
			return balErr
		}
		return l.open(ctx, d, sig, balance, row)
	}
	return l.close(ctx, d, pos, reason)
}

func (l *Loop) open(ctx context.Context, d *Decision, sig model.SignalResult, balance float64, row model.FeatureRow) error {
	qty, err := l.sizer.Size(balance, row.Close, row.ATR)
	if err != nil {
		if l.m != nil {
			l.m.SizingErrors.Inc()
		}
		return err
	}

	intent, err := model.NewMarketOrder(sig.Direction.OrderSide(), qty)
	if err != nil {
		return err
	}
	d.Action = ActionOpen
	d.Reason = ReasonOpen
	return l.submit(ctx, d, intent)
}

func (l *Loop) close(ctx context.Context, d *Decision, pos model.Position, reason string) error {
	qty := int64(math.Round(pos.Size))
	intent, err := model.NewMarketOrder(pos.Side.Opposite(), qty)
	if err != nil {
		return err
	}
	d.Action = ActionClose
	d.Reason = reason
	return l.submit(ctx, d, intent)
}

func (l *Loop) submit(ctx context.Context, d *Decision, intent model.OrderIntent) error {
	d.Intent = &intent
	slog.Info("submitting order", append(logger.Attrs(ctx),
		"side", intent.Side,
		"qty", intent.Qty,
		"link_id", intent.LinkID,
		"reason", d.Reason,
		"price", d.Price)...)

	ack, err := l.gw.SubmitOrder(ctx, intent)

	entry := model.JournalEntry{
		Intent:    intent,
		Ack:       ack,
		Reason:    d.Reason,
		Price:     d.Price,
		CreatedAt: l.now(),
	}
	result := "ok"
	if err != nil {
		entry.Err = err.Error()
		result = "error"
	} else {
		d.Ack = &ack
	}
	if l.m != nil {
		l.m.OrdersTotal.WithLabelValues(string(intent.Side), result).Inc()
	}
	if l.journal != nil {
		if jerr := l.journal.RecordOrder(ctx, entry); jerr != nil {
			slog.Error("order journal write failed", append(logger.Attrs(ctx), "error", jerr)...)
		}
	}
	if err != nil {
		l.alert(ctx, notification.AlertCritical, "Order failed",
			fmt.Sprintf("%s %s %d: %v", d.Reason, intent.Side, intent.Qty, err))
		return err
	}

	slog.Info("order accepted", append(logger.Attrs(ctx),
		"order_id", ack.OrderID, "status", ack.Status)...)

	level := notification.AlertInfo
	if d.Reason == ReasonStopLoss {
		level = notification.AlertWarning
	}
	l.alert(ctx, level, "Order "+d.Reason,
		fmt.Sprintf("%s %d @ ~%.2f, order %s", intent.Side, intent.Qty, d.Price, ack.OrderID))
	return nil
}

func (l *Loop) alert(ctx context.Context, level notification.AlertLevel, title, msg string) {
	if l.alerts == nil {
		return
	}
	l.alerts.Notify(notification.Alert{
		Level:   level,
		Title:   title,
		Message: msg,
		Symbol:  l.cfg.Symbol,
		CycleID: logger.CycleID(ctx),
	})
}

func (l *Loop) recordEquity(ctx context.Context, balance float64, pos model.Position, at time.Time) {
	dd := l.equity.Record(portfolio.EquitySample{Equity: balance, Side: pos.Side, Timestamp: at})
	if l.m != nil {
		l.m.Equity.Set(balance)
		l.m.DrawdownPct.Set(dd)
		l.m.PositionSize.Set(pos.Size * pos.Side.Sign())
	}
	if l.ledger == nil {
		return
	}

	start := time.Now()
	err := l.ledger.Insert(ctx, model.PL{Timestamp: at, Equity: balance, Side: pos.Side})
	if l.m != nil {
		l.m.LedgerWriteDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		slog.Error("ledger write failed", append(logger.Attrs(ctx), "error", err)...)
	}
}

func (l *Loop) finish(ctx context.Context, d *Decision, start time.Time) {
	if l.m != nil {
		l.m.DecisionsTotal.WithLabelValues(string(d.Action)).Inc()
		l.m.DecisionDur.Observe(l.now().Sub(start).Seconds())
	}
	if l.health != nil {
		l.health.SetLastDecision(d.At)
	}
	if d.Action != ActionSkip || d.Reason != "in_flight" {
		l.mu.Lock()
		l.last = d
		l.mu.Unlock()
	}

	slog.Info("decision",
		append(logger.Attrs(ctx),
			"action", d.Action,
			"reason", d.Reason,
			"direction", d.Signal.Direction,
			"net", d.Signal.Net,
			"position", d.Position.Side.String(),
			"size", d.Position.Size,
			"balance", d.Balance,
			"price", d.Price,
			"version", d.Version)...)
}
