// Package notification delivers trading alerts (fills, failed submissions,
// stop-loss exits, operator actions) to external channels.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Symbol  string     `json:"symbol,omitempty"`
	CycleID string     `json:"cycle_id,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts instead of delivering them.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	slog.Info("alert", "level", alert.Level, "title", alert.Title, "message", alert.Message, "cycle_id", alert.CycleID)
	return nil
}

// Multi fans an alert out to every backend and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher delivers alerts from a bounded queue on its own goroutine so
// a slow backend never stalls the caller. Alerts are dropped when the queue
// is full.
type Dispatcher struct {
	next    Notifier
	queue   chan Alert
	timeout time.Duration
	dropped atomic.Uint64
	once    sync.Once
	done    chan struct{}
}

// NewDispatcher creates a Dispatcher with room for size pending alerts.
func NewDispatcher(next Notifier, size int) *Dispatcher {
	if size <= 0 {
		size = 64
	}
	return &Dispatcher{
		next:    next,
		queue:   make(chan Alert, size),
		timeout: 10 * time.Second,
		done:    make(chan struct{}),
	}
}

// Notify enqueues alert. Never blocks.
func (d *Dispatcher) Notify(alert Alert) {
	select {
	case d.queue <- alert:
	default:
		d.dropped.Add(1)
		slog.Warn("alert queue full, dropping", "title", alert.Title)
	}
}

// Dropped returns the number of alerts discarded on a full queue.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Run delivers queued alerts until ctx is cancelled, then drains what is
// left with a fresh deadline.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.once.Do(func() { close(d.done) })
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case a := <-d.queue:
			d.send(context.Background(), a)
		}
	}
}

// Done is closed once Run has returned.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) drain() {
	for {
		select {
		case a := <-d.queue:
			d.send(context.Background(), a)
		default:
			return
		}
	}
}

func (d *Dispatcher) send(parent context.Context, a Alert) {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()
	if err := d.next.Send(ctx, a); err != nil {
		slog.Error("alert delivery failed", "title", a.Title, "error", err)
	}
}
