package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"breakout-trader/internal/broker"
	"breakout-trader/internal/model"
)

// sink is the write side of Publisher.
type sink interface {
	WriteSnapshot(ctx context.Context, s SnapshotSummary) error
	WriteDecision(ctx context.Context, d Decision) error
	AppendDecision(ctx context.Context, d Decision) error
}

type writeKind int

const (
	kindSnapshot writeKind = iota
	kindDecision
)

// BufferedPublisher is the model.SnapshotPublisher used by the trader. It
// writes through a circuit breaker so a slow or absent Redis never stalls a
// cycle. While the breaker is open decisions are buffered (oldest dropped
// past maxBuf) and only the newest snapshot is kept. They are flushed after
// the first successful write once the breaker closes, without letting a
// buffered value overwrite the fresher latest key that write just set.
type BufferedPublisher struct {
	sink    sink
	cb      *broker.CircuitBreaker
	timeout time.Duration

	mu           sync.Mutex
	decisions    []Decision
	snapshot     *SnapshotSummary
	maxBuf       int
	flushPending bool

	// Optional hooks
	OnError  func(err error)
	OnBuffer func()
	OnFlush  func(count int)
}

var _ model.SnapshotPublisher = (*BufferedPublisher)(nil)

// NewBufferedPublisher wraps p.
func NewBufferedPublisher(p *Publisher, cb *broker.CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	return newBufferedPublisher(p, cb, maxBufferSize)
}

func newBufferedPublisher(s sink, cb *broker.CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	bp := &BufferedPublisher{
		sink:    s,
		cb:      cb,
		timeout: 2 * time.Second,
		maxBuf:  maxBufferSize,
	}

	// Flush once the breaker closes again
	prev := cb.OnStateChange
	cb.OnStateChange = func(name string, from, to broker.State) {
		if prev != nil {
			prev(name, from, to)
		}
		if to == broker.StateClosed {
			bp.mu.Lock()
			bp.flushPending = true
			bp.mu.Unlock()
		}
	}
	return bp
}

// PublishSnapshot implements model.SnapshotPublisher.
func (bp *BufferedPublisher) PublishSnapshot(ctx context.Context, symbol string, snap *model.FeatureSnapshot) {
	sum, ok := Summarize(symbol, snap)
	if !ok {
		return
	}
	err := bp.write(ctx, kindSnapshot, func(ctx context.Context) error { return bp.sink.WriteSnapshot(ctx, sum) })
	if err == broker.ErrCircuitOpen {
		bp.mu.Lock()
		bp.snapshot = &sum
		bp.mu.Unlock()
		bp.buffered()
		return
	}
	bp.report(err)
}

// PublishDecision implements model.SnapshotPublisher.
func (bp *BufferedPublisher) PublishDecision(ctx context.Context, symbol string, res model.SignalResult, at time.Time) {
	d := Decision{Symbol: symbol, At: at, Signal: res}
	err := bp.write(ctx, kindDecision, func(ctx context.Context) error { return bp.sink.WriteDecision(ctx, d) })
	if err == broker.ErrCircuitOpen {
		bp.mu.Lock()
		if len(bp.decisions) >= bp.maxBuf {
			bp.decisions = bp.decisions[1:]
		}
		bp.decisions = append(bp.decisions, d)
		bp.mu.Unlock()
		bp.buffered()
		return
	}
	bp.report(err)
}

func (bp *BufferedPublisher) write(ctx context.Context, kind writeKind, fn func(ctx context.Context) error) error {
	err := bp.cb.Execute(func() error {
		wctx, cancel := context.WithTimeout(ctx, bp.timeout)
		defer cancel()
		return fn(wctx)
	})
	if err == nil {
		bp.flushIfPending(ctx, kind)
	}
	return err
}

func (bp *BufferedPublisher) buffered() {
	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

func (bp *BufferedPublisher) report(err error) {
	if err == nil {
		return
	}
	slog.Warn("redis publish failed", "error", err)
	if bp.OnError != nil {
		bp.OnError(err)
	}
}

// flushIfPending replays buffered writes after a successful write of kind
// following a breaker close. Everything buffered is older than that write.
func (bp *BufferedPublisher) flushIfPending(ctx context.Context, kind writeKind) {
	bp.mu.Lock()
	if !bp.flushPending {
		bp.mu.Unlock()
		return
	}
	bp.flushPending = false
	decisions := bp.decisions
	snapshot := bp.snapshot
	bp.decisions = nil
	bp.snapshot = nil
	bp.mu.Unlock()

	flushed := 0
	for i, d := range decisions {
		var err error
		if kind == kindSnapshot && i == len(decisions)-1 {
			err = bp.sink.WriteDecision(ctx, d)
		} else {
			err = bp.sink.AppendDecision(ctx, d)
		}
		if err != nil {
			bp.report(err)
			continue
		}
		flushed++
	}
	if snapshot != nil && kind == kindSnapshot {
		slog.Debug("dropping superseded buffered snapshot")
	} else if snapshot != nil {
		if err := bp.sink.WriteSnapshot(ctx, *snapshot); err != nil {
			bp.report(err)
		} else {
			flushed++
		}
	}

	if flushed > 0 {
		slog.Info("flushed buffered redis writes", "count", flushed)
	}
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	n := len(bp.decisions)
	if bp.snapshot != nil {
		n++
	}
	return n
}
