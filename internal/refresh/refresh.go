// Package refresh runs the feature refresh task: fetch bar history, compute
// the feature table and publish it to the FeatureStore, then sleep until the
// next interval or an early wake-up.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"breakout-trader/internal/featurestore"
	"breakout-trader/internal/indicator"
	"breakout-trader/internal/logger"
	"breakout-trader/internal/metrics"
	"breakout-trader/internal/model"
)

// Config configures a Refresher.
type Config struct {
	Symbol      string
	Interval    string
	HistoryBars int
	Every       time.Duration // default: 20s
	Indicators  indicator.Config
}

// BarArchive receives every fetched history window. Optional.
type BarArchive interface {
	Save(ctx context.Context, symbol, interval string, bars []model.Bar) error
}

// Refresher is the single writer of the FeatureStore.
type Refresher struct {
	cfg   Config
	gw    model.Gateway
	store *featurestore.Store

	pub     model.SnapshotPublisher
	archive BarArchive
	m       *metrics.Metrics
	health  *metrics.HealthStatus

	wake chan struct{}
	now  func() time.Time
}

// Option configures optional collaborators.
type Option func(*Refresher)

// WithPublisher fans each published snapshot out to p.
func WithPublisher(p model.SnapshotPublisher) Option { return func(r *Refresher) { r.pub = p } }

// WithArchive stores each fetched window in a.
func WithArchive(a BarArchive) Option { return func(r *Refresher) { r.archive = a } }

// WithMetrics records refresh metrics and health.
func WithMetrics(m *metrics.Metrics, h *metrics.HealthStatus) Option {
	return func(r *Refresher) { r.m, r.health = m, h }
}

// New creates a Refresher.
func New(gw model.Gateway, store *featurestore.Store, cfg Config, opts ...Option) (*Refresher, error) {
	if err := cfg.Indicators.Validate(); err != nil {
		return nil, err
	}
	if _, err := model.IntervalDuration(cfg.Interval); err != nil {
		return nil, err
	}
	if err := cfg.Indicators.CheckHistory(cfg.HistoryBars); err != nil {
		return nil, fmt.Errorf("history bars: %w", err)
	}
	if cfg.Every <= 0 {
		cfg.Every = 20 * time.Second
	}

	r := &Refresher{
		cfg:   cfg,
		gw:    gw,
		store: store,
		wake:  make(chan struct{}, 1),
		now:   time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Wake requests an early refresh. Never blocks; wakes that arrive while one
// is already pending are merged.
func (r *Refresher) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// RefreshOnce fetches, computes and publishes one snapshot. It returns the
// published version.
func (r *Refresher) RefreshOnce(ctx context.Context) (uint64, error) {
	start := r.now()

	bars, pages, err := FetchHistory(ctx, r.gw, r.cfg.Interval, r.cfg.HistoryBars, start)
	if r.m != nil {
		r.m.HistoryPages.Add(float64(pages))
	}
	if err != nil {
		return 0, err
	}
	if err := r.cfg.Indicators.CheckHistory(len(bars)); err != nil {
		return 0, err
	}

	if r.archive != nil {
		if err := r.archive.Save(ctx, r.cfg.Symbol, r.cfg.Interval, bars); err != nil {
			slog.Warn("bar archive save failed", append(logger.Attrs(ctx), "error", err)...)
		}
	}

	computeStart := time.Now()
	snap := indicator.Compute(bars, r.cfg.Indicators)
	if r.m != nil {
		r.m.FeatureDur.Observe(time.Since(computeStart).Seconds())
	}
	snap.CreatedAt = r.now()

	version, ok := r.store.Publish(&snap)
	if !ok {
		return 0, &model.InsufficientHistoryError{Have: len(bars), Need: r.cfg.Indicators.WarmUp()}
	}

	if r.pub != nil {
		r.pub.PublishSnapshot(ctx, r.cfg.Symbol, &snap)
	}
	if r.m != nil {
		r.m.SnapshotRows.Set(float64(snap.Len()))
		r.m.SnapshotVersion.Set(float64(version))
		r.m.BarLag.Set(r.now().Sub(snap.LatestOpenTime()).Seconds())
		r.m.RefreshDur.Observe(r.now().Sub(start).Seconds())
	}
	if r.health != nil {
		r.health.SetLastRefresh(snap.CreatedAt)
	}

	last, _ := snap.Last(0)
	slog.Info("features published", append(logger.Attrs(ctx),
		"version", version,
		"rows", snap.Len(),
		"bars", len(bars),
		"pages", pages,
		"last_open", last.OpenTime,
		"close", last.Close,
	)...)
	return version, nil
}

// Run refreshes until ctx is cancelled. A failed cycle is logged and retried
// on the next interval; it never ends the loop.
func (r *Refresher) Run(ctx context.Context) error {
	slog.Info("refresher started",
		"symbol", r.cfg.Symbol, "interval", r.cfg.Interval,
		"history_bars", r.cfg.HistoryBars, "every", r.cfg.Every)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-r.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		cctx := logger.WithCycleID(ctx, logger.NewCycleID("refresh", r.now()))
		_, err := r.RefreshOnce(cctx)
		if r.m != nil {
			result := "ok"
			if err != nil {
				result = "error"
			}
			r.m.RefreshTotal.WithLabelValues(result).Inc()
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("refresh failed", append(logger.Attrs(cctx), "error", err)...)
		}

		timer.Reset(r.cfg.Every)
	}
}
