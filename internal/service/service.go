// Package service wires the trader: gateway, feature refresher, execution
// loop, persistence, publishing, metrics and the control API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"breakout-trader/config"
	"breakout-trader/internal/api"
	"breakout-trader/internal/broker"
	"breakout-trader/internal/execution"
	"breakout-trader/internal/featurestore"
	"breakout-trader/internal/metrics"
	"breakout-trader/internal/model"
	"breakout-trader/internal/notification"
	"breakout-trader/internal/portfolio"
	"breakout-trader/internal/refresh"
	redisstore "breakout-trader/internal/store/redis"
	sqlitestore "breakout-trader/internal/store/sqlite"
	"breakout-trader/internal/strategy"
	"breakout-trader/pkg/bybit"
)

// Service is the top-level orchestrator for the trader.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg *config.Config

	prom   *metrics.Metrics
	health *metrics.HealthStatus

	client  *bybit.Client
	gateway model.Gateway
	paper   *execution.PaperGateway

	db        *sqlitestore.DB
	redisPub  *redisstore.Publisher
	publisher model.SnapshotPublisher

	store     *featurestore.Store
	refresher *refresh.Refresher
	loop      *execution.Loop
	stream    *bybit.Stream
	alerts    *notification.Dispatcher

	metricsSrv *metrics.Server
	controlSrv *http.Server
}

// New creates a Service from cfg. Only configuration and SQLite errors are
// fatal; Redis and the kline stream degrade gracefully.
func New(cfg *config.Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	indCfg, err := cfg.Indicators()
	if err != nil {
		return nil, err
	}
	rules, err := strategy.RulesByName(cfg.Rules())
	if err != nil {
		return nil, err
	}
	sizer, err := portfolio.NewSizer(cfg.StopRange, cfg.LossRate)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		cfg:    cfg,
		prom:   metrics.NewMetrics(nil),
		health: metrics.NewHealthStatus(3 * cfg.RefreshInterval),
		store:  featurestore.New(),
	}
	svc.health.SetPaperMode(cfg.PaperMode)

	// ---- Gateway ----
	svc.client = bybit.NewClient(bybit.Config{
		APIKey:    cfg.BybitAPIKey,
		APISecret: cfg.BybitAPISecret,
		Symbol:    cfg.Symbol,
		Testnet:   cfg.BybitTestnet,
		Timeout:   cfg.GatewayTimeout,
	})
	retry := broker.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.GatewayMaxRetries + 1
	live := broker.NewResilientGateway(svc.client, broker.Options{
		Timeout: cfg.GatewayTimeout,
		Retry:   retry,
		Breaker: broker.NewCircuitBreaker("bybit", 5, 30*time.Second),
		Metrics: svc.prom,
	})
	svc.gateway = live
	if cfg.PaperMode {
		svc.paper = execution.NewPaperGateway(live, cfg.Symbol, cfg.PaperBalance, cfg.PaperSlippageBps)
		svc.gateway = svc.paper
		slog.Warn("PAPER MODE: orders are simulated", "balance", cfg.PaperBalance, "slippage_bps", cfg.PaperSlippageBps)
	}

	// ---- Open SQLite ----
	svc.db, err = openDB(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	ledger := svc.db.Ledger()
	ledger.OnDuplicate = func(time.Time) { svc.prom.LedgerDuplicates.Inc() }

	// ---- Connect to Redis (optional) ----
	if cfg.RedisAddr != "" {
		svc.health.SetRedisEnabled(true)
		svc.redisPub, err = redisstore.New(redisstore.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			slog.Warn("redis unavailable, continuing without publishing", "addr", cfg.RedisAddr, "error", err)
		} else {
			svc.publisher = svc.newBufferedPublisher()
		}
	}

	// ---- Alerts ----
	svc.alerts = notification.NewDispatcher(newNotifier(cfg), 64)

	// ---- Refresher ----
	refreshOpts := []refresh.Option{
		refresh.WithArchive(svc.db.Bars()),
		refresh.WithMetrics(svc.prom, svc.health),
	}
	if svc.publisher != nil {
		refreshOpts = append(refreshOpts, refresh.WithPublisher(svc.publisher))
	}
	svc.refresher, err = refresh.New(svc.gateway, svc.store, refresh.Config{
		Symbol:      cfg.Symbol,
		Interval:    cfg.BarInterval,
		HistoryBars: cfg.HistoryBars,
		Every:       cfg.RefreshInterval,
		Indicators:  indCfg,
	}, refreshOpts...)
	if err != nil {
		svc.db.Close()
		return nil, err
	}

	// ---- Execution loop ----
	loopOpts := []execution.Option{
		execution.WithLedger(ledger),
		execution.WithJournal(svc.db.Journal()),
		execution.WithMetrics(svc.prom, svc.health),
		execution.WithAlerts(svc.alerts),
	}
	if svc.publisher != nil {
		loopOpts = append(loopOpts, execution.WithPublisher(svc.publisher))
	}
	svc.loop = execution.NewLoop(execution.Config{
		Symbol:       cfg.Symbol,
		Asset:        svc.client.Coin(),
		PollInterval: cfg.PollInterval,
		StopLoss:     cfg.StopLossEnabled,
	}, svc.gateway, svc.store, strategy.NewEngine(rules...), sizer, loopOpts...)

	// ---- Kline stream (optional wake-up source) ----
	if cfg.KlineStream {
		svc.stream = bybit.NewStream(bybit.StreamConfig{
			Testnet:  cfg.BybitTestnet,
			Symbol:   cfg.Symbol,
			Interval: cfg.BarInterval,
		})
		svc.stream.OnConnState = svc.health.SetStreamConnected
		svc.stream.OnReconnect = func(int, error) { svc.prom.StreamReconnects.Inc() }
	}

	// ---- HTTP servers ----
	svc.metricsSrv = metrics.NewServer(cfg.MetricsAddr, svc.health)
	svc.controlSrv = newControlServer(cfg.ControlAddr, api.Deps{
		Symbol:     cfg.Symbol,
		TOTPSecret: cfg.ControlTOTPSecret,
		Control:    svc.loop,
		Snapshots:  svc.store,
		Ledger:     ledger,
		Journal:    svc.db.Journal(),
	})
	if cfg.ControlTOTPSecret == "" {
		slog.Warn("CONTROL_TOTP_SECRET not set, control actions disabled")
	}

	return svc, nil
}

// openDB creates the parent directory of path and opens the database.
func openDB(path string) (*sqlitestore.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir %s: %w", dir, err)
		}
	}
	db, err := sqlitestore.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	return db, nil
}

// newControlServer serves the read-only endpoints always; the control
// actions answer 403 when d.TOTPSecret is empty.
func newControlServer(addr string, d api.Deps) *http.Server {
	return &http.Server{Addr: addr, Handler: api.NewRouter(d)}
}

// newNotifier builds the alert backends enabled in cfg. Alerts are always
// logged.
func newNotifier(cfg *config.Config) notification.Notifier {
	backends := notification.Multi{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.AlertWebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.AlertWebhookURL))
	}
	return backends
}

func (svc *Service) newBufferedPublisher() *redisstore.BufferedPublisher {
	cb := broker.NewCircuitBreaker("redis", 5, 10*time.Second)
	cb.OnStateChange = func(name string, from, to broker.State) {
		svc.prom.BreakerState.WithLabelValues(name).Set(float64(to))
		if to == broker.StateOpen {
			svc.prom.BreakerTrips.WithLabelValues(name).Inc()
		}
	}
	bp := redisstore.NewBufferedPublisher(svc.redisPub, cb, 1000)
	bp.OnError = func(err error) { svc.prom.PublishErrors.Inc() }
	bp.OnFlush = func(n int) { slog.Info("redis buffer flushed", "count", n) }
	return bp
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	cfg := svc.cfg
	slog.Info("starting trader",
		"symbol", cfg.Symbol,
		"interval", cfg.BarInterval,
		"history_bars", cfg.HistoryBars,
		"rules", cfg.Rules(),
		"paper", cfg.PaperMode,
		"testnet", cfg.BybitTestnet)

	svc.metricsSrv.Start()
	svc.health.StartLivenessChecker(ctx, svc.redisClient(), svc.db.SQL(), 10*time.Second)

	go func() {
		slog.Info("control API listening", "addr", svc.controlSrv.Addr)
		if err := svc.controlSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("control API error", "error", err)
		}
	}()

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("task stopped", "task", name, "error", err)
			}
		}()
	}

	go svc.alerts.Run(ctx)
	svc.alerts.Notify(notification.Alert{
		Level:   notification.AlertInfo,
		Title:   "Trader started",
		Message: fmt.Sprintf("interval=%s rules=%v paper=%t", cfg.BarInterval, cfg.Rules(), cfg.PaperMode),
		Symbol:  cfg.Symbol,
	})

	start("refresh", svc.refresher.Run)
	start("execution", svc.loop.Run)
	if svc.stream != nil {
		start("kline_stream", svc.runStream)
	}

	slog.Info("all systems running")
	<-ctx.Done()

	wg.Wait()
	<-svc.alerts.Done()
	svc.shutdown()
	return nil
}

// runStream wakes the refresher whenever a bar closes.
func (svc *Service) runStream(ctx context.Context) error {
	events := make(chan bybit.KlineEvent, 16)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				if !ev.Confirm {
					continue
				}
				svc.prom.StreamBarCloses.Inc()
				slog.Debug("bar closed, waking refresher", "open_time", ev.Bar.OpenTime, "close", ev.Bar.Close)
				svc.refresher.Wake()
			}
		}
	}()
	return svc.stream.Run(ctx, events)
}

func (svc *Service) redisClient() *goredis.Client {
	if svc.redisPub == nil {
		return nil
	}
	return svc.redisPub.Client()
}

// shutdown closes servers and connections.
func (svc *Service) shutdown() {
	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc.metricsSrv.Stop(ctx)
	svc.controlSrv.Shutdown(ctx)
	if svc.redisPub != nil {
		svc.redisPub.Close()
	}
	if err := svc.db.Close(); err != nil {
		slog.Error("sqlite close failed", "error", err)
	}
	slog.Info("shutdown complete")
}
