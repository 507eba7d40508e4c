// Package metrics exposes Prometheus metrics and the /healthz probe for the
// trader.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the trader.
type Metrics struct {
	// Refresh cycle
	RefreshTotal    *prometheus.CounterVec // labels: result=ok|error
	RefreshDur      prometheus.Histogram
	FeatureDur      prometheus.Histogram
	SnapshotRows    prometheus.Gauge
	SnapshotVersion prometheus.Gauge
	BarLag          prometheus.Gauge // wall clock minus newest bar open time
	HistoryPages    prometheus.Counter

	// Decision cycle
	DecisionsTotal  *prometheus.CounterVec // labels: action=open|close|idle|skip|paused|error
	SignalsTotal    *prometheus.CounterVec // labels: direction
	OrdersTotal     *prometheus.CounterVec // labels: side, result=ok|error
	SizingErrors    prometheus.Counter
	InFlightRejects prometheus.Counter
	StopLossHits    prometheus.Counter
	DecisionDur     prometheus.Histogram

	// Account
	Equity       prometheus.Gauge
	DrawdownPct  prometheus.Gauge
	PositionSize prometheus.Gauge // signed: +long, -short

	// Gateway
	GatewayCallDur *prometheus.HistogramVec // labels: op
	GatewayErrors  *prometheus.CounterVec   // labels: op
	GatewayRetries *prometheus.CounterVec   // labels: op

	// Circuit breakers
	BreakerState *prometheus.GaugeVec   // labels: name; 0=closed, 1=open, 2=half-open
	BreakerTrips *prometheus.CounterVec // labels: name

	// Kline stream
	StreamReconnects prometheus.Counter
	StreamBarCloses  prometheus.Counter

	// Persistence and publishing
	LedgerDuplicates prometheus.Counter
	LedgerWriteDur   prometheus.Histogram
	PublishDur       prometheus.Histogram
	PublishErrors    prometheus.Counter
}

// NewMetrics registers and returns all metrics on reg. A nil reg registers
// on the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_refresh_total",
			Help: "Feature refresh cycles by result",
		}, []string{"result"}),
		RefreshDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_refresh_duration_seconds",
			Help:    "Fetch + compute + publish latency of one refresh cycle",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		FeatureDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_feature_compute_duration_seconds",
			Help:    "Indicator table compute latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		SnapshotRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_snapshot_rows",
			Help: "Rows in the latest published feature snapshot",
		}),
		SnapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_snapshot_version",
			Help: "Version of the latest published feature snapshot",
		}),
		BarLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_bar_lag_seconds",
			Help: "Wall clock minus the open time of the newest bar",
		}),
		HistoryPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_history_pages_total",
			Help: "Kline pages fetched from the venue",
		}),

		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_decisions_total",
			Help: "Decision cycles by resulting action",
		}, []string{"action"}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Evaluated signals by direction",
		}, []string{"direction"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Order submissions by side and result",
		}, []string{"side", "result"}),
		SizingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_sizing_errors_total",
			Help: "Cycles skipped because no quantity could be derived",
		}),
		InFlightRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_inflight_rejects_total",
			Help: "Decisions refused while a submission was outstanding",
		}),
		StopLossHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_stop_loss_hits_total",
			Help: "Positions closed by the stop-loss rule",
		}),
		DecisionDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_decision_duration_seconds",
			Help:    "Evaluate + act latency of one decision cycle",
			Buckets: prometheus.DefBuckets,
		}),

		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_equity",
			Help: "Account equity in the settlement asset",
		}),
		DrawdownPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_drawdown_pct",
			Help: "Drawdown from peak observed equity, percent",
		}),
		PositionSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_position_size",
			Help: "Signed position size (+long, -short)",
		}),

		GatewayCallDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trader_gateway_call_duration_seconds",
			Help:    "Venue call latency including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
		GatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_gateway_errors_total",
			Help: "Venue calls that failed after all retries",
		}, []string{"op"}),
		GatewayRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_gateway_retries_total",
			Help: "Venue call retry attempts",
		}, []string{"op"}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trader_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"name"}),

		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_stream_reconnects_total",
			Help: "Kline WebSocket reconnection attempts",
		}),
		StreamBarCloses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_stream_bar_closes_total",
			Help: "Confirmed bar closes received from the kline stream",
		}),

		LedgerDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_ledger_duplicates_total",
			Help: "Ledger inserts skipped on duplicate timestamp",
		}),
		LedgerWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_ledger_write_duration_seconds",
			Help:    "SQLite ledger insert latency",
			Buckets: prometheus.DefBuckets,
		}),
		PublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_publish_duration_seconds",
			Help:    "Redis snapshot/decision publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_publish_errors_total",
			Help: "Failed Redis publishes",
		}),
	}

	reg.MustRegister(
		m.RefreshTotal,
		m.RefreshDur,
		m.FeatureDur,
		m.SnapshotRows,
		m.SnapshotVersion,
		m.BarLag,
		m.HistoryPages,
		m.DecisionsTotal,
		m.SignalsTotal,
		m.OrdersTotal,
		m.SizingErrors,
		m.InFlightRejects,
		m.StopLossHits,
		m.DecisionDur,
		m.Equity,
		m.DrawdownPct,
		m.PositionSize,
		m.GatewayCallDur,
		m.GatewayErrors,
		m.GatewayRetries,
		m.BreakerState,
		m.BreakerTrips,
		m.StreamReconnects,
		m.StreamBarCloses,
		m.LedgerDuplicates,
		m.LedgerWriteDur,
		m.PublishDur,
		m.PublishErrors,
	)

	return m
}

// NewTestMetrics registers on a private registry so tests can create as
// many instances as they need.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
