package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus represents the trader's health.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool      `json:"stream_connected"`
	LastRefreshAt   time.Time `json:"last_refresh_at"`
	LastDecisionAt  time.Time `json:"last_decision_at"`
	RedisEnabled    bool      `json:"redis_enabled"`
	RedisConnected  bool      `json:"redis_connected"`
	SQLiteOK        bool      `json:"sqlite_ok"`
	Paused          bool      `json:"paused"`
	PaperMode       bool      `json:"paper_mode"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	// A refresh older than this marks the trader degraded.
	StaleAfter time.Duration `json:"-"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(staleAfter time.Duration) *HealthStatus {
	return &HealthStatus{
		StartedAt:  time.Now(),
		StaleAfter: staleAfter,
		SQLiteOK:   true,
	}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastRefresh(t time.Time) {
	h.mu.Lock()
	h.LastRefreshAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastDecision(t time.Time) {
	h.mu.Lock()
	h.LastDecisionAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetPaused(v bool) {
	h.mu.Lock()
	h.Paused = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetPaperMode(v bool) {
	h.mu.Lock()
	h.PaperMode = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may
// be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	refreshAge := ""
	stale := h.LastRefreshAt.IsZero()
	if !h.LastRefreshAt.IsZero() {
		age := now.Sub(h.LastRefreshAt)
		refreshAge = age.Round(time.Millisecond).String()
		stale = h.StaleAfter > 0 && age > h.StaleAfter
	}

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if stale || (h.RedisEnabled && !h.RedisConnected) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		StreamConnected bool    `json:"stream_connected"`
		LastRefreshAt   string  `json:"last_refresh_at"`
		RefreshAge      string  `json:"refresh_age"`
		LastDecisionAt  string  `json:"last_decision_at"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		Paused          bool    `json:"paused"`
		PaperMode       bool    `json:"paper_mode"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          now.Sub(h.StartedAt).Round(time.Second).String(),
		StreamConnected: h.StreamConnected,
		LastRefreshAt:   h.LastRefreshAt.Format(time.RFC3339),
		RefreshAge:      refreshAge,
		LastDecisionAt:  h.LastDecisionAt.Format(time.RFC3339),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Paused:          h.Paused,
		PaperMode:       h.PaperMode,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}
