package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func getHealth(t *testing.T, h *HealthStatus) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

func TestHealth_NoRefreshYetIsDegraded(t *testing.T) {
	h := NewHealthStatus(time.Minute)
	code, body := getHealth(t, h)
	if code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Errorf("expected degraded/503, got %v/%d", body["status"], code)
	}
}

func TestHealth_FreshRefreshIsHealthy(t *testing.T) {
	h := NewHealthStatus(time.Minute)
	h.SetLastRefresh(time.Now())
	code, body := getHealth(t, h)
	if code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("expected healthy/200, got %v/%d", body["status"], code)
	}
}

func TestHealth_StaleRefresh(t *testing.T) {
	h := NewHealthStatus(time.Second)
	h.SetLastRefresh(time.Now().Add(-time.Minute))
	if _, body := getHealth(t, h); body["status"] != "degraded" {
		t.Errorf("expected degraded, got %v", body["status"])
	}
}

func TestHealth_RedisOnlyMattersWhenEnabled(t *testing.T) {
	h := NewHealthStatus(time.Minute)
	h.SetLastRefresh(time.Now())
	if _, body := getHealth(t, h); body["status"] != "healthy" {
		t.Fatalf("redis disabled: expected healthy, got %v", body["status"])
	}
	h.SetRedisEnabled(true)
	if _, body := getHealth(t, h); body["status"] != "degraded" {
		t.Errorf("redis enabled but not connected: expected degraded, got %v", body["status"])
	}
}

func TestHealth_PausedReported(t *testing.T) {
	h := NewHealthStatus(time.Minute)
	h.SetLastRefresh(time.Now())
	h.SetPaused(true)
	if _, body := getHealth(t, h); body["paused"] != true {
		t.Errorf("expected paused=true, got %v", body["paused"])
	}
}

func TestNewTestMetrics_Independent(t *testing.T) {
	a := NewTestMetrics()
	b := NewTestMetrics()
	a.SizingErrors.Inc()
	if a == b {
		t.Fatal("expected distinct instances")
	}
}
