package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"breakout-trader/internal/execution"
	"breakout-trader/internal/model"
	"breakout-trader/internal/portfolio"
)

const testSecret = "JBSWY3DPEHPK3PXP"

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeControl struct {
	paused    bool
	cancelled int
	cancelErr error
}

func (f *fakeControl) Pause()       { f.paused = true }
func (f *fakeControl) Resume()      { f.paused = false }
func (f *fakeControl) Paused() bool { return f.paused }
func (f *fakeControl) CancelAll(ctx context.Context) error {
	f.cancelled++
	return f.cancelErr
}
func (f *fakeControl) LastDecision() *execution.Decision {
	return &execution.Decision{Action: execution.ActionIdle}
}
func (f *fakeControl) Equity() portfolio.EquitySummary {
	return portfolio.EquitySummary{Start: 1, Peak: 1.2}
}

type fakeSnapshots struct {
	snap    *model.FeatureSnapshot
	version uint64
}

func (f fakeSnapshots) Latest() (*model.FeatureSnapshot, uint64) { return f.snap, f.version }

type fakeLedger []model.PL

func (f fakeLedger) Recent(ctx context.Context, limit int) ([]model.PL, error) {
	if limit < len(f) {
		return f[:limit], nil
	}
	return f, nil
}

func newTestRouter(ctl *fakeControl, snaps fakeSnapshots) *http.ServeMux {
	return NewRouter(Deps{
		Symbol:     "BTCUSD",
		TOTPSecret: testSecret,
		Control:    ctl,
		Snapshots:  snaps,
		Ledger:     fakeLedger{{Timestamp: fixedNow, Equity: 1, Side: model.SideNone}},
		Now:        func() time.Time { return fixedNow },
	})
}

func validCode(t *testing.T) string {
	t.Helper()
	code, err := totp.GenerateCode(testSecret, fixedNow)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	return code
}

func do(mux http.Handler, method, path, code string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if code != "" {
		req.Header.Set(TOTPHeader, code)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestControl_TOTPGuard(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		code       func(t *testing.T) string
		wantStatus int
		wantPaused bool
	}{
		{"valid code", http.MethodPost, validCode, http.StatusOK, true},
		{"missing code", http.MethodPost, func(*testing.T) string { return "" }, http.StatusUnauthorized, false},
		{"wrong code", http.MethodPost, func(*testing.T) string { return "000000" }, http.StatusUnauthorized, false},
		{"GET not allowed", http.MethodGet, validCode, http.StatusMethodNotAllowed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &fakeControl{}
			rec := do(newTestRouter(ctl, fakeSnapshots{}), tt.method, "/api/v1/pause", tt.code(t))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if ctl.paused != tt.wantPaused {
				t.Errorf("paused = %t, want %t", ctl.paused, tt.wantPaused)
			}
		})
	}
}

func TestControl_ResumeAndCancel(t *testing.T) {
	ctl := &fakeControl{paused: true}
	mux := newTestRouter(ctl, fakeSnapshots{})

	if rec := do(mux, http.MethodPost, "/api/v1/resume", validCode(t)); rec.Code != http.StatusOK || ctl.paused {
		t.Errorf("resume: status %d paused %t", rec.Code, ctl.paused)
	}
	if rec := do(mux, http.MethodPost, "/api/v1/cancel-all", validCode(t)); rec.Code != http.StatusOK || ctl.cancelled != 1 {
		t.Errorf("cancel-all: status %d cancelled %d", rec.Code, ctl.cancelled)
	}

	ctl.cancelErr = execution.ErrInFlight
	if rec := do(mux, http.MethodPost, "/api/v1/cancel-all", validCode(t)); rec.Code != http.StatusConflict {
		t.Errorf("cancel-all in flight: status %d, want 409", rec.Code)
	}
}

func TestControl_DisabledWithoutSecret(t *testing.T) {
	ctl := &fakeControl{}
	mux := NewRouter(Deps{Control: ctl, Snapshots: fakeSnapshots{}})
	if rec := do(mux, http.MethodPost, "/api/v1/pause", "123456"); rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if ctl.paused {
		t.Error("paused without a secret configured")
	}
}

func TestStatusAndSnapshot(t *testing.T) {
	snap := &model.FeatureSnapshot{
		Rows: []model.FeatureRow{
			{Bar: model.Bar{OpenTime: fixedNow, Close: 1}},
			{Bar: model.Bar{OpenTime: fixedNow.Add(time.Minute), Close: 2}},
		},
		CreatedAt: fixedNow,
	}
	mux := newTestRouter(&fakeControl{}, fakeSnapshots{snap: snap, version: 7})

	rec := do(mux, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status["symbol"] != "BTCUSD" || status["snapshot_version"] != float64(7) {
		t.Errorf("unexpected status %v", status)
	}

	rec = do(mux, http.MethodGet, "/api/v1/snapshot?limit=1", "")
	var body struct {
		Version uint64             `json:"version"`
		Rows    []model.FeatureRow `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Version != 7 || len(body.Rows) != 1 || body.Rows[0].Close != 2 {
		t.Errorf("unexpected snapshot body %+v", body)
	}

	rec = do(mux, http.MethodGet, "/api/v1/pl", "")
	if rec.Code != http.StatusOK {
		t.Errorf("pl: %d", rec.Code)
	}
	if rec := do(mux, http.MethodGet, "/api/v1/orders", ""); rec.Code != http.StatusNotFound {
		t.Errorf("orders without journal: %d, want 404", rec.Code)
	}
}

func TestSnapshot_NotPublished(t *testing.T) {
	mux := newTestRouter(&fakeControl{}, fakeSnapshots{})
	if rec := do(mux, http.MethodGet, "/api/v1/snapshot", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
