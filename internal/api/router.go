// Package api serves the operator control API: read-only status endpoints and
// TOTP-guarded pause, resume and cancel-all actions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"breakout-trader/internal/execution"
	"breakout-trader/internal/model"
	"breakout-trader/internal/portfolio"
	"breakout-trader/internal/store/sqlite"
)

// TOTPHeader carries the one-time code for mutating requests.
const TOTPHeader = "X-TOTP"

// Controller is the slice of the execution loop the API drives.
type Controller interface {
	Pause()
	Resume()
	Paused() bool
	CancelAll(ctx context.Context) error
	LastDecision() *execution.Decision
	Equity() portfolio.EquitySummary
}

// SnapshotSource returns the latest published feature snapshot.
type SnapshotSource interface {
	Latest() (*model.FeatureSnapshot, uint64)
}

// LedgerReader lists recent P&L entries.
type LedgerReader interface {
	Recent(ctx context.Context, limit int) ([]model.PL, error)
}

// JournalReader lists recent order submissions.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]sqlite.OrderRecord, error)
}

// Deps wires the router. Ledger and Journal are optional.
type Deps struct {
	Symbol     string
	TOTPSecret string
	Control    Controller
	Snapshots  SnapshotSource
	Ledger     LedgerReader
	Journal    JournalReader

	// Now is used for TOTP validation; defaults to time.Now.
	Now func() time.Time
}

// NewRouter sets up HTTP routes for the control API.
func NewRouter(d Deps) *http.ServeMux {
	if d.Now == nil {
		d.Now = time.Now
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/v1/status", get(func(w http.ResponseWriter, r *http.Request) {
		_, version := d.Snapshots.Latest()
		writeJSON(w, http.StatusOK, map[string]any{
			"symbol":           d.Symbol,
			"paused":           d.Control.Paused(),
			"snapshot_version": version,
			"last_decision":    d.Control.LastDecision(),
			"equity":           d.Control.Equity(),
		})
	}))

	mux.HandleFunc("/api/v1/snapshot", get(func(w http.ResponseWriter, r *http.Request) {
		snap, version := d.Snapshots.Latest()
		if snap == nil {
			http.Error(w, "no snapshot published yet", http.StatusNotFound)
			return
		}
		rows := snap.Rows
		if n := queryLimit(r, 0); n > 0 && n < len(rows) {
			rows = rows[len(rows)-n:]
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    version,
			"created_at": snap.CreatedAt,
			"rows":       rows,
		})
	}))

	mux.HandleFunc("/api/v1/pl", get(func(w http.ResponseWriter, r *http.Request) {
		if d.Ledger == nil {
			http.Error(w, "ledger disabled", http.StatusNotFound)
			return
		}
		entries, err := d.Ledger.Recent(r.Context(), queryLimit(r, 100))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}))

	mux.HandleFunc("/api/v1/orders", get(func(w http.ResponseWriter, r *http.Request) {
		if d.Journal == nil {
			http.Error(w, "journal disabled", http.StatusNotFound)
			return
		}
		orders, err := d.Journal.Recent(r.Context(), queryLimit(r, 50))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, orders)
	}))

	guard := totpGuard(d.TOTPSecret, d.Now)

	mux.HandleFunc("/api/v1/pause", guard(func(w http.ResponseWriter, r *http.Request) {
		d.Control.Pause()
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "paused": true})
	}))

	mux.HandleFunc("/api/v1/resume", guard(func(w http.ResponseWriter, r *http.Request) {
		d.Control.Resume()
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "paused": false})
	}))

	mux.HandleFunc("/api/v1/cancel-all", guard(func(w http.ResponseWriter, r *http.Request) {
		if err := d.Control.CancelAll(r.Context()); err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, execution.ErrInFlight) {
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	return mux
}

// get rejects anything but GET.
func get(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "GET only", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// totpGuard requires POST and a valid code for secret. An empty secret
// disables the guarded endpoints entirely.
func totpGuard(secret string, now func() time.Time) func(http.HandlerFunc) http.HandlerFunc {
	return func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "POST only", http.StatusMethodNotAllowed)
				return
			}
			if secret == "" {
				http.Error(w, "control actions disabled", http.StatusForbidden)
				return
			}
			code := r.Header.Get(TOTPHeader)
			valid, err := totp.ValidateCustom(code, secret, now().UTC(), totp.ValidateOpts{
				Period:    30,
				Skew:      1,
				Digits:    otp.DigitsSix,
				Algorithm: otp.AlgorithmSHA1,
			})
			if err != nil || !valid {
				slog.Warn("control request rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, "invalid TOTP code", http.StatusUnauthorized)
				return
			}
			slog.Info("control request accepted", "path", r.URL.Path, "remote", r.RemoteAddr)
			h(w, r)
		}
	}
}

func queryLimit(r *http.Request, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return fallback
	}
	if n > 1000 {
		return 1000
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
