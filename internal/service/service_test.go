package service

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"breakout-trader/internal/api"
	"breakout-trader/internal/featurestore"
)

func TestControlServer_ReadOnlyWithoutSecret(t *testing.T) {
	srv := newControlServer(":0", api.Deps{Symbol: "BTCUSD", Snapshots: featurestore.New()})
	if srv == nil {
		t.Fatal("control server not built without a TOTP secret")
	}

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"health", http.MethodGet, "/api/v1/health", http.StatusOK},
		{"snapshot served", http.MethodGet, "/api/v1/snapshot", http.StatusNotFound},
		{"pause disabled", http.MethodPost, "/api/v1/pause", http.StatusForbidden},
		{"cancel disabled", http.MethodPost, "/api/v1/cancel-all", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestOpenDB(t *testing.T) {
	dir := t.TempDir()

	db, err := openDB(filepath.Join(dir, "nested", "trader.db"))
	if err != nil {
		t.Fatalf("openDB: %v", err)
	}
	db.Close()

	// A regular file where a directory is needed.
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = openDB(filepath.Join(blocker, "sub", "trader.db"))
	if err == nil {
		t.Fatal("expected error when the directory cannot be created")
	}
	if !strings.Contains(err.Error(), "sqlite dir") {
		t.Errorf("error %q does not name the directory failure", err)
	}
}
