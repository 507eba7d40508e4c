package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recorder) Send(ctx context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func TestWebhook_PostsJSON(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{
		Level: AlertWarning, Title: "stop loss", Message: "closed 30", Symbol: "BTCUSD", CycleID: "decide-1-1",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["level"] != "WARNING" || got["symbol"] != "BTCUSD" || got["cycle_id"] != "decide-1-1" {
		t.Errorf("unexpected payload %v", got)
	}
}

func TestWebhook_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestTelegram_FormatsMessage(t *testing.T) {
	var body map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42")
	tn.apiRoot = srv.URL
	if err := tn.Send(context.Background(), Alert{Level: AlertCritical, Title: "order failed", Message: "qty=10", Symbol: "BTCUSD"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %s", path)
	}
	text, _ := body["text"].(string)
	if !strings.Contains(text, "order failed") || !strings.Contains(text, "qty\\=10") || body["chat_id"] != "42" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"a.b", `a\.b`},
		{"x_y*z", `x\_y\*z`},
		{"(1-2)!", `\(1\-2\)\!`},
	}
	for _, tt := range tests {
		if got := escapeMarkdown(tt.in); got != tt.want {
			t.Errorf("escapeMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("down")}
	err := Multi{ok, bad}.Send(context.Background(), Alert{Title: "t"})
	if err == nil {
		t.Error("expected joined error")
	}
	if ok.count() != 1 || bad.count() != 1 {
		t.Error("every backend should receive the alert")
	}
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, 4)

	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	d.Notify(Alert{Title: "one"})
	deadline := time.Now().Add(time.Second)
	for rec.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.count() != 1 {
		t.Fatalf("delivered %d, want 1", rec.count())
	}

	cancel()
	<-d.Done()
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(&recorder{}, 2)
	for i := 0; i < 5; i++ {
		d.Notify(Alert{Title: "x"})
	}
	if d.Dropped() != 3 {
		t.Errorf("dropped = %d, want 3", d.Dropped())
	}
}
