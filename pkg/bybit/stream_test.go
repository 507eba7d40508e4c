package bybit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStream_DeliversKlinesAndReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var conns atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		n := conns.Add(1)

		var sub wsRequest
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if sub.Op != "subscribe" || len(sub.Args) != 1 || sub.Args[0] != "klineV2.1.BTCUSD" {
			t.Errorf("unexpected subscribe %+v", sub)
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"success":true,"ret_msg":"","request":{"op":"subscribe"}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"klineV2.5.ETHUSD","data":[{"start":1,"open":1,"high":1,"low":1,"close":1,"confirm":true}]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"topic":"klineV2.1.BTCUSD","data":[{"start":1700000000,"end":1700000060,"open":100,"high":101,"low":99,"close":100.5,"confirm":`+
			map[bool]string{true: "true", false: "false"}[n > 1]+`,"timestamp":1700000059000000}]}`))

		if n == 1 {
			return // drop the first connection
		}
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	s := NewStream(StreamConfig{
		URL:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbol:   "BTCUSD",
		Interval: "1",
	})
	var reconnects atomic.Int32
	s.OnReconnect = func(int, error) { reconnects.Add(1) }

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := make(chan KlineEvent, 4)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, out) }()

	first := <-out
	if first.Confirm || first.Bar.Close != 100.5 {
		t.Errorf("unexpected first event %+v", first)
	}
	select {
	case second := <-out:
		if !second.Confirm {
			t.Errorf("expected confirmed bar after reconnect, got %+v", second)
		}
		if !second.Bar.OpenTime.Equal(time.Unix(1700000000, 0)) {
			t.Errorf("unexpected open time %v", second.Bar.OpenTime)
		}
	case <-ctx.Done():
		t.Fatal("no event after reconnect")
	}
	if reconnects.Load() < 1 {
		t.Error("expected at least one reconnect")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStream_Topic(t *testing.T) {
	s := NewStream(StreamConfig{Symbol: "BTCUSD", Interval: "5", Testnet: true})
	if s.Topic() != "klineV2.5.BTCUSD" || s.cfg.URL != testnetStreamURL {
		t.Errorf("unexpected topic %s url %s", s.Topic(), s.cfg.URL)
	}
}
