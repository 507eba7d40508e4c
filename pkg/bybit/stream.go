package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"breakout-trader/internal/model"
)

const (
	defaultStreamURL = "wss://stream.bybit.com/realtime"
	testnetStreamURL = "wss://stream-testnet.bybit.com/realtime"
)

// StreamConfig configures a kline Stream.
type StreamConfig struct {
	URL      string // overrides the mainnet/testnet default
	Testnet  bool
	Symbol   string
	Interval string

	PingInterval time.Duration // default: 20s
	ReadTimeout  time.Duration // default: 60s
	MaxBackoff   time.Duration // default: 30s
}

// KlineEvent is one kline update. Confirm is set on the final update of a
// bar, once the interval has closed.
type KlineEvent struct {
	Bar     model.Bar
	Confirm bool
	At      time.Time
}

// Stream follows the public klineV2 topic for one symbol and interval,
// reconnecting with backoff until its context is cancelled.
type Stream struct {
	cfg   StreamConfig
	topic string
	log   *slog.Logger

	// Optional hooks
	OnConnState func(connected bool)
	OnReconnect func(attempt int, err error)
}

// NewStream creates a Stream.
func NewStream(cfg StreamConfig) *Stream {
	if cfg.URL == "" {
		cfg.URL = defaultStreamURL
		if cfg.Testnet {
			cfg.URL = testnetStreamURL
		}
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Stream{
		cfg:   cfg,
		topic: fmt.Sprintf("klineV2.%s.%s", cfg.Interval, cfg.Symbol),
		log:   slog.Default().With("component", "kline_stream"),
	}
}

// Topic returns the subscribed topic name.
func (s *Stream) Topic() string { return s.topic }

// Run delivers kline events to out until ctx is done. It never returns a
// connection error; disconnects are retried with exponential backoff.
func (s *Stream) Run(ctx context.Context, out chan<- KlineEvent) error {
	backoff := time.Second
	attempt := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.consume(ctx, out)
		s.setConnected(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		s.log.Warn("kline stream disconnected, retrying", "error", err, "attempt", attempt, "backoff", backoff)
		if s.OnReconnect != nil {
			s.OnReconnect(attempt, err)
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(math.Min(float64(s.cfg.MaxBackoff), float64(backoff)*1.8))
	}
}

func (s *Stream) setConnected(v bool) {
	if s.OnConnState != nil {
		s.OnConnState(v)
	}
}

type wsRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

type wsMessage struct {
	Topic   string        `json:"topic"`
	Data    []klineUpdate `json:"data"`
	Success *bool         `json:"success"`
	RetMsg  string        `json:"ret_msg"`
}

type klineUpdate struct {
	Start     int64  `json:"start"` // unix seconds
	End       int64  `json:"end"`
	Open      number `json:"open"`
	High      number `json:"high"`
	Low       number `json:"low"`
	Close     number `json:"close"`
	Confirm   bool   `json:"confirm"`
	Timestamp int64  `json:"timestamp"` // unix micros
}

func (s *Stream) consume(ctx context.Context, out chan<- KlineEvent) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetReadLimit(1 << 20)
	if err := conn.WriteJSON(wsRequest{Op: "subscribe", Args: []string{s.topic}}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info("connected kline stream", "topic", s.topic)
	s.setConnected(true)

	conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

	// Closing the connection unblocks ReadMessage on cancel.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(wsRequest{Op: "ping"}); err != nil {
					s.log.Warn("kline stream ping failed", "error", err)
					conn.Close()
					return
				}
			case <-connCtx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.log.Warn("failed to decode kline message", "error", err)
			continue
		}
		if msg.Success != nil {
			if !*msg.Success {
				return fmt.Errorf("stream request rejected: %s", msg.RetMsg)
			}
			continue
		}
		if !strings.EqualFold(msg.Topic, s.topic) {
			continue
		}

		for _, u := range msg.Data {
			ev := KlineEvent{
				Bar: model.Bar{
					OpenTime: time.Unix(u.Start, 0).UTC(),
					Open:     float64(u.Open),
					High:     float64(u.High),
					Low:      float64(u.Low),
					Close:    float64(u.Close),
				},
				Confirm: u.Confirm,
				At:      time.UnixMicro(u.Timestamp).UTC(),
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
