// Package redis fans feature snapshots and trading decisions out to Redis
// so dashboards and other processes can follow the trader.
//
// Every write is one pipeline: SET the latest value, XADD to a capped
// stream and PUBLISH to a pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"breakout-trader/internal/model"
)

const (
	// A day of 1m decisions plus buffer
	streamMaxLen     = 1500
	defaultLatestTTL = 30 * time.Minute
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Publisher writes snapshot summaries and decisions to Redis.
type Publisher struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New creates a Publisher and pings the server.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", "addr", cfg.Addr)
	return &Publisher{client: client}, nil
}

// SnapshotSummary is the published form of a feature snapshot: the newest
// row plus table metadata. The full table stays in process.
type SnapshotSummary struct {
	Symbol    string           `json:"symbol"`
	Rows      int              `json:"rows"`
	CreatedAt time.Time        `json:"created_at"`
	Latest    model.FeatureRow `json:"latest"`
}

// Summarize builds the summary of snap. ok is false for an empty snapshot.
func Summarize(symbol string, snap *model.FeatureSnapshot) (SnapshotSummary, bool) {
	last, ok := snap.Last(0)
	if !ok {
		return SnapshotSummary{}, false
	}
	return SnapshotSummary{Symbol: symbol, Rows: snap.Len(), CreatedAt: snap.CreatedAt, Latest: last}, true
}

// Decision is the published form of one evaluated signal.
type Decision struct {
	Symbol string             `json:"symbol"`
	At     time.Time          `json:"at"`
	Signal model.SignalResult `json:"signal"`
}

func snapshotKeys(symbol string) (latest, stream, channel string) {
	return "features:latest:" + symbol, "features:" + symbol, "pub:features:" + symbol
}

func decisionKeys(symbol string) (latest, stream, channel string) {
	return "decision:latest:" + symbol, "decisions:" + symbol, "pub:decision:" + symbol
}

// WriteSnapshot publishes a snapshot summary.
func (p *Publisher) WriteSnapshot(ctx context.Context, s SnapshotSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	latest, stream, channel := snapshotKeys(s.Symbol)
	return p.pipeline(ctx, latest, stream, channel, string(data))
}

// WriteDecision publishes a decision.
func (p *Publisher) WriteDecision(ctx context.Context, d Decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	latest, stream, channel := decisionKeys(d.Symbol)
	return p.pipeline(ctx, latest, stream, channel, string(data))
}

// AppendDecision adds a decision to the stream without touching the latest
// key or the pub/sub channel. Used to backfill decisions older than the
// current latest.
func (p *Publisher) AppendDecision(ctx context.Context, d Decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	_, stream, _ := decisionKeys(d.Symbol)
	err = p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", stream, err)
	}
	return nil
}

func (p *Publisher) pipeline(ctx context.Context, latestKey, streamKey, channel, jsonData string) error {
	pipe := p.client.Pipeline()

	// SET latest with TTL
	pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)

	// XADD with approximate trimming
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: streamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": jsonData,
		},
	})

	// PUBLISH for real-time subscribers
	pipe.Publish(ctx, channel, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline %s: %w", streamKey, err)
	}
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
