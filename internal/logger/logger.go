// Package logger provides structured logging using log/slog.
// It sets up a JSON handler with service-level context and carries
// per-cycle identifiers through context.Context.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

type ctxKey string

const (
	cycleIDKey ctxKey = "cycle_id"
	symbolKey  ctxKey = "symbol"
)

// Init creates and returns a structured logger for the given service.
// The logger outputs JSON to stdout with the service name embedded.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Set as default so log/slog.Info() etc. also use structured output
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps debug/info/warn/error to a slog level. Unknown values
// fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCycleID stores a cycle ID in the context so every log line of one
// refresh or decision cycle can be correlated.
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, cycleIDKey, cycleID)
}

// CycleID extracts the cycle ID from context. Returns "" if not set.
func CycleID(ctx context.Context) string {
	if v, ok := ctx.Value(cycleIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSymbol stores the traded symbol in the context.
func WithSymbol(ctx context.Context, symbol string) context.Context {
	return context.WithValue(ctx, symbolKey, symbol)
}

var cycleSeq atomic.Uint64

// NewCycleID returns "{kind}-{unixMilli}-{seq}". The sequence keeps IDs
// unique when two cycles start within the same millisecond.
func NewCycleID(kind string, ts time.Time) string {
	return fmt.Sprintf("%s-%d-%d", kind, ts.UnixMilli(), cycleSeq.Add(1))
}

// Attrs returns slog attributes for the cycle ID and symbol in context.
// Usage: slog.Info("msg", logger.Attrs(ctx)...)
func Attrs(ctx context.Context) []any {
	var attrs []any
	if id := CycleID(ctx); id != "" {
		attrs = append(attrs, slog.String("cycle_id", id))
	}
	if sym, ok := ctx.Value(symbolKey).(string); ok && sym != "" {
		attrs = append(attrs, slog.String("symbol", sym))
	}
	return attrs
}
