// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context and provides
// update-ID propagation through context.Context: the analyzer allocates
// one id per AddK call, so every log line produced while folding one
// bar through the layers can be correlated.
package logger

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

type ctxKey string

const updateIDKey ctxKey = "update_id"

var updateSeq atomic.Uint64

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

// NextUpdateID allocates the next update id. Ids are monotonically
// increasing and never reused within a process.
func NextUpdateID() uint64 {
	return updateSeq.Add(1)
}

// WithUpdateID stores an update id in the context for downstream
// propagation.
func WithUpdateID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, updateIDKey, id)
}

// UpdateID extracts the update id from context. Returns 0 if not set.
func UpdateID(ctx context.Context) uint64 {
	if v, ok := ctx.Value(updateIDKey).(uint64); ok {
		return v
	}
	return 0
}

// LogWithUpdate returns slog attributes including the update id from
// context. Usage: slog.Warn("msg", logger.LogWithUpdate(ctx)...)
func LogWithUpdate(ctx context.Context) []any {
	id := UpdateID(ctx)
	if id == 0 {
		return nil
	}
	return []any{slog.Uint64("update_id", id)}
}
