// Package logger provides structured logging setup using slog.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// jobUUIDKey is the context key for the job identity being processed.
type jobUUIDKey struct{}

// New creates a new structured JSON logger writing to stdout at the given
// level ("debug", "info", "warn", "error"). Unknown levels fall back to info.
func New(level string) *slog.Logger {
	return NewWithWriter(os.Stdout, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// WithJobUUID returns a new context carrying the given job uuid.
func WithJobUUID(ctx context.Context, jobUUID string) context.Context {
	return context.WithValue(ctx, jobUUIDKey{}, jobUUID)
}

// JobUUIDFromContext extracts the job uuid from the context.
func JobUUIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(jobUUIDKey{}).(string); ok {
		return v
	}
	return ""
}

// FromContext returns a logger with context fields (job uuid, etc.) attached.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if id := JobUUIDFromContext(ctx); id != "" {
		return base.With("job_uuid", id)
	}
	return base
}
