package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	opLogger atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

func init() {
	logLevel.Set(slog.LevelInfo)
	opLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

// Op returns the operational logger used by the daemon, the CLI and the
// cache core. Per-command records go through CommandLogger instead.
func Op() *slog.Logger {
	return opLogger.Load()
}

// SetLevelFromString sets the operational log level.
// Valid values: "debug", "info", "warn", "error". Unknown values are ignored.
func SetLevelFromString(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "info":
		logLevel.Set(slog.LevelInfo)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	}
}

// InitStructured reconfigures the operational logger.
// format: "text" (default) or "json".
func InitStructured(format, level string) {
	InitStructuredTo(os.Stderr, format, level)
}

// InitStructuredTo is InitStructured with an explicit destination.
func InitStructuredTo(w io.Writer, format, level string) {
	SetLevelFromString(level)

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	opLogger.Store(slog.New(handler))
}

// OpWithTrace returns the operational logger with trace context fields.
func OpWithTrace(traceID, spanID string) *slog.Logger {
	l := opLogger.Load()
	if traceID == "" {
		return l
	}
	args := []any{"trace_id", traceID}
	if spanID != "" {
		args = append(args, "span_id", spanID)
	}
	return l.With(args...)
}
