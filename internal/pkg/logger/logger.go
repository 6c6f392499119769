// Package logger configures the process-wide slog JSON logger and derives
// request-scoped loggers that carry the active trace.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

const serviceName = "mailrelay"

// Init installs a JSON logger at level as the slog default. Debug level also
// records the source position.
func Init(level string) *slog.Logger {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts)).With(slog.String("service", serviceName))
	slog.SetDefault(logger)
	return logger
}

// From returns the default logger, annotated with trace and span ids when ctx
// carries a sampled or remote span.
func From(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		logger = logger.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}

	return logger
}

func parseLevel(level string) slog.Level {
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
