package flatfilter

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with flatfilter-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithBlob adds a blob field to the logger.
func (l *Logger) WithBlob(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("blob", name),
	}
}

// WithGeneration adds a generation field to the logger.
func (l *Logger) WithGeneration(generation uint64) *Logger {
	return &Logger{
		Logger: l.Logger.With("generation", generation),
	}
}

// LogLoad logs a finished load attempt.
func (l *Logger) LogLoad(ctx context.Context, blob string, size int64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"blob", blob,
			"size", size,
			"duration", duration,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "load completed",
			"blob", blob,
			"size", size,
			"duration", duration,
		)
	}
}

// LogSwap logs a generation swap.
func (l *Logger) LogSwap(ctx context.Context, from, to uint64, listName string, filters int) {
	l.InfoContext(ctx, "generation swapped",
		"from", from,
		"to", to,
		"list", listName,
		"filters", filters,
	)
}

// LogReject logs a blob that was refused at stage.
func (l *Logger) LogReject(ctx context.Context, blob, stage string, err error) {
	l.WarnContext(ctx, "blob rejected, keeping current generation",
		"blob", blob,
		"stage", stage,
		"error", err,
	)
}
