// Package logger provides structured logging functionality
package logger

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger for application-wide logging
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

// New creates a new structured logger
func New(cfg Config) *Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithComponent returns a logger with a component attribute
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With("component", component),
	}
}

// WithPayout returns a logger with payout context attributes
func (l *Logger) WithPayout(payoutID, recipientID string) *Logger {
	return &Logger{
		Logger: l.With("payout_id", payoutID, "recipient_id", recipientID),
	}
}

// WithRoyalty returns a logger with royalty context attributes
func (l *Logger) WithRoyalty(royaltyID, trackID string) *Logger {
	return &Logger{
		Logger: l.With("royalty_id", royaltyID, "track_id", trackID),
	}
}

// WithBatch returns a logger with batch-run context attributes
func (l *Logger) WithBatch(batch string) *Logger {
	return &Logger{
		Logger: l.With("batch", batch),
	}
}

// Default returns a default logger for quick usage
func Default() *Logger {
	return New(Config{
		Level:  "info",
		Format: "text",
	})
}
