// Package logging provides structured logging for the tierd daemon.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports both text and JSON
// output formats, configurable log levels, and component-based loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for production
//
//	// Get a component logger
//	log := logging.Component("archive")
//	log.Info("partition archived", "partition", name, "dest", dest)
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if jsonFormat {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("backup")
//	log.Info("started") // Output: time=... level=INFO component=backup msg=started
func Component(name string) *slog.Logger {
	if Logger == nil {
		Init(slog.LevelInfo, false)
	}
	return Logger.With("component", name)
}

// WithContext extends logger with the operation and partition names carried
// by ctx, when present. Saga steps put those into the context once and every
// log line below them picks the attributes up.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if op, ok := ctx.Value(contextKeyOperation).(string); ok {
		logger = logger.With("operation", op)
	}
	if partition, ok := ctx.Value(contextKeyPartition).(string); ok {
		logger = logger.With("partition", partition)
	}
	return logger
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeyOperation contextKey = iota
	contextKeyPartition
)

// ContextWithOperation adds an operation name to the context for logging.
func ContextWithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, contextKeyOperation, op)
}

// ContextWithPartition adds a partition name to the context for logging.
func ContextWithPartition(ctx context.Context, partition string) context.Context {
	return context.WithValue(ctx, contextKeyPartition, partition)
}
