package logger

import (
	"context"
	"log/slog"
)

// Logger is the global logger instance
var Logger *slog.Logger

func init() {
	Logger = NewLogger(LoadConfig())
}

// DebugContext logs a debug message with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	Logger.DebugContext(ctx, msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// InfoContext logs an info message with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	Logger.InfoContext(ctx, msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

// With returns a new Logger that includes the given attributes in each output operation.
// Loggers derived from it still read context values in their *Context methods.
func With(args ...any) *slog.Logger {
	return Logger.With(args...)
}

// Discard returns a logger that drops every record. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
