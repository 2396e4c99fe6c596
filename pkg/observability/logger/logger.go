// Package logger provides the structured logging interface used across the
// redis wrapper, backed by zap.
package logger

import (
	"context"
)

// Logger defines the interface for structured logging.
// All log methods accept a message string followed by key-value pairs for structured fields.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With creates a child logger with additional key-value pairs that will be
	// included in all subsequent log entries
	With(args ...any) Logger

	// WithContext creates a child logger carrying the trace and span IDs of
	// the active span in ctx, if any
	WithContext(ctx context.Context) Logger
}
