// Package logging wraps log/slog with the small set of structured
// events pkg/session and pkg/manager emit.
//
// No example in the retrieval pack reaches for a dedicated third-party
// logging façade as its primary API; the closest precedent
// (marmos91-dittofs/internal/logger) wraps the standard library's
// log/slog with typed attribute helpers rather than introducing a
// separate logging dependency. This package follows that precedent.
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the subset of *slog.Logger this package's callers use.
type Logger = slog.Logger

var def = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Default returns the process-wide fallback logger, used by components
// constructed without an explicit logger.
func Default() *Logger { return def }

// SetDefault replaces the process-wide fallback logger.
func SetDefault(l *Logger) { def = l }

// WithPort returns a logger scoped to a named port, for session-engine
// and manager events.
func WithPort(l *Logger, portName string) *Logger {
	if l == nil {
		l = def
	}
	return l.With(slog.String("port", portName))
}

// Debug logs a debug-level event on l, or on the default logger when l
// is nil.
func Debug(ctx context.Context, l *Logger, msg string, args ...any) {
	if l == nil {
		l = def
	}
	l.DebugContext(ctx, msg, args...)
}

// Warn logs a warn-level event: a recoverable protocol anomaly that does
// not by itself fail the connection (e.g. a mismatched SelectRsp
// SystemBytes).
func Warn(ctx context.Context, l *Logger, msg string, args ...any) {
	if l == nil {
		l = def
	}
	l.WarnContext(ctx, msg, args...)
}

// Error logs an error-level event: a connection-failing protocol
// violation or I/O error.
func Error(ctx context.Context, l *Logger, msg string, args ...any) {
	if l == nil {
		l = def
	}
	l.ErrorContext(ctx, msg, args...)
}
