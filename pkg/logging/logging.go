// Package logging wraps log/slog the way the teacher's packages use it
// throughout the codebase (pkg/observability, pkg/context/assembler.go,
// pkg/console): a component-scoped *slog.Logger obtained with .With, JSON
// handler in production, text handler for local runs. Nothing here
// reimplements slog; it only standardizes construction.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Format selects the slog.Handler backing a Logger.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config controls logger construction.
type Config struct {
	Format Format
	Level  slog.Level
	Output io.Writer // defaults to os.Stderr
}

// New builds a *slog.Logger per cfg, scoped to component via .With.
func New(component string, cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler).With("component", component)
}

// Noop returns a logger that discards everything, for tests that want a
// Logger dependency without console noise.
func Noop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// WithFields returns a child logger carrying the given key/value pairs,
// mirroring the .With(...) call sites throughout the teacher's packages.
func WithFields(l *slog.Logger, kvs ...any) *slog.Logger {
	return l.With(kvs...)
}

// ContextLogger is the capability interface subsystems depend on instead of
// importing log/slog directly, so tests can substitute a recording logger.
type ContextLogger interface {
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
	DebugContext(ctx context.Context, msg string, args ...any)
}

var _ ContextLogger = (*slog.Logger)(nil)
