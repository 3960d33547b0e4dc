// Package log provides the logging infrastructure for nyaya.
//
// It is a thin layer over log/slog: a type alias so components can declare
// log.Logger as a dependency, factory functions that build configured
// loggers, and a Nop logger for tests. Loggers are injected via
// constructors, never pulled from globals; components add context with
// logger.With("component", ...).
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger aliases *slog.Logger so constructors can name the dependency
// without introducing a custom interface.
type Logger = *slog.Logger

// Config controls logger construction.
type Config struct {
	// Level is the minimum level emitted. Zero value is slog.LevelInfo.
	Level slog.Level

	// JSON switches output from text to JSON records.
	JSON bool

	// AddSource annotates records with file:line of the call site.
	AddSource bool
}

// New returns a logger writing to stderr with the given configuration.
// Stdout stays reserved for command output.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter returns a logger writing to w. Tests use this with a
// bytes.Buffer to assert on emitted records.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop returns a logger that discards everything. Test-only: production
// code should always construct a real logger so failures stay debuggable.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
