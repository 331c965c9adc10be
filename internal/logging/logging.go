// SPDX-License-Identifier: MPL-2.0

// Package logging builds the charmbracelet/log loggers used across devtask
// and carries them through context.Context.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

type (
	// Options configures a logger.
	Options struct {
		// Level is one of debug, info, warn, error. Unknown values mean info.
		Level string
		// JSON switches the formatter to JSON lines.
		JSON bool
		// Output defaults to os.Stderr.
		Output io.Writer
		// Prefix is shown before every message (e.g. "engine", "agent").
		Prefix string
	}

	loggerKey struct{}
)

// ParseLevel maps a config/flag level name to a log.Level.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// New creates a logger from opts.
func New(opts Options) *log.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logger := log.NewWithOptions(out, log.Options{
		Prefix:          opts.Prefix,
		Level:           ParseLevel(opts.Level),
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	if opts.JSON {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger
}

// Discard returns a logger that drops everything. Used when a component is
// constructed without a logger.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a discarding logger.
func FromContext(ctx context.Context) *log.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*log.Logger); ok && logger != nil {
			return logger
		}
	}
	return Discard()
}
