// Package logger configures the process-wide slog logger. Production
// environments log JSON; everything else gets human-readable text.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls logger construction.
type Options struct {
	// Env selects the handler: "production"/"prod" means JSON.
	Env string

	// Level is the minimum level ("debug", "info", "warn", "error").
	Level string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// New builds a logger from the options.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}

	var handler slog.Handler
	switch strings.ToLower(opts.Env) {
	case "production", "prod":
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler)
}

// Setup builds the logger and installs it as slog's default.
func Setup(opts Options) *slog.Logger {
	l := New(opts)
	slog.SetDefault(l)
	return l
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
