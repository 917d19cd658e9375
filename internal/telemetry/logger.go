// Package telemetry wires structured logging and tracing for gitsync.
package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shinji-kodama/gitsync/internal/config"
)

// NewLogger builds the logger for one gitsync command from the log
// section of the configuration. Records go to stderr unless log.output
// names stdout or a file; the returned function closes that file.
func NewLogger(cfg config.LogConfig) (*slog.Logger, func() error, error) {
	writer, closer, err := logWriter(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return NewLoggerTo(writer, cfg), closer, nil
}

// NewLoggerTo creates a logger that writes to w, ignoring cfg.Output.
func NewLoggerTo(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps the log.level setting (and GITSYNC_LOG_LEVEL) to a
// slog level. Matching ignores case and surrounding space; anything
// unrecognized logs at info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// logWriter resolves log.output. Files are opened for appending, mode 0600.
func logWriter(output string) (io.Writer, func() error, error) {
	keepOpen := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(output)) {
	case "", "stderr":
		return os.Stderr, keepOpen, nil
	case "stdout":
		return os.Stdout, keepOpen, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
