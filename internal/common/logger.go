package common

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gosocial-messaging/internal/config"
)

// NewLogger builds the service logger from the logging section of the
// config. The returned closer releases a log file when one was opened.
func NewLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	var (
		out     io.Writer = os.Stdout
		closeFn           = func() {}
	)
	switch strings.ToLower(strings.TrimSpace(cfg.OutputPath)) {
	case "", "stdout":
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	return slog.New(newHandler(out, cfg)), closeFn, nil
}

func newHandler(out io.Writer, cfg config.LoggingConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// NopLogger discards everything; handy in tests.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
