// Package logging builds the shipper's structured logger.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds a JSON slog.Logger whose level is controlled by
// SECOR_LOG_LEVEL (debug, info, warn, error; defaults to info), tagged
// with the given component name.
func New(component string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("SECOR_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	return slog.New(handler).With("component", component)
}
