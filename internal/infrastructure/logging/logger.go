// Package logging provides structured logging utilities.
//
// Logs are formatted in a compact bracketed style with colors:
// [LEVEL] [SYSTEM] [HH:MM:SS] message key=value
package logging

import (
	"log/slog"
	"os"

	"github.com/troopledger/reconcile/internal/infrastructure/config"
)

// NewLogger creates a structured logger based on config.
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(NewBracketHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// NewLoggerWithSystem creates a logger scoped to a subsystem (e.g.
// "workflow", "matcher", "api").
func NewLoggerWithSystem(cfg config.LoggingConfig, system string) *slog.Logger {
	return NewLogger(cfg).With("system", system)
}
