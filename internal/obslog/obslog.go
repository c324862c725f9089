// Package obslog sets up the process-wide structured logger.
//
// This is distinct from the append-only time_spend.log CSV writer in
// internal/orderstate, which is a dedicated line-buffered closed-loop
// ledger and is never routed through slog (SPEC_FULL.md §4.11).
package obslog

import (
	"log/slog"
	"os"

	"limitup-agent/internal/config"
)

// New builds a slog.Logger from the logging section of the config, following
// the same level/format selection as a typical viper-configured trading
// service: "debug"/"warn"/"error" map directly, anything else is "info".
func New(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
