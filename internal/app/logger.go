package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger based on configuration. The
// json format is meant for production log shipping, pretty for local runs.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg != nil && cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
