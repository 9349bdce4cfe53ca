package sensorflow

import (
	"log/slog"
	"os"

	"github.com/ghalamif/sensorflow/internal/adapters/observability"
)

// NewLogger builds the slog logger described by cfg.Log, writing to stderr.
func NewLogger(cfg *Config) *slog.Logger {
	return observability.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
}

// LogObservability logs through log and drops metrics. One-shot tools use it where no
// metrics registry is served.
func LogObservability(log *slog.Logger) Observability {
	return observability.LogOnly{Log: log}
}
