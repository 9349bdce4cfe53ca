package observability

import (
	"log/slog"

	"github.com/ghalamif/sensorflow/internal/ports"
)

// LogOnly logs through slog and discards metrics. Used where no registry is wired, such
// as one-shot CLI commands.
type LogOnly struct {
	Log *slog.Logger
}

func (l LogOnly) logger() *slog.Logger {
	if l.Log == nil {
		return slog.Default()
	}
	return l.Log
}

func (l LogOnly) LogInfo(msg string, fields ...ports.Field) { l.logger().Info(msg, attrs(fields)...) }
func (l LogOnly) LogWarn(msg string, fields ...ports.Field) { l.logger().Warn(msg, attrs(fields)...) }

func (l LogOnly) LogError(msg string, err error, fields ...ports.Field) {
	l.logger().Error(msg, append(attrs(fields), slog.Any("error", err))...)
}

func (LogOnly) IncCounter(string, float64)     {}
func (LogOnly) ObserveLatency(string, float64) {}
func (LogOnly) SetGauge(string, float64)       {}

func (l LogOnly) RecordDLQ(id ports.DeadLetterID, env ports.Envelope, err error) {
	l.logger().Error("delivery_dead_lettered", "dlq_id", uint64(id), "message_id", env.ID, "error", err)
}

var _ ports.Observability = LogOnly{}
