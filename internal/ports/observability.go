package ports

// Metric names understood by the Prometheus adapter. Unknown names are ignored.
const (
	MetricGenerated        = "sensorflow_readings_generated_total"
	MetricPublishFailures  = "sensorflow_publish_failures_total"
	MetricIngested         = "sensorflow_readings_ingested_total"
	MetricRejected         = "sensorflow_readings_rejected_total"
	MetricMalformed        = "sensorflow_readings_malformed_total"
	MetricRedeliveries     = "sensorflow_redeliveries_total"
	MetricDLQ              = "sensorflow_dlq_total"
	MetricCollectorDropped = "sensorflow_collector_dropped_total"
	MetricInflight         = "sensorflow_inflight_messages"
	MetricDLQSize          = "sensorflow_dlq_size_bytes"
	MetricIngestLatency    = "sensorflow_ingest_latency_seconds"
)

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)

	RecordDLQ(id DeadLetterID, env Envelope, err error)
}

type Field struct {
	Key   string
	Value any
}

func F(key string, value any) Field { return Field{Key: key, Value: value} }
