package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/sensorflow/internal/ports"
)

// PromObs routes metrics to Prometheus collectors and logs to slog.
type PromObs struct {
	log      *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the SensorFlow collectors on reg. A nil reg uses the default registerer.
func NewPromObs(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.Default()
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	counters := map[string]prometheus.Counter{
		ports.MetricGenerated:        counter(ports.MetricGenerated, "Synthetic readings produced by the generator."),
		ports.MetricPublishFailures:  counter(ports.MetricPublishFailures, "Publish attempts that failed and triggered a backoff."),
		ports.MetricIngested:         counter(ports.MetricIngested, "Readings validated and persisted."),
		ports.MetricRejected:         counter(ports.MetricRejected, "Readings rejected by validation and recorded as sensor errors."),
		ports.MetricMalformed:        counter(ports.MetricMalformed, "Messages dropped because they could not be attributed to a sensor."),
		ports.MetricRedeliveries:     counter(ports.MetricRedeliveries, "Deliveries retried after a transient failure."),
		ports.MetricDLQ:              counter(ports.MetricDLQ, "Messages dead-lettered after exhausting retries."),
		ports.MetricCollectorDropped: counter(ports.MetricCollectorDropped, "Collector readings dropped because publishing failed."),
	}
	gauges := map[string]prometheus.Gauge{
		ports.MetricInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: ports.MetricInflight,
			Help: "Messages fetched from the transport and not yet acknowledged.",
		}),
		ports.MetricDLQSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: ports.MetricDLQSize,
			Help: "Size of the dead-letter log on disk.",
		}),
	}
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricIngestLatency,
		Help:    "Time from delivery to store commit for accepted readings.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	for _, c := range counters {
		reg.MustRegister(c)
	}
	for _, g := range gauges {
		reg.MustRegister(g)
	}
	reg.MustRegister(latency)

	return &PromObs{
		log:      logger,
		counters: counters,
		gauges:   gauges,
		histos: map[string]prometheus.Observer{
			ports.MetricIngestLatency: latency,
		},
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.log.Warn(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	args := attrs(fields)
	if err != nil {
		args = append(args, slog.Any("error", err))
	}
	p.log.Error(msg, args...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDLQ(id ports.DeadLetterID, env ports.Envelope, err error) {
	p.IncCounter(ports.MetricDLQ, 1)
	p.log.Error("delivery_dead_lettered",
		slog.Uint64("dlq_id", uint64(id)),
		slog.String("message_id", env.ID),
		slog.String("sensor_id", env.Key),
		slog.Int("attempts", env.Attempt),
		slog.Any("error", err),
	)
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
