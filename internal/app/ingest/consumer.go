package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/sensorflow/internal/adapters/codec"
	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// FailureRecorder is the slice of the error aggregator the consumer needs.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, sensorID string, typ domain.SensorType, message string) (domain.SensorErrorRecord, error)
}

// Outcome is the terminal state of one delivery.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	case Malformed:
		return "malformed"
	}
	return "unknown"
}

// Consumer is the per-message handler: decode, validate, then persist or record the
// failure. Only infrastructure errors are returned, which makes the transport redeliver.
type Consumer struct {
	store      ports.ReadingStore
	failures   FailureRecorder
	obs        ports.Observability
	opTimeout  time.Duration
	decoderFor func(contentType string) ports.Codec
}

type Option func(*Consumer)

// WithOpTimeout bounds each store call.
func WithOpTimeout(d time.Duration) Option {
	return func(c *Consumer) { c.opTimeout = d }
}

// WithCodec forces one decoder regardless of the envelope content type.
func WithCodec(cd ports.Codec) Option {
	return func(c *Consumer) { c.decoderFor = func(string) ports.Codec { return cd } }
}

func NewConsumer(store ports.ReadingStore, failures FailureRecorder, obs ports.Observability, opts ...Option) *Consumer {
	c := &Consumer{
		store:      store,
		failures:   failures,
		obs:        obs,
		opTimeout:  5 * time.Second,
		decoderFor: codec.ForContentType,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle satisfies ports.Handler.
func (c *Consumer) Handle(ctx context.Context, env ports.Envelope) error {
	_, err := c.Process(ctx, env)
	return err
}

func (c *Consumer) Process(ctx context.Context, env ports.Envelope) (Outcome, error) {
	start := time.Now()

	msg, err := c.decoderFor(env.ContentType).Decode(env.Payload)
	if err != nil {
		return c.malformed(env, err), nil
	}
	r, err := msg.Reading()
	if err != nil {
		return c.malformed(env, err), nil
	}

	if verr := domain.Validate(r); verr != nil {
		var invalid *domain.ValidationError
		if !errors.As(verr, &invalid) {
			return c.malformed(env, verr), nil
		}
		opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
		defer cancel()
		rec, err := c.failures.RecordFailure(opCtx, r.SensorID, r.Type(), invalid.Reason)
		if err != nil {
			return Rejected, fmt.Errorf("record rejected reading %s: %w", r.SensorID, err)
		}
		c.obs.IncCounter(ports.MetricRejected, 1)
		c.obs.LogWarn("reading_rejected",
			ports.F("sensor_id", r.SensorID),
			ports.F("sensor_type", string(r.Type())),
			ports.F("field", invalid.Field),
			ports.F("reason", invalid.Reason),
			ports.F("error_count", rec.ErrorCount),
		)
		return Rejected, nil
	}

	r.Processed = true
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	if err := c.store.InsertReading(opCtx, r); err != nil {
		return Accepted, fmt.Errorf("store reading %s: %w", r.SensorID, err)
	}
	c.obs.IncCounter(ports.MetricIngested, 1)
	c.obs.ObserveLatency(ports.MetricIngestLatency, time.Since(start).Seconds())
	return Accepted, nil
}

func (c *Consumer) malformed(env ports.Envelope, err error) Outcome {
	c.obs.IncCounter(ports.MetricMalformed, 1)
	c.obs.LogWarn("reading_malformed",
		ports.F("message_id", env.ID),
		ports.F("key", env.Key),
		ports.F("reason", err.Error()),
	)
	return Malformed
}
