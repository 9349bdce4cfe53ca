package sensorflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// ErrInvalidReading is returned by Publisher.Publish for readings that cannot be encoded.
var ErrInvalidReading = errors.New("sensorflow: invalid reading")

// Publisher lets external producers push readings onto the same transport the generator
// uses. Readings are not validated here; the consumer does that, so implausible values
// still end up in the error records.
type Publisher struct {
	transport ports.Publisher
	codec     ports.Codec
	obs       ports.Observability
}

// NewPublisher binds a transport and codec. obs may be nil.
func NewPublisher(t ports.Publisher, c ports.Codec, obs ports.Observability) *Publisher {
	return &Publisher{transport: t, codec: c, obs: obs}
}

// Publish encodes r and sends it keyed by sensor id. A zero timestamp is set to now.
func (p *Publisher) Publish(ctx context.Context, r *Reading) error {
	if r == nil || r.SensorID == "" || r.Measurement == nil {
		return fmt.Errorf("%w: sensor id and measurement are required", ErrInvalidReading)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	payload, err := p.codec.Encode(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}
	env := ports.Envelope{
		ID:          uuid.NewString(),
		Key:         r.SensorID,
		ContentType: p.codec.ContentType(),
		Payload:     payload,
		PublishedAt: time.Now().UTC(),
	}
	if err := p.transport.Publish(ctx, env); err != nil {
		if p.obs != nil {
			p.obs.IncCounter(ports.MetricPublishFailures, 1)
		}
		return err
	}
	return nil
}

// PublishMessage publishes a reading in its wire form, such as one decoded from a file.
func (p *Publisher) PublishMessage(ctx context.Context, m ReadingMessage) error {
	r, err := m.Reading()
	if err != nil {
		if errors.Is(err, domain.ErrMalformed) {
			return fmt.Errorf("%w: %v", ErrInvalidReading, err)
		}
		return err
	}
	return p.Publish(ctx, r)
}
