package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// RunCollectorPipeline forwards every reading a collector emits onto the transport, the
// same way generated readings travel. It returns once the collector is started; forwarding
// stops when ctx is cancelled.
func RunCollectorPipeline(ctx context.Context, col ports.Collector, pub ports.Publisher, codec ports.Codec, pol ports.DeliveryPolicy, obs ports.Observability) error {
	ch := make(chan *domain.Reading, max(pol.Prefetch, 1))

	if err := col.Start(ch); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-ch:
				env, err := envelopeFor(r, codec)
				if err != nil {
					obs.LogError("collector_encode_failed", err, ports.F("sensor_id", r.SensorID))
					obs.IncCounter(ports.MetricCollectorDropped, 1)
					continue
				}
				if !publishWithPolicy(ctx, pub, env, pol, obs) {
					obs.IncCounter(ports.MetricCollectorDropped, 1)
				}
			}
		}
	}()

	return nil
}

func envelopeFor(r *domain.Reading, codec ports.Codec) (ports.Envelope, error) {
	payload, err := codec.Encode(r)
	if err != nil {
		return ports.Envelope{}, err
	}
	return ports.Envelope{
		ID:          uuid.NewString(),
		Key:         r.SensorID,
		ContentType: codec.ContentType(),
		Payload:     payload,
		PublishedAt: time.Now().UTC(),
	}, nil
}

// publishWithPolicy retries a failed publish under "block" until ctx ends; "drop" and
// "reject" give up after the first failure.
func publishWithPolicy(ctx context.Context, pub ports.Publisher, env ports.Envelope, pol ports.DeliveryPolicy, obs ports.Observability) bool {
	sleep := pol.RetryInterval
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	for {
		err := pub.Publish(ctx, env)
		if err == nil {
			return true
		}
		obs.IncCounter(ports.MetricPublishFailures, 1)

		switch pol.OnQueueFull {
		case ports.OnFullBlock:
			obs.LogWarn("collector_publish_retry", ports.F("message_id", env.ID), ports.F("err", err.Error()))
			select {
			case <-ctx.Done():
				return false
			case <-time.After(sleep):
			}
		case ports.OnFullDrop, ports.OnFullReject:
			obs.LogError("collector_publish_drop", err, ports.F("message_id", env.ID))
			return false
		default:
			obs.LogError("collector_policy_invalid", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}
