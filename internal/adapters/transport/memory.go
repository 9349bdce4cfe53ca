package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghalamif/sensorflow/internal/adapters/queue"
	"github.com/ghalamif/sensorflow/internal/ports"
)

var ErrQueueFull = errors.New("transport queue full")

// Memory is an in-process transport over a bounded queue. Producer and consumer must
// live in the same process.
type Memory struct {
	q   ports.EnvelopeQueue
	pol ports.DeliveryPolicy
	dlq ports.DeadLetterLog
	obs ports.Observability
}

func NewMemory(pol ports.DeliveryPolicy, dlq ports.DeadLetterLog, obs ports.Observability) *Memory {
	return NewMemoryWithQueue(queue.NewMemQueue(pol.QueueCapacity), pol, dlq, obs)
}

func NewMemoryWithQueue(q ports.EnvelopeQueue, pol ports.DeliveryPolicy, dlq ports.DeadLetterLog, obs ports.Observability) *Memory {
	return &Memory{q: q, pol: pol, dlq: dlq, obs: obs}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Publish(ctx context.Context, env ports.Envelope) error {
	return enqueueWithPolicy(ctx, m.q, env, m.pol, m.obs)
}

func enqueueWithPolicy(ctx context.Context, q ports.EnvelopeQueue, env ports.Envelope, pol ports.DeliveryPolicy, obs ports.Observability) error {
	sleep := pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}

	for {
		if q.Enqueue(env) {
			return nil
		}

		switch pol.OnQueueFull {
		case ports.OnFullBlock:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}
		case ports.OnFullDrop:
			obs.LogWarn("queue_full_drop", ports.F("message_id", env.ID), ports.F("sensor_id", env.Key))
			return nil
		case ports.OnFullReject:
			return ErrQueueFull
		default:
			return fmt.Errorf("queue policy %q: %w", pol.OnQueueFull, ErrQueueFull)
		}
	}
}

func (m *Memory) Subscribe(ctx context.Context, h ports.Handler) error {
	d := NewDispatcher(m.pol, m.dlq, m.obs)
	d.Start(ctx, h)
	defer d.Close()

	sleep := m.pol.IdleSleep
	if sleep <= 0 {
		sleep = 5 * time.Millisecond
	}
	batchSize := m.pol.Prefetch
	if batchSize <= 0 {
		batchSize = 1
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		batch := m.q.DequeueBatch(batchSize)
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(sleep):
			}
			continue
		}
		for _, env := range batch {
			// dequeued messages exist nowhere else, so they are handed over even during shutdown
			if !d.Submit(ctx, Delivery{Env: env}) {
				d.Submit(context.Background(), Delivery{Env: env})
			}
		}
	}
}

func (m *Memory) Close() error { return nil }

var _ ports.Transport = (*Memory)(nil)
