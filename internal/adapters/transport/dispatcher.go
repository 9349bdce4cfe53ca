package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghalamif/sensorflow/internal/ports"
)

// Delivery is a fetched message plus the adapter-specific acknowledgement. Ack may be nil.
type Delivery struct {
	Env ports.Envelope
	Ack func(ctx context.Context) error
}

// Dispatcher is the consumer side shared by every transport: a bounded prefetch buffer
// drained by a fixed worker pool. Each worker owns a message until it is acknowledged,
// retrying failed attempts and dead-lettering the ones that never succeed.
type Dispatcher struct {
	pol ports.DeliveryPolicy
	dlq ports.DeadLetterLog
	obs ports.Observability

	in       chan Delivery
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	inflight atomic.Int64
}

func NewDispatcher(pol ports.DeliveryPolicy, dlq ports.DeadLetterLog, obs ports.Observability) *Dispatcher {
	if pol.Prefetch <= 0 {
		pol.Prefetch = 1
	}
	if pol.Concurrency <= 0 {
		pol.Concurrency = 1
	}
	if pol.RetryLimit < 0 {
		pol.RetryLimit = 0
	}
	return &Dispatcher{
		pol: pol,
		dlq: dlq,
		obs: obs,
		in:  make(chan Delivery, pol.Prefetch),
	}
}

// Start launches the workers. Handlers run with a context derived from ctx that is not
// cancelled on shutdown, so fetched messages finish processing.
func (d *Dispatcher) Start(ctx context.Context, h ports.Handler) {
	workCtx := context.WithoutCancel(ctx)
	for i := 0; i < d.pol.Concurrency; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for del := range d.in {
				d.process(workCtx, del, h)
			}
		}()
	}
}

// Submit queues a delivery, blocking while the prefetch buffer is full. It returns false
// when ctx ends first or the dispatcher is closed.
func (d *Dispatcher) Submit(ctx context.Context, del Delivery) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	d.obs.SetGauge(ports.MetricInflight, float64(d.inflight.Add(1)))
	select {
	case d.in <- del:
		return true
	case <-ctx.Done():
		d.obs.SetGauge(ports.MetricInflight, float64(d.inflight.Add(-1)))
		return false
	}
}

// Close stops intake and waits until every queued delivery has been handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.in)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) Inflight() int64 { return d.inflight.Load() }

func (d *Dispatcher) process(ctx context.Context, del Delivery, h ports.Handler) {
	defer func() {
		d.obs.SetGauge(ports.MetricInflight, float64(d.inflight.Add(-1)))
	}()

	env := del.Env
	var err error
	for attempt := 1; ; attempt++ {
		env.Attempt = attempt
		if err = h(ctx, env); err == nil {
			break
		}
		if attempt > d.pol.RetryLimit {
			break
		}
		d.obs.IncCounter(ports.MetricRedeliveries, 1)
		d.obs.LogWarn("delivery_retry",
			ports.F("message_id", env.ID),
			ports.F("sensor_id", env.Key),
			ports.F("attempt", attempt),
			ports.F("error", err.Error()),
		)
		if d.pol.RetryInterval > 0 {
			time.Sleep(d.pol.RetryInterval)
		}
	}

	if err != nil {
		if !d.deadLetter(env, err) {
			// left unacknowledged so the broker redelivers it after a restart
			return
		}
	}

	if del.Ack != nil {
		if ackErr := del.Ack(ctx); ackErr != nil {
			d.obs.LogError("delivery_ack_failed", ackErr, ports.F("message_id", env.ID))
		}
	}
}

func (d *Dispatcher) deadLetter(env ports.Envelope, cause error) bool {
	if d.dlq == nil {
		d.obs.RecordDLQ(0, env, cause)
		return true
	}
	id, err := d.dlq.Append(ports.DeadLetterEntry{
		Envelope: env,
		Error:    cause.Error(),
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		d.obs.LogError("dead_letter_append_failed", errors.Join(cause, err), ports.F("message_id", env.ID))
		return false
	}
	d.obs.RecordDLQ(id, env, cause)
	d.obs.SetGauge(ports.MetricDLQSize, float64(d.dlq.Stats().SizeBytes))
	return true
}
