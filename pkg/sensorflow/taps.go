package sensorflow

import (
	"context"
	"errors"
	"sync"

	"github.com/ghalamif/sensorflow/internal/ports"
)

// ErrTapClosed is returned when a channel tap is written to after being closed.
var ErrTapClosed = errors.New("sensorflow: tap closed")

// ReadingCallback observes a reading after it has been stored.
type ReadingCallback func(Reading)

// NewCallbackStore wraps base so fn sees every reading the consumer persists. fn runs on
// the consumer's worker and should return quickly.
func NewCallbackStore(base Store, fn ReadingCallback) Store {
	return &tapStore{Store: base, emit: func(_ context.Context, r Reading) error {
		if fn != nil {
			fn(r)
		}
		return nil
	}}
}

// NewChannelStore exposes persisted readings on a channel; it returns the store, the
// read-only channel, and a close function that the caller should invoke during shutdown.
// A full channel holds the consumer back until the reader catches up.
func NewChannelStore(base Store, buffer int) (Store, <-chan Reading, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Reading, buffer)
	closed := make(chan struct{})
	var (
		once sync.Once
		mu   sync.RWMutex
	)

	s := &tapStore{Store: base}
	s.emit = func(ctx context.Context, r Reading) error {
		mu.RLock()
		defer mu.RUnlock()
		select {
		case <-closed:
			return ErrTapClosed
		default:
		}
		select {
		case <-closed:
			return ErrTapClosed
		case <-ctx.Done():
			return ctx.Err()
		case ch <- r:
			return nil
		}
	}
	closeFn := func() {
		once.Do(func() {
			close(closed)
			mu.Lock()
			close(ch)
			mu.Unlock()
		})
	}
	return s, ch, closeFn
}

type tapStore struct {
	Store
	emit func(ctx context.Context, r Reading) error
}

// InsertReading stores first, then emits. A failed emit never fails the insert.
func (t *tapStore) InsertReading(ctx context.Context, r *Reading) error {
	if err := t.Store.InsertReading(ctx, r); err != nil {
		return err
	}
	_ = t.emit(ctx, *r)
	return nil
}

func (t *tapStore) LatestPerSensor(ctx context.Context, typ SensorType) ([]Reading, error) {
	if l, ok := t.Store.(ports.LatestPerSensorStore); ok {
		return l.LatestPerSensor(ctx, typ)
	}
	return nil, errors.ErrUnsupported
}
