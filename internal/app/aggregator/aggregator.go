package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// Aggregator folds validation failures into one record per (sensorId, sensorType).
// Updates for the same key are serialized in process; different keys never wait on
// each other.
type Aggregator struct {
	store ports.ErrorStore
	locks keyedMutex
	now   func() time.Time
}

func New(store ports.ErrorStore) *Aggregator {
	return &Aggregator{
		store: store,
		locks: keyedMutex{m: make(map[domain.ErrorKey]*keyLock)},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// RecordFailure adds one failure for the sensor and returns the updated record.
func (a *Aggregator) RecordFailure(ctx context.Context, sensorID string, typ domain.SensorType, message string) (domain.SensorErrorRecord, error) {
	key := domain.ErrorKey{SensorID: sensorID, SensorType: typ}

	unlock := a.locks.lock(key)
	defer unlock()

	rec, err := a.store.UpsertError(ctx, key, 1, a.now(), message)
	if err != nil {
		return rec, fmt.Errorf("record failure %s: %w", key, err)
	}
	return rec, nil
}

func (a *Aggregator) Top(ctx context.Context, k int) ([]domain.SensorErrorRecord, error) {
	return a.store.QueryErrors(ctx, k)
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds or waits on it.
type keyedMutex struct {
	mu sync.Mutex
	m  map[domain.ErrorKey]*keyLock
}

func (k *keyedMutex) lock(key domain.ErrorKey) func() {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &keyLock{}
		k.m[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}
