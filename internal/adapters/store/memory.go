package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// MemoryStore keeps everything in process. It backs the embedded runtime and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	readings []domain.Reading
	errors   map[domain.ErrorKey]domain.SensorErrorRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{errors: make(map[domain.ErrorKey]domain.SensorErrorRecord)}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) InsertReading(_ context.Context, r *domain.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	m.readings = append(m.readings, *r)
	return nil
}

func (m *MemoryStore) QueryReadings(_ context.Context, f ports.ReadingFilter) ([]domain.Reading, error) {
	m.mu.RLock()
	out := make([]domain.Reading, 0, len(m.readings))
	for _, r := range m.readings {
		if f.SensorID != "" && r.SensorID != f.SensorID {
			continue
		}
		if f.Type != "" && r.Type() != f.Type {
			continue
		}
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MemoryStore) UpsertError(_ context.Context, key domain.ErrorKey, delta int64, at time.Time, msg string) (domain.SensorErrorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.errors[key]
	if !ok {
		rec = domain.SensorErrorRecord{SensorID: key.SensorID, SensorType: key.SensorType}
	}
	rec.ErrorCount += delta
	rec.LastErrorTimestamp = at.UTC()
	rec.LastErrorMessage = msg
	m.errors[key] = rec
	return rec, nil
}

func (m *MemoryStore) QueryErrors(_ context.Context, limit int) ([]domain.SensorErrorRecord, error) {
	m.mu.RLock()
	out := make([]domain.SensorErrorRecord, 0, len(m.errors))
	for _, rec := range m.errors {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	domain.SortErrorRecords(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
func (m *MemoryStore) Close() error             { return nil }

var _ ports.Store = (*MemoryStore)(nil)
