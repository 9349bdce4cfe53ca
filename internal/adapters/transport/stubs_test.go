package transport

import (
	"sync"

	"github.com/ghalamif/sensorflow/internal/ports"
)

type mockObs struct {
	mu       sync.Mutex
	counters map[string]float64
	warns    []string
	errors   []string
	dlq      []ports.Envelope
}

func newMockObs() *mockObs { return &mockObs{counters: map[string]float64{}} }

func (m *mockObs) LogInfo(string, ...ports.Field) {}

func (m *mockObs) LogWarn(msg string, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

func (m *mockObs) LogError(msg string, _ error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += v
}

func (m *mockObs) ObserveLatency(string, float64) {}
func (m *mockObs) SetGauge(string, float64)       {}

func (m *mockObs) RecordDLQ(_ ports.DeadLetterID, env ports.Envelope, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, env)
}

func (m *mockObs) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

type memDLQ struct {
	mu      sync.Mutex
	entries []ports.DeadLetterEntry
	fail    error
}

func (d *memDLQ) Append(e ports.DeadLetterEntry) (ports.DeadLetterID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return 0, d.fail
	}
	d.entries = append(d.entries, e)
	return ports.DeadLetterID(len(d.entries)), nil
}

func (d *memDLQ) Iterate(from ports.DeadLetterID, fn func(ports.DeadLetterID, ports.DeadLetterEntry) error) error {
	d.mu.Lock()
	entries := append([]ports.DeadLetterEntry(nil), d.entries...)
	d.mu.Unlock()
	for i, e := range entries {
		id := ports.DeadLetterID(i + 1)
		if id < from {
			continue
		}
		if err := fn(id, e); err != nil {
			return err
		}
	}
	return nil
}

func (d *memDLQ) Commit(ports.DeadLetterID) error { return nil }
func (d *memDLQ) TruncateCommitted() error        { return nil }
func (d *memDLQ) Stats() ports.DeadLetterStats    { return ports.DeadLetterStats{} }

func (d *memDLQ) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
