package generator

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghalamif/sensorflow/internal/adapters/codec"
	"github.com/ghalamif/sensorflow/internal/adapters/store"
	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

type mockObs struct {
	mu       sync.Mutex
	counters map[string]float64
	errors   int
}

func (m *mockObs) LogInfo(string, ...ports.Field) {}
func (m *mockObs) LogWarn(string, ...ports.Field) {}
func (m *mockObs) LogError(string, error, ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
}
func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]float64{}
	}
	m.counters[name] += v
}
func (m *mockObs) ObserveLatency(string, float64)                      {}
func (m *mockObs) SetGauge(string, float64)                            {}
func (m *mockObs) RecordDLQ(ports.DeadLetterID, ports.Envelope, error) {}

type stubPublisher struct {
	mu    sync.Mutex
	envs  []ports.Envelope
	fails atomic.Int32
}

func (p *stubPublisher) Publish(_ context.Context, env ports.Envelope) error {
	if p.fails.Load() > 0 {
		p.fails.Add(-1)
		return errors.New("broker unreachable")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.envs)
}

func inRange(v *float64, lo, hi float64) bool {
	return v != nil && *v >= lo && *v <= hi && math.Round(*v*100)/100 == *v
}

func TestNextProducesPlausibleReadings(t *testing.T) {
	g := New(Config{Seed: 42}, nil, &stubPublisher{}, codec.JSON{}, &mockObs{})

	seen := map[domain.SensorType]bool{}
	for i := 0; i < 600; i++ {
		r := g.Next()
		seen[r.Type()] = true
		if !slices.Contains(SensorPools[r.Type()], r.SensorID) {
			t.Fatalf("sensor %s not in pool for %s", r.SensorID, r.Type())
		}
		if err := domain.Validate(r); err != nil {
			t.Fatalf("generated reading should be valid: %v (%+v)", err, r.Fields())
		}
		fs := r.Fields()
		switch r.Type() {
		case domain.Environmental:
			if !inRange(fs.Temperature, -10, 30) || !inRange(fs.Pressure, 970, 1020) {
				t.Fatalf("environmental out of range: %+v", fs)
			}
		case domain.AirQuality:
			if !inRange(fs.CO2, 400, 1900) || !inRange(fs.PM10, 0, 100) {
				t.Fatalf("air quality out of range: %+v", fs)
			}
		case domain.Water:
			if !inRange(fs.PH, 3, 10) {
				t.Fatalf("water out of range: %+v", fs)
			}
		case domain.Energy:
			if !inRange(fs.Voltage, 220, 240) {
				t.Fatalf("energy out of range: %+v", fs)
			}
		case domain.Motion:
			if !inRange(fs.AccelerationZ, -10, 10) {
				t.Fatalf("motion out of range: %+v", fs)
			}
		case domain.Light:
			if !inRange(fs.ColorTemperature, 2000, 7000) || !inRange(fs.UVIndex, 0, 11) {
				t.Fatalf("light out of range: %+v", fs)
			}
		}
	}
	if len(seen) != len(domain.SensorTypes) {
		t.Fatalf("expected every type to appear, saw %v", seen)
	}
}

func TestTickStoresLocallyThenPublishes(t *testing.T) {
	local := store.NewMemoryStore()
	pub := &stubPublisher{}
	obs := &mockObs{}
	g := New(Config{Seed: 7}, local, pub, codec.JSON{}, obs)

	if err := g.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	stored, _ := local.QueryReadings(context.Background(), ports.ReadingFilter{})
	if len(stored) != 1 || stored[0].Processed {
		t.Fatalf("expected one unprocessed local reading, got %+v", stored)
	}
	if pub.count() != 1 || pub.envs[0].Key != stored[0].SensorID || pub.envs[0].ID == "" {
		t.Fatalf("unexpected published envelope: %+v", pub.envs)
	}
	msg, err := codec.JSON{}.Decode(pub.envs[0].Payload)
	if err != nil || msg.SensorID != stored[0].SensorID {
		t.Fatalf("payload mismatch: %v %+v", err, msg)
	}
	if stored[0].ID == 0 || msg.ID != 0 || msg.Processed {
		t.Fatalf("local store id %d leaked onto the wire: %+v", stored[0].ID, msg)
	}
	if obs.counters[ports.MetricGenerated] != 1 {
		t.Fatalf("generated counter not incremented")
	}
}

func TestRunBacksOffAndKeepsGoing(t *testing.T) {
	pub := &stubPublisher{}
	pub.fails.Store(2)
	obs := &mockObs{}
	g := New(Config{Interval: time.Millisecond, Backoff: 2 * time.Millisecond, Seed: 1}, nil, pub, codec.JSON{}, obs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for pub.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("generator stalled after publish failures, published %d", pub.count())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.counters[ports.MetricPublishFailures] != 2 || obs.errors != 2 {
		t.Fatalf("expected 2 logged publish failures, got counter=%f errors=%d", obs.counters[ports.MetricPublishFailures], obs.errors)
	}
}
