package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/sensorflow/internal/adapters/codec"
	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

func TestPublishWithPolicyBlockThenSucceed(t *testing.T) {
	pub := &mockPublisher{failures: 2}
	pol := ports.DeliveryPolicy{OnQueueFull: ports.OnFullBlock, RetryInterval: time.Millisecond}
	obs := &mockObs{}

	if ok := publishWithPolicy(context.Background(), pub, ports.Envelope{ID: "m1"}, pol, obs); !ok {
		t.Fatalf("expected publish to eventually succeed")
	}
	if pub.calls != 3 {
		t.Fatalf("expected three publish attempts, got %d", pub.calls)
	}
}

func TestPublishWithPolicyDrop(t *testing.T) {
	pub := &mockPublisher{failAlways: true}
	pol := ports.DeliveryPolicy{OnQueueFull: ports.OnFullDrop}
	obs := &mockObs{}

	if ok := publishWithPolicy(context.Background(), pub, ports.Envelope{ID: "m1"}, pol, obs); ok {
		t.Fatalf("expected publishWithPolicy to fail")
	}
	if len(obs.errors) == 0 {
		t.Fatalf("expected drop to log an error")
	}
}

func TestPublishWithPolicyBlockStopsOnCancel(t *testing.T) {
	pub := &mockPublisher{failAlways: true}
	pol := ports.DeliveryPolicy{OnQueueFull: ports.OnFullBlock, RetryInterval: time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if ok := publishWithPolicy(ctx, pub, ports.Envelope{}, pol, &mockObs{}); ok {
		t.Fatalf("expected cancelled publish to report failure")
	}
}

func TestRunCollectorPipelineForwards(t *testing.T) {
	col := &mockCollector{readings: []*domain.Reading{
		{SensorID: "env-101", Timestamp: time.Now().UTC(), Measurement: domain.EnvironmentalFields{Temperature: domain.Float(21)}},
		{SensorID: "light-101", Timestamp: time.Now().UTC(), Measurement: domain.LightFields{UVIndex: domain.Float(3)}},
	}}
	pub := &mockPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := RunCollectorPipeline(ctx, col, pub, codec.JSON{}, ports.DefaultDeliveryPolicy(), &mockObs{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	deadline := time.After(time.Second)
	for pub.published() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected two forwarded readings, got %d", pub.published())
		case <-time.After(time.Millisecond):
		}
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.envs[0].Key != "env-101" || pub.envs[0].ContentType != codec.ContentTypeJSON {
		t.Fatalf("unexpected envelope: %+v", pub.envs[0])
	}
}

func TestRunCollectorPipelineStartError(t *testing.T) {
	col := &mockCollector{startErr: errors.New("endpoint unreachable")}
	err := RunCollectorPipeline(context.Background(), col, &mockPublisher{}, codec.JSON{}, ports.DefaultDeliveryPolicy(), &mockObs{})
	if err == nil {
		t.Fatalf("expected start error")
	}
}

type mockCollector struct {
	readings []*domain.Reading
	startErr error
}

func (m *mockCollector) Start(out chan<- *domain.Reading) error {
	if m.startErr != nil {
		return m.startErr
	}
	go func() {
		for _, r := range m.readings {
			out <- r
		}
	}()
	return nil
}

func (m *mockCollector) Stop() error { return nil }

type mockPublisher struct {
	mu         sync.Mutex
	failures   int
	failAlways bool
	calls      int
	envs       []ports.Envelope
}

func (m *mockPublisher) Publish(_ context.Context, env ports.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failAlways {
		return errors.New("broker unavailable")
	}
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.envs = append(m.envs, env)
	return nil
}

func (m *mockPublisher) published() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.envs)
}

type mockObs struct {
	errors []error
}

func (m *mockObs) LogInfo(string, ...ports.Field)                      {}
func (m *mockObs) LogWarn(string, ...ports.Field)                      {}
func (m *mockObs) LogError(_ string, err error, _ ...ports.Field)      { m.errors = append(m.errors, err) }
func (m *mockObs) IncCounter(string, float64)                          {}
func (m *mockObs) ObserveLatency(string, float64)                      {}
func (m *mockObs) SetGauge(string, float64)                            {}
func (m *mockObs) RecordDLQ(ports.DeadLetterID, ports.Envelope, error) {}
