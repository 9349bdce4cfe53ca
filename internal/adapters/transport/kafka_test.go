package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ghalamif/sensorflow/internal/ports"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	drained   chan struct{}
	once      sync.Once
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	r.once.Do(func() { close(r.drained) })
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestKafkaPublishSetsKeyAndHeaders(t *testing.T) {
	w := &fakeWriter{}
	k := newKafkaWith(KafkaConfig{Topic: "sensor-readings"}, w, nil, testPolicy(), nil, newMockObs(), discardLogger())

	env := ports.Envelope{ID: "id-1", Key: "env-001", ContentType: "application/json", Payload: []byte(`{}`)}
	if err := k.Publish(context.Background(), env); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "env-001" {
		t.Fatalf("unexpected messages: %+v", w.msgs)
	}
	got := envelopeFromKafka(w.msgs[0])
	if got.ID != "id-1" || got.ContentType != "application/json" {
		t.Fatalf("headers lost: %+v", got)
	}

	w.err = errors.New("leader not available")
	if err := k.Publish(context.Background(), env); !errors.Is(err, w.err) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestKafkaSubscribeCommitsHandledOffsets(t *testing.T) {
	r := &fakeReader{drained: make(chan struct{})}
	for off := int64(0); off < 5; off++ {
		r.queue = append(r.queue, kafka.Message{Topic: "t", Partition: 0, Offset: off, Key: []byte("k")})
	}
	k := newKafkaWith(KafkaConfig{Topic: "t", GroupID: "g"}, &fakeWriter{}, func() messageReader { return r }, testPolicy(), &memDLQ{}, newMockObs(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- k.Subscribe(ctx, func(context.Context, ports.Envelope) error { return nil })
	}()

	<-r.drained
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscribe did not stop")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.committed) == 0 || r.committed[len(r.committed)-1] != 4 {
		t.Fatalf("expected offset 4 committed last, got %v", r.committed)
	}
}

func TestOffsetTrackerCommitsContiguousPrefix(t *testing.T) {
	tr := newOffsetTracker()
	msgs := []kafka.Message{{Partition: 1, Offset: 10}, {Partition: 1, Offset: 11}, {Partition: 1, Offset: 12}}
	for _, m := range msgs {
		tr.track(m)
	}

	if _, ok := tr.complete(msgs[1]); ok {
		t.Fatalf("offset 11 must wait for 10")
	}
	if _, ok := tr.complete(msgs[2]); ok {
		t.Fatalf("offset 12 must wait for 10")
	}
	if got := tr.pendingPartitions(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected partition 1 pending, got %v", got)
	}
	m, ok := tr.complete(msgs[0])
	if !ok || m.Offset != 12 {
		t.Fatalf("expected commit up to 12, got %v %v", m.Offset, ok)
	}
	if len(tr.pendingPartitions()) != 0 {
		t.Fatalf("nothing should remain pending")
	}
}

func TestEnvelopeFromKafkaFallsBackToOffsetID(t *testing.T) {
	env := envelopeFromKafka(kafka.Message{Topic: "t", Partition: 2, Offset: 9})
	if env.ID != "t/2/9" {
		t.Fatalf("unexpected id %q", env.ID)
	}
}
