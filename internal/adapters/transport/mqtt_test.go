package transport

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/ghalamif/sensorflow/internal/ports"
)

type fakeMQTTMessage struct {
	payload []byte
	acked   atomic.Bool
}

func (m *fakeMQTTMessage) Duplicate() bool   { return false }
func (m *fakeMQTTMessage) Qos() byte         { return 1 }
func (m *fakeMQTTMessage) Retained() bool    { return false }
func (m *fakeMQTTMessage) Topic() string     { return "sensorflow/readings" }
func (m *fakeMQTTMessage) MessageID() uint16 { return 7 }
func (m *fakeMQTTMessage) Payload() []byte   { return m.payload }
func (m *fakeMQTTMessage) Ack()              { m.acked.Store(true) }

func TestMQTTMessageIsAckedAfterHandling(t *testing.T) {
	body, _ := json.Marshal(ports.Envelope{ID: "env-id", Key: "light-001", Payload: []byte(`{"sensorId":"light-001"}`)})
	msg := &fakeMQTTMessage{payload: body}

	m := &MQTT{cfg: MQTTConfig{Topic: "sensorflow/readings"}, obs: newMockObs(), log: discardLogger()}
	d := NewDispatcher(testPolicy(), nil, m.obs)

	var got ports.Envelope
	d.Start(context.Background(), func(_ context.Context, env ports.Envelope) error {
		got = env
		return nil
	})
	m.onMessage(context.Background(), d)(nil, msg)
	d.Close()

	if got.ID != "env-id" || got.Key != "light-001" || string(got.Payload) != `{"sensorId":"light-001"}` {
		t.Fatalf("unexpected envelope: %+v", got)
	}
	if !msg.acked.Load() {
		t.Fatalf("message should be acknowledged")
	}
}

func TestEnvelopeFromMQTTAcceptsBarePayload(t *testing.T) {
	msg := &fakeMQTTMessage{payload: []byte(`{"sensorId":"water-002","sensorType":"Water"}`)}
	env := envelopeFromMQTT(msg)
	if string(env.Payload) != string(msg.payload) || env.ID == "" {
		t.Fatalf("bare payload not wrapped: %+v", env)
	}
}
