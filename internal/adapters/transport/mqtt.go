package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ghalamif/sensorflow/internal/ports"
)

type MQTTConfig struct {
	Broker         string
	Topic          string
	ClientID       string
	QoS            byte
	ConnectTimeout time.Duration
}

// MQTT carries envelopes as JSON documents on a single topic. Messages are acknowledged
// manually, after the handler finishes, so QoS 1 gives at-least-once delivery.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	pol    ports.DeliveryPolicy
	dlq    ports.DeadLetterLog
	obs    ports.Observability
	log    *slog.Logger
}

func NewMQTT(cfg MQTTConfig, pol ports.DeliveryPolicy, dlq ports.DeadLetterLog, obs ports.Observability, log *slog.Logger) (*MQTT, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt broker and topic are required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "sensorflow-" + uuid.NewString()[:8]
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(false).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetAutoAckDisabled(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt_connection_lost", slog.Any("err", err))
		})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return &MQTT{cfg: cfg, client: client, pol: pol, dlq: dlq, obs: obs, log: log}, nil
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Publish(ctx context.Context, env ports.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("mqtt encode envelope: %w", err)
	}
	return wait(ctx, m.client.Publish(m.cfg.Topic, m.cfg.QoS, false, body))
}

func (m *MQTT) Subscribe(ctx context.Context, h ports.Handler) error {
	d := NewDispatcher(m.pol, m.dlq, m.obs)
	d.Start(ctx, h)
	defer d.Close()

	if err := wait(ctx, m.client.Subscribe(m.cfg.Topic, m.cfg.QoS, m.onMessage(ctx, d))); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", m.cfg.Topic, err)
	}
	m.log.Info("consumer_start", slog.String("topic", m.cfg.Topic))

	<-ctx.Done()
	unsubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wait(unsubCtx, m.client.Unsubscribe(m.cfg.Topic)); err != nil {
		m.log.Warn("mqtt_unsubscribe", slog.Any("err", err))
	}
	m.log.Info("consumer_stop", slog.String("reason", "context"))
	return nil
}

func (m *MQTT) onMessage(ctx context.Context, d *Dispatcher) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		del := Delivery{
			Env: envelopeFromMQTT(msg),
			Ack: func(context.Context) error {
				msg.Ack()
				return nil
			},
		}
		// unacknowledged messages are resent by the broker on reconnect
		d.Submit(ctx, del)
	}
}

// envelopeFromMQTT accepts both framed envelopes and bare reading payloads from
// third-party publishers.
func envelopeFromMQTT(msg mqtt.Message) ports.Envelope {
	var env ports.Envelope
	if err := json.Unmarshal(msg.Payload(), &env); err == nil && len(env.Payload) > 0 {
		return env
	}
	return ports.Envelope{
		ID:          fmt.Sprintf("mqtt-%d-%s", msg.MessageID(), uuid.NewString()[:8]),
		Payload:     msg.Payload(),
		PublishedAt: time.Now().UTC(),
	}
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}

func wait(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ ports.Transport = (*MQTT)(nil)
