package ports

import (
	"context"
	"time"
)

// Envelope is one transport message. Key carries the sensor id so brokers that partition
// by key keep a sensor's readings in order.
type Envelope struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Payload     []byte    `json:"payload"`
	Attempt     int       `json:"attempt"`
	PublishedAt time.Time `json:"published_at"`
}

// Handler processes one delivery. A nil return acknowledges the message; any error asks
// the transport to redeliver it.
type Handler func(ctx context.Context, env Envelope) error

type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

type Transport interface {
	Publisher
	Subscribe(ctx context.Context, h Handler) error
	Close() error
	Name() string
}
