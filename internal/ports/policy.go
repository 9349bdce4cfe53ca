package ports

import "time"

// DeliveryPolicy bounds how a transport hands messages to its handler.
type DeliveryPolicy struct {
	Prefetch      int
	Concurrency   int
	RetryLimit    int // redeliveries after the first attempt
	RetryInterval time.Duration
	IdleSleep     time.Duration

	QueueCapacity int
	OnQueueFull   string // "block", "drop", "reject"
}

const (
	OnFullBlock  = "block"
	OnFullDrop   = "drop"
	OnFullReject = "reject"
)

func DefaultDeliveryPolicy() DeliveryPolicy {
	return DeliveryPolicy{
		Prefetch:      32,
		Concurrency:   8,
		RetryLimit:    3,
		RetryInterval: time.Second,
		IdleSleep:     10 * time.Millisecond,
		QueueCapacity: 10000,
		OnQueueFull:   OnFullBlock,
	}
}
