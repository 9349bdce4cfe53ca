package queue

import (
	"sync"

	"github.com/ghalamif/sensorflow/internal/ports"
)

// MemQueue is a bounded in-memory FIFO of transport envelopes.
type MemQueue struct {
	mu   sync.Mutex
	data []ports.Envelope
	cap  int
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{
		data: make([]ports.Envelope, 0, capacity),
		cap:  capacity,
	}
}

func (q *MemQueue) Enqueue(env ports.Envelope) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) >= q.cap {
		return false
	}
	q.data = append(q.data, env)
	return true
}

func (q *MemQueue) DequeueBatch(max int) []ports.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.data) == 0 {
		return nil
	}
	if max <= 0 || max > len(q.data) {
		max = len(q.data)
	}
	out := make([]ports.Envelope, max)
	copy(out, q.data[:max])
	q.data = append(q.data[:0], q.data[max:]...)
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data)
}

func (q *MemQueue) Cap() int { return q.cap }

var _ ports.EnvelopeQueue = (*MemQueue)(nil)
