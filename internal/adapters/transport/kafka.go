package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ghalamif/sensorflow/internal/ports"
)

const (
	headerMessageID   = "message-id"
	headerContentType = "content-type"
)

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	GroupID      string
	BatchTimeout time.Duration
	AutoCreate   bool
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes readings keyed by sensor id and consumes them in a consumer group.
// Offsets are committed only up to the highest contiguous acknowledged message of each
// partition, so anything unfinished at a crash is redelivered.
type Kafka struct {
	cfg       KafkaConfig
	writer    messageWriter
	newReader func() messageReader
	pol       ports.DeliveryPolicy
	dlq       ports.DeadLetterLog
	obs       ports.Observability
	log       *slog.Logger
}

func NewKafka(cfg KafkaConfig, pol ports.DeliveryPolicy, dlq ports.DeadLetterLog, obs ports.Observability, log *slog.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic must not be empty")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: cfg.AutoCreate,
		BatchTimeout:           cfg.BatchTimeout,
	}
	newReader := func() messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			Topic:       cfg.Topic,
			StartOffset: kafka.FirstOffset,
			MinBytes:    1,
			MaxBytes:    10e6,
		})
	}
	return newKafkaWith(cfg, writer, newReader, pol, dlq, obs, log), nil
}

func newKafkaWith(cfg KafkaConfig, w messageWriter, newReader func() messageReader, pol ports.DeliveryPolicy, dlq ports.DeadLetterLog, obs ports.Observability, log *slog.Logger) *Kafka {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Kafka{cfg: cfg, writer: w, newReader: newReader, pol: pol, dlq: dlq, obs: obs, log: log}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Publish(ctx context.Context, env ports.Envelope) error {
	msg := kafka.Message{
		Key:   []byte(env.Key),
		Value: env.Payload,
		Time:  env.PublishedAt,
		Headers: []kafka.Header{
			{Key: headerMessageID, Value: []byte(env.ID)},
			{Key: headerContentType, Value: []byte(env.ContentType)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", k.cfg.Topic, err)
	}
	return nil
}

func (k *Kafka) Subscribe(ctx context.Context, h ports.Handler) error {
	reader := k.newReader()
	defer func() {
		if err := reader.Close(); err != nil {
			k.log.Error("reader_close", slog.Any("err", err))
		}
	}()

	tracker := newOffsetTracker()
	defer func() {
		if parts := tracker.pendingPartitions(); len(parts) > 0 {
			k.log.Warn("uncommitted_on_stop", slog.Any("partitions", parts))
		}
	}()

	d := NewDispatcher(k.pol, k.dlq, k.obs)
	d.Start(ctx, h)
	defer d.Close()

	k.log.Info("consumer_start", slog.String("topic", k.cfg.Topic), slog.String("group", k.cfg.GroupID))

	backoff := time.Second
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				k.log.Info("consumer_stop", slog.String("reason", "context"))
				return nil
			}
			k.log.Error("fetch_err", slog.Any("err", err))
			select {
			case <-time.After(backoff):
				if backoff < 10*time.Second {
					backoff *= 2
				}
				continue
			case <-ctx.Done():
				k.log.Info("consumer_stop", slog.String("reason", "shutdown"))
				return nil
			}
		}
		backoff = time.Second

		tracker.track(msg)
		del := Delivery{
			Env: envelopeFromKafka(msg),
			Ack: func(ackCtx context.Context) error {
				return tracker.ack(ackCtx, reader, msg)
			},
		}
		if !d.Submit(ctx, del) {
			// not committed; the group hands it out again
			k.log.Info("consumer_stop", slog.String("reason", "shutdown"))
			return nil
		}
	}
}

func (k *Kafka) Close() error { return k.writer.Close() }

func envelopeFromKafka(msg kafka.Message) ports.Envelope {
	env := ports.Envelope{
		Key:         string(msg.Key),
		Payload:     msg.Value,
		PublishedAt: msg.Time,
	}
	for _, h := range msg.Headers {
		switch h.Key {
		case headerMessageID:
			env.ID = string(h.Value)
		case headerContentType:
			env.ContentType = string(h.Value)
		}
	}
	if env.ID == "" {
		env.ID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	return env
}

// offsetTracker remembers fetched offsets per partition and reports the last message of
// the contiguous acknowledged prefix.
type offsetTracker struct {
	mu    sync.Mutex
	parts map[int]*partitionOffsets

	commitMu  sync.Mutex
	committed map[int]int64
}

type partitionOffsets struct {
	pending []int64
	done    map[int64]kafka.Message
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{parts: make(map[int]*partitionOffsets), committed: make(map[int]int64)}
}

// ack marks msg handled and commits the new contiguous mark. Commits never move a
// partition's mark backwards.
func (t *offsetTracker) ack(ctx context.Context, r messageReader, msg kafka.Message) error {
	commit, ok := t.complete(msg)
	if !ok {
		return nil
	}
	t.commitMu.Lock()
	defer t.commitMu.Unlock()
	if last, seen := t.committed[commit.Partition]; seen && commit.Offset <= last {
		return nil
	}
	if err := r.CommitMessages(ctx, commit); err != nil {
		return err
	}
	t.committed[commit.Partition] = commit.Offset
	return nil
}

func (t *offsetTracker) track(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parts[msg.Partition]
	if !ok {
		p = &partitionOffsets{done: make(map[int64]kafka.Message)}
		t.parts[msg.Partition] = p
	}
	p.pending = append(p.pending, msg.Offset)
}

func (t *offsetTracker) complete(msg kafka.Message) (kafka.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.parts[msg.Partition]
	if !ok {
		return kafka.Message{}, false
	}
	p.done[msg.Offset] = msg

	var (
		last     kafka.Message
		advanced bool
	)
	for len(p.pending) > 0 {
		m, ok := p.done[p.pending[0]]
		if !ok {
			break
		}
		delete(p.done, p.pending[0])
		p.pending = p.pending[1:]
		last, advanced = m, true
	}
	return last, advanced
}

// pendingPartitions lists partitions with unacknowledged messages, for diagnostics.
func (t *offsetTracker) pendingPartitions() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int
	for id, p := range t.parts {
		if len(p.pending) > 0 {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

var _ ports.Transport = (*Kafka)(nil)
