package sensorflow

import (
	"context"
	"log/slog"

	base "github.com/ghalamif/sensorflow/pkg/sensorflow"
)

// Re-exported errors for convenience.
var (
	ErrInvalidReading = base.ErrInvalidReading
	ErrTapClosed      = base.ErrTapClosed
)

// Type aliases so consumers can import github.com/ghalamif/sensorflow directly.
type (
	Config          = base.Config
	StoreConfig     = base.StoreConfig
	TransportConfig = base.TransportConfig
	OPCUAConfig     = base.OPCUAConfig
	OPCUANodeConfig = base.OPCUANodeConfig
	Flow            = base.Flow
	FlowOption      = base.FlowOption
	StreamInOption  = base.StreamInOption
	StreamOutOption = base.StreamOutOption
	Runtime         = base.Runtime
	RuntimeOption   = base.RuntimeOption
	Role            = base.Role
	Reading         = base.Reading
	ReadingMessage  = base.ReadingMessage
	ReadingCallback = base.ReadingCallback
	SensorType      = base.SensorType
	Collector       = base.Collector
	Transport       = base.Transport
	Codec           = base.Codec
	Store           = base.Store
	ReadingStore    = base.ReadingStore
	Observability   = base.Observability
	DeadLetterLog   = base.DeadLetterLog
	Publisher       = base.Publisher
)

const (
	RoleProducer = base.RoleProducer
	RoleConsumer = base.RoleConsumer
	RoleAPI      = base.RoleAPI
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInCollector(col Collector) StreamInOption {
	return base.StreamInCollector(col)
}

func StreamInTransport(t Transport) StreamInOption {
	return base.StreamInTransport(t)
}

func StreamInCodec(c Codec) StreamInOption {
	return base.StreamInCodec(c)
}

func StreamOutStore(s Store) StreamOutOption {
	return base.StreamOutStore(s)
}

func StreamOutCallback(fn ReadingCallback) StreamOutOption {
	return base.StreamOutCallback(fn)
}

func StreamOutDeadLetter(d DeadLetterLog) StreamOutOption {
	return base.StreamOutDeadLetter(d)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func ParseRoles(names []string) ([]Role, error) {
	return base.ParseRoles(names)
}

func WithStore(s Store) RuntimeOption {
	return base.WithStore(s)
}

func WithLocalStore(s ReadingStore) RuntimeOption {
	return base.WithLocalStore(s)
}

func WithTransport(t Transport) RuntimeOption {
	return base.WithTransport(t)
}

func WithCodec(c Codec) RuntimeOption {
	return base.WithCodec(c)
}

func WithCollector(col Collector) RuntimeOption {
	return base.WithCollector(col)
}

func WithDeadLetter(d DeadLetterLog) RuntimeOption {
	return base.WithDeadLetter(d)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithReadingCallback(fn ReadingCallback) RuntimeOption {
	return base.WithReadingCallback(fn)
}

func WithLogger(l *slog.Logger) RuntimeOption {
	return base.WithLogger(l)
}

// Store taps.
func NewCallbackStore(s Store, fn ReadingCallback) Store {
	return base.NewCallbackStore(s, fn)
}

func NewChannelStore(s Store, buffer int) (Store, <-chan Reading, func()) {
	return base.NewChannelStore(s, buffer)
}

func OpenStore(sc StoreConfig, log *slog.Logger) (Store, error) {
	return base.OpenStore(sc, log)
}

// Publishing and dead letters.
func NewPublisher(t Transport, c Codec, obs Observability) *Publisher {
	return base.NewPublisher(t, c, obs)
}

func ReplayDeadLetters(ctx context.Context, dlq DeadLetterLog, t Transport, obs Observability) (int, error) {
	return base.ReplayDeadLetters(ctx, dlq, t, obs)
}

func OpenDeadLetterLog(dir string) (base.FileDeadLetterLog, error) {
	return base.OpenDeadLetterLog(dir)
}

func OpenTransport(cfg *Config, dlq DeadLetterLog, obs Observability, log *slog.Logger) (Transport, error) {
	return base.OpenTransport(cfg, dlq, obs, log)
}

func LogObservability(log *slog.Logger) Observability { return base.LogObservability(log) }

func Validate(r *Reading) error { return base.Validate(r) }
