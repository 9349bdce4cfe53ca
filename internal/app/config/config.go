package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ghalamif/sensorflow/internal/adapters/codec"
	"github.com/ghalamif/sensorflow/internal/adapters/dynamo"
	"github.com/ghalamif/sensorflow/internal/adapters/opcua"
	"github.com/ghalamif/sensorflow/internal/adapters/transport"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// EnvPrefix namespaces environment overrides: store.dsn is read from SENSORFLOW_STORE_DSN.
const EnvPrefix = "SENSORFLOW"

type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Producer   ProducerConfig   `yaml:"producer" mapstructure:"producer"`
	Consumer   ConsumerConfig   `yaml:"consumer" mapstructure:"consumer"`
	Transport  TransportConfig  `yaml:"transport" mapstructure:"transport"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter" mapstructure:"dead_letter"`
	API        APIConfig        `yaml:"api" mapstructure:"api"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	OPCUA      opcua.Config     `yaml:"opcua" mapstructure:"opcua"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

type ProducerConfig struct {
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`
	Backoff        time.Duration `yaml:"backoff" mapstructure:"backoff"`
	PublishTimeout time.Duration `yaml:"publish_timeout" mapstructure:"publish_timeout"`
	Seed           uint64        `yaml:"seed" mapstructure:"seed"`
	// LocalStore keeps the producer's own copy of every generated reading. An empty
	// driver disables it.
	LocalStore StoreConfig `yaml:"local_store" mapstructure:"local_store"`
}

type ConsumerConfig struct {
	Prefetch      int           `yaml:"prefetch" mapstructure:"prefetch"`
	Concurrency   int           `yaml:"concurrency" mapstructure:"concurrency"`
	RetryLimit    int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryInterval time.Duration `yaml:"retry_interval" mapstructure:"retry_interval"`
	IdleSleep     time.Duration `yaml:"idle_sleep" mapstructure:"idle_sleep"`
	OpTimeout     time.Duration `yaml:"op_timeout" mapstructure:"op_timeout"`
}

type TransportConfig struct {
	Kind   string       `yaml:"kind" mapstructure:"kind"` // memory, kafka, mqtt
	Codec  string       `yaml:"codec" mapstructure:"codec"`
	Kafka  KafkaConfig  `yaml:"kafka" mapstructure:"kafka"`
	MQTT   MQTTConfig   `yaml:"mqtt" mapstructure:"mqtt"`
	Memory MemoryConfig `yaml:"memory" mapstructure:"memory"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" mapstructure:"brokers"`
	Topic        string        `yaml:"topic" mapstructure:"topic"`
	GroupID      string        `yaml:"group_id" mapstructure:"group_id"`
	BatchTimeout time.Duration `yaml:"batch_timeout" mapstructure:"batch_timeout"`
	AutoCreate   bool          `yaml:"auto_create" mapstructure:"auto_create"`
}

type MQTTConfig struct {
	Broker         string        `yaml:"broker" mapstructure:"broker"`
	Topic          string        `yaml:"topic" mapstructure:"topic"`
	ClientID       string        `yaml:"client_id" mapstructure:"client_id"`
	QoS            int           `yaml:"qos" mapstructure:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
}

type MemoryConfig struct {
	Capacity    int    `yaml:"capacity" mapstructure:"capacity"`
	OnQueueFull string `yaml:"on_queue_full" mapstructure:"on_queue_full"`
}

type StoreConfig struct {
	Driver        string        `yaml:"driver" mapstructure:"driver"` // postgres, sqlite, memory
	DSN           string        `yaml:"dsn" mapstructure:"dsn"`
	ReadingsTable string        `yaml:"readings_table" mapstructure:"readings_table"`
	ErrorsTable   string        `yaml:"errors_table" mapstructure:"errors_table"`
	PoolSize      int           `yaml:"pool_size" mapstructure:"pool_size"`
	ErrorsBackend string        `yaml:"errors_backend" mapstructure:"errors_backend"` // sql or dynamodb
	DynamoDB      DynamoConfig  `yaml:"dynamodb" mapstructure:"dynamodb"`
	PingTimeout   time.Duration `yaml:"ping_timeout" mapstructure:"ping_timeout"`
}

type DynamoConfig struct {
	Region   string `yaml:"region" mapstructure:"region"`
	Table    string `yaml:"table" mapstructure:"table"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

type DeadLetterConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

type APIConfig struct {
	Addr        string   `yaml:"addr" mapstructure:"addr"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// Load reads the YAML file at path (optional when empty), overlays SENSORFLOW_* environment
// variables, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file and no environment is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyEnv overrides any leaf value whose environment variable is set.
func applyEnv(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvs(v, reflect.TypeOf(*cfg), "")

	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}

func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := f.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		switch {
		case f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Duration(0)):
			bindEnvs(v, f.Type, key)
		case f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() == reflect.Struct:
			// lists of structs only come from the file
		default:
			_ = v.BindEnv(key)
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Producer.Interval <= 0 {
		c.Producer.Interval = 500 * time.Millisecond
	}
	if c.Producer.Backoff <= 0 {
		c.Producer.Backoff = 5 * time.Second
	}
	if c.Producer.PublishTimeout <= 0 {
		c.Producer.PublishTimeout = 10 * time.Second
	}

	def := ports.DefaultDeliveryPolicy()
	if c.Consumer.Prefetch <= 0 {
		c.Consumer.Prefetch = def.Prefetch
	}
	if c.Consumer.Concurrency <= 0 {
		c.Consumer.Concurrency = def.Concurrency
	}
	if c.Consumer.RetryLimit <= 0 {
		c.Consumer.RetryLimit = def.RetryLimit
	}
	if c.Consumer.RetryInterval <= 0 {
		c.Consumer.RetryInterval = def.RetryInterval
	}
	if c.Consumer.IdleSleep <= 0 {
		c.Consumer.IdleSleep = def.IdleSleep
	}
	if c.Consumer.OpTimeout <= 0 {
		c.Consumer.OpTimeout = 5 * time.Second
	}

	if c.Transport.Kind == "" {
		c.Transport.Kind = "memory"
	}
	if c.Transport.Codec == "" {
		c.Transport.Codec = "json"
	}
	if c.Transport.Kafka.Topic == "" {
		c.Transport.Kafka.Topic = "sensor-data"
	}
	if c.Transport.Kafka.GroupID == "" {
		c.Transport.Kafka.GroupID = "sensorflow-consumer"
	}
	if c.Transport.MQTT.Topic == "" {
		c.Transport.MQTT.Topic = "sensorflow/readings"
	}
	if c.Transport.MQTT.QoS == 0 {
		c.Transport.MQTT.QoS = 1
	}
	if c.Transport.MQTT.ConnectTimeout <= 0 {
		c.Transport.MQTT.ConnectTimeout = 10 * time.Second
	}
	if c.Transport.Memory.Capacity <= 0 {
		c.Transport.Memory.Capacity = def.QueueCapacity
	}
	if c.Transport.Memory.OnQueueFull == "" {
		c.Transport.Memory.OnQueueFull = def.OnQueueFull
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	c.Store.applyDefaults()
	if c.Producer.LocalStore.Driver != "" {
		c.Producer.LocalStore.applyDefaults()
	}

	if c.DeadLetter.Dir == "" {
		c.DeadLetter.Dir = "./data/dlq"
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	if c.API.CORSOrigins == nil {
		c.API.CORSOrigins = []string{"http://localhost:5173", "http://localhost:80", "http://localhost:3000"}
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}

	if c.OPCUA.Enabled {
		c.OPCUA.ApplyDefaults()
	}
}

func (s *StoreConfig) applyDefaults() {
	if s.ReadingsTable == "" {
		s.ReadingsTable = "sensor_readings"
	}
	if s.ErrorsTable == "" {
		s.ErrorsTable = "sensor_errors"
	}
	if s.PoolSize <= 0 {
		s.PoolSize = 4
	}
	if s.ErrorsBackend == "" {
		s.ErrorsBackend = "sql"
	}
	if s.DynamoDB.Table == "" {
		s.DynamoDB.Table = dynamo.DefaultTable
	}
	if s.DynamoDB.Region == "" {
		s.DynamoDB.Region = "us-east-1"
	}
	if s.PingTimeout <= 0 {
		s.PingTimeout = 2 * time.Second
	}
}

func (c *Config) validate() error {
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	switch c.Transport.Kind {
	case "memory":
	case "kafka":
		if len(c.Transport.Kafka.Brokers) == 0 {
			return fmt.Errorf("transport.kafka.brokers is required")
		}
	case "mqtt":
		if c.Transport.MQTT.Broker == "" {
			return fmt.Errorf("transport.mqtt.broker is required")
		}
		if c.Transport.MQTT.QoS < 0 || c.Transport.MQTT.QoS > 2 {
			return fmt.Errorf("transport.mqtt.qos must be 0, 1 or 2")
		}
	default:
		return fmt.Errorf("transport.kind must be memory, kafka or mqtt, got %q", c.Transport.Kind)
	}
	if _, err := codec.New(c.Transport.Codec); err != nil {
		return fmt.Errorf("transport.codec: %w", err)
	}
	switch c.Transport.Memory.OnQueueFull {
	case ports.OnFullBlock, ports.OnFullDrop, ports.OnFullReject:
	default:
		return fmt.Errorf("transport.memory.on_queue_full must be block, drop or reject")
	}

	if err := c.Store.validate("store"); err != nil {
		return err
	}
	if c.Producer.LocalStore.Driver != "" {
		if err := c.Producer.LocalStore.validate("producer.local_store"); err != nil {
			return err
		}
	}

	if c.DeadLetter.Dir == "" {
		return fmt.Errorf("dead_letter.dir is required")
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required")
	}
	if c.OPCUA.Enabled {
		if err := c.OPCUA.Validate(); err != nil {
			return fmt.Errorf("opcua config: %w", err)
		}
	}
	return nil
}

func (s *StoreConfig) validate(prefix string) error {
	switch s.Driver {
	case "memory":
	case "postgres", "sqlite":
		if s.DSN == "" {
			return fmt.Errorf("%s.dsn is required for %s", prefix, s.Driver)
		}
	default:
		return fmt.Errorf("%s.driver must be postgres, sqlite or memory, got %q", prefix, s.Driver)
	}
	switch s.ErrorsBackend {
	case "sql":
	case "dynamodb":
		if s.DynamoDB.Table == "" {
			return fmt.Errorf("%s.dynamodb.table is required", prefix)
		}
	default:
		return fmt.Errorf("%s.errors_backend must be sql or dynamodb, got %q", prefix, s.ErrorsBackend)
	}
	return nil
}

// Policy is the delivery policy the consumer side hands to its transport.
func (c *Config) Policy() ports.DeliveryPolicy {
	pol := ports.DefaultDeliveryPolicy()
	pol.Prefetch = c.Consumer.Prefetch
	pol.Concurrency = c.Consumer.Concurrency
	pol.RetryLimit = c.Consumer.RetryLimit
	pol.RetryInterval = c.Consumer.RetryInterval
	pol.IdleSleep = c.Consumer.IdleSleep
	pol.QueueCapacity = c.Transport.Memory.Capacity
	pol.OnQueueFull = c.Transport.Memory.OnQueueFull
	return pol
}

func (k KafkaConfig) Adapter() transport.KafkaConfig {
	return transport.KafkaConfig{
		Brokers:      k.Brokers,
		Topic:        k.Topic,
		GroupID:      k.GroupID,
		BatchTimeout: k.BatchTimeout,
		AutoCreate:   k.AutoCreate,
	}
}

func (m MQTTConfig) Adapter() transport.MQTTConfig {
	return transport.MQTTConfig{
		Broker:         m.Broker,
		Topic:          m.Topic,
		ClientID:       m.ClientID,
		QoS:            byte(m.QoS),
		ConnectTimeout: m.ConnectTimeout,
	}
}

func (d DynamoConfig) Adapter() dynamo.Config {
	return dynamo.Config{Region: d.Region, Table: d.Table, Endpoint: d.Endpoint}
}
