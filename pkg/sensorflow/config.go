package sensorflow

import (
	"github.com/ghalamif/sensorflow/internal/adapters/opcua"
	"github.com/ghalamif/sensorflow/internal/app/config"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	LogConfig        = config.LogConfig
	ProducerConfig   = config.ProducerConfig
	ConsumerConfig   = config.ConsumerConfig
	TransportConfig  = config.TransportConfig
	KafkaConfig      = config.KafkaConfig
	MQTTConfig       = config.MQTTConfig
	StoreConfig      = config.StoreConfig
	DeadLetterConfig = config.DeadLetterConfig
	APIConfig        = config.APIConfig
	MetricsConfig    = config.MetricsConfig
	// OPCUAConfig holds connection + node details for the optional collector.
	OPCUAConfig = opcua.Config
	// OPCUANodeConfig maps a monitored tag onto a sensor field.
	OPCUANodeConfig = opcua.NodeConfig
)

// LoadConfig loads YAML from disk and applies SENSORFLOW_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig is a single-process setup: memory transport, memory store.
func DefaultConfig() *Config {
	return config.Default()
}
