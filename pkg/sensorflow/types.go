package sensorflow

import (
	"github.com/ghalamif/sensorflow/internal/app/query"
	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// Reading is one measurement event from one sensor.
type Reading = domain.Reading

// ReadingMessage is the wire and API form of a Reading.
type ReadingMessage = domain.ReadingMessage

type SensorType = domain.SensorType

const (
	Environmental = domain.Environmental
	AirQuality    = domain.AirQuality
	Water         = domain.Water
	Energy        = domain.Energy
	Motion        = domain.Motion
	Light         = domain.Light
)

type (
	Measurement         = domain.Measurement
	EnvironmentalFields = domain.EnvironmentalFields
	AirQualityFields    = domain.AirQualityFields
	WaterFields         = domain.WaterFields
	EnergyFields        = domain.EnergyFields
	MotionFields        = domain.MotionFields
	LightFields         = domain.LightFields
	FieldSet            = domain.FieldSet
	SensorErrorRecord   = domain.SensorErrorRecord
	SummaryEntry        = domain.SummaryEntry
	SummaryRequest      = query.SummaryRequest
	SummaryPage         = query.SummaryPage
)

// Collector streams readings from an external source into the transport.
type Collector = ports.Collector

// Transport moves envelopes from producers to the consumer.
type Transport = ports.Transport

// Envelope is one transport message.
type Envelope = ports.Envelope

// Codec turns readings into payload bytes and back.
type Codec = ports.Codec

// Store persists readings and sensor error records.
type Store = ports.Store

type ReadingStore = ports.ReadingStore

// Observability emits metrics and logs about throughput, latency and dead letters.
type Observability = ports.Observability

// Field is a structured log/metric field used by Observability implementations.
type Field = ports.Field

// DeadLetterLog holds messages that exhausted their retries.
type DeadLetterLog = ports.DeadLetterLog

type (
	DeadLetterID    = ports.DeadLetterID
	DeadLetterEntry = ports.DeadLetterEntry
	DeadLetterStats = ports.DeadLetterStats
	DeliveryPolicy  = ports.DeliveryPolicy
)

// Float returns a pointer to v for building measurements.
func Float(v float64) *float64 { return domain.Float(v) }

// Validate applies the plausibility rules the consumer uses.
func Validate(r *Reading) error { return domain.Validate(r) }

func ParseSensorType(s string) (SensorType, error) { return domain.ParseSensorType(s) }
