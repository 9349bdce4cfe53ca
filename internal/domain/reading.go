package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	minTimestamp = time.Unix(0, math.MinInt64).UTC()
	maxTimestamp = time.Unix(0, math.MaxInt64).UTC()
)

// TimestampInRange reports whether t fits in int64 nanoseconds since the Unix epoch,
// roughly the years 1678 to 2262.
func TimestampInRange(t time.Time) bool {
	return !t.Before(minTimestamp) && !t.After(maxTimestamp)
}

// Reading is one measurement event from one sensor. ID is assigned by the store on insert
// and grows with insertion order.
type Reading struct {
	ID          int64
	SensorID    string
	Timestamp   time.Time
	Processed   bool
	Measurement Measurement
}

func (r *Reading) Type() SensorType {
	if r.Measurement == nil {
		return ""
	}
	return r.Measurement.SensorType()
}

func (r *Reading) Fields() FieldSet {
	if r.Measurement == nil {
		return FieldSet{}
	}
	return r.Measurement.Flatten()
}

// ReadingMessage is the transport and API shape of a reading. SensorType stays a plain
// string so an unknown type is reported as malformed rather than a decode failure.
type ReadingMessage struct {
	ID         int64     `json:"id,omitempty"`
	SensorID   string    `json:"sensorId"`
	SensorType string    `json:"sensorType"`
	Timestamp  time.Time `json:"timestamp"`
	Processed  bool      `json:"processed"`
	FieldSet
}

func NewReadingMessage(r *Reading) ReadingMessage {
	return ReadingMessage{
		ID:         r.ID,
		SensorID:   r.SensorID,
		SensorType: string(r.Type()),
		Timestamp:  r.Timestamp.UTC(),
		Processed:  r.Processed,
		FieldSet:   r.Fields(),
	}
}

// Reading rebuilds a domain reading. It fails with ErrMalformed when the message cannot be
// attributed to a known sensor.
func (m ReadingMessage) Reading() (*Reading, error) {
	if strings.TrimSpace(m.SensorID) == "" {
		return nil, fmt.Errorf("%w: sensorId is required", ErrMalformed)
	}
	t, err := ParseSensorType(m.SensorType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: timestamp is required", ErrMalformed)
	}
	if !TimestampInRange(m.Timestamp) {
		return nil, fmt.Errorf("%w: timestamp %s out of range", ErrMalformed, m.Timestamp.Format(time.RFC3339))
	}
	meas, err := MeasurementFor(t, m.FieldSet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &Reading{
		ID:          m.ID,
		SensorID:    m.SensorID,
		Timestamp:   m.Timestamp.UTC(),
		Processed:   m.Processed,
		Measurement: meas,
	}, nil
}
