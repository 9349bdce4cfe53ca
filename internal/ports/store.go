package ports

import (
	"context"
	"time"

	"github.com/ghalamif/sensorflow/internal/domain"
)

// ReadingFilter narrows QueryReadings. Zero values match everything; Limit 0 is unbounded.
// Results are always newest first (timestamp desc, then id desc).
type ReadingFilter struct {
	SensorID string
	Type     domain.SensorType
	Limit    int
}

type ReadingStore interface {
	InsertReading(ctx context.Context, r *domain.Reading) error
	QueryReadings(ctx context.Context, f ReadingFilter) ([]domain.Reading, error)
}

// LatestPerSensorStore is implemented by stores that can compute the newest reading of
// every (sensorId, sensorType) group themselves. typ may be empty.
type LatestPerSensorStore interface {
	LatestPerSensor(ctx context.Context, typ domain.SensorType) ([]domain.Reading, error)
}

// ErrorStore keeps one record per key. UpsertError must be atomic per key on durable
// backends; it returns the record after the update.
type ErrorStore interface {
	UpsertError(ctx context.Context, key domain.ErrorKey, delta int64, at time.Time, msg string) (domain.SensorErrorRecord, error)
	QueryErrors(ctx context.Context, limit int) ([]domain.SensorErrorRecord, error)
}

type Store interface {
	ReadingStore
	ErrorStore
	Ping(ctx context.Context) error
	Close() error
	Name() string
}
