package store

import (
	"context"
	"errors"
	"time"

	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

// ErrorBackend is an error store with its own lifecycle, such as DynamoDB.
type ErrorBackend interface {
	ports.ErrorStore
	Name() string
}

// Split serves readings from one store and error records from another.
type Split struct {
	Readings ports.Store
	Errors   ErrorBackend
}

func (s *Split) Name() string { return s.Readings.Name() + "+" + s.Errors.Name() }

func (s *Split) InsertReading(ctx context.Context, r *domain.Reading) error {
	return s.Readings.InsertReading(ctx, r)
}

func (s *Split) QueryReadings(ctx context.Context, f ports.ReadingFilter) ([]domain.Reading, error) {
	return s.Readings.QueryReadings(ctx, f)
}

func (s *Split) LatestPerSensor(ctx context.Context, typ domain.SensorType) ([]domain.Reading, error) {
	if l, ok := s.Readings.(ports.LatestPerSensorStore); ok {
		return l.LatestPerSensor(ctx, typ)
	}
	return nil, errors.ErrUnsupported
}

func (s *Split) UpsertError(ctx context.Context, key domain.ErrorKey, delta int64, at time.Time, msg string) (domain.SensorErrorRecord, error) {
	return s.Errors.UpsertError(ctx, key, delta, at, msg)
}

func (s *Split) QueryErrors(ctx context.Context, limit int) ([]domain.SensorErrorRecord, error) {
	return s.Errors.QueryErrors(ctx, limit)
}

func (s *Split) Ping(ctx context.Context) error { return s.Readings.Ping(ctx) }

func (s *Split) Close() error { return s.Readings.Close() }

var _ ports.Store = (*Split)(nil)
