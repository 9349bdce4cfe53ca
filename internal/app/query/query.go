package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

var ErrNotFound = errors.New("no readings found")

const (
	DefaultLatest    = 10
	DefaultAll       = 100
	DefaultSlice     = 50
	DefaultPageSize  = 6
	MaxPageSize      = 100
	DefaultTopErrors = 3
)

// Reader is the read side the service needs from a store.
type Reader interface {
	QueryReadings(ctx context.Context, f ports.ReadingFilter) ([]domain.Reading, error)
	QueryErrors(ctx context.Context, limit int) ([]domain.SensorErrorRecord, error)
}

type SummaryRequest struct {
	Type     *domain.SensorType
	Page     int
	PageSize int
}

type SummaryPage struct {
	TotalCount  int                   `json:"totalCount"`
	TotalPages  int                   `json:"totalPages"`
	CurrentPage int                   `json:"currentPage"`
	PageSize    int                   `json:"pageSize"`
	Data        []domain.SummaryEntry `json:"data"`
}

// Service answers read queries. It never writes and never blocks ingestion.
type Service struct {
	store Reader
}

func NewService(store Reader) *Service {
	return &Service{store: store}
}

func (s *Service) Latest(ctx context.Context, n int) ([]domain.Reading, error) {
	return s.store.QueryReadings(ctx, ports.ReadingFilter{Limit: orDefault(n, DefaultLatest)})
}

func (s *Service) All(ctx context.Context, n int) ([]domain.Reading, error) {
	return s.store.QueryReadings(ctx, ports.ReadingFilter{Limit: orDefault(n, DefaultAll)})
}

func (s *Service) BySensor(ctx context.Context, sensorID string, n int) ([]domain.Reading, error) {
	return s.slice(ctx, ports.ReadingFilter{SensorID: sensorID, Limit: orDefault(n, DefaultSlice)})
}

func (s *Service) ByType(ctx context.Context, typ domain.SensorType, n int) ([]domain.Reading, error) {
	return s.slice(ctx, ports.ReadingFilter{Type: typ, Limit: orDefault(n, DefaultSlice)})
}

func (s *Service) slice(ctx context.Context, f ports.ReadingFilter) ([]domain.Reading, error) {
	out, err := s.store.QueryReadings(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// Summary reports the newest reading of every (sensorId, sensorType) group, one page at a
// time. Groups are ordered by sensor id and then by type.
func (s *Service) Summary(ctx context.Context, req SummaryRequest) (SummaryPage, error) {
	page, size := req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	var typ domain.SensorType
	if req.Type != nil {
		typ = *req.Type
	}
	latest, err := s.latestPerSensor(ctx, typ)
	if err != nil {
		return SummaryPage{}, err
	}

	entries := make([]domain.SummaryEntry, 0, len(latest))
	for i := range latest {
		entries = append(entries, domain.NewSummaryEntry(&latest[i]))
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SensorID != entries[j].SensorID {
			return entries[i].SensorID < entries[j].SensorID
		}
		return entries[i].SensorType.Ordinal() < entries[j].SensorType.Ordinal()
	})

	total := len(entries)
	out := SummaryPage{
		TotalCount:  total,
		TotalPages:  (total + size - 1) / size,
		CurrentPage: page,
		PageSize:    size,
		Data:        []domain.SummaryEntry{},
	}
	// page <= TotalPages keeps (page-1)*size below total
	if page <= out.TotalPages {
		start := (page - 1) * size
		out.Data = entries[start:min(start+size, total)]
	}
	return out, nil
}

func (s *Service) latestPerSensor(ctx context.Context, typ domain.SensorType) ([]domain.Reading, error) {
	if l, ok := s.store.(ports.LatestPerSensorStore); ok {
		out, err := l.LatestPerSensor(ctx, typ)
		if !errors.Is(err, errors.ErrUnsupported) {
			return out, err
		}
	}

	all, err := s.store.QueryReadings(ctx, ports.ReadingFilter{Type: typ})
	if err != nil {
		return nil, fmt.Errorf("scan readings: %w", err)
	}
	// all is newest first, so the first reading seen per group is its latest
	seen := make(map[domain.ErrorKey]struct{})
	out := make([]domain.Reading, 0)
	for _, r := range all {
		k := domain.ErrorKey{SensorID: r.SensorID, SensorType: r.Type()}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) TopErrors(ctx context.Context, k int) ([]domain.SensorErrorRecord, error) {
	return s.store.QueryErrors(ctx, orDefault(k, DefaultTopErrors))
}

func orDefault(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
