package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ghalamif/sensorflow/internal/adapters/store"
	"github.com/ghalamif/sensorflow/internal/app/query"
	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

func newServer(t *testing.T, s *store.MemoryStore, health Pinger) http.Handler {
	t.Helper()
	opts := Options{CORSOrigins: []string{"http://localhost:5173"}, Metrics: http.NotFoundHandler()}
	return Handler(NewRouter(query.NewService(s), health, opts), opts)
}

func seed(t *testing.T) *store.MemoryStore {
	s := store.NewMemoryStore()
	ts := time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)
	for i, r := range []*domain.Reading{
		{SensorID: "energy-002", Timestamp: ts, Processed: true, Measurement: domain.EnergyFields{Voltage: domain.Float(231.4)}},
		{SensorID: "water-001", Timestamp: ts.Add(time.Second), Processed: true, Measurement: domain.WaterFields{PH: domain.Float(7.1)}},
	} {
		if err := s.InsertReading(context.Background(), r); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLatestReturnsNewestFirst(t *testing.T) {
	rec := get(t, newServer(t, seed(t), nil), "/api/SensorData/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []domain.ReadingMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].SensorID != "water-001" || got[0].SensorType != "Water" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("missing CORS header: %v", rec.Header())
	}
}

func TestBySensorNotFound(t *testing.T) {
	rec := get(t, newServer(t, seed(t), nil), "/api/SensorData/bySensor/ghost")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] == "" {
		t.Fatalf("expected error body, got %s", rec.Body.String())
	}
}

func TestByTypeValidation(t *testing.T) {
	h := newServer(t, seed(t), nil)
	if rec := get(t, h, "/api/SensorData/byType/Sonar"); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown type status = %d", rec.Code)
	}
	if rec := get(t, h, "/api/SensorData/byType/Motion"); rec.Code != http.StatusNotFound {
		t.Fatalf("empty type status = %d", rec.Code)
	}
	if rec := get(t, h, "/api/SensorData/byType/energy"); rec.Code != http.StatusOK {
		t.Fatalf("energy status = %d", rec.Code)
	}
}

func TestSummaryParams(t *testing.T) {
	h := newServer(t, seed(t), nil)

	rec := get(t, h, "/api/SensorData/summary?page=1&pageSize=1")
	var page query.SummaryPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.TotalCount != 2 || page.TotalPages != 2 || len(page.Data) != 1 || page.Data[0].SensorID != "energy-002" {
		t.Fatalf("unexpected page: %s", rec.Body.String())
	}

	if rec := get(t, h, "/api/SensorData/summary?page=abc"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad page status = %d", rec.Code)
	}
	if rec := get(t, h, "/api/SensorData/summary?sensorType=Sonar"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad type status = %d", rec.Code)
	}
}

func TestSensorErrors(t *testing.T) {
	s := seed(t)
	key := domain.ErrorKey{SensorID: "water-002", SensorType: domain.Water}
	s.UpsertError(context.Background(), key, 2, time.Now(), "pH out of valid range (0-14): 14.2")

	rec := get(t, newServer(t, s, nil), "/api/SensorErrors")
	var got []domain.SensorErrorRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ErrorCount != 2 || got[0].SensorType != domain.Water {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestAirQualityJSONNames(t *testing.T) {
	s := store.NewMemoryStore()
	r := &domain.Reading{
		SensorID:    "air-001",
		Timestamp:   time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC),
		Processed:   true,
		Measurement: domain.AirQualityFields{CO2: domain.Float(612), PM25: domain.Float(8.1)},
	}
	if err := s.InsertReading(context.Background(), r); err != nil {
		t.Fatalf("insert: %v", err)
	}
	h := newServer(t, s, nil)

	var latest []map[string]any
	if err := json.Unmarshal(get(t, h, "/api/SensorData/latest").Body.Bytes(), &latest); err != nil {
		t.Fatalf("decode latest: %v", err)
	}
	if len(latest) != 1 || latest[0]["cO2"] != 612.0 || latest[0]["pM25"] != 8.1 {
		t.Fatalf("unexpected latest: %v", latest)
	}
	if _, ok := latest[0]["co2"]; ok {
		t.Fatalf("latest carries lower-case co2: %v", latest[0])
	}

	var summary struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(get(t, h, "/api/SensorData/summary").Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(summary.Data) != 1 {
		t.Fatalf("summary rows = %d", len(summary.Data))
	}
	row := summary.Data[0]
	if row["latestCO2"] != 612.0 || row["latestPM25"] != 8.1 || row["latestTimestamp"] != "2024-03-09T10:30:00Z" {
		t.Fatalf("unexpected summary row: %v", row)
	}
	for _, k := range []string{"latest", "latestTemperature"} {
		if _, ok := row[k]; ok {
			t.Fatalf("summary row carries %q: %v", k, row)
		}
	}
}

func TestSummaryHugePageIsEmpty(t *testing.T) {
	rec := get(t, newServer(t, seed(t), nil), "/api/SensorData/summary?page=9223372036854775807")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var page query.SummaryPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Data) != 0 || page.TotalCount != 2 {
		t.Fatalf("unexpected page: %s", rec.Body.String())
	}
}

func TestUnencodableBodyIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"turbidity": math.NaN()})
	if rec.Code != http.StatusInternalServerError || rec.Body.String() != "{\"error\":\"internal error\"}\n" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

type failingStore struct{ *store.MemoryStore }

func (failingStore) QueryReadings(context.Context, ports.ReadingFilter) ([]domain.Reading, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestStoreFailureIsInternal(t *testing.T) {
	fs := failingStore{store.NewMemoryStore()}
	h := Handler(NewRouter(query.NewService(fs), fs, Options{}), Options{})

	rec := get(t, h, "/api/SensorData/latest")
	if rec.Code != http.StatusInternalServerError || rec.Body.String() != "{\"error\":\"internal error\"}\n" {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if rec := get(t, h, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthzReflectsStorePing(t *testing.T) {
	healthy := get(t, newServer(t, seed(t), pingFunc(func(context.Context) error { return nil })), "/healthz")
	if healthy.Code != http.StatusOK || healthy.Body.String() != "ok" {
		t.Fatalf("healthy: %d %q", healthy.Code, healthy.Body.String())
	}

	down := get(t, newServer(t, seed(t), pingFunc(func(context.Context) error { return errors.New("connection refused") })), "/healthz")
	if down.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", down.Code)
	}
}
