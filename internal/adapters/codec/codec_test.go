package codec

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ghalamif/sensorflow/internal/domain"
)

func sampleReading() *domain.Reading {
	return &domain.Reading{
		SensorID:    "energy-002",
		Timestamp:   time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC),
		Measurement: domain.EnergyFields{Voltage: domain.Float(231.4), PowerConsumption: domain.Float(1200)},
	}
}

func TestCodecsPreserveReading(t *testing.T) {
	cb, err := NewCBOR()
	if err != nil {
		t.Fatalf("cbor: %v", err)
	}
	for _, c := range []interface {
		Encode(*domain.Reading) ([]byte, error)
		Decode([]byte) (domain.ReadingMessage, error)
		ContentType() string
	}{JSON{}, cb} {
		b, err := c.Encode(sampleReading())
		if err != nil {
			t.Fatalf("%s encode: %v", c.ContentType(), err)
		}
		msg, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%s decode: %v", c.ContentType(), err)
		}
		r, err := msg.Reading()
		if err != nil {
			t.Fatalf("%s reading: %v", c.ContentType(), err)
		}
		if r.SensorID != "energy-002" || r.Type() != domain.Energy {
			t.Fatalf("%s identity lost: %+v", c.ContentType(), r)
		}
		fs := r.Fields()
		if fs.Voltage == nil || *fs.Voltage != 231.4 || fs.Current != nil {
			t.Fatalf("%s fields lost: %+v", c.ContentType(), fs)
		}
		if !r.Timestamp.Equal(sampleReading().Timestamp) {
			t.Fatalf("%s timestamp mismatch: %v", c.ContentType(), r.Timestamp)
		}
	}
}

func TestJSONWireShape(t *testing.T) {
	b, err := JSON{}.Encode(sampleReading())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"sensorId":"energy-002","sensorType":"Energy","timestamp":"2024-03-09T10:30:00Z","voltage":231.4,"powerConsumption":1200}`
	if string(b) != want {
		t.Fatalf("wire mismatch:\n got %s\nwant %s", b, want)
	}
}

func TestWireOmitsStoreFields(t *testing.T) {
	r := sampleReading()
	r.ID = 41
	r.Processed = true
	b, err := JSON{}.Encode(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"id", "processed"} {
		if _, ok := raw[key]; ok {
			t.Fatalf("wire message carries %q: %s", key, b)
		}
	}

	cb, _ := NewCBOR()
	cbb, err := cb.Encode(r)
	if err != nil {
		t.Fatalf("cbor encode: %v", err)
	}
	msg, err := cb.Decode(cbb)
	if err != nil {
		t.Fatalf("cbor decode: %v", err)
	}
	if msg.ID != 0 || msg.Processed {
		t.Fatalf("cbor wire carried store fields: %+v", msg)
	}
}

func TestAirQualityWireNames(t *testing.T) {
	r := &domain.Reading{
		SensorID:    "air-001",
		Timestamp:   time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC),
		Measurement: domain.AirQualityFields{CO2: domain.Float(612), PM25: domain.Float(8.1), PM10: domain.Float(14)},
	}
	b, err := JSON{}.Encode(r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"sensorId":"air-001","sensorType":"AirQuality","timestamp":"2024-03-09T10:30:00Z","cO2":612,"pM25":8.1,"pM10":14}`
	if string(b) != want {
		t.Fatalf("wire mismatch:\n got %s\nwant %s", b, want)
	}
}

func TestDecodeGarbageIsMalformed(t *testing.T) {
	if _, err := (JSON{}).Decode([]byte("{not json")); !errors.Is(err, domain.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	cb, _ := NewCBOR()
	if _, err := cb.Decode([]byte{0xff, 0x00}); !errors.Is(err, domain.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestNewCodec(t *testing.T) {
	if c, err := New("cbor"); err != nil || c.ContentType() != ContentTypeCBOR {
		t.Fatalf("cbor codec: %v", err)
	}
	if _, err := New("xml"); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
	if ForContentType("text/plain").ContentType() != ContentTypeJSON {
		t.Fatalf("unknown content type should fall back to json")
	}
}
