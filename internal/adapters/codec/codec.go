package codec

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/ghalamif/sensorflow/internal/domain"
	"github.com/ghalamif/sensorflow/internal/ports"
)

const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// New returns the codec registered under name ("json" or "cbor").
func New(name string) (ports.Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "cbor":
		return NewCBOR()
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// ForContentType picks the decoder matching an envelope's content type, defaulting to JSON.
func ForContentType(ct string) ports.Codec {
	if ct == ContentTypeCBOR {
		if c, err := NewCBOR(); err == nil {
			return c
		}
	}
	return JSON{}
}

// wireMessage is what producers put on the transport. Store ids and the processed flag
// belong to the consumer side and are left out.
type wireMessage struct {
	SensorID   string    `json:"sensorId"`
	SensorType string    `json:"sensorType"`
	Timestamp  time.Time `json:"timestamp"`
	domain.FieldSet
}

func newWireMessage(r *domain.Reading) wireMessage {
	return wireMessage{
		SensorID:   r.SensorID,
		SensorType: string(r.Type()),
		Timestamp:  r.Timestamp.UTC(),
		FieldSet:   r.Fields(),
	}
}

type JSON struct{}

func (JSON) Encode(r *domain.Reading) ([]byte, error) {
	return json.Marshal(newWireMessage(r))
}

func (JSON) Decode(b []byte) (domain.ReadingMessage, error) {
	var m domain.ReadingMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return domain.ReadingMessage{}, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	return m, nil
}

func (JSON) ContentType() string { return ContentTypeJSON }

// CBOR uses core deterministic encoding so identical readings produce identical bytes.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBOR() (*CBOR, error) {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	enc, err := opts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decoder: %w", err)
	}
	return &CBOR{enc: enc, dec: dec}, nil
}

func (c *CBOR) Encode(r *domain.Reading) ([]byte, error) {
	return c.enc.Marshal(newWireMessage(r))
}

func (c *CBOR) Decode(b []byte) (domain.ReadingMessage, error) {
	var m domain.ReadingMessage
	if err := c.dec.Unmarshal(b, &m); err != nil {
		return domain.ReadingMessage{}, fmt.Errorf("%w: %v", domain.ErrMalformed, err)
	}
	return m, nil
}

func (c *CBOR) ContentType() string { return ContentTypeCBOR }
