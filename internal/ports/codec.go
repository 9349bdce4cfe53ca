package ports

import "github.com/ghalamif/sensorflow/internal/domain"

type Codec interface {
	Encode(r *domain.Reading) ([]byte, error)
	Decode(b []byte) (domain.ReadingMessage, error)
	ContentType() string
}
