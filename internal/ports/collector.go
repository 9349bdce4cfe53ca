package ports

import "github.com/ghalamif/sensorflow/internal/domain"

type Collector interface {
	Start(out chan<- *domain.Reading) error
	Stop() error
}
