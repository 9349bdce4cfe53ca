package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// ErrMalformed marks a reading that cannot be attributed to a sensor. Malformed readings
// are dropped and never counted against a sensor's error record.
var ErrMalformed = errors.New("malformed reading")

// ValidationError is a physical-plausibility violation. Error returns the reason string
// stored as the sensor's last error message.
type ValidationError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Validate checks identity first and then the per-type rules. Rules run in a fixed order
// and the first violation wins; absent fields are skipped.
func Validate(r *Reading) error {
	if r == nil || r.SensorID == "" {
		return fmt.Errorf("%w: sensorId is required", ErrMalformed)
	}
	if r.Measurement == nil {
		return fmt.Errorf("%w: sensorType is required", ErrMalformed)
	}
	if err := r.Measurement.Validate(); err != nil {
		return err
	}
	return finite(r.Measurement.Flatten())
}

// finite rejects NaN and infinities in fields that have no range rule of their own.
func finite(fs FieldSet) error {
	for i, col := range fs.Columns() {
		if v := *col; v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return violation(FieldNames[i], *v, FieldNames[i]+" is not a finite number: %s")
		}
	}
	return nil
}

func (m EnvironmentalFields) Validate() error {
	if v := m.Temperature; v != nil && !(*v >= -100 && *v <= 100) {
		return violation("temperature", *v, "Temperature out of range: %s°C")
	}
	if v := m.Humidity; v != nil && !(*v >= 0 && *v <= 100) {
		return violation("humidity", *v, "Humidity out of range: %s%%")
	}
	return nil
}

func (m AirQualityFields) Validate() error {
	if v := m.CO2; v != nil && !(*v >= 0) {
		return violation("cO2", *v, "CO2 level cannot be negative: %s")
	}
	if v := m.PM25; v != nil && !(*v >= 0) {
		return violation("pM25", *v, "PM2.5 level cannot be negative: %s")
	}
	if v := m.PM10; v != nil && !(*v >= 0) {
		return violation("pM10", *v, "PM10 level cannot be negative: %s")
	}
	return nil
}

func (m WaterFields) Validate() error {
	if v := m.PH; v != nil && !(*v >= 0 && *v <= 14) {
		return violation("ph", *v, "pH out of valid range (0-14): %s")
	}
	return nil
}

func (m EnergyFields) Validate() error {
	if v := m.Voltage; v != nil && !(*v >= 0) {
		return violation("voltage", *v, "Voltage cannot be negative: %sV")
	}
	if v := m.PowerConsumption; v != nil && !(*v >= 0) {
		return violation("powerConsumption", *v, "Power consumption cannot be negative: %sW")
	}
	return nil
}

func (m MotionFields) Validate() error {
	axes := []struct {
		name  string
		field string
		v     *float64
	}{
		{"X", "accelerationX", m.AccelerationX},
		{"Y", "accelerationY", m.AccelerationY},
		{"Z", "accelerationZ", m.AccelerationZ},
	}
	for _, a := range axes {
		if a.v != nil && !(math.Abs(*a.v) <= 50) {
			return violation(a.field, *a.v, a.name+"-axis acceleration too extreme: %sm/s²")
		}
	}
	return nil
}

func (m LightFields) Validate() error {
	if v := m.UVIndex; v != nil && !(*v <= 11) {
		return violation("uvIndex", *v, "UV Index out of range (0-11): %s")
	}
	return nil
}

func violation(field string, v float64, format string) *ValidationError {
	return &ValidationError{
		Field:  field,
		Value:  v,
		Reason: fmt.Sprintf(format, strconv.FormatFloat(v, 'f', -1, 64)),
	}
}
