package domain

import (
	"fmt"
	"strings"
)

// FieldSet is the flat projection of every measurement field. It is what travels on the
// wire, what lands in a SQL row and what a summary reports. Absent values are nil.
type FieldSet struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`

	CO2  *float64 `json:"cO2,omitempty"`
	VOC  *float64 `json:"voc,omitempty"`
	PM25 *float64 `json:"pM25,omitempty"`
	PM10 *float64 `json:"pM10,omitempty"`

	PH              *float64 `json:"ph,omitempty"`
	Turbidity       *float64 `json:"turbidity,omitempty"`
	DissolvedOxygen *float64 `json:"dissolvedOxygen,omitempty"`
	Conductivity    *float64 `json:"conductivity,omitempty"`

	Voltage          *float64 `json:"voltage,omitempty"`
	Current          *float64 `json:"current,omitempty"`
	PowerConsumption *float64 `json:"powerConsumption,omitempty"`

	AccelerationX *float64 `json:"accelerationX,omitempty"`
	AccelerationY *float64 `json:"accelerationY,omitempty"`
	AccelerationZ *float64 `json:"accelerationZ,omitempty"`
	Vibration     *float64 `json:"vibration,omitempty"`

	Illuminance      *float64 `json:"illuminance,omitempty"`
	UVIndex          *float64 `json:"uvIndex,omitempty"`
	ColorTemperature *float64 `json:"colorTemperature,omitempty"`
}

// Columns returns pointers to every field in storage column order.
// Column names are listed in FieldColumns.
func (f *FieldSet) Columns() []**float64 {
	return []**float64{
		&f.Temperature, &f.Humidity, &f.Pressure,
		&f.CO2, &f.VOC, &f.PM25, &f.PM10,
		&f.PH, &f.Turbidity, &f.DissolvedOxygen, &f.Conductivity,
		&f.Voltage, &f.Current, &f.PowerConsumption,
		&f.AccelerationX, &f.AccelerationY, &f.AccelerationZ, &f.Vibration,
		&f.Illuminance, &f.UVIndex, &f.ColorTemperature,
	}
}

// FieldColumns are the storage column names matching FieldSet.Columns.
var FieldColumns = []string{
	"temperature", "humidity", "pressure",
	"co2", "voc", "pm25", "pm10",
	"ph", "turbidity", "dissolved_oxygen", "conductivity",
	"voltage", "current", "power_consumption",
	"acceleration_x", "acceleration_y", "acceleration_z", "vibration",
	"illuminance", "uv_index", "color_temperature",
}

// Measurement is the per-type payload of a reading. The set of implementations is closed:
// one struct per SensorType, each holding only the fields that type carries.
type Measurement interface {
	SensorType() SensorType
	Validate() error
	Flatten() FieldSet
	isMeasurement()
}

type EnvironmentalFields struct {
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
}

type AirQualityFields struct {
	CO2  *float64
	VOC  *float64
	PM25 *float64
	PM10 *float64
}

type WaterFields struct {
	PH              *float64
	Turbidity       *float64
	DissolvedOxygen *float64
	Conductivity    *float64
}

type EnergyFields struct {
	Voltage          *float64
	Current          *float64
	PowerConsumption *float64
}

type MotionFields struct {
	AccelerationX *float64
	AccelerationY *float64
	AccelerationZ *float64
	Vibration     *float64
}

type LightFields struct {
	Illuminance      *float64
	UVIndex          *float64
	ColorTemperature *float64
}

func (EnvironmentalFields) SensorType() SensorType { return Environmental }
func (AirQualityFields) SensorType() SensorType    { return AirQuality }
func (WaterFields) SensorType() SensorType         { return Water }
func (EnergyFields) SensorType() SensorType        { return Energy }
func (MotionFields) SensorType() SensorType        { return Motion }
func (LightFields) SensorType() SensorType         { return Light }

func (EnvironmentalFields) isMeasurement() {}
func (AirQualityFields) isMeasurement()    {}
func (WaterFields) isMeasurement()         {}
func (EnergyFields) isMeasurement()        {}
func (MotionFields) isMeasurement()        {}
func (LightFields) isMeasurement()         {}

func (m EnvironmentalFields) Flatten() FieldSet {
	return FieldSet{Temperature: m.Temperature, Humidity: m.Humidity, Pressure: m.Pressure}
}

func (m AirQualityFields) Flatten() FieldSet {
	return FieldSet{CO2: m.CO2, VOC: m.VOC, PM25: m.PM25, PM10: m.PM10}
}

func (m WaterFields) Flatten() FieldSet {
	return FieldSet{PH: m.PH, Turbidity: m.Turbidity, DissolvedOxygen: m.DissolvedOxygen, Conductivity: m.Conductivity}
}

func (m EnergyFields) Flatten() FieldSet {
	return FieldSet{Voltage: m.Voltage, Current: m.Current, PowerConsumption: m.PowerConsumption}
}

func (m MotionFields) Flatten() FieldSet {
	return FieldSet{AccelerationX: m.AccelerationX, AccelerationY: m.AccelerationY, AccelerationZ: m.AccelerationZ, Vibration: m.Vibration}
}

func (m LightFields) Flatten() FieldSet {
	return FieldSet{Illuminance: m.Illuminance, UVIndex: m.UVIndex, ColorTemperature: m.ColorTemperature}
}

// MeasurementFor builds the variant for t from a flat field set. Fields that do not belong
// to t are dropped.
func MeasurementFor(t SensorType, f FieldSet) (Measurement, error) {
	switch t {
	case Environmental:
		return EnvironmentalFields{Temperature: f.Temperature, Humidity: f.Humidity, Pressure: f.Pressure}, nil
	case AirQuality:
		return AirQualityFields{CO2: f.CO2, VOC: f.VOC, PM25: f.PM25, PM10: f.PM10}, nil
	case Water:
		return WaterFields{PH: f.PH, Turbidity: f.Turbidity, DissolvedOxygen: f.DissolvedOxygen, Conductivity: f.Conductivity}, nil
	case Energy:
		return EnergyFields{Voltage: f.Voltage, Current: f.Current, PowerConsumption: f.PowerConsumption}, nil
	case Motion:
		return MotionFields{AccelerationX: f.AccelerationX, AccelerationY: f.AccelerationY, AccelerationZ: f.AccelerationZ, Vibration: f.Vibration}, nil
	case Light:
		return LightFields{Illuminance: f.Illuminance, UVIndex: f.UVIndex, ColorTemperature: f.ColorTemperature}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSensorType, string(t))
}

// Float returns a pointer to v. Handy for building measurements in literals.
func Float(v float64) *float64 { return &v }

// FieldNames are the wire names matching FieldSet.Columns.
var FieldNames = []string{
	"temperature", "humidity", "pressure",
	"cO2", "voc", "pM25", "pM10",
	"ph", "turbidity", "dissolvedOxygen", "conductivity",
	"voltage", "current", "powerConsumption",
	"accelerationX", "accelerationY", "accelerationZ", "vibration",
	"illuminance", "uvIndex", "colorTemperature",
}

// Set assigns the field with the given wire name, ignoring case. It reports false for
// unknown names.
func (f *FieldSet) Set(name string, v float64) bool {
	for i, col := range f.Columns() {
		if strings.EqualFold(FieldNames[i], name) {
			*col = &v
			return true
		}
	}
	return false
}

// Owns reports whether the named field belongs to t.
func Owns(t SensorType, name string) bool {
	var fs FieldSet
	if !fs.Set(name, 0) {
		return false
	}
	m, err := MeasurementFor(t, fs)
	if err != nil {
		return false
	}
	flat := m.Flatten()
	for _, col := range flat.Columns() {
		if *col != nil {
			return true
		}
	}
	return false
}
