package domain

import (
	"sort"
	"time"
)

// ErrorKey identifies one aggregated error record.
type ErrorKey struct {
	SensorID   string
	SensorType SensorType
}

func (k ErrorKey) String() string { return string(k.SensorType) + "/" + k.SensorID }

// SensorErrorRecord counts validation failures for one sensor. ErrorCount only grows.
type SensorErrorRecord struct {
	SensorID           string     `json:"sensorId"`
	SensorType         SensorType `json:"sensorType"`
	ErrorCount         int64      `json:"errorCount"`
	LastErrorTimestamp time.Time  `json:"lastErrorTimestamp"`
	LastErrorMessage   string     `json:"lastErrorMessage"`
}

func (r SensorErrorRecord) Key() ErrorKey {
	return ErrorKey{SensorID: r.SensorID, SensorType: r.SensorType}
}

// SummaryEntry is the most recent reading of one (sensorId, sensorType) group, with one
// optional latestX field per measurement.
type SummaryEntry struct {
	SensorID        string     `json:"sensorId"`
	SensorType      SensorType `json:"sensorType"`
	LatestTimestamp time.Time  `json:"latestTimestamp"`

	LatestTemperature *float64 `json:"latestTemperature,omitempty"`
	LatestHumidity    *float64 `json:"latestHumidity,omitempty"`
	LatestPressure    *float64 `json:"latestPressure,omitempty"`

	LatestCO2  *float64 `json:"latestCO2,omitempty"`
	LatestVOC  *float64 `json:"latestVOC,omitempty"`
	LatestPM25 *float64 `json:"latestPM25,omitempty"`
	LatestPM10 *float64 `json:"latestPM10,omitempty"`

	LatestPH              *float64 `json:"latestPH,omitempty"`
	LatestTurbidity       *float64 `json:"latestTurbidity,omitempty"`
	LatestDissolvedOxygen *float64 `json:"latestDissolvedOxygen,omitempty"`
	LatestConductivity    *float64 `json:"latestConductivity,omitempty"`

	LatestVoltage          *float64 `json:"latestVoltage,omitempty"`
	LatestCurrent          *float64 `json:"latestCurrent,omitempty"`
	LatestPowerConsumption *float64 `json:"latestPowerConsumption,omitempty"`

	LatestAccelerationX *float64 `json:"latestAccelerationX,omitempty"`
	LatestAccelerationY *float64 `json:"latestAccelerationY,omitempty"`
	LatestAccelerationZ *float64 `json:"latestAccelerationZ,omitempty"`
	LatestVibration     *float64 `json:"latestVibration,omitempty"`

	LatestIlluminance      *float64 `json:"latestIlluminance,omitempty"`
	LatestUVIndex          *float64 `json:"latestUVIndex,omitempty"`
	LatestColorTemperature *float64 `json:"latestColorTemperature,omitempty"`
}

func NewSummaryEntry(r *Reading) SummaryEntry {
	f := r.Fields()
	return SummaryEntry{
		SensorID:        r.SensorID,
		SensorType:      r.Type(),
		LatestTimestamp: r.Timestamp,

		LatestTemperature: f.Temperature,
		LatestHumidity:    f.Humidity,
		LatestPressure:    f.Pressure,

		LatestCO2:  f.CO2,
		LatestVOC:  f.VOC,
		LatestPM25: f.PM25,
		LatestPM10: f.PM10,

		LatestPH:              f.PH,
		LatestTurbidity:       f.Turbidity,
		LatestDissolvedOxygen: f.DissolvedOxygen,
		LatestConductivity:    f.Conductivity,

		LatestVoltage:          f.Voltage,
		LatestCurrent:          f.Current,
		LatestPowerConsumption: f.PowerConsumption,

		LatestAccelerationX: f.AccelerationX,
		LatestAccelerationY: f.AccelerationY,
		LatestAccelerationZ: f.AccelerationZ,
		LatestVibration:     f.Vibration,

		LatestIlluminance:      f.Illuminance,
		LatestUVIndex:          f.UVIndex,
		LatestColorTemperature: f.ColorTemperature,
	}
}

// SortErrorRecords orders by count desc, then newest failure, then sensor id.
func SortErrorRecords(recs []SensorErrorRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.ErrorCount != b.ErrorCount {
			return a.ErrorCount > b.ErrorCount
		}
		if !a.LastErrorTimestamp.Equal(b.LastErrorTimestamp) {
			return a.LastErrorTimestamp.After(b.LastErrorTimestamp)
		}
		if a.SensorID != b.SensorID {
			return a.SensorID < b.SensorID
		}
		return a.SensorType.Ordinal() < b.SensorType.Ordinal()
	})
}
