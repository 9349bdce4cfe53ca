package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func reading(m Measurement) *Reading {
	return &Reading{SensorID: "s-1", Timestamp: time.Now().UTC(), Measurement: m}
}

func TestValidateRules(t *testing.T) {
	cases := []struct {
		name   string
		m      Measurement
		reason string
	}{
		{"env ok", EnvironmentalFields{Temperature: Float(21.5), Humidity: Float(40)}, ""},
		{"env temp low", EnvironmentalFields{Temperature: Float(-273.16), Humidity: Float(150)}, "Temperature out of range: -273.16°C"},
		{"env humidity", EnvironmentalFields{Humidity: Float(100.5)}, "Humidity out of range: 100.5%"},
		{"env boundaries", EnvironmentalFields{Temperature: Float(100), Humidity: Float(0)}, ""},
		{"air co2", AirQualityFields{CO2: Float(-1)}, "CO2 level cannot be negative: -1"},
		{"air pm25", AirQualityFields{CO2: Float(400), PM25: Float(-0.5)}, "PM2.5 level cannot be negative: -0.5"},
		{"air pm10", AirQualityFields{PM10: Float(-3)}, "PM10 level cannot be negative: -3"},
		{"air voc ignored", AirQualityFields{VOC: Float(-10)}, ""},
		{"water ph", WaterFields{PH: Float(14.2)}, "pH out of valid range (0-14): 14.2"},
		{"water ok", WaterFields{PH: Float(7.2), Turbidity: Float(0.8)}, ""},
		{"energy voltage", EnergyFields{Voltage: Float(-230)}, "Voltage cannot be negative: -230V"},
		{"energy power", EnergyFields{Voltage: Float(230), PowerConsumption: Float(-1)}, "Power consumption cannot be negative: -1W"},
		{"motion x", MotionFields{AccelerationX: Float(51)}, "X-axis acceleration too extreme: 51m/s²"},
		{"motion y first", MotionFields{AccelerationY: Float(-60), AccelerationZ: Float(70)}, "Y-axis acceleration too extreme: -60m/s²"},
		{"motion z", MotionFields{AccelerationZ: Float(50.01)}, "Z-axis acceleration too extreme: 50.01m/s²"},
		{"motion edge", MotionFields{AccelerationX: Float(-50), AccelerationY: Float(50)}, ""},
		{"light uv", LightFields{UVIndex: Float(11.5)}, "UV Index out of range (0-11): 11.5"},
		{"light ok", LightFields{UVIndex: Float(11), Illuminance: Float(-1)}, ""},
		{"nan fails range", WaterFields{PH: Float(math.NaN())}, "pH out of valid range (0-14): NaN"},
		{"nan unranged field", WaterFields{PH: Float(7), Turbidity: Float(math.NaN())}, "turbidity is not a finite number: NaN"},
		{"inf current", EnergyFields{Voltage: Float(230), Current: Float(math.Inf(1))}, "current is not a finite number: +Inf"},
		{"inf voc", AirQualityFields{VOC: Float(math.Inf(-1))}, "voc is not a finite number: -Inf"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(reading(tc.m))
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Reason != tc.reason {
				t.Fatalf("reason mismatch: got %q want %q", verr.Reason, tc.reason)
			}
		})
	}
}

func TestValidateMalformedShortCircuits(t *testing.T) {
	r := reading(EnvironmentalFields{Temperature: Float(-500)})
	r.SensorID = ""
	err := Validate(r)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		t.Fatalf("malformed reading must not produce a validation error")
	}
}

func TestMessageDropsForeignFields(t *testing.T) {
	msg := ReadingMessage{
		SensorID:   "water-001",
		SensorType: "water",
		Timestamp:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		FieldSet:   FieldSet{PH: Float(7.2), Temperature: Float(900)},
	}
	r, err := msg.Reading()
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if r.Type() != Water {
		t.Fatalf("type = %s", r.Type())
	}
	fs := r.Fields()
	if fs.Temperature != nil {
		t.Fatalf("temperature should be dropped for water readings")
	}
	if fs.PH == nil || *fs.PH != 7.2 {
		t.Fatalf("ph lost: %+v", fs)
	}
	if err := Validate(r); err != nil {
		t.Fatalf("expected valid: %v", err)
	}
}

func TestMessageMalformed(t *testing.T) {
	ts := time.Now()
	cases := map[string]ReadingMessage{
		"no sensor":    {SensorType: "Light", Timestamp: ts},
		"unknown type": {SensorID: "x", SensorType: "Sonar", Timestamp: ts},
		"no timestamp": {SensorID: "x", SensorType: "Light"},
		"year 2300":    {SensorID: "x", SensorType: "Light", Timestamp: time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)},
		"year 1500":    {SensorID: "x", SensorType: "Light", Timestamp: time.Date(1500, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for name, msg := range cases {
		if _, err := msg.Reading(); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestTimestampInRange(t *testing.T) {
	for _, ts := range []time.Time{
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC),
		time.Unix(0, math.MaxInt64),
	} {
		if !TimestampInRange(ts) {
			t.Fatalf("%s should be in range", ts)
		}
	}
	if TimestampInRange(time.Unix(0, math.MaxInt64).Add(time.Nanosecond)) {
		t.Fatalf("one past the maximum should be out of range")
	}
}

func TestSensorTypeOrdinal(t *testing.T) {
	if Environmental.Ordinal() != 0 || Light.Ordinal() != 5 {
		t.Fatalf("unexpected ordinals")
	}
	if SensorType("Sonar").Valid() {
		t.Fatalf("Sonar must not be valid")
	}
	if _, err := ParseSensorType("airquality"); err != nil {
		t.Fatalf("parse should be case-insensitive: %v", err)
	}
}

func TestFieldSetSetByWireName(t *testing.T) {
	if len(FieldNames) != len((&FieldSet{}).Columns()) {
		t.Fatalf("FieldNames has %d names for %d columns", len(FieldNames), len((&FieldSet{}).Columns()))
	}

	var fs FieldSet
	if !fs.Set("dissolvedOxygen", 7.5) {
		t.Fatalf("expected dissolvedOxygen to be known")
	}
	if fs.DissolvedOxygen == nil || *fs.DissolvedOxygen != 7.5 {
		t.Fatalf("dissolvedOxygen not assigned: %+v", fs.DissolvedOxygen)
	}
	if fs.Set("dissolved_oxygen", 1) {
		t.Fatalf("snake case name must not match")
	}
}

func TestOwns(t *testing.T) {
	cases := []struct {
		typ  SensorType
		name string
		want bool
	}{
		{Environmental, "temperature", true},
		{Environmental, "co2", false},
		{AirQuality, "co2", true},
		{AirQuality, "pM25", true},
		{Water, "ph", true},
		{Motion, "vibration", true},
		{Light, "uvIndex", true},
		{Energy, "illuminance", false},
		{Energy, "bogus", false},
	}
	for _, tc := range cases {
		if got := Owns(tc.typ, tc.name); got != tc.want {
			t.Fatalf("Owns(%s, %s) = %v, want %v", tc.typ, tc.name, got, tc.want)
		}
	}
}
