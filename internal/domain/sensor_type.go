package domain

import (
	"errors"
	"fmt"
	"strings"
)

// SensorType is the closed set of sensor families SensorFlow understands.
type SensorType string

const (
	Environmental SensorType = "Environmental"
	AirQuality    SensorType = "AirQuality"
	Water         SensorType = "Water"
	Energy        SensorType = "Energy"
	Motion        SensorType = "Motion"
	Light         SensorType = "Light"
)

var ErrUnknownSensorType = errors.New("unknown sensor type")

// SensorTypes lists every type in declaration order. Summaries sort by this order.
var SensorTypes = []SensorType{Environmental, AirQuality, Water, Energy, Motion, Light}

func ParseSensorType(s string) (SensorType, error) {
	for _, t := range SensorTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSensorType, s)
}

func (t SensorType) Valid() bool { return t.Ordinal() >= 0 }

// Ordinal is the position of t in SensorTypes, or -1.
func (t SensorType) Ordinal() int {
	for i, v := range SensorTypes {
		if v == t {
			return i
		}
	}
	return -1
}

func (t SensorType) String() string { return string(t) }
