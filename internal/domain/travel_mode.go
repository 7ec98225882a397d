package domain

import (
	"fmt"
	"strings"
)

// TravelMode selects which distance/time pair of a record is used.
type TravelMode string

const (
	Walking TravelMode = "walking"
	Driving TravelMode = "driving"
)

// Assumed average speeds in meters per second, used when distances are
// estimated from straight-line geometry: 5 km/h on foot, 30 km/h by car
// in urban traffic.
const (
	walkingSpeedMPS = 5000.0 / 3600.0
	drivingSpeedMPS = 30000.0 / 3600.0
)

// Modes returns every supported travel mode in a stable order.
func Modes() []TravelMode { return []TravelMode{Walking, Driving} }

// ParseTravelMode parses a mode name. An empty string defaults to walking.
func ParseTravelMode(s string) (TravelMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(Walking):
		return Walking, nil
	case string(Driving):
		return Driving, nil
	default:
		return "", fmt.Errorf("%w: %q (must be %q or %q)", ErrInvalidMode, s, Walking, Driving)
	}
}

// Valid reports whether m is a supported mode.
func (m TravelMode) Valid() bool {
	return m == Walking || m == Driving
}

// AssumedSpeed returns the average speed in m/s used for estimated travel times.
func (m TravelMode) AssumedSpeed() float64 {
	if m == Driving {
		return drivingSpeedMPS
	}
	return walkingSpeedMPS
}

func (m TravelMode) String() string { return string(m) }
