// Package units provides shared constants and conversion helpers for speeds.
package units

// Unit constants.
const (
	MPS = "mps"
	MPH = "mph"
	KMH = "kmh"
)

// MPSToKMH is the multiplier from meters per second to kilometres per hour.
const MPSToKMH = 3.6

// MPSToMPH is the multiplier from meters per second to miles per hour.
const MPSToMPH = 2.2369362920544

// ValidUnits contains all valid unit values.
var ValidUnits = []string{MPS, MPH, KMH}

// IsValid checks whether the given unit is in the list of valid units.
func IsValid(unit string) bool {
	for _, u := range ValidUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// FromMPS converts a speed in meters per second to the target units.
// Speeds are computed internally in m/s.
func FromMPS(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * MPSToMPH
	case KMH:
		return speedMPS * MPSToKMH
	default:
		return speedMPS
	}
}

// KMHToMPS converts kilometres per hour back to meters per second.
func KMHToMPS(speedKMH float64) float64 {
	return speedKMH / MPSToKMH
}
