// Package units provides shared constants and validation for angle units
package units

import "math"

// Unit constants
const (
	Rad  = "rad"
	Deg  = "deg"
	Mrad = "mrad"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Rad, Deg, Mrad}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "rad, deg, mrad"
}

// ConvertAngle converts an angle from radians to the target units.
// Results are stored in radians.
func ConvertAngle(rad float64, targetUnits string) float64 {
	switch targetUnits {
	case Deg:
		return rad * 180 / math.Pi
	case Mrad:
		return rad * 1000
	default:
		return rad
	}
}
