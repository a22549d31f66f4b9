package geometry

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Convention selects which reference axis a hit angle is measured against.
type Convention int

const (
	// Norm measures against the tile's declared direction.
	Norm Convention = iota + 1
	// Theta measures against the lab z axis.
	Theta
	// Phi measures against tileDirection × z.
	Phi
)

// ErrUnknownConvention is returned for an angle convention name that is not
// one of norm, theta or phi.
var ErrUnknownConvention = errors.New("unknown angle convention")

// ParseConvention maps a convention name to its value.
func ParseConvention(name string) (Convention, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "norm":
		return Norm, nil
	case "theta":
		return Theta, nil
	case "phi":
		return Phi, nil
	}
	return 0, fmt.Errorf("%w: %q (want norm, theta or phi)", ErrUnknownConvention, name)
}

func (c Convention) String() string {
	switch c {
	case Norm:
		return "norm"
	case Theta:
		return "theta"
	case Phi:
		return "phi"
	}
	return fmt.Sprintf("Convention(%d)", int(c))
}

// PhiPlane selects whether the phi angle uses all three coordinates or only x and y.
type PhiPlane int

const (
	PhiPlane3D PhiPlane = iota
	PhiPlaneXY
)

// ParsePhiPlane maps "3d" / "xy" to a PhiPlane. Empty means 3D.
func ParsePhiPlane(name string) (PhiPlane, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "3d":
		return PhiPlane3D, nil
	case "xy", "2d":
		return PhiPlaneXY, nil
	}
	return 0, fmt.Errorf("unknown phi plane %q (want 3d or xy)", name)
}

func (p PhiPlane) String() string {
	if p == PhiPlaneXY {
		return "xy"
	}
	return "3d"
}

// PhiAxis returns tileDirection × z, the reference axis of the phi convention.
func PhiAxis(tileDirection Vec) Vec {
	return r3.Cross(tileDirection, ZAxis)
}

// ReferenceAngle measures v against the reference axis of convention c for a
// tile with the given direction.
func ReferenceAngle(v, tileDirection Vec, c Convention, plane PhiPlane) (float64, error) {
	switch c {
	case Norm:
		return AngleBetween(v, tileDirection)
	case Theta:
		return AngleBetween(v, ZAxis)
	case Phi:
		if plane == PhiPlaneXY {
			return AngleBetweenXY(v, PhiAxis(tileDirection))
		}
		return AngleBetween(v, PhiAxis(tileDirection))
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownConvention, c)
}
