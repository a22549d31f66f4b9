package geometry

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec is a position or direction in the detector frame (mm).
type Vec = r3.Vec

// ZAxis is the lab-frame beam axis.
var ZAxis = Vec{X: 0, Y: 0, Z: 1}

// ErrZeroVector is returned when an angle is requested against a zero-length vector.
var ErrZeroVector = errors.New("geometry: zero-length vector")

// AngleBetween returns the angle in radians between u and v, computed as the
// arccosine of the normalised dot product. The cosine is clamped to [-1, 1]
// so parallel and anti-parallel inputs give exactly 0 and π.
func AngleBetween(u, v Vec) (float64, error) {
	nu, nv := r3.Norm(u), r3.Norm(v)
	if nu == 0 || nv == 0 {
		return 0, ErrZeroVector
	}
	c := r3.Dot(u, v) / (nu * nv)
	return math.Acos(clamp(c, -1, 1)), nil
}

// AngleBetweenXY is AngleBetween restricted to the first two coordinates.
func AngleBetweenXY(u, v Vec) (float64, error) {
	return AngleBetween(Vec{X: u.X, Y: u.Y}, Vec{X: v.X, Y: v.Y})
}

// Distance is the Euclidean distance between two points.
func Distance(a, b Vec) float64 {
	return r3.Norm(r3.Sub(a, b))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
