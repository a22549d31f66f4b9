// Package helix models the idealised trajectory of a charged particle in the
// solenoid field: a circular arc in x-y with linear advance in z.
//
// A Helix is built from a simulated vertex, momentum and charge sign, and is
// anchored at one tile: the anchor point is the helix point closest to the
// tile centre among the turns nearest to the tile's z.
package helix

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mu3e-tools/tileangle/internal/geometry"
)

// DefaultFieldTesla is the nominal solenoid field.
const DefaultFieldTesla = 1.0

// curvature converts MeV/c and tesla to a radius in mm: R = pT / (0.3 B).
const curvature = 0.3

const minTransverse = 1e-9

var (
	// ErrNotSupported is returned by HitAngle for conventions without a helix implementation.
	ErrNotSupported = errors.New("helix: angle convention not yet supported")
	// ErrDegenerate is returned for a trajectory with zero momentum.
	ErrDegenerate = errors.New("helix: degenerate trajectory")
	// ErrZeroField is returned when no field is configured.
	ErrZeroField = errors.New("helix: zero field")
	// ErrInvalidCharge is returned for a charge other than Positive or Negative.
	ErrInvalidCharge = errors.New("helix: invalid charge")
)

// Charge is the sign of the particle charge.
type Charge int

const (
	Positive Charge = 1
	Negative Charge = -1
)

// ChargeFromTypeCode derives the charge sign from the last decimal digit of a
// simulation particle-type code: 1 is positive, 2 is negative. Any other digit
// is reported as not ok and callers skip the track.
func ChargeFromTypeCode(code int) (Charge, bool) {
	if code < 0 {
		code = -code
	}
	switch code % 10 {
	case 1:
		return Positive, true
	case 2:
		return Negative, true
	}
	return 0, false
}

// Helix is a charged-particle helix anchored at a tile.
type Helix struct {
	vertex   geometry.Vec
	momentum geometry.Vec
	charge   Charge
	field    float64

	radius float64
	center geometry.Vec // z unused
	alpha0 float64      // azimuth of the vertex around the centre
	sense  float64      // +1 clockwise seen from +z
	dzds   float64      // z advance per radian of turning

	anchor float64 // turning angle at the tile
}

// New builds a helix from the vertex (mm), momentum (MeV/c), charge sign and
// field (T), anchored at tilePos.
func New(vertex, momentum geometry.Vec, charge Charge, tilePos geometry.Vec, fieldTesla float64) (*Helix, error) {
	if r3.Norm(momentum) == 0 {
		return nil, fmt.Errorf("%w: zero momentum", ErrDegenerate)
	}
	if fieldTesla == 0 {
		return nil, ErrZeroField
	}
	if charge != Positive && charge != Negative {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCharge, charge)
	}

	h := &Helix{
		vertex:   vertex,
		momentum: momentum,
		charge:   charge,
		field:    fieldTesla,
	}

	pt := math.Hypot(momentum.X, momentum.Y)
	if pt < minTransverse {
		// Straight line along z; the anchor is irrelevant.
		return h, nil
	}

	h.sense = float64(charge) * math.Copysign(1, fieldTesla)
	h.radius = pt / (curvature * math.Abs(fieldTesla))
	ux, uy := momentum.X/pt, momentum.Y/pt
	h.center = geometry.Vec{
		X: vertex.X + h.sense*h.radius*uy,
		Y: vertex.Y - h.sense*h.radius*ux,
	}
	h.alpha0 = math.Atan2(vertex.Y-h.center.Y, vertex.X-h.center.X)
	h.dzds = momentum.Z / pt * h.radius
	h.anchor = h.nearestTurn(tilePos)
	return h, nil
}

// Radius returns the transverse radius in mm (0 for a straight track).
func (h *Helix) Radius() float64 { return h.radius }

// Charge returns the charge sign.
func (h *Helix) Charge() Charge { return h.charge }

// Anchor returns the turning angle of the anchor point.
func (h *Helix) Anchor() float64 { return h.anchor }

// At returns the helix position after turning by s radians.
func (h *Helix) At(s float64) geometry.Vec {
	if h.radius == 0 {
		return h.vertex
	}
	a := h.alpha0 - h.sense*s
	return geometry.Vec{
		X: h.center.X + h.radius*math.Cos(a),
		Y: h.center.Y + h.radius*math.Sin(a),
		Z: h.vertex.Z + h.dzds*s,
	}
}

// Tangent returns the unit direction of flight after turning by s radians.
func (h *Helix) Tangent(s float64) geometry.Vec {
	if h.radius == 0 {
		return r3.Unit(h.momentum)
	}
	a := h.alpha0 - h.sense*s
	t := geometry.Vec{
		X: h.sense * math.Sin(a),
		Y: -h.sense * math.Cos(a),
		Z: h.dzds / h.radius,
	}
	return r3.Unit(t)
}

// AnchorPoint returns the helix point used for the tile.
func (h *Helix) AnchorPoint() geometry.Vec { return h.At(h.anchor) }

// HitAngle returns the angle of the track at the tile for the given
// convention. Only phi is implemented; norm and theta return ErrNotSupported.
func (h *Helix) HitAngle(tileDirection geometry.Vec, c geometry.Convention, plane geometry.PhiPlane) (float64, error) {
	switch c {
	case geometry.Phi:
		return geometry.ReferenceAngle(h.Tangent(h.anchor), tileDirection, geometry.Phi, plane)
	case geometry.Norm, geometry.Theta:
		return 0, fmt.Errorf("%w: %v", ErrNotSupported, c)
	}
	return 0, fmt.Errorf("%w: %v", geometry.ErrUnknownConvention, c)
}

// nearestTurn picks the turning angle whose point is closest to p. The x-y
// projection fixes the angle modulo 2π; the turn count comes from p's z.
func (h *Helix) nearestTurn(p geometry.Vec) float64 {
	beta := math.Atan2(p.Y-h.center.Y, p.X-h.center.X)
	base := math.Mod(h.sense*(h.alpha0-beta), 2*math.Pi)
	if base < 0 {
		base += 2 * math.Pi
	}
	if h.dzds == 0 {
		return base
	}

	sz := (p.Z - h.vertex.Z) / h.dzds
	k0 := math.Round((sz - base) / (2 * math.Pi))
	best, bestDist := base, math.Inf(1)
	for k := k0 - 1; k <= k0+1; k++ {
		s := base + 2*math.Pi*k
		if s < 0 {
			continue
		}
		if d := geometry.Distance(h.At(s), p); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}
