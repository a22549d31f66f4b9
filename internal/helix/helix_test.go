package helix

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mu3e-tools/tileangle/internal/geometry"
)

func TestChargeFromTypeCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want Charge
		ok   bool
	}{
		{1, Positive, true},
		{11, Positive, true},
		{92, Negative, true},
		{-12, Negative, true},
		{3, 0, false},
		{10, 0, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		got, ok := ChargeFromTypeCode(tt.code)
		assert.Equal(t, tt.ok, ok, "code %d", tt.code)
		assert.Equal(t, tt.want, got, "code %d", tt.code)
	}
}

func TestHelixRadiusAndVertex(t *testing.T) {
	t.Parallel()

	// 30 MeV/c transverse in 1 T: R = 30 / 0.3 = 100 mm.
	h, err := New(geometry.Vec{}, geometry.Vec{X: 30}, Positive, geometry.Vec{}, DefaultFieldTesla)
	require.NoError(t, err)
	assert.InDelta(t, 100, h.Radius(), 1e-9)

	v := h.At(0)
	assert.InDelta(t, 0, v.X, 1e-9)
	assert.InDelta(t, 0, v.Y, 1e-9)

	// Starting direction equals the momentum direction.
	tan := h.Tangent(0)
	assert.InDelta(t, 1, tan.X, 1e-9)
	assert.InDelta(t, 0, tan.Y, 1e-9)
}

func TestHelixChargeBendsOppositeWays(t *testing.T) {
	t.Parallel()

	pos, err := New(geometry.Vec{}, geometry.Vec{X: 30}, Positive, geometry.Vec{}, 1)
	require.NoError(t, err)
	neg, err := New(geometry.Vec{}, geometry.Vec{X: 30}, Negative, geometry.Vec{}, 1)
	require.NoError(t, err)

	// A quarter turn later the two charges sit on opposite sides of the x axis.
	p := pos.At(math.Pi / 2)
	n := neg.At(math.Pi / 2)
	assert.InDelta(t, 100, p.X, 1e-9)
	assert.InDelta(t, 100, n.X, 1e-9)
	assert.InDelta(t, -p.Y, n.Y, 1e-9)
	assert.NotZero(t, p.Y)
}

func TestHelixStaysOnCylinder(t *testing.T) {
	t.Parallel()

	h, err := New(geometry.Vec{X: 5, Y: -3, Z: 10}, geometry.Vec{X: 12, Y: -20, Z: 8}, Negative, geometry.Vec{}, 1)
	require.NoError(t, err)
	c := h.At(0)
	r := h.Radius()
	for s := 0.0; s < 4*math.Pi; s += 0.37 {
		p := h.At(s)
		q := h.At(s + math.Pi)
		// Opposite points of the circle are a diameter apart in x-y.
		assert.InDelta(t, 2*r, math.Hypot(p.X-q.X, p.Y-q.Y), 1e-6)
		tan := h.Tangent(s)
		assert.InDelta(t, 1, math.Sqrt(tan.X*tan.X+tan.Y*tan.Y+tan.Z*tan.Z), 1e-12)
	}
	assert.InDelta(t, 10, c.Z, 1e-12)
}

func TestHelixAnchorFollowsTileZ(t *testing.T) {
	t.Parallel()

	// R = 100 mm, pz/pt = 1 -> 100 mm of z per radian.
	h, err := New(geometry.Vec{}, geometry.Vec{X: 30, Z: 30}, Positive, geometry.Vec{}, 1)
	require.NoError(t, err)

	// Place the tile exactly on the helix one and a quarter turns in.
	s := 2*math.Pi + math.Pi/2
	tile := h.At(s)

	h2, err := New(geometry.Vec{}, geometry.Vec{X: 30, Z: 30}, Positive, tile, 1)
	require.NoError(t, err)
	assert.InDelta(t, s, h2.Anchor(), 1e-9)
	assert.InDelta(t, 0, geometry.Distance(h2.AnchorPoint(), tile), 1e-6)
}

func TestHelixHitAngle(t *testing.T) {
	t.Parallel()

	h, err := New(geometry.Vec{}, geometry.Vec{X: 30}, Positive, geometry.Vec{}, 1)
	require.NoError(t, err)

	// Tangent at the vertex is +x; tile direction +y gives phi axis (1,0,0).
	a, err := h.HitAngle(geometry.Vec{Y: 1}, geometry.Phi, geometry.PhiPlaneXY)
	require.NoError(t, err)
	assert.InDelta(t, 0, a, 1e-6)

	_, err = h.HitAngle(geometry.Vec{Y: 1}, geometry.Norm, geometry.PhiPlane3D)
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = h.HitAngle(geometry.Vec{Y: 1}, geometry.Theta, geometry.PhiPlane3D)
	assert.ErrorIs(t, err, ErrNotSupported)
	_, err = h.HitAngle(geometry.Vec{Y: 1}, geometry.Convention(0), geometry.PhiPlane3D)
	assert.ErrorIs(t, err, geometry.ErrUnknownConvention)
}

func TestHelixDegenerate(t *testing.T) {
	t.Parallel()

	_, err := New(geometry.Vec{}, geometry.Vec{}, Positive, geometry.Vec{}, 1)
	assert.ErrorIs(t, err, ErrDegenerate)
	_, err = New(geometry.Vec{}, geometry.Vec{X: 1}, Positive, geometry.Vec{}, 0)
	assert.ErrorIs(t, err, ErrZeroField)
	assert.NotErrorIs(t, err, ErrDegenerate)
	_, err = New(geometry.Vec{}, geometry.Vec{X: 1}, Charge(0), geometry.Vec{}, 1)
	assert.ErrorIs(t, err, ErrInvalidCharge)
	_, err = New(geometry.Vec{}, geometry.Vec{X: 1}, Charge(0), geometry.Vec{}, 1)
	assert.Error(t, err)

	// Pure longitudinal momentum is a straight line.
	h, err := New(geometry.Vec{Z: 1}, geometry.Vec{Z: -5}, Negative, geometry.Vec{}, 1)
	require.NoError(t, err)
	assert.Zero(t, h.Radius())
	assert.InDelta(t, -1, h.Tangent(0).Z, 1e-12)
}
