package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConvention(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    Convention
		wantErr bool
	}{
		{"norm", Norm, false},
		{"theta", Theta, false},
		{"phi", Phi, false},
		{" PHI ", Phi, false},
		{"xyz", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseConvention(tt.name)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownConvention, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, mustParse(t, got.String()))
	}
}

func mustParse(t *testing.T, name string) Convention {
	t.Helper()
	c, err := ParseConvention(name)
	require.NoError(t, err)
	return c
}

func TestParsePhiPlane(t *testing.T) {
	t.Parallel()

	p, err := ParsePhiPlane("")
	require.NoError(t, err)
	assert.Equal(t, PhiPlane3D, p)

	p, err = ParsePhiPlane("xy")
	require.NoError(t, err)
	assert.Equal(t, PhiPlaneXY, p)
	assert.Equal(t, "xy", p.String())

	_, err = ParsePhiPlane("polar")
	assert.Error(t, err)
}

func TestReferenceAngle(t *testing.T) {
	t.Parallel()

	dir := Vec{X: 1, Y: 0, Z: 0}
	// dir × z = (0,-1,0)
	assert.Equal(t, Vec{X: 0, Y: -1, Z: 0}, PhiAxis(dir))

	v := Vec{X: 0, Y: -1, Z: 1}

	norm, err := ReferenceAngle(v, dir, Norm, PhiPlane3D)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/2, norm, 1e-12)

	theta, err := ReferenceAngle(v, dir, Theta, PhiPlane3D)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/4, theta, 1e-12)

	phi3, err := ReferenceAngle(v, dir, Phi, PhiPlane3D)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/4, phi3, 1e-12)

	// In the xy plane the z component disappears and v lies on the axis.
	phiXY, err := ReferenceAngle(v, dir, Phi, PhiPlaneXY)
	require.NoError(t, err)
	assert.InDelta(t, 0, phiXY, 1e-7)

	_, err = ReferenceAngle(v, dir, Convention(42), PhiPlane3D)
	assert.ErrorIs(t, err, ErrUnknownConvention)
}
