package tileangle

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/helix"
)

// angleEngine turns a match into an angle under one convention.
type angleEngine struct {
	policy     Policy
	convention geometry.Convention
	plane      geometry.PhiPlane
}

func newAngleEngine(policy Policy, c geometry.Convention, plane geometry.PhiPlane) *angleEngine {
	return &angleEngine{policy: policy, convention: c, plane: plane}
}

// PixelAngle measures the tile-to-pixel vector against the reference axis of
// convention c for a tile with direction tileDir.
func PixelAngle(pixelPos, tilePos, tileDir geometry.Vec, c geometry.Convention, plane geometry.PhiPlane) (float64, error) {
	return geometry.ReferenceAngle(r3.Sub(pixelPos, tilePos), tileDir, c, plane)
}

func (e *angleEngine) fromPixel(pixelPos, tilePos, tileDir geometry.Vec, stats *MatchStats, logf func(string, ...interface{})) (float64, bool, error) {
	a, err := PixelAngle(pixelPos, tilePos, tileDir, e.convention, e.plane)
	return e.settle(a, err, stats, logf)
}

func (e *angleEngine) fromHelix(h *helix.Helix, tileDir geometry.Vec, stats *MatchStats, logf func(string, ...interface{})) (float64, bool, error) {
	a, err := h.HitAngle(tileDir, e.convention, e.plane)
	return e.settle(a, err, stats, logf)
}

// settle applies the policy to an angle computation result. Only undefined
// angles (zero-length vectors) are softened by the lenient policy.
func (e *angleEngine) settle(a float64, err error, stats *MatchStats, logf func(string, ...interface{})) (float64, bool, error) {
	if err == nil {
		return a, true, nil
	}
	if e.policy == LenientPolicy && errors.Is(err, geometry.ErrZeroVector) {
		stats.Skipped++
		logf("skipping hit: %v", err)
		return 0, false, nil
	}
	return 0, false, err
}
