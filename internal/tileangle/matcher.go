package tileangle

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/mu3e-tools/tileangle/internal/frames"
	"github.com/mu3e-tools/tileangle/internal/geometry"
	"github.com/mu3e-tools/tileangle/internal/helix"
)

// Policy selects between the two historical behaviours of the analysis.
type Policy int

const (
	// StrictPolicy keeps the first pixel hit at the minimum distance and
	// aborts the run when an angle is undefined.
	StrictPolicy Policy = iota
	// LenientPolicy keeps the last pixel hit at the minimum distance and
	// drops hits whose angle is undefined, counting them as skipped.
	LenientPolicy
)

// ParsePolicy maps "strict" / "lenient" to a Policy. Empty means strict.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "strict":
		return StrictPolicy, nil
	case "lenient":
		return LenientPolicy, nil
	}
	return 0, fmt.Errorf("unknown policy %q (want strict or lenient)", name)
}

func (p Policy) String() string {
	if p == LenientPolicy {
		return "lenient"
	}
	return "strict"
}

// candidate is a same-track pixel hit with its decoded position.
type candidate struct {
	pixel geometry.PixelID
	pos   geometry.Vec
}

// nearestSensor enumerates the frame's pixel hits in native order, keeps the
// ones from track tid and returns the position of the closest to tilePos.
// found is false when no pixel hit survives the track check.
func nearestSensor(geom GeometryTable, truth TruthTable, hits []frames.SensorHit, tilePos geometry.Vec, tid frames.TrackID, policy Policy, stats *MatchStats) (geometry.Vec, bool, error) {
	var (
		cands     []candidate
		distances []float64
	)
	for v, hit := range hits {
		sensorTID, err := truth.OriginTrack(hit.MCIndex)
		if err != nil {
			return geometry.Vec{}, false, fmt.Errorf("sensor hit %d: %w", v, err)
		}
		if !acceptOrigin(tid, sensorTID, stats) {
			continue
		}
		pos, err := pixelPosition(geom, hit.Pixel)
		if err != nil {
			return geometry.Vec{}, false, fmt.Errorf("sensor hit %d: %w", v, err)
		}
		cands = append(cands, candidate{pixel: hit.Pixel, pos: pos})
		distances = append(distances, geometry.Distance(tilePos, pos))
	}
	if len(cands) == 0 {
		return geometry.Vec{}, false, nil
	}
	return cands[pickNearest(distances, policy)].pos, true, nil
}

// pickNearest returns the index of the minimum distance. Strict keeps the
// first index attaining it, lenient the last. distances must be non-empty.
func pickNearest(distances []float64, policy Policy) int {
	if policy != LenientPolicy {
		return floats.MinIdx(distances)
	}
	best := 0
	for i, d := range distances {
		if d <= distances[best] {
			best = i
		}
	}
	return best
}

func pixelPosition(geom GeometryTable, p geometry.PixelID) (geometry.Vec, error) {
	origin, row, col, err := geom.SensorBasis(p.Module())
	if err != nil {
		return geometry.Vec{}, err
	}
	return geometry.PixelCentre(origin, row, col, p), nil
}

// helixFor looks up the trajectory of tid in frame f and builds its helix
// anchored at tilePos. Missing trajectories, unmapped charge digits and
// zero-momentum records are soft skips recorded in stats. Any other helix
// error is returned.
func helixFor(truth TruthTable, f int, tid frames.TrackID, tilePos geometry.Vec, fieldTesla float64, stats *MatchStats) (*helix.Helix, bool, error) {
	traj, ok := truth.Trajectory(f, tid)
	if !ok {
		stats.NoTrajectory++
		return nil, false, nil
	}
	charge, ok := helix.ChargeFromTypeCode(traj.Type)
	if !ok {
		stats.UnknownCharge++
		return nil, false, nil
	}
	h, err := helix.New(traj.Vertex, traj.Momentum, charge, tilePos, fieldTesla)
	if err != nil {
		if errors.Is(err, helix.ErrDegenerate) {
			stats.Degenerate++
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("track %d: %w", tid, err)
	}
	return h, true, nil
}
