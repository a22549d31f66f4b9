// Package frames owns the per-frame hit collections and the Monte-Carlo
// truth table read from one input file.
//
// Everything is materialised in a single pass and stored arena-style: one
// flat slice per hit kind plus per-frame offsets, so frame lookups are
// O(1) slicing with no re-scan of the input. The index is immutable once
// built.
package frames

import (
	"errors"

	"github.com/mu3e-tools/tileangle/internal/geometry"
)

// TrackID is the id of the simulated particle track a hit originates from.
type TrackID int64

// ErrUnknownMCIndex is returned for an MC index outside the truth table.
var ErrUnknownMCIndex = errors.New("frames: mc index out of range")

// TileHit is one tile hit in a frame. Edep is the deposited energy in MeV,
// zero when the input carries no deposits.
type TileHit struct {
	Tile    geometry.TileID
	MCIndex int
	Edep    float64
}

// SensorHit is one pixel hit in a frame.
type SensorHit struct {
	Pixel   geometry.PixelID
	MCIndex int
}

// Trajectory is the simulated initial state of one track in a frame.
// Positions in mm, momenta in MeV/c.
type Trajectory struct {
	TrackID  TrackID
	Type     int
	Vertex   geometry.Vec
	Momentum geometry.Vec
}

// TruthRecord is one row of the MC truth table.
type TruthRecord struct {
	TrackID  TrackID
	HitDepth int
}
