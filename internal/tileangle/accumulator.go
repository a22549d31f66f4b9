package tileangle

import (
	"gonum.org/v1/gonum/stat"

	"github.com/mu3e-tools/tileangle/internal/geometry"
)

// MatchResult is one matched tile hit.
type MatchResult struct {
	TileID geometry.TileID `json:"tile_id"`
	Angle  float64         `json:"angle"`
	Z      float64         `json:"z"`
}

// ResultSet holds the samples of one run as three equal-length sequences in
// frame order, then tile-hit order within a frame.
type ResultSet struct {
	Mode       Mode
	Convention geometry.Convention
	Z          []float64
	Angle      []float64
	TileID     []geometry.TileID
	Stats      MatchStats
}

// Len returns the number of samples.
func (r *ResultSet) Len() int { return len(r.Z) }

// Row returns sample i.
func (r *ResultSet) Row(i int) MatchResult {
	return MatchResult{TileID: r.TileID[i], Angle: r.Angle[i], Z: r.Z[i]}
}

// Rows returns all samples as records.
func (r *ResultSet) Rows() []MatchResult {
	out := make([]MatchResult, r.Len())
	for i := range out {
		out[i] = r.Row(i)
	}
	return out
}

// AngleMoments returns mean and standard deviation of the angles, or NaN for
// fewer than two samples.
func (r *ResultSet) AngleMoments() (mean, std float64) {
	return stat.MeanStdDev(r.Angle, nil)
}

type accumulator struct {
	mode       Mode
	convention geometry.Convention
	z          []float64
	angle      []float64
	ids        []geometry.TileID
}

func newAccumulator(mode Mode, c geometry.Convention) *accumulator {
	return &accumulator{mode: mode, convention: c}
}

func (a *accumulator) add(id geometry.TileID, angle, z float64) {
	a.z = append(a.z, z)
	a.angle = append(a.angle, angle)
	a.ids = append(a.ids, id)
}

// finalize copies the accumulated sequences into a ResultSet. Sequences are
// never nil so exporters can write empty columns.
func (a *accumulator) finalize(stats MatchStats) *ResultSet {
	rs := &ResultSet{
		Mode:       a.mode,
		Convention: a.convention,
		Z:          make([]float64, len(a.z)),
		Angle:      make([]float64, len(a.angle)),
		TileID:     make([]geometry.TileID, len(a.ids)),
		Stats:      stats,
	}
	copy(rs.Z, a.z)
	copy(rs.Angle, a.angle)
	copy(rs.TileID, a.ids)
	return rs
}
