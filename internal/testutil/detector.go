package testutil

import (
	"github.com/mu3e-tools/tileangle/internal/frames"
	"github.com/mu3e-tools/tileangle/internal/geometry"
)

// Tile and module ids of the synthetic detector.
const (
	TileBeam  geometry.TileID   = 100 // at (0,0,-12), facing +z
	TileSide  geometry.TileID   = 101 // at (10,0,-12), facing +x
	ModuleLow geometry.ModuleID = 1   // pixel (c,r) at (c, r, 0)
	ModuleTop geometry.ModuleID = 2   // pixel (c,r) at (c, r, 50)
)

// UnitTiles returns the tiles of the synthetic detector.
func UnitTiles() []geometry.Tile {
	return []geometry.Tile{
		{ID: TileBeam, Position: geometry.Vec{X: 0, Y: 0, Z: -12}, Direction: geometry.ZAxis},
		{ID: TileSide, Position: geometry.Vec{X: 10, Y: 0, Z: -12}, Direction: geometry.Vec{X: 1}},
	}
}

// UnitModules returns unit-pitch modules so that pixel (col,row) sits at
// integer coordinates (col, row, z0).
func UnitModules() []geometry.SensorModule {
	basis := func(id geometry.ModuleID, z float64) geometry.SensorModule {
		return geometry.SensorModule{
			ID:     id,
			Origin: geometry.Vec{X: -0.5, Y: -0.5, Z: z},
			Row:    geometry.Vec{Y: 1},
			Col:    geometry.Vec{X: 1},
		}
	}
	return []geometry.SensorModule{basis(ModuleLow, 0), basis(ModuleTop, 50)}
}

// UnitGeometry returns the synthetic detector table.
func UnitGeometry() *geometry.Table {
	return geometry.NewTable(UnitTiles(), UnitModules())
}

// TileSpec describes a tile hit and its truth record.
type TileSpec struct {
	Tile  geometry.TileID
	Track frames.TrackID
	Depth int
	Edep  float64
}

// PixelSpec describes a pixel hit and its truth record.
type PixelSpec struct {
	Pixel geometry.PixelID
	Track frames.TrackID
}

// FrameSpec describes one frame.
type FrameSpec struct {
	Tiles        []TileSpec
	Pixels       []PixelSpec
	Trajectories []frames.Trajectory
}

// BuildStore materialises frame specs into a frame index and truth table.
// MC indices are assigned in frame order, tiles before pixels.
func BuildStore(specs ...FrameSpec) frames.Store {
	b := frames.NewBuilder()
	truth := frames.NewTruth(nil)
	for _, spec := range specs {
		tiles := make([]frames.TileHit, 0, len(spec.Tiles))
		for _, ts := range spec.Tiles {
			mc := truth.Append(ts.Track, ts.Depth)
			tiles = append(tiles, frames.TileHit{Tile: ts.Tile, MCIndex: mc, Edep: ts.Edep})
		}
		pixels := make([]frames.SensorHit, 0, len(spec.Pixels))
		for _, ps := range spec.Pixels {
			mc := truth.Append(ps.Track, 1)
			pixels = append(pixels, frames.SensorHit{Pixel: ps.Pixel, MCIndex: mc})
		}
		b.AddFrame(tiles, pixels, spec.Trajectories)
	}
	return frames.Store{Index: b.Build(), Truth: truth}
}
