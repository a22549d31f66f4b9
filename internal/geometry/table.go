// Package geometry holds the static detector alignment used by the tile
// angle analysis: tile positions and orientations, and the pixel-sensor
// module bases that turn a packed pixel id into a position.
//
// A Table is built once per session and is read-only afterwards, so it can be
// shared without locking.
package geometry

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// TileID identifies a scintillating tile.
type TileID int

var (
	// ErrUnknownTile is returned for a tile id that is not in the table.
	ErrUnknownTile = errors.New("geometry: unknown tile id")
	// ErrUnknownModule is returned for a sensor module id that is not in the table.
	ErrUnknownModule = errors.New("geometry: unknown sensor module id")
)

// Tile is one tile's alignment entry.
type Tile struct {
	ID        TileID
	Position  Vec
	Direction Vec
}

// SensorModule is one pixel-sensor module's alignment entry.
// Pixel (col,row) sits at Origin + (col+0.5)*Col + (row+0.5)*Row.
type SensorModule struct {
	ID     ModuleID
	Origin Vec
	Row    Vec
	Col    Vec
}

// Table is the id-indexed detector geometry.
type Table struct {
	tiles   map[TileID]Tile
	modules map[ModuleID]SensorModule
}

// NewTable builds a table from tile and module entries. Later duplicates
// replace earlier ones, matching how the alignment trees are read.
func NewTable(tiles []Tile, modules []SensorModule) *Table {
	t := &Table{
		tiles:   make(map[TileID]Tile, len(tiles)),
		modules: make(map[ModuleID]SensorModule, len(modules)),
	}
	for _, tile := range tiles {
		t.tiles[tile.ID] = tile
	}
	for _, m := range modules {
		t.modules[m.ID] = m
	}
	return t
}

// TileCount returns the number of tiles.
func (t *Table) TileCount() int { return len(t.tiles) }

// ModuleCount returns the number of pixel-sensor modules.
func (t *Table) ModuleCount() int { return len(t.modules) }

// Tile returns the alignment entry for id.
func (t *Table) Tile(id TileID) (Tile, error) {
	tile, ok := t.tiles[id]
	if !ok {
		return Tile{}, fmt.Errorf("%w: %d", ErrUnknownTile, id)
	}
	return tile, nil
}

// TilePosition returns the tile centre.
func (t *Table) TilePosition(id TileID) (Vec, error) {
	tile, err := t.Tile(id)
	return tile.Position, err
}

// TileDirection returns the tile's declared orientation.
func (t *Table) TileDirection(id TileID) (Vec, error) {
	tile, err := t.Tile(id)
	return tile.Direction, err
}

// SensorBasis returns origin, row and column vectors of a module.
func (t *Table) SensorBasis(id ModuleID) (origin, row, col Vec, err error) {
	m, ok := t.modules[id]
	if !ok {
		return Vec{}, Vec{}, Vec{}, fmt.Errorf("%w: %d", ErrUnknownModule, id)
	}
	return m.Origin, m.Row, m.Col, nil
}

// PixelPosition decodes a packed pixel id into a detector-frame position.
func (t *Table) PixelPosition(p PixelID) (Vec, error) {
	origin, row, col, err := t.SensorBasis(p.Module())
	if err != nil {
		return Vec{}, err
	}
	return PixelCentre(origin, row, col, p), nil
}

// PixelCentre places the pixel's column and row parameters on a module basis.
func PixelCentre(origin, row, col Vec, p PixelID) Vec {
	pos := r3.Add(origin, r3.Scale(float64(p.Col())+0.5, col))
	return r3.Add(pos, r3.Scale(float64(p.Row())+0.5, row))
}

// Tiles returns all tiles ordered by id.
func (t *Table) Tiles() []Tile {
	out := make([]Tile, 0, len(t.tiles))
	for _, tile := range t.tiles {
		out = append(out, tile)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Modules returns all sensor modules ordered by id.
func (t *Table) Modules() []SensorModule {
	out := make([]SensorModule, 0, len(t.modules))
	for _, m := range t.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
