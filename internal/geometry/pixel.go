package geometry

import "fmt"

// ModuleID identifies a pixel-sensor module in the alignment tables.
type ModuleID uint32

// PixelID is a packed pixel identifier as written by the readout:
//
//	bits 31..16  module id
//	bits 15..8   column
//	bits  7..0   row
//
// No other layout is valid.
type PixelID uint32

// PackPixelID builds a packed pixel id. module must fit in 16 bits.
func PackPixelID(module ModuleID, col, row uint8) PixelID {
	return PixelID(uint32(module)<<16 | uint32(col)<<8 | uint32(row))
}

// Module returns the sensor module id.
func (p PixelID) Module() ModuleID { return ModuleID(uint32(p) >> 16) }

// Col returns the column parameter.
func (p PixelID) Col() uint8 { return uint8((uint32(p) >> 8) & 0xFF) }

// Row returns the row parameter.
func (p PixelID) Row() uint8 { return uint8(uint32(p) & 0xFF) }

// Unpack returns (module, col, row).
func (p PixelID) Unpack() (ModuleID, uint8, uint8) {
	return p.Module(), p.Col(), p.Row()
}

func (p PixelID) String() string {
	return fmt.Sprintf("pixel(module=%d col=%d row=%d)", p.Module(), p.Col(), p.Row())
}
