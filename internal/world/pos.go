package world

import "fmt"

// CellSize is the edge length of a cell in blocks.
const CellSize = 16

const cellShift = 4

// CellPos addresses a cell. A cell's (X, Z) always maps to exactly one column.
type CellPos struct {
	X, Y, Z int32
}

// ColumnPos addresses a column of cells sharing the same horizontal position.
type ColumnPos struct {
	X, Z int32
}

func (p CellPos) Column() ColumnPos { return ColumnPos{X: p.X, Z: p.Z} }

func (p CellPos) Add(dx, dy, dz int32) CellPos {
	return CellPos{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

// MinBlock returns the world coordinates of the cell's lowest corner.
func (p CellPos) MinBlock() (x, y, z int32) {
	return p.X << cellShift, p.Y << cellShift, p.Z << cellShift
}

func (p CellPos) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

func (p ColumnPos) Cell(y int32) CellPos { return CellPos{X: p.X, Y: y, Z: p.Z} }

func (p ColumnPos) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Z)
}

// CellOf returns the cell containing the given block. Arithmetic shift floors
// negative coordinates.
func CellOf(x, y, z int32) CellPos {
	return CellPos{X: x >> cellShift, Y: y >> cellShift, Z: z >> cellShift}
}

// LocalOf returns the block's address within its cell.
func LocalOf(x, y, z int32) BlockAddr {
	return NewBlockAddr(int(x&(CellSize-1)), int(y&(CellSize-1)), int(z&(CellSize-1)))
}

// BlockAddr packs a block's local coordinates inside a cell into 12 bits:
// x in bits 8-11, z in bits 4-7, y in bits 0-3.
type BlockAddr uint16

func NewBlockAddr(x, y, z int) BlockAddr {
	return BlockAddr(x&0xF)<<8 | BlockAddr(z&0xF)<<4 | BlockAddr(y&0xF)
}

func (a BlockAddr) X() int { return int(a>>8) & 0xF }
func (a BlockAddr) Y() int { return int(a) & 0xF }
func (a BlockAddr) Z() int { return int(a>>4) & 0xF }

// Index returns the y-major array index used by BlockSection.
func (a BlockAddr) Index() int {
	return a.Y()<<8 | a.Z()<<4 | a.X()
}

// Column returns the horizontal index (0..255) of the address.
func (a BlockAddr) Column() int {
	return a.Z()<<4 | a.X()
}
