package event

import "github.com/l1jgo/cubic/internal/world"

// Lifecycle events emitted by the loader.

// CellLoaded: a stored cell was materialised.
type CellLoaded struct {
	Pos   world.CellPos
	Cell  *world.Cell
	Level world.InitLevel
}

// CellGenerated: a generator stage finished for a cell, or a cell was
// produced as a side effect of another coordinate's generation.
type CellGenerated struct {
	Pos        world.CellPos
	Cell       *world.Cell
	Level      world.InitLevel
	SideEffect bool
}

type CellUnloaded struct {
	Pos world.CellPos
}

type ColumnLoaded struct {
	Pos    world.ColumnPos
	Column *world.Column
}

type ColumnGenerated struct {
	Pos        world.ColumnPos
	Column     *world.Column
	SideEffect bool
}

type ColumnUnloaded struct {
	Pos world.ColumnPos
}
