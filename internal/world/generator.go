package world

// GenContext is what the loader exposes to a generator while one of its
// stages runs.
type GenContext interface {
	// Cell returns the cell at pos advanced to at least level, loading or
	// generating it if needed. ok is false if it is not available yet.
	Cell(pos CellPos, level InitLevel) (c *Cell, ok bool)
	// Column returns the column at pos, generating it if needed.
	Column(pos ColumnPos) (*Column, bool)
	// Peek returns the resident cell at pos without loading anything.
	Peek(pos CellPos) *Cell
	// EmitCell registers a cell produced as a side effect of the current
	// stage.
	EmitCell(c *Cell)
	// EmitColumn registers a column produced as a side effect.
	EmitColumn(c *Column)
}

// Generator produces world content in stages. Each stage runs on the world
// goroutine and may touch neighbouring coordinates through ctx.
type Generator interface {
	GenerateColumn(ctx GenContext, pos ColumnPos) (*Column, error)
	GenerateCell(ctx GenContext, pos CellPos) (*Cell, error)
	// Populate must leave the cell FullyPopulated on success.
	Populate(ctx GenContext, c *Cell) error
	// Light must leave the cell InitialLightingDone on success.
	Light(ctx GenContext, c *Cell) error
	// LightEngine names the lighting implementation; stored light state
	// from a different engine is discarded on load.
	LightEngine() string
}

// Precomputer is implemented by generators that can start expensive work
// ahead of a synchronous request. Called from store worker goroutines.
type Precomputer interface {
	Precompute(pos CellPos, level InitLevel)
}
