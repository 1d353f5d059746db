package loader

import "github.com/l1jgo/cubic/internal/world"

// Provenance records where a resident object came from.
type Provenance uint8

const (
	ProvenanceNone Provenance = iota
	ProvenanceDisk
	ProvenanceGenerated
	ProvenanceSideEffect
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceDisk:
		return "Disk"
	case ProvenanceGenerated:
		return "Generated"
	case ProvenanceSideEffect:
		return "GeneratedSideEffect"
	default:
		return "None"
	}
}

type cellRecord struct {
	pos  world.CellPos
	tag  []byte
	cell *world.Cell
	prov Provenance

	// fetched is set once the store has been asked; a nil tag after that
	// means nothing usable is stored.
	fetched    bool
	generating bool
	lastAccess uint64
	level      world.InitLevel
}

type columnRecord struct {
	pos    world.ColumnPos
	tag    []byte
	column *world.Column
	prov   Provenance

	fetched    bool
	generating bool
	lastAccess uint64

	// cells lists contained cell coordinates. Cells register themselves on
	// materialisation and remove themselves on eviction.
	cells map[world.CellPos]struct{}
}

// CellState is a read-only view of a cell record.
type CellState struct {
	Resident   bool
	Loading    bool // a background load is in flight
	Modified   bool
	Level      world.InitLevel
	Provenance Provenance
	LastAccess uint64
}

// ColumnState is a read-only view of a column record.
type ColumnState struct {
	Resident   bool
	Modified   bool
	Provenance Provenance
	Cells      int
}
