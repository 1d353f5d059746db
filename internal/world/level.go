package world

import "fmt"

// InitLevel is a cell's monotonic initialisation progress.
type InitLevel uint8

const (
	LevelNone InitLevel = iota
	LevelGenerated
	LevelPopulated
	LevelLit
)

func (l InitLevel) String() string {
	switch l {
	case LevelNone:
		return "None"
	case LevelGenerated:
		return "Generated"
	case LevelPopulated:
		return "Populated"
	case LevelLit:
		return "Lit"
	default:
		return fmt.Sprintf("InitLevel(%d)", uint8(l))
	}
}

// Effort is the amount of work a caller is willing to have done before a
// request returns. Each effort implies all weaker ones.
type Effort uint8

const (
	CachedOnly Effort = iota // no I/O, whatever is resident
	TagOnly                  // fetch the stored document, do not materialise
	Materialize              // turn a stored document into a live object
	ReachGenerated
	ReachPopulated
	ReachLit
)

// Level returns the minimum init level a successful request at this effort
// guarantees.
func (e Effort) Level() InitLevel {
	switch e {
	case ReachGenerated:
		return LevelGenerated
	case ReachPopulated:
		return LevelPopulated
	case ReachLit:
		return LevelLit
	default:
		return LevelNone
	}
}

// EffortFor returns the weakest effort that guarantees level.
func EffortFor(level InitLevel) Effort {
	switch level {
	case LevelGenerated:
		return ReachGenerated
	case LevelPopulated:
		return ReachPopulated
	case LevelLit:
		return ReachLit
	default:
		return Materialize
	}
}

func (e Effort) String() string {
	switch e {
	case CachedOnly:
		return "CachedOnly"
	case TagOnly:
		return "TagOnly"
	case Materialize:
		return "Materialize"
	case ReachGenerated:
		return "ReachGenerated"
	case ReachPopulated:
		return "ReachPopulated"
	case ReachLit:
		return "ReachLit"
	default:
		return fmt.Sprintf("Effort(%d)", uint8(e))
	}
}
