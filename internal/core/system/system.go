package system

import (
	"fmt"
	"time"
)

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: store completions, packet queues
	PhasePreUpdate               // 1: dispatch last tick's lifecycle events
	PhaseUpdate                  // 2: world logic
	PhasePostUpdate              // 3: observer movement, subscriptions
	PhaseOutput                  // 4: build + send cell messages
	PhasePersist                 // 5: hand modified objects to the store
	PhaseCleanup                 // 6: unload sweep
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "Input"
	case PhasePreUpdate:
		return "PreUpdate"
	case PhaseUpdate:
		return "Update"
	case PhasePostUpdate:
		return "PostUpdate"
	case PhaseOutput:
		return "Output"
	case PhasePersist:
		return "Persist"
	case PhaseCleanup:
		return "Cleanup"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
