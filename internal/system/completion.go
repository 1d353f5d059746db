package system

import (
	"time"

	coresys "github.com/l1jgo/cubic/internal/core/system"
)

// Completer runs store completions on the calling goroutine.
type Completer interface {
	DrainCompletions() int
}

// CompletionSystem finishes asynchronous store work on the world goroutine.
// Phase 0 (Input).
type CompletionSystem struct {
	store Completer
}

func NewCompletionSystem(store Completer) *CompletionSystem {
	return &CompletionSystem{store: store}
}

func (s *CompletionSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *CompletionSystem) Update(_ time.Duration) {
	s.store.DrainCompletions()
}
