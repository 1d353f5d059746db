package system

import (
	"time"

	coresys "github.com/l1jgo/cubic/internal/core/system"
)

// Flusher sends the tick's batched cell messages.
type Flusher interface {
	Flush() int
}

// OutputFlusher pushes buffered packets to connections.
type OutputFlusher interface {
	FlushAll()
}

// OutputSystem sends dirty cells to their observers and then hands every
// session's buffered packets to its writer. Phase 4 (Output).
type OutputSystem struct {
	tracker  Flusher
	sessions OutputFlusher
}

// NewOutputSystem accepts a nil sessions for worlds without clients.
func NewOutputSystem(tracker Flusher, sessions OutputFlusher) *OutputSystem {
	return &OutputSystem{tracker: tracker, sessions: sessions}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.tracker.Flush()
	if s.sessions != nil {
		s.sessions.FlushAll()
	}
}
