package system

import (
	"time"

	coresys "github.com/l1jgo/cubic/internal/core/system"
)

// Mover applies observer movement to subscriptions.
type Mover interface {
	Update() (moved bool)
}

// VisibilitySystem moves every observer whose live position left its
// managed cell. Phase 3 (PostUpdate).
type VisibilitySystem struct {
	tracker Mover
	onMove  func()
}

// NewVisibilitySystem calls onMove, if set, after a tick in which any
// subscription set changed.
func NewVisibilitySystem(tracker Mover, onMove func()) *VisibilitySystem {
	return &VisibilitySystem{tracker: tracker, onMove: onMove}
}

func (s *VisibilitySystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *VisibilitySystem) Update(_ time.Duration) {
	if s.tracker.Update() && s.onMove != nil {
		s.onMove()
	}
}
