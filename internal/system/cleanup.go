package system

import (
	"time"

	coresys "github.com/l1jgo/cubic/internal/core/system"
	"github.com/l1jgo/cubic/internal/gc"
	"go.uber.org/zap"
)

// Sweeper evicts unneeded cells and columns.
type Sweeper interface {
	Sweep() gc.SweepStats
}

// GCSystem sweeps once after every tick in which observers moved, and at
// least every interval ticks otherwise. Phase 6 (Cleanup).
type GCSystem struct {
	gc        Sweeper
	log       *zap.Logger
	interval  int
	since     int
	triggered bool
}

func NewGCSystem(gc Sweeper, log *zap.Logger, intervalTicks int) *GCSystem {
	return &GCSystem{gc: gc, log: log, interval: intervalTicks}
}

func (s *GCSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

// Trigger requests a sweep at the end of the current tick.
func (s *GCSystem) Trigger() { s.triggered = true }

func (s *GCSystem) Update(_ time.Duration) {
	s.since++
	if !s.triggered && (s.interval <= 0 || s.since < s.interval) {
		return
	}
	s.triggered = false
	s.since = 0
	stats := s.gc.Sweep()
	if stats.Cells > 0 || stats.Columns > 0 {
		s.log.Debug("unload sweep", zap.Int("cells", stats.Cells), zap.Int("columns", stats.Columns))
	}
}
