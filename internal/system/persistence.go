package system

import (
	"time"

	coresys "github.com/l1jgo/cubic/internal/core/system"
	"go.uber.org/zap"
)

// Saver writes every modified resident object to the store.
type Saver interface {
	SaveModified() int
}

// PersistenceSystem periodically hands modified cells and columns to the
// store so a crash loses at most one interval. Phase 5 (Persist).
type PersistenceSystem struct {
	saver     Saver
	log       *zap.Logger
	tickCount int
	interval  int // save every N ticks, 0 disables
}

func NewPersistenceSystem(saver Saver, log *zap.Logger, intervalTicks int) *PersistenceSystem {
	return &PersistenceSystem{
		saver:    saver,
		log:      log,
		interval: intervalTicks,
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	if s.interval <= 0 {
		return
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	if n := s.saver.SaveModified(); n > 0 {
		s.log.Debug("autosave", zap.Int("objects", n))
	}
}

// SaveAll writes everything modified immediately. Used on shutdown.
func (s *PersistenceSystem) SaveAll() int {
	s.tickCount = 0
	return s.saver.SaveModified()
}
