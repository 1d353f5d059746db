package system

import (
	"testing"
	"time"
)

type probe struct {
	name  string
	phase Phase
	log   *[]string
}

func (p probe) Phase() Phase          { return p.phase }
func (p probe) Update(time.Duration) { *p.log = append(*p.log, p.name) }

func TestRunnerOrdersByPhaseThenRegistration(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(probe{"gc", PhaseCleanup, &log})
	r.Register(probe{"events", PhasePreUpdate, &log})
	r.Register(probe{"net", PhaseInput, &log})
	r.Register(probe{"completions", PhaseInput, &log})
	r.Register(probe{"output", PhaseOutput, &log})

	r.Tick(time.Millisecond)
	want := []string{"net", "completions", "events", "output", "gc"}
	if len(log) != len(want) {
		t.Fatalf("ran %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("order %v, want %v", log, want)
		}
	}
}

func TestTickPhaseRunsOnlyThatPhase(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(probe{"net", PhaseInput, &log})
	r.Register(probe{"output", PhaseOutput, &log})
	r.TickPhase(PhaseInput, 0)
	if len(log) != 1 || log[0] != "net" {
		t.Fatalf("ran %v", log)
	}
}
