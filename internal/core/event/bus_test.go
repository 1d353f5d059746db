package event

import (
	"reflect"
	"testing"

	"github.com/l1jgo/cubic/internal/world"
)

func TestDispatchKeepsOrderAcrossTypes(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(e CellLoaded) { got = append(got, "loaded "+e.Pos.String()) })
	Subscribe(b, func(e CellUnloaded) { got = append(got, "unloaded "+e.Pos.String()) })
	Subscribe(b, func(e ColumnLoaded) { got = append(got, "column "+e.Pos.String()) })

	a := world.CellPos{X: 1}
	Emit(b, ColumnLoaded{Pos: a.Column()})
	Emit(b, CellLoaded{Pos: a})
	Emit(b, CellUnloaded{Pos: a})
	Emit(b, CellLoaded{Pos: a})

	if len(got) != 0 {
		t.Fatalf("events delivered before swap: %v", got)
	}
	b.SwapBuffers()
	b.DispatchAll()

	want := []string{
		"column " + a.Column().String(),
		"loaded " + a.String(),
		"unloaded " + a.String(),
		"loaded " + a.String(),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestEventsEmittedDuringDispatchWaitForNextTick(t *testing.T) {
	b := NewBus()
	calls := 0
	Subscribe(b, func(e CellUnloaded) {
		calls++
		if calls == 1 {
			Emit(b, CellUnloaded{Pos: e.Pos})
		}
	})
	Emit(b, CellUnloaded{})

	b.SwapBuffers()
	b.DispatchAll()
	if calls != 1 || b.Pending() != 1 {
		t.Fatalf("calls=%d pending=%d, want 1 and 1", calls, b.Pending())
	}
	b.SwapBuffers()
	b.DispatchAll()
	if calls != 2 {
		t.Fatalf("calls=%d, want 2", calls)
	}
	b.SwapBuffers()
	b.DispatchAll()
	if calls != 2 {
		t.Fatalf("front buffer replayed: calls=%d", calls)
	}
}
