package gc

import (
	"context"
	"math/rand"
	"testing"

	"github.com/l1jgo/cubic/internal/core/event"
	"github.com/l1jgo/cubic/internal/loader"
	"github.com/l1jgo/cubic/internal/store"
	"github.com/l1jgo/cubic/internal/world"
	"go.uber.org/zap"
)

type litGen struct{}

func (litGen) GenerateColumn(_ world.GenContext, pos world.ColumnPos) (*world.Column, error) {
	return world.NewColumn(pos), nil
}

func (litGen) GenerateCell(_ world.GenContext, pos world.CellPos) (*world.Cell, error) {
	return world.NewCell(pos, world.NewBlockSection()), nil
}

func (litGen) Populate(_ world.GenContext, c *world.Cell) error {
	c.Populated, c.FullyPopulated = true, true
	return nil
}

func (litGen) Light(_ world.GenContext, c *world.Cell) error {
	c.InitialLightingDone = true
	return nil
}

func (litGen) LightEngine() string { return "test" }

type fakeWatcher struct {
	cells   map[world.CellPos]bool
	columns map[world.ColumnPos]bool
}

func (w *fakeWatcher) WatchesCell(p world.CellPos) bool     { return w.cells[p] }
func (w *fakeWatcher) WatchesColumn(p world.ColumnPos) bool { return w.columns[p] }

type markerFunc func(world.ColumnPos) bool

func (f markerFunc) Claims(p world.ColumnPos) bool { return f(p) }

const grace = 5

func setup(t *testing.T) (*Collector, *loader.Loader, *store.Store, *fakeWatcher) {
	t.Helper()
	opts := store.DefaultOptions()
	opts.FlushInterval = 0
	st := store.New(store.NewMemoryBackend(), opts, zap.NewNop())
	t.Cleanup(func() { st.Close(context.Background()) })

	l := loader.New(st, litGen{}, event.NewBus(), zap.NewNop())
	w := &fakeWatcher{cells: map[world.CellPos]bool{}, columns: map[world.ColumnPos]bool{}}
	return New(l, w, Options{GraceTicks: grace}, zap.NewNop()), l, st, w
}

func advance(l *loader.Loader, n int) {
	for i := 0; i < n; i++ {
		l.Advance()
	}
}

func load(t *testing.T, l *loader.Loader, pos world.CellPos) {
	t.Helper()
	if _, err := l.GetCell(pos, world.ReachLit); err != nil {
		t.Fatalf("GetCell(%v): %v", pos, err)
	}
}

func resident(l *loader.Loader, pos world.CellPos) bool {
	st, ok := l.CellState(pos)
	return ok && st.Resident
}

func TestPinnedCellSurvivesUntilUnpinned(t *testing.T) {
	c, l, st, _ := setup(t)
	pos := world.CellPos{X: 2, Y: 1}
	load(t, l, pos)
	ticket := c.CellTickets().Add(pos, "test")
	advance(l, grace*3)

	if got := c.Sweep(); got.Cells != 0 || got.Columns != 0 {
		t.Fatalf("sweep evicted %+v from a pinned cell", got)
	}
	if !resident(l, pos) {
		t.Fatalf("pinned cell evicted")
	}

	if !c.CellTickets().Remove(ticket) {
		t.Fatalf("ticket not found")
	}
	if got := c.Sweep(); got.Cells != 1 || got.Columns != 1 {
		t.Fatalf("sweep = %+v, want the cell and its column", got)
	}
	if _, ok := l.CellState(pos); ok {
		t.Fatalf("cell record survived eviction")
	}
	if st.Pending() != 2 {
		t.Fatalf("pending writes = %d, want modified cell and column persisted", st.Pending())
	}
}

func TestGraceWindow(t *testing.T) {
	c, l, _, _ := setup(t)
	pos := world.CellPos{}
	load(t, l, pos)

	advance(l, grace-1)
	c.Sweep()
	if !resident(l, pos) {
		t.Fatalf("cell evicted inside the grace window")
	}
	advance(l, 1)
	c.Sweep()
	if resident(l, pos) {
		t.Fatalf("idle cell survived past the grace window")
	}
}

func TestAccessRefreshesGrace(t *testing.T) {
	c, l, _, _ := setup(t)
	pos := world.CellPos{Z: 1}
	load(t, l, pos)

	advance(l, grace-1)
	l.GetCell(pos, world.CachedOnly)
	advance(l, grace-1)
	c.Sweep()
	if !resident(l, pos) {
		t.Fatalf("recently accessed cell evicted")
	}
}

func TestTouchRestartsGrace(t *testing.T) {
	c, l, _, w := setup(t)
	pos := world.CellPos{X: 4}
	load(t, l, pos)
	w.cells[pos] = true
	advance(l, grace*3)
	c.Sweep()
	if !resident(l, pos) {
		t.Fatalf("watched cell evicted")
	}

	delete(w.cells, pos)
	l.Touch(pos)
	c.Sweep()
	if !resident(l, pos) {
		t.Fatalf("touched cell evicted at once")
	}
	advance(l, grace)
	c.Sweep()
	if resident(l, pos) {
		t.Fatalf("touched cell survived past the grace window")
	}
}

func TestWatchedAndClaimedCellsSurvive(t *testing.T) {
	c, l, _, w := setup(t)
	watched := world.CellPos{X: 1}
	claimed := world.CellPos{X: 7}
	load(t, l, watched)
	load(t, l, claimed)
	w.cells[watched] = true
	c.AddMarker(markerFunc(func(p world.ColumnPos) bool { return p == claimed.Column() }))
	advance(l, grace)

	if got := c.Sweep(); got.Cells != 0 || got.Columns != 0 {
		t.Fatalf("sweep = %+v, want nothing evicted", got)
	}
}

func TestColumnOutlivesItsCells(t *testing.T) {
	c, l, _, _ := setup(t)
	low := world.CellPos{Y: 0}
	high := world.CellPos{Y: 1}
	load(t, l, low)
	load(t, l, high)
	ticket := c.CellTickets().Add(high, "test")
	advance(l, grace)

	got := c.Sweep()
	if got.Cells != 1 || got.Columns != 0 {
		t.Fatalf("sweep = %+v, want one cell and no column", got)
	}
	if st, ok := l.ColumnState(low.Column()); !ok || st.Cells != 1 {
		t.Fatalf("column state = %+v, %v", st, ok)
	}

	c.CellTickets().Remove(ticket)
	if got := c.Sweep(); got.Cells != 1 || got.Columns != 1 {
		t.Fatalf("sweep = %+v, want last cell then column", got)
	}
}

func TestWatchedEmptyColumnIsKept(t *testing.T) {
	c, l, _, w := setup(t)
	pos := world.CellPos{X: -2}
	load(t, l, pos)
	w.columns[pos.Column()] = true
	advance(l, grace)

	if got := c.Sweep(); got.Cells != 1 || got.Columns != 0 {
		t.Fatalf("sweep = %+v", got)
	}
	if st, ok := l.ColumnState(pos.Column()); !ok || st.Cells != 0 {
		t.Fatalf("watched column not kept: %+v %v", st, ok)
	}
	c.ColumnTickets().Add(pos.Column(), "test")
	delete(w.columns, pos.Column())
	if got := c.Sweep(); got.Columns != 0 {
		t.Fatalf("pinned column evicted")
	}
}

func TestNoCellOutlivesItsColumn(t *testing.T) {
	c, l, _, w := setup(t)
	r := rand.New(rand.NewSource(7))
	pins := map[world.CellPos]bool{}

	for step := 0; step < 300; step++ {
		pos := world.CellPos{X: int32(r.Intn(4)), Y: int32(r.Intn(4)), Z: int32(r.Intn(3))}
		switch r.Intn(5) {
		case 0, 1:
			load(t, l, pos)
		case 2:
			if !pins[pos] {
				c.CellTickets().Add(pos, "fuzz")
				pins[pos] = true
			}
		case 3:
			w.cells[pos] = !w.cells[pos]
		case 4:
			c.CellTickets().RemoveOwner("fuzz")
			clear(pins)
		}
		l.Advance()
		if r.Intn(3) == 0 {
			c.Sweep()
		}

		l.EachCell(func(p world.CellPos, st loader.CellState) {
			if !st.Resident {
				return
			}
			col, ok := l.ColumnState(p.Column())
			if !ok || !col.Resident {
				t.Fatalf("step %d: cell %v resident without its column", step, p)
			}
		})
		for p := range pins {
			if st, ok := l.CellState(p); ok && !st.Resident {
				t.Fatalf("step %d: pinned cell %v lost its object", step, p)
			}
		}
	}
}

func TestTickets(t *testing.T) {
	tk := NewTickets[world.CellPos]()
	pos := world.CellPos{X: 1}
	a := tk.Add(pos, "alice")
	b := tk.Add(pos, "bob")
	if a == b || tk.Count(pos) != 2 {
		t.Fatalf("tickets not distinct")
	}
	tk.Remove(a)
	if !tk.Pinned(pos) {
		t.Fatalf("second ticket lost")
	}
	if tk.Remove(a) {
		t.Fatalf("ticket removed twice")
	}
	tk.Add(world.CellPos{Y: 9}, "bob")
	if n := tk.RemoveOwner("bob"); n != 2 || tk.Len() != 0 {
		t.Fatalf("RemoveOwner = %d, remaining keys %d", n, tk.Len())
	}
}
