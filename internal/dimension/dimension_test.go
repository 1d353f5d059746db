package dimension

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/l1jgo/cubic/internal/data"
	"github.com/l1jgo/cubic/internal/gen"
	"github.com/l1jgo/cubic/internal/loader"
	"github.com/l1jgo/cubic/internal/store"
	"github.com/l1jgo/cubic/internal/visibility"
	"github.com/l1jgo/cubic/internal/world"
	"go.uber.org/zap"
)

const presetDoc = `
biome: 1
layers:
  - {block: 7, from: 0, to: 0}
  - {block: 1, from: 1, to: 59}
  - {block: 3, from: 60, to: 62}
  - {block: 2, from: 63, to: 63}
`

type delta struct {
	pos     world.CellPos
	blocks  []visibility.BlockChange
	heights []visibility.HeightChange
}

type recorder struct {
	id        uint64
	snapshots map[world.CellPos]int
	columns   map[world.ColumnPos]int
	unloads   map[world.CellPos]int
	colUnload map[world.ColumnPos]int
	deltas    []delta
}

func newRecorder(id uint64) *recorder {
	return &recorder{
		id:        id,
		snapshots: make(map[world.CellPos]int),
		columns:   make(map[world.ColumnPos]int),
		unloads:   make(map[world.CellPos]int),
		colUnload: make(map[world.ColumnPos]int),
	}
}

func (r *recorder) ID() uint64 { return r.id }
func (r *recorder) SendCellSnapshot(c *world.Cell, _ *world.Column) {
	r.snapshots[c.Pos()]++
}
func (r *recorder) SendCellDelta(pos world.CellPos, b []visibility.BlockChange, h []visibility.HeightChange) {
	r.deltas = append(r.deltas, delta{pos: pos, blocks: b, heights: h})
}
func (r *recorder) SendUnloadCell(pos world.CellPos) { r.unloads[pos]++ }
func (r *recorder) SendColumnSnapshot(col *world.Column) { r.columns[col.Pos()]++ }
func (r *recorder) SendUnloadColumn(pos world.ColumnPos) { r.colUnload[pos]++ }

func testOptions() Options {
	st := store.DefaultOptions()
	st.FlushInterval = 0
	return Options{
		ViewDistanceXZ:     4,
		ViewDistanceY:      4,
		Tracker:            visibility.Options{ClumpThreshold: 64, LoadBurst: 64},
		Store:              st,
		WorkersPerObserver: 1,
	}
}

func newTestDimension(t *testing.T, backend store.Backend, g world.Generator, opts Options) *Dimension {
	t.Helper()
	if g == nil {
		p, err := data.ParsePreset([]byte(presetDoc))
		if err != nil {
			t.Fatal(err)
		}
		g = gen.NewFlat(p, "")
	}
	return New("test", backend, g, opts, zap.NewNop())
}

func tick(d *Dimension, n int) {
	for i := 0; i < n; i++ {
		d.Store().WaitIdle()
		d.Tick(50 * time.Millisecond)
	}
}

func settle(t *testing.T, d *Dimension, done func() bool) {
	t.Helper()
	for i := 0; i < 20 && !done(); i++ {
		tick(d, 1)
	}
	if !done() {
		t.Fatal("world did not settle")
	}
}

func TestObserverReceivesViewAndEdits(t *testing.T) {
	d := newTestDimension(t, store.NewMemoryBackend(), nil, testOptions())
	t.Cleanup(func() { d.Close(context.Background()) })

	rec := newRecorder(1)
	d.AddObserver(rec, 8, 70, 8, 1, 1)
	settle(t, d, func() bool { return len(rec.snapshots) == 27 && len(rec.columns) == 9 })

	if err := d.SetBlock(8, 64, 8, 5, 0); err != nil {
		t.Fatal(err)
	}
	if id, _, ok := d.Block(8, 64, 8); !ok || id != 5 {
		t.Fatalf("Block = %d,%v", id, ok)
	}
	tick(d, 1)
	if len(rec.deltas) != 1 {
		t.Fatalf("got %d deltas, want 1", len(rec.deltas))
	}
	dl := rec.deltas[0]
	if dl.pos != (world.CellPos{Y: 4}) || len(dl.blocks) != 1 || dl.blocks[0].Block != 5 {
		t.Fatalf("delta %+v", dl)
	}
	if len(dl.heights) != 1 || dl.heights[0].Height != 64 {
		t.Fatalf("heights %+v, want 64", dl.heights)
	}

	if err := d.SetBlock(8, 64, 8, 0, 0); err != nil {
		t.Fatal(err)
	}
	tick(d, 1)
	if len(rec.deltas) != 2 || rec.deltas[1].heights[0].Height != 63 {
		t.Fatalf("height after removal: %+v", rec.deltas)
	}
}

func TestMovingAwayUnloadsAndSaves(t *testing.T) {
	backend := store.NewMemoryBackend()
	d := newTestDimension(t, backend, nil, testOptions())
	t.Cleanup(func() { d.Close(context.Background()) })

	rec := newRecorder(1)
	d.AddObserver(rec, 8, 70, 8, 1, 1)
	settle(t, d, func() bool { return len(rec.snapshots) == 27 })
	if err := d.SetBlock(8, 64, 8, 5, 0); err != nil {
		t.Fatal(err)
	}
	tick(d, 1)

	d.MoveObserver(1, 8+16*10, 70, 8)
	tick(d, 1)
	if len(rec.unloads) != 27 || len(rec.colUnload) != 9 {
		t.Fatalf("unload notices: %d cells, %d columns", len(rec.unloads), len(rec.colUnload))
	}
	if _, ok := d.Loader().CellState(world.CellPos{Y: 4}); ok {
		t.Fatal("old cell still resident after sweep")
	}

	if err := d.SaveAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	ok, err := backend.Has(context.Background(), store.CellKey(world.CellPos{Y: 4}))
	if err != nil || !ok {
		t.Fatalf("edited cell not stored: %v %v", ok, err)
	}
}

func TestReopenReadsPersistedBlocks(t *testing.T) {
	backend := store.NewMemoryBackend()
	d1 := newTestDimension(t, backend, nil, testOptions())
	if err := d1.SetBlock(3, 100, 3, 9, 2); err != nil {
		t.Fatal(err)
	}
	if err := d1.Close(context.Background()); err != nil {
		t.Fatal(err)
	}

	d2 := newTestDimension(t, backend, nil, testOptions())
	t.Cleanup(func() { d2.Close(context.Background()) })
	pos := world.CellOf(3, 100, 3)
	if _, err := d2.Pin(pos, "test"); err != nil {
		t.Fatal(err)
	}
	id, meta, ok := d2.Block(3, 100, 3)
	if !ok || id != 9 || meta != 2 {
		t.Fatalf("reloaded block %d/%d ok=%v", id, meta, ok)
	}
	st, _ := d2.Loader().CellState(pos)
	if st.Provenance != loader.ProvenanceDisk {
		t.Fatalf("provenance %v, want disk", st.Provenance)
	}
}

func TestPinsKeepCellsResident(t *testing.T) {
	opts := testOptions()
	opts.GCIntervalTicks = 1
	d := newTestDimension(t, store.NewMemoryBackend(), nil, opts)
	t.Cleanup(func() { d.Close(context.Background()) })

	pos := world.CellPos{X: 5, Y: 1, Z: 5}
	ticket, err := d.Pin(pos, "test")
	if err != nil {
		t.Fatal(err)
	}
	other := world.CellPos{X: 9, Y: 1, Z: 9}
	if _, err := d.Pin(other, ObserverOwner(7)); err != nil {
		t.Fatal(err)
	}
	tick(d, 3)
	if _, ok := d.Loader().CellState(pos); !ok {
		t.Fatal("pinned cell evicted")
	}

	if !d.Unpin(ticket) {
		t.Fatal("Unpin reported unknown ticket")
	}
	if d.Unpin(ticket) {
		t.Fatal("ticket released twice")
	}
	tick(d, 2)
	if _, ok := d.Loader().CellState(pos); ok {
		t.Fatal("unpinned cell still resident")
	}
	if _, ok := d.Loader().CellState(other); !ok {
		t.Fatal("other pin lost")
	}

	d.RemoveObserver(7)
	tick(d, 1)
	if _, ok := d.Loader().CellState(other); ok {
		t.Fatal("observer pins survived RemoveObserver")
	}
}

type precomputingGen struct {
	*gen.Flat
	mu    sync.Mutex
	calls map[world.CellPos]world.InitLevel
}

func (p *precomputingGen) Precompute(pos world.CellPos, level world.InitLevel) {
	p.mu.Lock()
	p.calls[pos] = level
	p.mu.Unlock()
}

func TestRateLimitedLoadsPrecompute(t *testing.T) {
	preset, err := data.ParsePreset([]byte(presetDoc))
	if err != nil {
		t.Fatal(err)
	}
	g := &precomputingGen{Flat: gen.NewFlat(preset, ""), calls: make(map[world.CellPos]world.InitLevel)}
	opts := testOptions()
	opts.Tracker.LoadRate = 0.001
	opts.Tracker.LoadBurst = 1
	d := newTestDimension(t, store.NewMemoryBackend(), g, opts)
	t.Cleanup(func() { d.Close(context.Background()) })

	d.AddObserver(newRecorder(1), 0, 0, 0, 1, 1)
	d.Store().WaitIdle()

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.calls) != 26 {
		t.Fatalf("precomputed %d cells, want 26", len(g.calls))
	}
	for pos, level := range g.calls {
		if level != world.LevelLit {
			t.Fatalf("%v precomputed for %v", pos, level)
		}
	}
}

func TestViewDistanceIsClamped(t *testing.T) {
	d := newTestDimension(t, store.NewMemoryBackend(), nil, testOptions())
	t.Cleanup(func() { d.Close(context.Background()) })
	d.AddObserver(newRecorder(3), 0, 0, 0, 50, -1)
	xz, y, ok := d.Tracker().ViewDistance(3)
	if !ok || xz != 4 || y != 4 {
		t.Fatalf("view distance %d,%d", xz, y)
	}
	d.SetViewDistance(3, 2, 1)
	if xz, y, _ = d.Tracker().ViewDistance(3); xz != 2 || y != 1 {
		t.Fatalf("after change %d,%d", xz, y)
	}
}
