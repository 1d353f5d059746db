// Package dimension assembles one world: its store, loader, visibility
// tracker, collector and tick systems. Dimensions share nothing, so a
// server can host several side by side.
package dimension

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/cubic/internal/config"
	"github.com/l1jgo/cubic/internal/core/event"
	coresys "github.com/l1jgo/cubic/internal/core/system"
	"github.com/l1jgo/cubic/internal/gc"
	"github.com/l1jgo/cubic/internal/loader"
	"github.com/l1jgo/cubic/internal/store"
	"github.com/l1jgo/cubic/internal/system"
	"github.com/l1jgo/cubic/internal/visibility"
	"github.com/l1jgo/cubic/internal/world"
	"go.uber.org/zap"
)

type Options struct {
	// Default and maximum observer view distances, in cells.
	ViewDistanceXZ int
	ViewDistanceY  int

	Tracker            visibility.Options
	GC                 gc.Options
	GCIntervalTicks    int
	SaveIntervalTicks  int
	Store              store.Options
	WorkersPerObserver int

	// Sessions, if set, is flushed after cell messages every tick.
	Sessions system.OutputFlusher
}

// OptionsFromConfig maps the [world] and [store] sections.
func OptionsFromConfig(cfg *config.Config) Options {
	w, s := cfg.World, cfg.Store
	return Options{
		ViewDistanceXZ: w.ViewDistanceXZ,
		ViewDistanceY:  w.ViewDistanceY,
		Tracker: visibility.Options{
			ClumpThreshold: w.ClumpThreshold,
			LoadRate:       w.LoadRate,
			LoadBurst:      w.LoadBurst,
		},
		GC:                 gc.Options{GraceTicks: w.GraceTicks},
		GCIntervalTicks:    w.GCIntervalTicks,
		SaveIntervalTicks:  w.SaveIntervalTick,
		WorkersPerObserver: s.WorkersPerObserver,
		Store: store.Options{
			MinWorkers:    s.MinWorkers,
			MaxWorkers:    s.MaxWorkers,
			CacheEntries:  s.CacheEntries,
			CacheTTL:      s.CacheTTL,
			FlushInterval: s.FlushInterval,
			QueueSize:     s.QueueSize,
		},
	}
}

type opaquer interface {
	Opaque(id uint16) bool
}

// Dimension is one independent world. All methods except Close must be
// called from the world goroutine.
type Dimension struct {
	name string
	opts Options
	log  *zap.Logger

	store     *store.Store
	loader    *loader.Loader
	bus       *event.Bus
	tracker   *visibility.Tracker
	collector *gc.Collector
	runner    *coresys.Runner
	persist   *system.PersistenceSystem
	gcSys     *system.GCSystem

	opaque func(id uint16) bool
	ticks  uint64
}

func New(name string, backend store.Backend, gen world.Generator, opts Options, log *zap.Logger) *Dimension {
	log = log.With(zap.String("dimension", name))
	st := store.New(backend, opts.Store, log)
	if pc, ok := gen.(world.Precomputer); ok {
		st.OnPreloadMiss(func(k store.Key, level world.InitLevel) {
			if k.Kind == store.KindCell {
				pc.Precompute(world.CellPos{X: k.X, Y: k.Y, Z: k.Z}, level)
			}
		})
	}

	bus := event.NewBus()
	l := loader.New(st, gen, bus, log)
	tracker := visibility.NewTracker(l, bus, opts.Tracker, log)
	collector := gc.New(l, tracker, opts.GC, log)

	d := &Dimension{
		name:      name,
		opts:      opts,
		log:       log,
		store:     st,
		loader:    l,
		bus:       bus,
		tracker:   tracker,
		collector: collector,
		runner:    coresys.NewRunner(),
		opaque:    func(id uint16) bool { return id != 0 },
	}
	if o, ok := gen.(opaquer); ok {
		d.opaque = o.Opaque
	}

	d.persist = system.NewPersistenceSystem(l, log, opts.SaveIntervalTicks)
	d.gcSys = system.NewGCSystem(collector, log, opts.GCIntervalTicks)
	d.runner.Register(system.NewCompletionSystem(st))
	d.runner.Register(system.NewEventSystem(bus))
	d.runner.Register(system.NewVisibilitySystem(tracker, d.gcSys.Trigger))
	d.runner.Register(system.NewOutputSystem(tracker, opts.Sessions))
	d.runner.Register(d.persist)
	d.runner.Register(d.gcSys)
	return d
}

func (d *Dimension) Name() string { return d.name }

// Register adds a system to the tick, e.g. network input.
func (d *Dimension) Register(s coresys.System) { d.runner.Register(s) }

// Tick advances the logical clock and runs every phase once.
func (d *Dimension) Tick(dt time.Duration) {
	d.ticks++
	d.loader.Advance()
	d.runner.Tick(dt)
}

// PollInput runs only the input phase, between full ticks.
func (d *Dimension) PollInput(dt time.Duration) {
	d.runner.TickPhase(coresys.PhaseInput, dt)
}

func (d *Dimension) Ticks() uint64 { return d.ticks }

// Block returns the block at world coordinates if its cell is resident.
func (d *Dimension) Block(x, y, z int32) (id uint16, meta uint8, ok bool) {
	c, _ := d.loader.GetCell(world.CellOf(x, y, z), world.CachedOnly)
	if c == nil {
		return 0, 0, false
	}
	a := world.LocalOf(x, y, z)
	return c.Block(a), c.Meta(a), true
}

// SetBlock changes one block, loading its cell if needed, keeps the column
// height index current and queues the change for observers.
func (d *Dimension) SetBlock(x, y, z int32, id uint16, meta uint8) error {
	pos := world.CellOf(x, y, z)
	c, err := d.loader.GetCell(pos, world.ReachLit)
	if err != nil {
		return fmt.Errorf("set block %d,%d,%d: %w", x, y, z, err)
	}
	if c == nil {
		return fmt.Errorf("set block %d,%d,%d: cell %v unavailable", x, y, z, pos)
	}
	a := world.LocalOf(x, y, z)
	if !c.SetBlock(a, id, meta) {
		return nil
	}
	if col, _ := d.loader.GetColumn(pos.Column(), world.CachedOnly); col != nil {
		col.UpdateHeight(a.X(), a.Z(), y, d.opaque(id), func(yy int32) (bool, bool) {
			below, _ := d.loader.GetCell(world.CellOf(x, yy, z), world.CachedOnly)
			if below == nil {
				return false, false
			}
			return d.opaque(below.Block(world.LocalOf(x, yy, z))), true
		})
	}
	d.tracker.MarkDirty(pos, a)
	return nil
}

func (d *Dimension) clampView(xz, y int) (int, int) {
	if xz < 0 || xz > d.opts.ViewDistanceXZ {
		xz = d.opts.ViewDistanceXZ
	}
	if y < 0 || y > d.opts.ViewDistanceY {
		y = d.opts.ViewDistanceY
	}
	return xz, y
}

// AddObserver starts tracking obs at the cell holding the given block.
// View distances above the configured maximum are clamped.
func (d *Dimension) AddObserver(obs visibility.Observer, x, y, z int32, viewXZ, viewY int) {
	viewXZ, viewY = d.clampView(viewXZ, viewY)
	d.tracker.AddPlayer(obs, world.CellOf(x, y, z), viewXZ, viewY)
	d.store.Resize(d.tracker.Players(), d.opts.WorkersPerObserver)
}

// MoveObserver records a new live position. Subscriptions follow at the
// next tick.
func (d *Dimension) MoveObserver(id uint64, x, y, z int32) {
	d.tracker.SetPosition(id, world.CellOf(x, y, z))
}

func (d *Dimension) SetViewDistance(id uint64, viewXZ, viewY int) {
	viewXZ, viewY = d.clampView(viewXZ, viewY)
	d.tracker.SetViewDistance(id, viewXZ, viewY)
}

// RemoveObserver drops the observer and every pin it owned.
func (d *Dimension) RemoveObserver(id uint64) {
	d.tracker.RemovePlayer(id)
	owner := ObserverOwner(id)
	d.collector.CellTickets().RemoveOwner(owner)
	d.collector.ColumnTickets().RemoveOwner(owner)
	d.store.Resize(d.tracker.Players(), d.opts.WorkersPerObserver)
	d.gcSys.Trigger()
}

// ObserverOwner is the pin owner name used for an observer's pins.
func ObserverOwner(id uint64) string {
	return fmt.Sprintf("observer-%d", id)
}

// Pin loads the cell at pos and keeps it resident until Unpin.
func (d *Dimension) Pin(pos world.CellPos, owner string) (uuid.UUID, error) {
	c, err := d.loader.GetCell(pos, world.ReachLit)
	if err != nil {
		return uuid.Nil, err
	}
	if c == nil {
		return uuid.Nil, fmt.Errorf("pin %v: cell unavailable", pos)
	}
	return d.collector.CellTickets().Add(pos, owner), nil
}

// PinColumn keeps the column at pos resident until Unpin.
func (d *Dimension) PinColumn(pos world.ColumnPos, owner string) (uuid.UUID, error) {
	col, err := d.loader.GetColumn(pos, world.ReachGenerated)
	if err != nil {
		return uuid.Nil, err
	}
	if col == nil {
		return uuid.Nil, fmt.Errorf("pin column %v: unavailable", pos)
	}
	return d.collector.ColumnTickets().Add(pos, owner), nil
}

// Unpin releases a ticket from Pin or PinColumn.
func (d *Dimension) Unpin(id uuid.UUID) bool {
	return d.collector.CellTickets().Remove(id) || d.collector.ColumnTickets().Remove(id)
}

// AddMarker lets an external system keep columns resident.
func (d *Dimension) AddMarker(m gc.PersistenceMarker) { d.collector.AddMarker(m) }

// SaveAll hands every modified object to the store and commits it.
func (d *Dimension) SaveAll(ctx context.Context) error {
	n := d.persist.SaveAll()
	if err := d.store.Flush(ctx); err != nil {
		return fmt.Errorf("save %s: %w", d.name, err)
	}
	d.log.Info("world saved", zap.Int("objects", n))
	return nil
}

// Close saves everything and shuts the store down. The dimension must not
// be ticked afterwards.
func (d *Dimension) Close(ctx context.Context) error {
	n := d.persist.SaveAll()
	if err := d.store.Close(ctx); err != nil {
		return fmt.Errorf("close %s: %w", d.name, err)
	}
	d.log.Info("world closed", zap.Int("saved", n))
	return nil
}

func (d *Dimension) Loader() *loader.Loader { return d.loader }
func (d *Dimension) Tracker() *visibility.Tracker { return d.tracker }
func (d *Dimension) Store() *store.Store { return d.store }
func (d *Dimension) Collector() *gc.Collector { return d.collector }
