// Package visibility keeps each observer subscribed to the cells and
// columns around it, requests loads for newly visible cells and batches
// block changes into deltas or full snapshots once per tick.
//
// Everything runs on the world goroutine.
package visibility

import (
	"github.com/l1jgo/cubic/internal/core/event"
	"github.com/l1jgo/cubic/internal/loader"
	"github.com/l1jgo/cubic/internal/region"
	"github.com/l1jgo/cubic/internal/world"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dirtiness of a watched cell within the current tick.
type Dirtiness uint8

const (
	DirtyNone Dirtiness = iota
	DirtyPartial
	DirtyFull
)

// Source is the loader surface the tracker uses.
type Source interface {
	LoadCellAsync(pos world.CellPos, effort world.Effort) (*world.Cell, *loader.PendingLoad)
	GetColumn(pos world.ColumnPos, effort world.Effort) (*world.Column, error)
	Preload(pos world.CellPos, level world.InitLevel)
	// Touch restarts the eviction grace period of a cell.
	Touch(pos world.CellPos)
}

type Options struct {
	// ClumpThreshold is the number of distinct dirty blocks above which a
	// cell is resent whole instead of as a delta.
	ClumpThreshold int
	// LoadRate limits new load requests per second. 0 means unlimited.
	LoadRate  float64
	LoadBurst int
}

func DefaultOptions() Options {
	return Options{ClumpThreshold: 64, LoadBurst: 64}
}

type cellWatch struct {
	pos       world.CellPos
	cell      *world.Cell
	state     Dirtiness
	observers map[uint64]Observer
	dirty     []world.BlockAddr
	dirtySet  map[world.BlockAddr]struct{}
	pending   *loader.PendingLoad
	queued    bool
}

type columnWatch struct {
	pos       world.ColumnPos
	column    *world.Column
	observers map[uint64]Observer
}

type player struct {
	obs      Observer
	managed  world.CellPos
	live     world.CellPos
	radiusXZ int
	radiusY  int
	cells    map[world.CellPos]struct{}
	columns  map[world.ColumnPos]struct{}
}

func (p *player) box() region.Box {
	return region.NewBox(p.managed, p.radiusXZ, p.radiusY)
}

type Tracker struct {
	src     Source
	log     *zap.Logger
	opts    Options
	limiter *rate.Limiter

	players map[uint64]*player
	cells   map[world.CellPos]*cellWatch
	columns map[world.ColumnPos]*columnWatch
	dirty   map[world.CellPos]*cellWatch

	queue []world.CellPos
}

func NewTracker(src Source, bus *event.Bus, opts Options, log *zap.Logger) *Tracker {
	if opts.ClumpThreshold <= 0 {
		opts.ClumpThreshold = DefaultOptions().ClumpThreshold
	}
	limit := rate.Inf
	if opts.LoadRate > 0 {
		limit = rate.Limit(opts.LoadRate)
	}
	if opts.LoadBurst <= 0 {
		opts.LoadBurst = 1
	}
	t := &Tracker{
		src:     src,
		log:     log.Named("visibility"),
		opts:    opts,
		limiter: rate.NewLimiter(limit, opts.LoadBurst),
		players: make(map[uint64]*player),
		cells:   make(map[world.CellPos]*cellWatch),
		columns: make(map[world.ColumnPos]*columnWatch),
		dirty:   make(map[world.CellPos]*cellWatch),
	}
	event.Subscribe(bus, t.onCellLoaded)
	event.Subscribe(bus, t.onCellGenerated)
	event.Subscribe(bus, t.onCellUnloaded)
	event.Subscribe(bus, t.onColumnLoaded)
	event.Subscribe(bus, t.onColumnGenerated)
	event.Subscribe(bus, t.onColumnUnloaded)
	return t
}

// AddPlayer subscribes obs to everything within the given view distances
// of pos.
func (t *Tracker) AddPlayer(obs Observer, pos world.CellPos, radiusXZ, radiusY int) {
	id := obs.ID()
	if _, ok := t.players[id]; ok {
		t.RemovePlayer(id)
	}
	p := &player{
		obs:      obs,
		managed:  pos,
		live:     pos,
		radiusXZ: max(radiusXZ, 0),
		radiusY:  max(radiusY, 0),
		cells:    make(map[world.CellPos]struct{}),
		columns:  make(map[world.ColumnPos]struct{}),
	}
	t.players[id] = p
	box := p.box()
	box.ForAllColumns(func(c world.ColumnPos) { t.subscribeColumn(p, c) })
	box.ForAll(func(c world.CellPos) { t.subscribeCell(p, c) })
	t.log.Debug("player added", zap.Uint64("observer", id), zap.Stringer("pos", pos))
}

// RemovePlayer drops every subscription of the observer without sending
// unload notices.
func (t *Tracker) RemovePlayer(id uint64) {
	p := t.players[id]
	if p == nil {
		return
	}
	for pos := range p.cells {
		t.unsubscribeCell(p, pos, false)
	}
	for pos := range p.columns {
		t.unsubscribeColumn(p, pos, false)
	}
	delete(t.players, id)
}

// SetPosition records an observer's live position. Subscriptions follow
// at the next Update.
func (t *Tracker) SetPosition(id uint64, pos world.CellPos) {
	if p := t.players[id]; p != nil {
		p.live = pos
	}
}

// Update moves every observer whose live position left its managed cell
// and issues queued loads. It reports whether any subscription set
// changed.
func (t *Tracker) Update() bool {
	moved := false
	for id, p := range t.players {
		if p.live != p.managed && t.UpdatePlayer(id, p.live) {
			moved = true
		}
	}
	t.pump()
	return moved
}

// UpdatePlayer recomputes the observer's subscriptions for a new cell
// position. Nothing happens while the observer stays in its managed cell.
func (t *Tracker) UpdatePlayer(id uint64, pos world.CellPos) bool {
	p := t.players[id]
	if p == nil || pos == p.managed {
		return false
	}
	from := p.box()
	p.managed = pos
	p.live = pos
	to := p.box()

	region.Diff(from, to, nil, func(c world.CellPos) { t.unsubscribeCell(p, c, true) })
	region.DiffColumns(from, to, nil, func(c world.ColumnPos) { t.unsubscribeColumn(p, c, true) })
	region.DiffColumns(from, to, func(c world.ColumnPos) { t.subscribeColumn(p, c) }, nil)
	region.Diff(from, to, func(c world.CellPos) { t.subscribeCell(p, c) }, nil)
	return true
}

// SetViewDistance changes an observer's view radii around its managed
// position.
func (t *Tracker) SetViewDistance(id uint64, radiusXZ, radiusY int) {
	p := t.players[id]
	if p == nil {
		return
	}
	radiusXZ, radiusY = max(radiusXZ, 0), max(radiusY, 0)
	if radiusXZ == p.radiusXZ && radiusY == p.radiusY {
		return
	}
	oldXZ, oldY := p.radiusXZ, p.radiusY
	from := p.box()
	p.radiusXZ, p.radiusY = radiusXZ, radiusY

	if radiusXZ <= oldXZ && radiusY <= oldY {
		region.ForAllChangedOnRadiusDecrease(p.managed, oldXZ, oldY, radiusXZ, radiusY,
			func(c world.CellPos) { t.unsubscribeCell(p, c, true) })
		region.ForAllColumnsChangedOnRadiusDecrease(p.managed, oldXZ, radiusXZ,
			func(c world.ColumnPos) { t.unsubscribeColumn(p, c, true) })
		return
	}
	to := p.box()
	region.Diff(from, to, nil, func(c world.CellPos) { t.unsubscribeCell(p, c, true) })
	region.DiffColumns(from, to, func(c world.ColumnPos) { t.subscribeColumn(p, c) },
		func(c world.ColumnPos) { t.unsubscribeColumn(p, c, true) })
	region.Diff(from, to, func(c world.CellPos) { t.subscribeCell(p, c) }, nil)
}

func (t *Tracker) subscribeCell(p *player, pos world.CellPos) {
	w := t.cells[pos]
	if w == nil {
		w = &cellWatch{pos: pos, observers: make(map[uint64]Observer)}
		t.cells[pos] = w
		t.requestLoad(w)
	}
	w.observers[p.obs.ID()] = p.obs
	p.cells[pos] = struct{}{}
	if w.ready() {
		p.obs.SendCellSnapshot(w.cell, t.columnOf(pos))
	}
}

func (t *Tracker) unsubscribeCell(p *player, pos world.CellPos, notify bool) {
	delete(p.cells, pos)
	w := t.cells[pos]
	if w == nil {
		return
	}
	delete(w.observers, p.obs.ID())
	if notify && w.ready() {
		p.obs.SendUnloadCell(pos)
	}
	if len(w.observers) > 0 {
		return
	}
	if w.pending != nil {
		w.pending.Cancel()
	}
	// Watched cells are never swept, so their access time went stale while
	// observed. Count the grace period from the moment the last one leaves.
	t.src.Touch(pos)
	delete(t.cells, pos)
	delete(t.dirty, pos)
}

func (t *Tracker) subscribeColumn(p *player, pos world.ColumnPos) {
	w := t.columns[pos]
	if w == nil {
		w = &columnWatch{pos: pos, observers: make(map[uint64]Observer)}
		w.column, _ = t.src.GetColumn(pos, world.CachedOnly)
		t.columns[pos] = w
	}
	w.observers[p.obs.ID()] = p.obs
	p.columns[pos] = struct{}{}
	if w.column != nil {
		p.obs.SendColumnSnapshot(w.column)
	}
}

func (t *Tracker) unsubscribeColumn(p *player, pos world.ColumnPos, notify bool) {
	delete(p.columns, pos)
	w := t.columns[pos]
	if w == nil {
		return
	}
	delete(w.observers, p.obs.ID())
	if notify && w.column != nil {
		p.obs.SendUnloadColumn(pos)
	}
	if len(w.observers) == 0 {
		delete(t.columns, pos)
	}
}

// requestLoad asks the loader for a watched cell, or queues the request if
// the load rate is exhausted.
func (t *Tracker) requestLoad(w *cellWatch) {
	if !t.limiter.Allow() {
		if !w.queued {
			w.queued = true
			t.queue = append(t.queue, w.pos)
			t.src.Preload(w.pos, world.LevelLit)
		}
		return
	}
	t.issueLoad(w)
}

func (t *Tracker) issueLoad(w *cellWatch) {
	w.queued = false
	c, pending := t.src.LoadCellAsync(w.pos, world.ReachLit)
	if c != nil {
		w.cell = c
		w.pending = nil
		return
	}
	w.pending = pending
}

// pump issues queued loads the limiter now allows and retries loads that
// finished without producing a lit cell.
func (t *Tracker) pump() {
	for _, w := range t.cells {
		if w.pending != nil && w.pending.Done() && !w.ready() {
			if _, err := w.pending.Result(); err != nil {
				t.log.Debug("retrying load", zap.Stringer("pos", w.pos), zap.Error(err))
			}
			w.pending = nil
			if !w.queued {
				w.queued = true
				t.queue = append(t.queue, w.pos)
			}
		}
	}

	n := 0
	for n < len(t.queue) {
		w := t.cells[t.queue[n]]
		if w == nil || !w.queued {
			n++
			continue
		}
		if !t.limiter.Allow() {
			break
		}
		t.issueLoad(w)
		n++
	}
	t.queue = append(t.queue[:0], t.queue[n:]...)
}

// MarkDirty records a changed block in a watched cell.
func (t *Tracker) MarkDirty(pos world.CellPos, addr world.BlockAddr) {
	w := t.cells[pos]
	if w == nil || !w.ready() {
		return
	}
	switch w.state {
	case DirtyFull:
		return
	case DirtyNone:
		w.state = DirtyPartial
		t.dirty[pos] = w
	}
	if w.dirtySet == nil {
		w.dirtySet = make(map[world.BlockAddr]struct{})
	}
	if _, ok := w.dirtySet[addr]; ok {
		return
	}
	w.dirtySet[addr] = struct{}{}
	w.dirty = append(w.dirty, addr)
	if len(w.dirty) > t.opts.ClumpThreshold {
		t.markFull(w)
	}
}

func (t *Tracker) markFull(w *cellWatch) {
	w.state = DirtyFull
	w.dirty = w.dirty[:0]
	clear(w.dirtySet)
	t.dirty[w.pos] = w
}

// Flush sends every dirty watched cell to its observers and clears the
// dirty set.
func (t *Tracker) Flush() int {
	sent := 0
	for pos, w := range t.dirty {
		if !w.ready() {
			continue
		}
		col := t.columnOf(pos)
		switch w.state {
		case DirtyFull:
			for _, obs := range w.observers {
				obs.SendCellSnapshot(w.cell, col)
			}
		case DirtyPartial:
			blocks, heights := t.delta(w, col)
			for _, obs := range w.observers {
				obs.SendCellDelta(pos, blocks, heights)
			}
		}
		w.state = DirtyNone
		w.dirty = w.dirty[:0]
		clear(w.dirtySet)
		sent++
	}
	clear(t.dirty)
	return sent
}

func (t *Tracker) delta(w *cellWatch, col *world.Column) ([]BlockChange, []HeightChange) {
	blocks := make([]BlockChange, 0, len(w.dirty))
	var heights []HeightChange
	seen := make(map[int]struct{}, len(w.dirty))
	for _, a := range w.dirty {
		blocks = append(blocks, BlockChange{Addr: a, Block: w.cell.Block(a), Meta: w.cell.Meta(a)})
		if col == nil {
			continue
		}
		if _, ok := seen[a.Column()]; ok {
			continue
		}
		seen[a.Column()] = struct{}{}
		heights = append(heights, HeightChange{
			LocalX: uint8(a.X()),
			LocalZ: uint8(a.Z()),
			Height: col.Height(a.X(), a.Z()),
		})
	}
	return blocks, heights
}

func (t *Tracker) columnOf(pos world.CellPos) *world.Column {
	if w := t.columns[pos.Column()]; w != nil && w.column != nil {
		return w.column
	}
	col, _ := t.src.GetColumn(pos.Column(), world.CachedOnly)
	return col
}

// ready reports whether the watched cell can be sent.
func (w *cellWatch) ready() bool {
	return w.cell != nil && w.cell.Level() >= world.LevelLit
}

func (t *Tracker) cellArrived(pos world.CellPos, c *world.Cell) {
	w := t.cells[pos]
	if w == nil || c == nil {
		return
	}
	w.cell = c
	if w.ready() {
		w.pending = nil
		t.markFull(w)
	}
}

func (t *Tracker) onCellLoaded(e event.CellLoaded)       { t.cellArrived(e.Pos, e.Cell) }
func (t *Tracker) onCellGenerated(e event.CellGenerated) { t.cellArrived(e.Pos, e.Cell) }

func (t *Tracker) onCellUnloaded(e event.CellUnloaded) {
	w := t.cells[e.Pos]
	if w == nil {
		return
	}
	if w.cell != nil {
		for _, obs := range w.observers {
			obs.SendUnloadCell(e.Pos)
		}
	}
	w.cell = nil
	w.state = DirtyNone
	delete(t.dirty, e.Pos)
	if len(w.observers) > 0 {
		t.log.Warn("watched cell was unloaded", zap.Stringer("pos", e.Pos))
		// Drop our claim on any load still in flight so the new request
		// does not join it as a second waiter.
		if w.pending != nil {
			w.pending.Cancel()
			w.pending = nil
		}
		t.requestLoad(w)
	}
}

func (t *Tracker) columnArrived(pos world.ColumnPos, col *world.Column) {
	w := t.columns[pos]
	if w == nil || col == nil || w.column == col {
		return
	}
	w.column = col
	for _, obs := range w.observers {
		obs.SendColumnSnapshot(col)
	}
}

func (t *Tracker) onColumnLoaded(e event.ColumnLoaded)       { t.columnArrived(e.Pos, e.Column) }
func (t *Tracker) onColumnGenerated(e event.ColumnGenerated) { t.columnArrived(e.Pos, e.Column) }

func (t *Tracker) onColumnUnloaded(e event.ColumnUnloaded) {
	w := t.columns[e.Pos]
	if w == nil || w.column == nil {
		return
	}
	for _, obs := range w.observers {
		obs.SendUnloadColumn(e.Pos)
	}
	w.column = nil
}

// WatchesCell reports whether any observer is subscribed to pos.
func (t *Tracker) WatchesCell(pos world.CellPos) bool {
	_, ok := t.cells[pos]
	return ok
}

// WatchesColumn reports whether any observer is subscribed to pos.
func (t *Tracker) WatchesColumn(pos world.ColumnPos) bool {
	_, ok := t.columns[pos]
	return ok
}

// Dirtiness returns the current dirty state of a watched cell.
func (t *Tracker) Dirtiness(pos world.CellPos) Dirtiness {
	if w := t.cells[pos]; w != nil {
		return w.state
	}
	return DirtyNone
}

// Watches returns the number of watched cells and columns.
func (t *Tracker) Watches() (cells, columns int) {
	return len(t.cells), len(t.columns)
}

// Players returns the number of tracked observers.
func (t *Tracker) Players() int { return len(t.players) }

// QueuedLoads returns the number of load requests waiting on the rate
// limit.
func (t *Tracker) QueuedLoads() int { return len(t.queue) }

// ManagedPosition returns the position an observer's subscriptions were
// last computed for.
func (t *Tracker) ManagedPosition(id uint64) (world.CellPos, bool) {
	p := t.players[id]
	if p == nil {
		return world.CellPos{}, false
	}
	return p.managed, true
}

// ViewDistance returns an observer's radii.
func (t *Tracker) ViewDistance(id uint64) (xz, y int, ok bool) {
	p := t.players[id]
	if p == nil {
		return 0, 0, false
	}
	return p.radiusXZ, p.radiusY, true
}
