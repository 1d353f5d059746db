// Package loader owns the cell and column tables of one world. It turns
// stored documents or generator output into resident objects, advancing
// cells through their init levels on demand, and hands modified objects
// back to the store when they are unloaded.
//
// All methods must be called from the world goroutine.
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/l1jgo/cubic/internal/core/event"
	"github.com/l1jgo/cubic/internal/store"
	"github.com/l1jgo/cubic/internal/tag"
	"github.com/l1jgo/cubic/internal/world"
	"go.uber.org/zap"
)

// Store is the part of store.Store the loader needs.
type Store interface {
	Read(ctx context.Context, key store.Key) ([]byte, bool, error)
	Write(key store.Key, data []byte)
	ReadAsync(key store.Key, fn func(data []byte, ok bool, err error))
	Preload(key store.Key, level world.InitLevel)
	Defer(fn func())
}

type Loader struct {
	store    Store
	gen      world.Generator
	bus      *event.Bus
	sections world.SectionFactory
	log      *zap.Logger

	cells   map[world.CellPos]*cellRecord
	columns map[world.ColumnPos]*columnRecord
	pending map[world.CellPos]*PendingLoad

	now uint64

	paused int
	queued []func()

	win *window
}

func New(st Store, gen world.Generator, bus *event.Bus, log *zap.Logger) *Loader {
	return &Loader{
		store:    st,
		gen:      gen,
		bus:      bus,
		sections: world.DecodeBlockSection,
		log:      log.Named("loader"),
		cells:    make(map[world.CellPos]*cellRecord),
		columns:  make(map[world.ColumnPos]*columnRecord),
		pending:  make(map[world.CellPos]*PendingLoad),
	}
}

// SetSectionFactory replaces the decoder used for stored section payloads.
func (l *Loader) SetSectionFactory(f world.SectionFactory) {
	l.sections = f
}

// Advance moves the loader's logical clock forward by one tick.
func (l *Loader) Advance() { l.now++ }

// Now returns the logical clock.
func (l *Loader) Now() uint64 { return l.now }

// Touch marks the cell at pos as used at the current tick, restarting its
// eviction grace period. Unknown positions are ignored.
func (l *Loader) Touch(pos world.CellPos) {
	if rec := l.cells[pos]; rec != nil {
		rec.lastAccess = l.now
	}
}

// GetColumn returns the column at pos, doing at most the work effort
// allows. A nil column with a nil error means the column is not available
// at that effort.
func (l *Loader) GetColumn(pos world.ColumnPos, effort world.Effort) (*world.Column, error) {
	rec := l.columns[pos]
	if rec != nil && rec.column != nil {
		rec.lastAccess = l.now
		return rec.column, nil
	}
	if effort == world.CachedOnly {
		return nil, nil
	}
	if rec != nil && rec.generating {
		panic(&ReentrantGenerationError{Key: store.ColumnKey(pos)})
	}
	if rec == nil {
		rec = &columnRecord{pos: pos, cells: make(map[world.CellPos]struct{})}
		l.columns[pos] = rec
	}

	if !rec.fetched {
		if err := l.fetchColumn(rec, effort == world.TagOnly); err != nil {
			return nil, err
		}
	}
	if effort == world.TagOnly {
		return nil, nil
	}

	if rec.tag != nil {
		col, err := tag.DecodeColumn(rec.tag, pos)
		rec.tag = nil
		if err != nil {
			l.log.Warn("discarding corrupt column",
				zap.Stringer("pos", pos), zap.Error(fmt.Errorf("%w: %w", ErrCorruptData, err)))
		} else {
			rec.column = col
			rec.prov = ProvenanceDisk
			rec.lastAccess = l.now
			l.notify(func() { event.Emit(l.bus, event.ColumnLoaded{Pos: pos, Column: col}) })
			return col, nil
		}
	}
	if effort < world.ReachGenerated {
		return nil, nil
	}

	rec.generating = true
	col, err := l.gen.GenerateColumn(genCtx{l}, pos)
	rec.generating = false
	if rec.column != nil {
		// A nested stage produced it as a side effect.
		rec.lastAccess = l.now
		return rec.column, nil
	}
	if err != nil || col == nil {
		return nil, fmt.Errorf("%w: column %v: %v", ErrGenerationFailure, pos, errOrNil(err))
	}
	rec.column = col
	rec.prov = ProvenanceGenerated
	rec.lastAccess = l.now
	l.notify(func() { event.Emit(l.bus, event.ColumnGenerated{Pos: pos, Column: col}) })
	return col, nil
}

// GetCell returns the cell at pos, doing at most the work effort allows.
// On success the cell's init level is at least effort.Level(). A nil cell
// with a nil error means the cell is not available at that effort.
func (l *Loader) GetCell(pos world.CellPos, effort world.Effort) (*world.Cell, error) {
	want := effort.Level()
	rec := l.cells[pos]
	if rec != nil && rec.cell != nil && rec.cell.Level() >= want {
		rec.lastAccess = l.now
		return rec.cell, nil
	}
	if effort == world.CachedOnly {
		return nil, nil
	}
	if rec != nil && rec.generating {
		panic(&ReentrantGenerationError{Key: store.CellKey(pos)})
	}

	if effort >= world.Materialize {
		if _, err := l.GetColumn(pos.Column(), world.ReachGenerated); err != nil {
			return nil, err
		}
	}

	if rec == nil {
		rec = &cellRecord{pos: pos}
		l.cells[pos] = rec
	}

	if rec.cell == nil {
		if !rec.fetched {
			if err := l.fetchCell(rec, effort == world.TagOnly); err != nil {
				return nil, err
			}
		}
		if effort == world.TagOnly {
			return nil, nil
		}
		if rec.tag != nil {
			l.materialize(rec)
		}
	}

	if rec.cell == nil {
		if effort < world.ReachGenerated {
			return nil, nil
		}
		if err := l.generate(rec); err != nil {
			return nil, err
		}
	}

	if err := l.advance(rec, want); err != nil {
		return nil, err
	}
	rec.lastAccess = l.now
	return rec.cell, nil
}

// HasTag reports whether a stored document was fetched for pos and is
// waiting to be materialised.
func (l *Loader) HasTag(pos world.CellPos) bool {
	rec := l.cells[pos]
	return rec != nil && rec.tag != nil
}

func (l *Loader) fetchColumn(rec *columnRecord, propagate bool) error {
	data, ok, err := l.store.Read(context.Background(), store.ColumnKey(rec.pos))
	if err != nil {
		err = fmt.Errorf("%w: column %v: %w", ErrReadFailure, rec.pos, err)
		if propagate {
			return err
		}
		l.log.Warn("column read failed, treating as absent", zap.Error(err))
	}
	rec.fetched = true
	if ok {
		rec.tag = data
	}
	return nil
}

func (l *Loader) fetchCell(rec *cellRecord, propagate bool) error {
	data, ok, err := l.store.Read(context.Background(), store.CellKey(rec.pos))
	l.acceptCellTag(rec, data, ok, err)
	if err != nil && propagate {
		rec.fetched = false
		return fmt.Errorf("%w: cell %v: %w", ErrReadFailure, rec.pos, err)
	}
	return nil
}

func (l *Loader) acceptCellTag(rec *cellRecord, data []byte, ok bool, err error) {
	rec.fetched = true
	if err != nil {
		l.log.Warn("cell read failed, treating as absent",
			zap.Stringer("pos", rec.pos), zap.Error(fmt.Errorf("%w: %w", ErrReadFailure, err)))
		return
	}
	if ok {
		rec.tag = data
	}
}

func (l *Loader) materialize(rec *cellRecord) {
	c, err := tag.DecodeCell(rec.tag, rec.pos, l.sections, l.gen.LightEngine())
	rec.tag = nil
	if err != nil {
		l.log.Warn("discarding corrupt cell",
			zap.Stringer("pos", rec.pos), zap.Error(fmt.Errorf("%w: %w", ErrCorruptData, err)))
		return
	}
	l.adopt(rec, c, ProvenanceDisk)
	pos, level := rec.pos, c.Level()
	l.notify(func() { event.Emit(l.bus, event.CellLoaded{Pos: pos, Cell: c, Level: level}) })
}

func (l *Loader) generate(rec *cellRecord) error {
	rec.generating = true
	c, err := l.gen.GenerateCell(genCtx{l}, rec.pos)
	rec.generating = false
	if rec.cell != nil {
		if c != nil && c != rec.cell {
			l.log.Warn("generated cell already resident from side effect", zap.Stringer("pos", rec.pos))
		}
		return nil
	}
	if err != nil || c == nil {
		return fmt.Errorf("%w: cell %v: %v", ErrGenerationFailure, rec.pos, errOrNil(err))
	}
	c.MarkModified()
	l.adopt(rec, c, ProvenanceGenerated)
	l.notifyGenerated(rec, false)
	return nil
}

// advance runs the populate and light stages until the cell reaches want.
// Nested loads triggered by the stages are batched behind a pause.
func (l *Loader) advance(rec *cellRecord, want world.InitLevel) error {
	c := rec.cell
	if c.Level() >= want {
		return nil
	}

	rec.generating = true
	l.Pause()
	if l.BeginWindow(rec.pos, 1) {
		defer l.EndWindow()
	}
	defer func() {
		l.Unpause()
		rec.generating = false
	}()

	if want >= world.LevelPopulated && c.Level() < world.LevelPopulated {
		if err := l.gen.Populate(genCtx{l}, c); err != nil {
			return fmt.Errorf("%w: populate %v: %w", ErrGenerationFailure, rec.pos, err)
		}
		if c.Level() < world.LevelPopulated {
			return fmt.Errorf("%w: populate %v left cell at %v", ErrGenerationFailure, rec.pos, c.Level())
		}
		c.MarkModified()
		rec.level = c.Level()
		l.notifyGenerated(rec, false)
	}

	if want >= world.LevelLit && c.Level() < world.LevelLit {
		if err := l.gen.Light(genCtx{l}, c); err != nil {
			return fmt.Errorf("%w: light %v: %w", ErrGenerationFailure, rec.pos, err)
		}
		if c.Level() < world.LevelLit {
			return fmt.Errorf("%w: light %v left cell at %v", ErrGenerationFailure, rec.pos, c.Level())
		}
		c.MarkModified()
		rec.level = c.Level()
		l.notifyGenerated(rec, false)
	}
	return nil
}

// adopt makes c the resident object of rec and registers it with its
// column, which must be resident.
func (l *Loader) adopt(rec *cellRecord, c *world.Cell, prov Provenance) {
	col := l.columns[rec.pos.Column()]
	if col == nil || col.column == nil {
		panic(&InvariantViolationError{Msg: fmt.Sprintf("cell %v materialised without resident column", rec.pos)})
	}
	rec.cell = c
	rec.tag = nil
	rec.fetched = true
	rec.prov = prov
	rec.level = c.Level()
	rec.lastAccess = l.now
	col.cells[rec.pos] = struct{}{}
}

func (l *Loader) notifyGenerated(rec *cellRecord, sideEffect bool) {
	pos, c, level := rec.pos, rec.cell, rec.cell.Level()
	l.notify(func() {
		event.Emit(l.bus, event.CellGenerated{Pos: pos, Cell: c, Level: level, SideEffect: sideEffect})
	})
}

// emitCell registers a cell produced as a side effect of another
// coordinate's generation.
func (l *Loader) emitCell(c *world.Cell) {
	pos := c.Pos()
	rec := l.cells[pos]
	if rec != nil && rec.cell != nil {
		l.log.Warn("side effect would overwrite resident cell", zap.Stringer("pos", pos))
		return
	}
	if rec == nil {
		rec = &cellRecord{pos: pos}
		l.cells[pos] = rec
	}
	if !rec.fetched {
		l.fetchCell(rec, false)
	}
	if rec.tag != nil {
		l.log.Warn("side effect would overwrite stored cell", zap.Stringer("pos", pos))
		return
	}
	if _, err := l.GetColumn(pos.Column(), world.ReachGenerated); err != nil {
		l.log.Warn("dropping side effect cell without column", zap.Stringer("pos", pos), zap.Error(err))
		return
	}
	c.MarkModified()
	l.adopt(rec, c, ProvenanceSideEffect)
	l.notifyGenerated(rec, true)
}

func (l *Loader) emitColumn(col *world.Column) {
	pos := col.Pos()
	rec := l.columns[pos]
	if rec != nil && rec.column != nil {
		l.log.Warn("side effect would overwrite resident column", zap.Stringer("pos", pos))
		return
	}
	if rec == nil {
		rec = &columnRecord{pos: pos, cells: make(map[world.CellPos]struct{})}
		l.columns[pos] = rec
	}
	if !rec.fetched {
		l.fetchColumn(rec, false)
	}
	if rec.tag != nil {
		l.log.Warn("side effect would overwrite stored column", zap.Stringer("pos", pos))
		return
	}
	col.MarkModified()
	rec.column = col
	rec.fetched = true
	rec.prov = ProvenanceSideEffect
	rec.lastAccess = l.now
	l.notify(func() { event.Emit(l.bus, event.ColumnGenerated{Pos: pos, Column: col, SideEffect: true}) })
}

// UnloadCell drops the cell record at pos, writing the cell first if it
// was modified. It reports whether the owning column has no cells left.
func (l *Loader) UnloadCell(pos world.CellPos) (columnEmpty bool) {
	rec := l.cells[pos]
	if rec == nil {
		return false
	}
	if rec.cell != nil && rec.cell.Modified() {
		l.saveCell(rec)
	}
	delete(l.cells, pos)
	l.forgetWindow(pos)
	if rec.cell != nil {
		l.notify(func() { event.Emit(l.bus, event.CellUnloaded{Pos: pos}) })
	}

	col := l.columns[pos.Column()]
	if col == nil {
		return false
	}
	delete(col.cells, pos)
	return len(col.cells) == 0
}

// UnloadColumn drops the column record at pos, writing the column first if
// it was modified. Panics if any cell is still registered with it.
func (l *Loader) UnloadColumn(pos world.ColumnPos) {
	rec := l.columns[pos]
	if rec == nil {
		return
	}
	if n := len(rec.cells); n > 0 {
		panic(&InvariantViolationError{Msg: fmt.Sprintf("unload column %v with %d resident cells", pos, n)})
	}
	if rec.column != nil && rec.column.Modified() {
		l.saveColumn(rec)
	}
	delete(l.columns, pos)
	if rec.column != nil {
		l.notify(func() { event.Emit(l.bus, event.ColumnUnloaded{Pos: pos}) })
	}
}

// SaveModified writes every modified resident object to the store and
// returns how many were written.
func (l *Loader) SaveModified() int {
	n := 0
	for _, rec := range l.columns {
		if rec.column != nil && rec.column.Modified() {
			l.saveColumn(rec)
			n++
		}
	}
	for _, rec := range l.cells {
		if rec.cell != nil && rec.cell.Modified() && l.saveCell(rec) {
			n++
		}
	}
	return n
}

func (l *Loader) saveCell(rec *cellRecord) bool {
	data, err := tag.EncodeCell(rec.cell)
	if err != nil {
		l.log.Error("encode cell", zap.Stringer("pos", rec.pos), zap.Error(err))
		return false
	}
	l.store.Write(store.CellKey(rec.pos), data)
	rec.cell.MarkSaved()
	return true
}

func (l *Loader) saveColumn(rec *columnRecord) {
	l.store.Write(store.ColumnKey(rec.pos), tag.EncodeColumn(rec.column))
	rec.column.MarkSaved()
}

// Preload asks the store to warm pos ahead of a request.
func (l *Loader) Preload(pos world.CellPos, level world.InitLevel) {
	if rec := l.cells[pos]; rec != nil && (rec.cell != nil || rec.fetched) {
		return
	}
	l.store.Preload(store.CellKey(pos), level)
}

// Pause buffers lifecycle notifications until the matching Unpause.
// Pauses nest.
func (l *Loader) Pause() { l.paused++ }

// Unpause ends a Pause. When the outermost pause ends, buffered
// notifications are emitted in the order they were produced.
func (l *Loader) Unpause() {
	if l.paused == 0 {
		panic(&InvariantViolationError{Msg: "unpause without pause"})
	}
	l.paused--
	if l.paused > 0 {
		return
	}
	queued := l.queued
	l.queued = nil
	for _, emit := range queued {
		emit()
	}
}

// Paused reports whether notifications are currently buffered.
func (l *Loader) Paused() bool { return l.paused > 0 }

func (l *Loader) notify(emit func()) {
	if l.paused > 0 {
		l.queued = append(l.queued, emit)
		return
	}
	emit()
}

// CellState describes the record at pos.
func (l *Loader) CellState(pos world.CellPos) (CellState, bool) {
	rec := l.cells[pos]
	if rec == nil {
		return CellState{}, false
	}
	return l.cellState(rec), true
}

// ColumnState describes the record at pos.
func (l *Loader) ColumnState(pos world.ColumnPos) (ColumnState, bool) {
	rec := l.columns[pos]
	if rec == nil {
		return ColumnState{}, false
	}
	return rec.state(), true
}

// EachCell visits every cell record. fn must not load or unload.
func (l *Loader) EachCell(fn func(world.CellPos, CellState)) {
	for pos, rec := range l.cells {
		fn(pos, l.cellState(rec))
	}
}

// EachColumn visits every column record. fn must not load or unload.
func (l *Loader) EachColumn(fn func(world.ColumnPos, ColumnState)) {
	for pos, rec := range l.columns {
		fn(pos, rec.state())
	}
}

// ColumnCells returns the cells registered with the column at pos.
func (l *Loader) ColumnCells(pos world.ColumnPos) []world.CellPos {
	rec := l.columns[pos]
	if rec == nil {
		return nil
	}
	out := make([]world.CellPos, 0, len(rec.cells))
	for p := range rec.cells {
		out = append(out, p)
	}
	return out
}

// Counts returns the number of cell and column records.
func (l *Loader) Counts() (cells, columns int) {
	return len(l.cells), len(l.columns)
}

func (l *Loader) cellState(r *cellRecord) CellState {
	_, loading := l.pending[r.pos]
	s := CellState{Resident: r.cell != nil, Loading: loading, Provenance: r.prov, LastAccess: r.lastAccess, Level: r.level}
	if r.cell != nil {
		s.Modified = r.cell.Modified()
		s.Level = r.cell.Level()
	}
	return s
}

func (r *columnRecord) state() ColumnState {
	s := ColumnState{Resident: r.column != nil, Provenance: r.prov, Cells: len(r.cells)}
	if r.column != nil {
		s.Modified = r.column.Modified()
	}
	return s
}

func errOrNil(err error) error {
	if err == nil {
		return errors.New("generator returned nothing")
	}
	return err
}
