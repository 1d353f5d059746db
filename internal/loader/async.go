package loader

import (
	"github.com/l1jgo/cubic/internal/store"
	"github.com/l1jgo/cubic/internal/world"
	"go.uber.org/zap"
)

// PendingLoad is a background load shared by every caller that asked for
// the same cell before it finished. Its stored documents are read on store
// workers; materialisation and generation happen on the world goroutine
// when the store's completions are drained.
type PendingLoad struct {
	l      *Loader
	pos    world.CellPos
	effort world.Effort

	waiters     int
	outstanding int
	cancelled   bool
	done        bool

	cell *world.Cell
	err  error
}

// LoadCellAsync returns the cell at pos if it is already resident at the
// level effort needs. Otherwise it starts, or joins, a background load and
// returns its handle. Completion is announced through the usual lifecycle
// events.
func (l *Loader) LoadCellAsync(pos world.CellPos, effort world.Effort) (*world.Cell, *PendingLoad) {
	if rec := l.cells[pos]; rec != nil && rec.cell != nil && rec.cell.Level() >= effort.Level() {
		rec.lastAccess = l.now
		return rec.cell, nil
	}
	if p := l.pending[pos]; p != nil {
		p.waiters++
		if effort > p.effort {
			p.effort = effort
		}
		return nil, p
	}

	p := &PendingLoad{l: l, pos: pos, effort: effort, waiters: 1}
	l.pending[pos] = p

	colPos := pos.Column()
	if col := l.columns[colPos]; col == nil || (col.column == nil && !col.fetched) {
		p.outstanding++
		l.store.ReadAsync(store.ColumnKey(colPos), p.columnRead)
	}
	if rec := l.cells[pos]; rec == nil || (rec.cell == nil && !rec.fetched) {
		p.outstanding++
		l.store.ReadAsync(store.CellKey(pos), p.cellRead)
	}
	if p.outstanding == 0 {
		p.outstanding = 1
		l.store.Defer(p.step)
	}
	return nil, p
}

// Loading reports whether a background load for pos is in flight.
func (l *Loader) Loading(pos world.CellPos) bool {
	_, ok := l.pending[pos]
	return ok
}

func (p *PendingLoad) columnRead(data []byte, ok bool, err error) {
	if !p.cancelled {
		l := p.l
		colPos := p.pos.Column()
		rec := l.columns[colPos]
		if rec == nil {
			rec = &columnRecord{pos: colPos, cells: make(map[world.CellPos]struct{})}
			l.columns[colPos] = rec
		}
		if rec.column == nil && !rec.fetched {
			rec.fetched = true
			if err != nil {
				l.log.Warn("column read failed, treating as absent", zap.Stringer("pos", colPos), zap.Error(err))
			} else if ok {
				rec.tag = data
			}
		}
	}
	p.step()
}

func (p *PendingLoad) cellRead(data []byte, ok bool, err error) {
	if !p.cancelled {
		l := p.l
		rec := l.cells[p.pos]
		if rec == nil {
			rec = &cellRecord{pos: p.pos}
			l.cells[p.pos] = rec
		}
		if rec.cell == nil && !rec.fetched {
			l.acceptCellTag(rec, data, ok, err)
		}
	}
	p.step()
}

// step finishes the load once every outstanding read has completed.
func (p *PendingLoad) step() {
	p.outstanding--
	if p.outstanding > 0 {
		return
	}
	if p.cancelled {
		p.done = true
		return
	}
	l := p.l
	if l.pending[p.pos] == p {
		delete(l.pending, p.pos)
	}
	p.cell, p.err = l.GetCell(p.pos, p.effort)
	p.done = true
	if p.err != nil {
		l.log.Warn("background load failed", zap.Stringer("pos", p.pos), zap.Error(p.err))
	}
}

// Cancel withdraws one waiter. When the last waiter leaves before the load
// completes, the load is cancelled and its result is discarded.
func (p *PendingLoad) Cancel() {
	if p.done || p.cancelled {
		return
	}
	p.waiters--
	if p.waiters > 0 {
		return
	}
	p.cancelled = true
	if p.l.pending[p.pos] == p {
		delete(p.l.pending, p.pos)
	}
}

func (p *PendingLoad) Pos() world.CellPos { return p.pos }

func (p *PendingLoad) Done() bool { return p.done }

func (p *PendingLoad) Cancelled() bool { return p.cancelled }

func (p *PendingLoad) Waiters() int { return p.waiters }

// Result returns the loaded cell once Done reports true.
func (p *PendingLoad) Result() (*world.Cell, error) { return p.cell, p.err }
