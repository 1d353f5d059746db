package loader

import "github.com/l1jgo/cubic/internal/world"

// window is a dense cache of cells around an origin, used while a populate
// pass repeatedly looks up the same neighbours. Slots fill lazily.
type window struct {
	origin world.CellPos
	radius int32
	side   int32
	cells  []*world.Cell

	hits, misses int
}

func (w *window) index(pos world.CellPos) (int, bool) {
	dx := pos.X - w.origin.X + w.radius
	dy := pos.Y - w.origin.Y + w.radius
	dz := pos.Z - w.origin.Z + w.radius
	if dx < 0 || dy < 0 || dz < 0 || dx >= w.side || dy >= w.side || dz >= w.side {
		return 0, false
	}
	return int((dy*w.side+dz)*w.side + dx), true
}

// BeginWindow activates a cache window of the given radius around origin.
// It returns false, leaving the current window in place, if one is already
// active.
func (l *Loader) BeginWindow(origin world.CellPos, radius int) bool {
	if l.win != nil {
		return false
	}
	if radius < 0 {
		radius = 0
	}
	side := int32(2*radius + 1)
	l.win = &window{
		origin: origin,
		radius: int32(radius),
		side:   side,
		cells:  make([]*world.Cell, side*side*side),
	}
	return true
}

// EndWindow clears the active cache window.
func (l *Loader) EndWindow() {
	l.win = nil
}

// WindowStats reports hits and misses of the active window.
func (l *Loader) WindowStats() (hits, misses int) {
	if l.win == nil {
		return 0, 0
	}
	return l.win.hits, l.win.misses
}

func (l *Loader) windowCell(pos world.CellPos, level world.InitLevel) *world.Cell {
	if l.win == nil {
		return nil
	}
	i, ok := l.win.index(pos)
	if !ok {
		return nil
	}
	if c := l.win.cells[i]; c != nil && c.Level() >= level {
		l.win.hits++
		return c
	}
	l.win.misses++
	return nil
}

func (l *Loader) rememberWindow(c *world.Cell) {
	if l.win == nil {
		return
	}
	if i, ok := l.win.index(c.Pos()); ok {
		l.win.cells[i] = c
	}
}

func (l *Loader) forgetWindow(pos world.CellPos) {
	if l.win == nil {
		return
	}
	if i, ok := l.win.index(pos); ok {
		l.win.cells[i] = nil
	}
}
