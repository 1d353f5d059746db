// Package gc evicts cells and columns nothing needs any more. A sweep
// first decides, then evicts; it never unloads while iterating the
// loader's tables.
package gc

import (
	"github.com/l1jgo/cubic/internal/loader"
	"github.com/l1jgo/cubic/internal/world"
	"go.uber.org/zap"
)

// Tables is the loader surface the collector reads and evicts through.
type Tables interface {
	EachCell(fn func(world.CellPos, loader.CellState))
	EachColumn(fn func(world.ColumnPos, loader.ColumnState))
	UnloadCell(pos world.CellPos) (columnEmpty bool)
	UnloadColumn(pos world.ColumnPos)
	Now() uint64
}

// Watcher reports live subscriptions.
type Watcher interface {
	WatchesCell(pos world.CellPos) bool
	WatchesColumn(pos world.ColumnPos) bool
}

// PersistenceMarker lets an external system keep whole columns resident.
type PersistenceMarker interface {
	Claims(pos world.ColumnPos) bool
}

type Options struct {
	// GraceTicks keeps recently accessed cells resident.
	GraceTicks uint64
}

// SweepStats summarises one sweep.
type SweepStats struct {
	Cells   int
	Columns int
}

type Collector struct {
	tables  Tables
	watch   Watcher
	opts    Options
	log     *zap.Logger
	markers []PersistenceMarker

	cellPins   *Tickets[world.CellPos]
	columnPins *Tickets[world.ColumnPos]
}

func New(tables Tables, watch Watcher, opts Options, log *zap.Logger) *Collector {
	return &Collector{
		tables:     tables,
		watch:      watch,
		opts:       opts,
		log:        log.Named("gc"),
		cellPins:   NewTickets[world.CellPos](),
		columnPins: NewTickets[world.ColumnPos](),
	}
}

// CellTickets returns the pins that keep cells resident.
func (c *Collector) CellTickets() *Tickets[world.CellPos] { return c.cellPins }

// ColumnTickets returns the pins that keep columns resident.
func (c *Collector) ColumnTickets() *Tickets[world.ColumnPos] { return c.columnPins }

// AddMarker registers an external persistence marker.
func (c *Collector) AddMarker(m PersistenceMarker) {
	c.markers = append(c.markers, m)
}

func (c *Collector) claimed(pos world.ColumnPos) bool {
	for _, m := range c.markers {
		if m.Claims(pos) {
			return true
		}
	}
	return false
}

// Sweep evicts every cell that is unpinned, unclaimed, unwatched and idle
// past the grace window, then every column left without cells, pins,
// claims or watchers. Modified objects are written by the loader before
// they are dropped.
func (c *Collector) Sweep() SweepStats {
	now := c.tables.Now()

	var cells []world.CellPos
	c.tables.EachCell(func(pos world.CellPos, st loader.CellState) {
		switch {
		case st.Loading:
		case c.cellPins.Pinned(pos):
		case c.claimed(pos.Column()):
		case c.watch.WatchesCell(pos):
		case st.LastAccess+c.opts.GraceTicks > now:
		default:
			cells = append(cells, pos)
		}
	})
	emptied := 0
	for _, pos := range cells {
		if c.tables.UnloadCell(pos) {
			emptied++
		}
	}

	// Columns emptied above are considered in the same sweep.
	var columns []world.ColumnPos
	c.tables.EachColumn(func(pos world.ColumnPos, st loader.ColumnState) {
		switch {
		case st.Cells > 0:
		case c.columnPins.Pinned(pos):
		case c.claimed(pos):
		case c.watch.WatchesColumn(pos):
		default:
			columns = append(columns, pos)
		}
	})
	for _, pos := range columns {
		c.tables.UnloadColumn(pos)
	}

	stats := SweepStats{Cells: len(cells), Columns: len(columns)}
	if stats.Cells > 0 || stats.Columns > 0 {
		c.log.Debug("sweep",
			zap.Int("cells", stats.Cells),
			zap.Int("columns", stats.Columns),
			zap.Int("emptied", emptied))
	}
	return stats
}
