package loader

import (
	"errors"

	"github.com/l1jgo/cubic/internal/world"
	"go.uber.org/zap"
)

// genCtx is the world.GenContext handed to generator stages.
type genCtx struct {
	l *Loader
}

var _ world.GenContext = genCtx{}

func (g genCtx) Cell(pos world.CellPos, level world.InitLevel) (*world.Cell, bool) {
	if c := g.l.windowCell(pos, level); c != nil {
		return c, true
	}
	c, err := g.l.GetCell(pos, world.EffortFor(level))
	if err != nil {
		if !errors.Is(err, ErrGenerationFailure) {
			g.l.log.Debug("neighbour unavailable", zap.Stringer("pos", pos), zap.Error(err))
		}
		return nil, false
	}
	if c == nil {
		return nil, false
	}
	g.l.rememberWindow(c)
	return c, true
}

func (g genCtx) Column(pos world.ColumnPos) (*world.Column, bool) {
	col, err := g.l.GetColumn(pos, world.ReachGenerated)
	if err != nil || col == nil {
		return nil, false
	}
	return col, true
}

func (g genCtx) Peek(pos world.CellPos) *world.Cell {
	c, _ := g.l.GetCell(pos, world.CachedOnly)
	return c
}

func (g genCtx) EmitCell(c *world.Cell) { g.l.emitCell(c) }

func (g genCtx) EmitColumn(c *world.Column) { g.l.emitColumn(c) }
