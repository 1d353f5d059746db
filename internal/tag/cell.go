package tag

import (
	"fmt"

	"github.com/l1jgo/cubic/internal/world"
)

const (
	flagPopulated byte = 1 << iota
	flagFullyPopulated
	flagSurfaceTracked
	flagInitialLightingDone
)

// EncodeCell serialises a cell. The section payload is written verbatim.
func EncodeCell(c *world.Cell) ([]byte, error) {
	section, err := c.Section.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal section %v: %w", c.Pos(), err)
	}
	w := newWriter(kindCell, cellVersion)
	pos := c.Pos()
	w.writeD(pos.X)
	w.writeD(pos.Y)
	w.writeD(pos.Z)

	var flags byte
	if c.Populated {
		flags |= flagPopulated
	}
	if c.FullyPopulated {
		flags |= flagFullyPopulated
	}
	if c.SurfaceTracked {
		flags |= flagSurfaceTracked
	}
	if c.InitialLightingDone {
		flags |= flagInitialLightingDone
	}
	w.writeC(flags)
	w.writeBytes(section)

	w.writeD(int32(len(c.Entities)))
	for _, e := range c.Entities {
		w.writeBytes(e)
	}
	w.writeD(int32(len(c.TileEntities)))
	for _, e := range c.TileEntities {
		w.writeBytes(e)
	}
	w.writeD(int32(len(c.Ticks)))
	for _, t := range c.Ticks {
		w.writeD(int32(t.Addr))
		w.writeD(int32(t.Block))
		w.writeD(t.Delay)
		w.writeD(t.Priority)
	}
	w.writeS(c.LightEngine)
	w.writeBytes(c.LightState)
	return w.seal(), nil
}

// DecodeCell parses a cell document stored under want. If the stored light
// engine differs from lightEngine, lighting is reset and must be redone.
func DecodeCell(data []byte, want world.CellPos, sections world.SectionFactory, lightEngine string) (*world.Cell, error) {
	r, version, err := open(data, kindCell)
	if err != nil {
		return nil, err
	}
	if version != cellVersion {
		return nil, fmt.Errorf("%w: cell v%d", ErrVersion, version)
	}
	pos := world.CellPos{X: r.readD(), Y: r.readD(), Z: r.readD()}
	if r.err == nil && pos != want {
		return nil, fmt.Errorf("%w: stored %v requested %v", ErrMismatch, pos, want)
	}
	flags := r.readC()
	payload := r.readBytes()
	if r.err != nil {
		return nil, r.err
	}
	section, err := sections(payload)
	if err != nil {
		return nil, fmt.Errorf("decode section %v: %w", pos, err)
	}

	c := world.NewCell(pos, section)
	c.Populated = flags&flagPopulated != 0
	c.FullyPopulated = flags&flagFullyPopulated != 0
	c.SurfaceTracked = flags&flagSurfaceTracked != 0
	c.InitialLightingDone = flags&flagInitialLightingDone != 0

	if n := r.readCount(4); n > 0 {
		c.Entities = make([][]byte, n)
		for i := range c.Entities {
			c.Entities[i] = r.readBytes()
		}
	}
	if n := r.readCount(4); n > 0 {
		c.TileEntities = make([][]byte, n)
		for i := range c.TileEntities {
			c.TileEntities[i] = r.readBytes()
		}
	}
	if n := r.readCount(16); n > 0 {
		c.Ticks = make([]world.ScheduledTick, n)
		for i := range c.Ticks {
			c.Ticks[i] = world.ScheduledTick{
				Addr:     world.BlockAddr(r.readD()),
				Block:    uint16(r.readD()),
				Delay:    r.readD(),
				Priority: r.readD(),
			}
		}
	}
	c.LightEngine = r.readS()
	c.LightState = r.readBytes()
	if r.err != nil {
		return nil, r.err
	}
	c.MarkSaved()
	if c.LightEngine != lightEngine {
		c.ResetLighting(lightEngine)
		c.MarkModified()
	}
	return c, nil
}
