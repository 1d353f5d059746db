package gen

import (
	"math"
	"sync"

	"github.com/l1jgo/cubic/internal/data"
	"github.com/l1jgo/cubic/internal/world"
)

const heightCacheLimit = 4096

type heightField [world.CellSize * world.CellSize]int32

// Layered builds rolling terrain from a height field. When the surface of a
// cell's footprint rises into the cell above, that cell is produced in the
// same pass and handed to the loader as a side effect.
type Layered struct {
	preset *data.Preset
	t      data.Terrain
	engine string

	mu      sync.Mutex
	heights map[world.ColumnPos]*heightField
}

func NewLayered(preset *data.Preset, lightEngine string) *Layered {
	if lightEngine == "" {
		lightEngine = DefaultLightEngine
	}
	return &Layered{
		preset:  preset,
		t:       preset.Terrain,
		engine:  lightEngine,
		heights: make(map[world.ColumnPos]*heightField),
	}
}

// Height returns the terrain surface at a world position.
func (g *Layered) Height(x, z int32) int32 {
	if g.t.Wavelength == 0 || g.t.Amplitude == 0 {
		return g.t.BaseHeight
	}
	k := 2 * math.Pi / g.t.Wavelength
	v := (math.Sin(float64(x)*k) + math.Cos(float64(z)*k*0.7)) / 2
	return g.t.BaseHeight + int32(math.Round(v*g.t.Amplitude))
}

// Precompute warms the height cache for pos's column. Safe to call from
// store workers.
func (g *Layered) Precompute(pos world.CellPos, _ world.InitLevel) {
	g.field(pos.Column())
}

func (g *Layered) field(pos world.ColumnPos) *heightField {
	g.mu.Lock()
	f, ok := g.heights[pos]
	g.mu.Unlock()
	if ok {
		return f
	}
	f = new(heightField)
	bx, bz := pos.X*world.CellSize, pos.Z*world.CellSize
	for z := 0; z < world.CellSize; z++ {
		for x := 0; x < world.CellSize; x++ {
			f[z<<4|x] = g.Height(bx+int32(x), bz+int32(z))
		}
	}
	g.mu.Lock()
	if len(g.heights) >= heightCacheLimit {
		clear(g.heights)
	}
	g.heights[pos] = f
	g.mu.Unlock()
	return f
}

// blockAt returns the terrain block at world height y over a column whose
// surface is h.
func (g *Layered) blockAt(y, h int32) uint16 {
	t := g.t
	switch {
	case y > h:
		if y <= t.SeaLevel {
			return t.Water
		}
		return 0
	case t.Bedrock != 0 && y == t.BedrockY:
		return t.Bedrock
	case y == h && h >= t.SeaLevel:
		return t.Surface
	case y > h-t.FillerDepth-1:
		return t.Filler
	default:
		return t.Stone
	}
}

func (g *Layered) GenerateColumn(_ world.GenContext, pos world.ColumnPos) (*world.Column, error) {
	col := world.NewColumn(pos)
	f := g.field(pos)
	for i, h := range f {
		col.Heights[i] = g.topOpaque(h)
		col.Biomes[i] = g.preset.Biome
	}
	return col, nil
}

// topOpaque scans down from the surface for the first opaque block.
func (g *Layered) topOpaque(h int32) int32 {
	for y := h; y > h-g.t.FillerDepth-2; y-- {
		if g.preset.Opaque(g.blockAt(y, h)) {
			return y
		}
	}
	return h - g.t.FillerDepth - 1
}

func (g *Layered) build(pos world.CellPos, f *heightField) *world.Cell {
	s := world.NewBlockSection()
	_, y0, _ := pos.MinBlock()
	for z := 0; z < world.CellSize; z++ {
		for x := 0; x < world.CellSize; x++ {
			h := f[z<<4|x]
			for y := 0; y < world.CellSize; y++ {
				if id := g.blockAt(y0+int32(y), h); id != 0 {
					s.SetBlock(world.NewBlockAddr(x, y, z), id)
				}
			}
		}
	}
	return world.NewCell(pos, s)
}

func (g *Layered) GenerateCell(ctx world.GenContext, pos world.CellPos) (*world.Cell, error) {
	f := g.field(pos.Column())
	c := g.build(pos, f)

	_, y0, _ := pos.MinBlock()
	top := y0 + world.CellSize - 1
	above := pos.Add(0, 1, 0)
	for _, h := range f {
		if h > top && h <= top+world.CellSize {
			if ctx.Peek(above) == nil {
				ctx.EmitCell(g.build(above, f))
			}
			break
		}
	}
	return c, nil
}

// Populate scatters decoration on top of the surface. Only positions whose
// decoration falls inside this cell are touched. An opaque decoration raises
// the column's height index so sky light starts above it.
func (g *Layered) Populate(ctx world.GenContext, c *world.Cell) error {
	if g.t.Decoration != 0 {
		pos := c.Pos()
		f := g.field(pos.Column())
		opaque := g.preset.Opaque(g.t.Decoration)
		var col *world.Column
		if opaque {
			col, _ = ctx.Column(pos.Column())
		}
		bx, y0, bz := pos.MinBlock()
		for z := 0; z < world.CellSize; z++ {
			for x := 0; x < world.CellSize; x++ {
				h := f[z<<4|x]
				y := h + 1 - y0
				if y < 0 || y >= world.CellSize || h < g.t.SeaLevel {
					continue
				}
				if scatter(bx+int32(x), bz+int32(z))%16 != 0 {
					continue
				}
				a := world.NewBlockAddr(x, int(y), z)
				if c.Block(a) != 0 {
					continue
				}
				c.SetBlock(a, g.t.Decoration, 0)
				if col != nil {
					col.UpdateHeight(x, z, h+1, true, nil)
				}
			}
		}
	}
	markPopulated(c)
	return nil
}

func (g *Layered) Light(ctx world.GenContext, c *world.Cell) error {
	return SkyLight(ctx, c, g.engine)
}

func (g *Layered) LightEngine() string { return g.engine }

func (g *Layered) Opaque(id uint16) bool { return g.preset.Opaque(id) }

// scatter is a stable per-position hash.
func scatter(x, z int32) uint32 {
	h := uint64(uint32(x))<<32 | uint64(uint32(z))
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return uint32(h)
}
