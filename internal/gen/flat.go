package gen

import (
	"github.com/l1jgo/cubic/internal/data"
	"github.com/l1jgo/cubic/internal/world"
)

// Flat fills every column with the preset's horizontal layers. It never
// touches neighbours and never produces side effects.
type Flat struct {
	preset *data.Preset
	engine string
	top    int32
}

func NewFlat(preset *data.Preset, lightEngine string) *Flat {
	if lightEngine == "" {
		lightEngine = DefaultLightEngine
	}
	top, ok := preset.TopOpaque()
	if !ok {
		top = world.NoHeight
	}
	return &Flat{preset: preset, engine: lightEngine, top: top}
}

func (g *Flat) GenerateColumn(_ world.GenContext, pos world.ColumnPos) (*world.Column, error) {
	col := world.NewColumn(pos)
	for i := range col.Heights {
		col.Heights[i] = g.top
		col.Biomes[i] = g.preset.Biome
	}
	return col, nil
}

func (g *Flat) GenerateCell(_ world.GenContext, pos world.CellPos) (*world.Cell, error) {
	s := world.NewBlockSection()
	_, y0, _ := pos.MinBlock()
	for y := 0; y < world.CellSize; y++ {
		id, meta := g.preset.BlockAt(y0 + int32(y))
		if id == 0 {
			continue
		}
		for x := 0; x < world.CellSize; x++ {
			for z := 0; z < world.CellSize; z++ {
				a := world.NewBlockAddr(x, y, z)
				s.SetBlock(a, id)
				s.SetMeta(a, meta)
			}
		}
	}
	return world.NewCell(pos, s), nil
}

func (g *Flat) Populate(_ world.GenContext, c *world.Cell) error {
	markPopulated(c)
	return nil
}

func (g *Flat) Light(ctx world.GenContext, c *world.Cell) error {
	return SkyLight(ctx, c, g.engine)
}

func (g *Flat) LightEngine() string { return g.engine }

// Opaque reports whether a block stops sky light.
func (g *Flat) Opaque(id uint16) bool { return g.preset.Opaque(id) }
