package gen

import (
	"fmt"

	"github.com/l1jgo/cubic/internal/world"
)

// DefaultLightEngine names the column-height sky light pass below.
const DefaultLightEngine = "skylight-v1"

const fullSky = 15

// SkyLight fills sky light from the column height index: full light above
// the highest opaque block, darkness at and below it. Block light is left
// at zero. Sections other than BlockSection only get their flags set.
func SkyLight(ctx world.GenContext, c *world.Cell, engine string) error {
	col, ok := ctx.Column(c.Pos().Column())
	if !ok {
		return fmt.Errorf("column %v not available", c.Pos().Column())
	}
	if s, ok := c.Section.(*world.BlockSection); ok {
		_, y0, _ := c.Pos().MinBlock()
		for x := 0; x < world.CellSize; x++ {
			for z := 0; z < world.CellSize; z++ {
				h := col.Height(x, z)
				for y := 0; y < world.CellSize; y++ {
					var v uint8
					if y0+int32(y) > h {
						v = fullSky
					}
					s.SetSkyLight(world.NewBlockAddr(x, y, z), v)
				}
			}
		}
	}
	c.InitialLightingDone = true
	c.LightEngine = engine
	c.LightState = nil
	return nil
}

// markPopulated sets the populate flags for generators whose populate pass
// never writes outside the cell.
func markPopulated(c *world.Cell) {
	c.Populated = true
	c.FullyPopulated = true
}
