package scripting

import (
	"fmt"
	"math"

	"github.com/l1jgo/cubic/internal/gen"
	"github.com/l1jgo/cubic/internal/world"
	lua "github.com/yuin/gopher-lua"
)

// Generator runs the world generator stages through Lua functions:
//
//	column_height(x, z)      optional, highest opaque world y or nil
//	column_biome(x, z)       optional
//	generate_cell(cx, cy, cz)
//	populate(cx, cy, cz)     optional
//	light(cx, cy, cz)        optional, runs after the default sky light
//
// While a stage runs, scripts may call set_block(lx, ly, lz, id[, meta]),
// get_block(lx, ly, lz), set_sky_light(lx, ly, lz, level) on the current
// cell and world_block(x, y, z) to read neighbouring generated terrain.
type Generator struct {
	e      *Engine
	engine string

	ctx  world.GenContext
	cell *world.Cell

	// fault carries a Go panic across the Lua boundary so it is not turned
	// into an ordinary script error.
	fault any
}

func NewGenerator(e *Engine, lightEngine string) (*Generator, error) {
	if !e.Has("generate_cell") {
		return nil, fmt.Errorf("lua function generate_cell not defined")
	}
	if lightEngine == "" {
		lightEngine = gen.DefaultLightEngine
	}
	g := &Generator{e: e, engine: lightEngine}
	vm := e.vm
	vm.SetGlobal("set_block", vm.NewFunction(g.luaSetBlock))
	vm.SetGlobal("get_block", vm.NewFunction(g.luaGetBlock))
	vm.SetGlobal("set_sky_light", vm.NewFunction(g.luaSetSkyLight))
	vm.SetGlobal("world_block", vm.NewFunction(g.luaWorldBlock))
	return g, nil
}

func (g *Generator) GenerateColumn(_ world.GenContext, pos world.ColumnPos) (*world.Column, error) {
	col := world.NewColumn(pos)
	heights, biomes := g.e.Has("column_height"), g.e.Has("column_biome")
	bx, bz := int(pos.X)*world.CellSize, int(pos.Z)*world.CellSize
	for z := 0; z < world.CellSize; z++ {
		for x := 0; x < world.CellSize; x++ {
			i := z<<4 | x
			if heights {
				if h, ok := g.e.callNumber("column_height", bx+x, bz+z); ok {
					col.Heights[i] = int32(math.Floor(h))
				}
			}
			if biomes {
				col.Biomes[i] = byte(g.e.callIntFunc("column_biome", bx+x, bz+z))
			}
		}
	}
	return col, nil
}

func (g *Generator) GenerateCell(ctx world.GenContext, pos world.CellPos) (*world.Cell, error) {
	c := world.NewCell(pos, world.NewBlockSection())
	if err := g.call(ctx, c, "generate_cell"); err != nil {
		return nil, err
	}
	return c, nil
}

func (g *Generator) Populate(ctx world.GenContext, c *world.Cell) error {
	if g.e.Has("populate") {
		if err := g.call(ctx, c, "populate"); err != nil {
			return err
		}
	}
	c.Populated = true
	c.FullyPopulated = true
	return nil
}

func (g *Generator) Light(ctx world.GenContext, c *world.Cell) error {
	if err := gen.SkyLight(ctx, c, g.engine); err != nil {
		return err
	}
	if g.e.Has("light") {
		if err := g.call(ctx, c, "light"); err != nil {
			c.InitialLightingDone = false
			return err
		}
	}
	return nil
}

func (g *Generator) LightEngine() string { return g.engine }

// call runs a stage function with c as the current cell. Stages nest when a
// script reads neighbours that still need generating.
func (g *Generator) call(ctx world.GenContext, c *world.Cell, name string) error {
	prevCtx, prevCell := g.ctx, g.cell
	g.ctx, g.cell = ctx, c
	defer func() { g.ctx, g.cell = prevCtx, prevCell }()

	pos := c.Pos()
	err := g.e.vm.CallByParam(lua.P{
		Fn:      g.e.vm.GetGlobal(name),
		NRet:    0,
		Protect: true,
	}, lua.LNumber(pos.X), lua.LNumber(pos.Y), lua.LNumber(pos.Z))
	if f := g.fault; f != nil {
		g.fault = nil
		panic(f)
	}
	if err != nil {
		return fmt.Errorf("lua %s %v: %w", name, pos, err)
	}
	return nil
}

func (g *Generator) current(L *lua.LState) *world.Cell {
	if g.cell == nil {
		L.RaiseError("called outside a generator stage")
	}
	return g.cell
}

func localAddr(L *lua.LState) world.BlockAddr {
	x, y, z := L.CheckInt(1), L.CheckInt(2), L.CheckInt(3)
	for i, v := range []int{x, y, z} {
		if v < 0 || v >= world.CellSize {
			L.ArgError(i+1, "local coordinate out of range")
		}
	}
	return world.NewBlockAddr(x, y, z)
}

func (g *Generator) luaSetBlock(L *lua.LState) int {
	c := g.current(L)
	a := localAddr(L)
	c.SetBlock(a, uint16(L.CheckInt(4)), uint8(L.OptInt(5, 0)))
	return 0
}

func (g *Generator) luaGetBlock(L *lua.LState) int {
	c := g.current(L)
	L.Push(lua.LNumber(c.Block(localAddr(L))))
	return 1
}

func (g *Generator) luaSetSkyLight(L *lua.LState) int {
	c := g.current(L)
	a := localAddr(L)
	if s, ok := c.Section.(*world.BlockSection); ok {
		s.SetSkyLight(a, uint8(L.CheckInt(4)))
	}
	return 0
}

// luaWorldBlock reads a block anywhere in the world, generating the cell
// that holds it if needed. Returns nil if that cell is unavailable.
func (g *Generator) luaWorldBlock(L *lua.LState) int {
	c := g.current(L)
	x, y, z := int32(L.CheckInt(1)), int32(L.CheckInt(2)), int32(L.CheckInt(3))
	pos := world.CellOf(x, y, z)
	if pos != c.Pos() {
		var ok bool
		func() {
			defer func() {
				if r := recover(); r != nil {
					g.fault = r
				}
			}()
			c, ok = g.ctx.Cell(pos, world.LevelGenerated)
		}()
		if g.fault != nil {
			L.RaiseError("%v", g.fault)
		}
		if !ok || c == nil {
			L.Push(lua.LNil)
			return 1
		}
	}
	L.Push(lua.LNumber(c.Block(world.LocalOf(x, y, z))))
	return 1
}
