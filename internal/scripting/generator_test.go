package scripting

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/l1jgo/cubic/internal/world"
	"go.uber.org/zap"
)

type fakeCtx struct {
	columns map[world.ColumnPos]*world.Column
	cells   map[world.CellPos]*world.Cell
	onCell  func(pos world.CellPos)
}

func newFakeCtx() *fakeCtx {
	return &fakeCtx{
		columns: make(map[world.ColumnPos]*world.Column),
		cells:   make(map[world.CellPos]*world.Cell),
	}
}

func (f *fakeCtx) Cell(pos world.CellPos, _ world.InitLevel) (*world.Cell, bool) {
	if f.onCell != nil {
		f.onCell(pos)
	}
	c, ok := f.cells[pos]
	return c, ok
}

func (f *fakeCtx) Column(pos world.ColumnPos) (*world.Column, bool) {
	c, ok := f.columns[pos]
	return c, ok
}

func (f *fakeCtx) Peek(pos world.CellPos) *world.Cell { return f.cells[pos] }
func (f *fakeCtx) EmitCell(c *world.Cell)             { f.cells[c.Pos()] = c }
func (f *fakeCtx) EmitColumn(c *world.Column)         { f.columns[c.Pos()] = c }

func newScriptGen(t *testing.T, script string) *Generator {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "gen.lua"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(e.Close)
	g, err := NewGenerator(e, "")
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g
}

const floorScript = `
function column_height(x, z) return 0 end
function column_biome(x, z) return 7 end
function generate_cell(cx, cy, cz)
  if cy ~= 0 then return end
  for x = 0, 15 do
    for z = 0, 15 do
      set_block(x, 0, z, 1, 2)
    end
  end
end
`

func TestScriptGeneratesCellAndColumn(t *testing.T) {
	g := newScriptGen(t, floorScript)
	ctx := newFakeCtx()

	col, err := g.GenerateColumn(ctx, world.ColumnPos{X: 1, Z: 1})
	if err != nil {
		t.Fatal(err)
	}
	if col.Height(3, 3) != 0 || col.Biomes[17] != 7 {
		t.Fatalf("height %d biome %d", col.Height(3, 3), col.Biomes[17])
	}
	ctx.columns[col.Pos()] = col

	c, err := g.GenerateCell(ctx, world.CellPos{X: 1, Z: 1})
	if err != nil {
		t.Fatal(err)
	}
	a := world.NewBlockAddr(4, 0, 9)
	if c.Block(a) != 1 || c.Meta(a) != 2 {
		t.Fatalf("block %d meta %d", c.Block(a), c.Meta(a))
	}
	if c.Block(world.NewBlockAddr(4, 1, 9)) != 0 {
		t.Fatal("unexpected block above floor")
	}

	if err := g.Populate(ctx, c); err != nil {
		t.Fatal(err)
	}
	if err := g.Light(ctx, c); err != nil {
		t.Fatal(err)
	}
	if c.Level() != world.LevelLit {
		t.Fatalf("level %v", c.Level())
	}
}

func TestScriptWithoutGenerateCellIsRejected(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "gen.lua"), []byte("function populate() end"), 0o644)
	e, err := NewEngine(dir, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if _, err := NewGenerator(e, ""); err == nil {
		t.Fatal("want error without generate_cell")
	}
}

func TestScriptErrorBecomesGenerationError(t *testing.T) {
	g := newScriptGen(t, `function generate_cell(cx, cy, cz) set_block(16, 0, 0, 1) end`)
	_, err := g.GenerateCell(newFakeCtx(), world.CellPos{})
	if err == nil || !strings.Contains(err.Error(), "generate_cell") {
		t.Fatalf("want wrapped script error, got %v", err)
	}
}

func TestPopulateReadsNeighbours(t *testing.T) {
	g := newScriptGen(t, `
function generate_cell(cx, cy, cz) end
function populate(cx, cy, cz)
  local b = world_block(cx * 16 + 16, 0, 0)
  if b ~= nil then set_block(0, 0, 0, b + 1) end
  if world_block(-1000, 0, 0) == nil then set_block(1, 0, 0, 99) end
end
`)
	ctx := newFakeCtx()
	east := world.NewCell(world.CellPos{X: 1}, world.NewBlockSection())
	east.SetBlock(world.NewBlockAddr(0, 0, 0), 41, 0)
	ctx.cells[east.Pos()] = east

	c, err := g.GenerateCell(ctx, world.CellPos{})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.Populate(ctx, c); err != nil {
		t.Fatal(err)
	}
	if got := c.Block(world.NewBlockAddr(0, 0, 0)); got != 42 {
		t.Fatalf("neighbour read gave %d, want 42", got)
	}
	if got := c.Block(world.NewBlockAddr(1, 0, 0)); got != 99 {
		t.Fatal("missing neighbour did not read as nil")
	}
	if !c.FullyPopulated {
		t.Fatal("populate flags not set")
	}
}

type boom struct{}

func (boom) Error() string { return "boom" }

func TestGoPanicCrossesLuaBoundary(t *testing.T) {
	g := newScriptGen(t, `
function generate_cell(cx, cy, cz) end
function populate(cx, cy, cz) world_block(100, 0, 0) end
`)
	ctx := newFakeCtx()
	ctx.onCell = func(world.CellPos) { panic(boom{}) }
	c, _ := g.GenerateCell(ctx, world.CellPos{})

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.As(err, new(boom)) {
			t.Fatalf("want boom panic, got %v", r)
		}
		if g.cell != nil || g.ctx != nil {
			t.Fatal("stage state not restored")
		}
	}()
	g.Populate(ctx, c)
}

func TestShippedScriptGeneratesSurface(t *testing.T) {
	e, err := NewEngine(filepath.Join("..", "..", "scripts"), zap.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()
	g, err := NewGenerator(e, "")
	if err != nil {
		t.Fatal(err)
	}
	ctx := newFakeCtx()
	col, _ := g.GenerateColumn(ctx, world.ColumnPos{})
	ctx.columns[col.Pos()] = col

	h := col.Height(0, 0)
	pos := world.CellOf(0, h, 0)
	c, err := g.GenerateCell(ctx, pos)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.Block(world.LocalOf(0, h, 0)); got != 2 {
		t.Fatalf("surface block %d, want grass", got)
	}
	if got := c.Block(world.LocalOf(0, h-5, 0)); h-5 >= pos.Y*16 && got != 1 {
		t.Fatalf("deep block %d, want stone", got)
	}
}
