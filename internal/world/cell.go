package world

// ScheduledTick is a pending block update stored with its cell.
type ScheduledTick struct {
	Addr     BlockAddr
	Block    uint16
	Delay    int32
	Priority int32
}

// Cell is a materialised cell. Accessed only from the world goroutine.
type Cell struct {
	pos     CellPos
	Section Section

	// Populated is set once this cell's own populate stage ran.
	Populated bool
	// FullyPopulated is set once every populate pass that can write into
	// this cell has run.
	FullyPopulated      bool
	SurfaceTracked      bool
	InitialLightingDone bool

	LightEngine string
	LightState  []byte

	Entities     [][]byte
	TileEntities [][]byte
	Ticks        []ScheduledTick

	modified bool
}

func NewCell(pos CellPos, section Section) *Cell {
	return &Cell{pos: pos, Section: section, modified: true}
}

func (c *Cell) Pos() CellPos { return c.pos }

// Level derives the init level from the persisted flags so a reload never
// repeats completed stages.
func (c *Cell) Level() InitLevel {
	switch {
	case c.FullyPopulated && c.InitialLightingDone:
		return LevelLit
	case c.FullyPopulated:
		return LevelPopulated
	default:
		return LevelGenerated
	}
}

func (c *Cell) Block(a BlockAddr) uint16 { return c.Section.Block(a) }

func (c *Cell) Meta(a BlockAddr) uint8 { return c.Section.Meta(a) }

// SetBlock changes a block and reports whether anything changed.
func (c *Cell) SetBlock(a BlockAddr, id uint16, meta uint8) bool {
	if c.Section.Block(a) == id && c.Section.Meta(a) == meta {
		return false
	}
	c.Section.SetBlock(a, id)
	c.Section.SetMeta(a, meta)
	c.modified = true
	return true
}

// MarkModified flags the cell for saving on eviction.
func (c *Cell) MarkModified() { c.modified = true }

func (c *Cell) Modified() bool { return c.modified }

// MarkSaved clears the modified bit after a successful write.
func (c *Cell) MarkSaved() { c.modified = false }

// ResetLighting forgets lighting state, e.g. when the stored light engine
// differs from the active one.
func (c *Cell) ResetLighting(engine string) {
	c.InitialLightingDone = false
	c.LightEngine = engine
	c.LightState = nil
	c.Section.ClearLight()
}
