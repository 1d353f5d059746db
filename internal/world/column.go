package world

// NoHeight marks a horizontal position with no known opaque block.
const NoHeight int32 = -1 << 30

// HeightMap is the per-column height index: the world Y of the highest
// opaque block for each of the 16x16 horizontal positions.
type HeightMap [CellSize * CellSize]int32

func NewHeightMap() HeightMap {
	var h HeightMap
	for i := range h {
		h[i] = NoHeight
	}
	return h
}

// Column groups the cells at one horizontal position and owns the indices
// they share.
type Column struct {
	pos           ColumnPos
	InhabitedTime int64
	Biomes        [CellSize * CellSize]byte
	Heights       HeightMap

	modified bool
}

func NewColumn(pos ColumnPos) *Column {
	return &Column{pos: pos, Heights: NewHeightMap(), modified: true}
}

func (c *Column) Pos() ColumnPos { return c.pos }

func (c *Column) Height(localX, localZ int) int32 {
	return c.Heights[localZ<<4|localX]
}

// UpdateHeight adjusts the height index after the block at world height y
// changed. probe reports whether the block at a lower world height is
// opaque; it returns ok=false once it runs past resident data. Returns true
// if the stored height changed.
func (c *Column) UpdateHeight(localX, localZ int, y int32, opaque bool, probe func(y int32) (opaque, ok bool)) bool {
	i := localZ<<4 | localX
	cur := c.Heights[i]
	switch {
	case opaque && y > cur:
		c.Heights[i] = y
	case !opaque && y == cur:
		next := NoHeight
		for yy := y - 1; ; yy-- {
			o, ok := probe(yy)
			if !ok {
				break
			}
			if o {
				next = yy
				break
			}
		}
		c.Heights[i] = next
	default:
		return false
	}
	c.modified = true
	return true
}

func (c *Column) MarkModified() { c.modified = true }

func (c *Column) Modified() bool { return c.modified }

func (c *Column) MarkSaved() { c.modified = false }
