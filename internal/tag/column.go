package tag

import (
	"fmt"

	"github.com/l1jgo/cubic/internal/world"
)

const (
	kindColumn byte = 'C'
	kindCell   byte = 'K'

	columnVersion byte = 1
	cellVersion   byte = 1
)

// EncodeColumn serialises a column.
func EncodeColumn(c *world.Column) []byte {
	w := newWriter(kindColumn, columnVersion)
	pos := c.Pos()
	w.writeD(pos.X)
	w.writeD(pos.Z)
	w.writeQ(c.InhabitedTime)
	w.writeBytes(c.Biomes[:])
	heights := make([]byte, 0, len(c.Heights)*4)
	for _, h := range c.Heights {
		heights = append(heights, byte(h), byte(h>>8), byte(h>>16), byte(h>>24))
	}
	w.writeBytes(heights)
	return w.seal()
}

// DecodeColumn parses a column document stored under want. A document
// naming another coordinate yields ErrMismatch.
func DecodeColumn(data []byte, want world.ColumnPos) (*world.Column, error) {
	r, version, err := open(data, kindColumn)
	if err != nil {
		return nil, err
	}
	if version != columnVersion {
		return nil, fmt.Errorf("%w: column v%d", ErrVersion, version)
	}
	pos := world.ColumnPos{X: r.readD(), Z: r.readD()}
	if r.err == nil && pos != want {
		return nil, fmt.Errorf("%w: stored %v requested %v", ErrMismatch, pos, want)
	}
	c := world.NewColumn(pos)
	c.InhabitedTime = r.readQ()
	biomes := r.readBytes()
	heights := r.readBytes()
	if r.err != nil {
		return nil, r.err
	}
	if len(biomes) != len(c.Biomes) || len(heights) != len(c.Heights)*4 {
		return nil, ErrTruncated
	}
	copy(c.Biomes[:], biomes)
	for i := range c.Heights {
		o := i * 4
		c.Heights[i] = int32(uint32(heights[o]) | uint32(heights[o+1])<<8 | uint32(heights[o+2])<<16 | uint32(heights[o+3])<<24)
	}
	c.MarkSaved()
	return c, nil
}
