package visibility

import "github.com/l1jgo/cubic/internal/world"

// Observer receives the messages that keep a client's view in sync.
// Methods are called from the world goroutine and must not block.
type Observer interface {
	ID() uint64
	SendCellSnapshot(c *world.Cell, col *world.Column)
	SendCellDelta(pos world.CellPos, blocks []BlockChange, heights []HeightChange)
	SendUnloadCell(pos world.CellPos)
	SendColumnSnapshot(col *world.Column)
	SendUnloadColumn(pos world.ColumnPos)
}

// BlockChange is one changed block in a delta.
type BlockChange struct {
	Addr  world.BlockAddr
	Block uint16
	Meta  uint8
}

// HeightChange is the current height index sample at a horizontal position
// touched by a delta.
type HeightChange struct {
	LocalX, LocalZ uint8
	Height         int32
}
