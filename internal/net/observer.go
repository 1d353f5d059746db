package net

import (
	"github.com/l1jgo/cubic/internal/net/packet"
	"github.com/l1jgo/cubic/internal/visibility"
	"github.com/l1jgo/cubic/internal/world"
)

// Sender buffers an outgoing packet.
type Sender interface {
	Send(data []byte)
}

// SessionObserver turns tracker notifications into packets for one client.
type SessionObserver struct {
	id  uint64
	out Sender
}

func NewSessionObserver(id uint64, out Sender) *SessionObserver {
	return &SessionObserver{id: id, out: out}
}

func (o *SessionObserver) ID() uint64 { return o.id }

func (o *SessionObserver) SendCellSnapshot(c *world.Cell, _ *world.Column) {
	o.out.Send(BuildCellSnapshot(c))
}

func (o *SessionObserver) SendCellDelta(pos world.CellPos, blocks []visibility.BlockChange, heights []visibility.HeightChange) {
	o.out.Send(BuildCellDelta(pos, blocks, heights))
}

func (o *SessionObserver) SendUnloadCell(pos world.CellPos) {
	w := packet.NewWriterWithOpcode(packet.S_UNLOAD_CELL)
	writeCellPos(w, pos)
	o.out.Send(w.Bytes())
}

func (o *SessionObserver) SendColumnSnapshot(col *world.Column) {
	o.out.Send(BuildColumnSnapshot(col))
}

func (o *SessionObserver) SendUnloadColumn(pos world.ColumnPos) {
	w := packet.NewWriterWithOpcode(packet.S_UNLOAD_COLUMN)
	w.WriteD(pos.X)
	w.WriteD(pos.Z)
	o.out.Send(w.Bytes())
}

func writeCellPos(w *packet.Writer, pos world.CellPos) {
	w.WriteD(pos.X)
	w.WriteD(pos.Y)
	w.WriteD(pos.Z)
}

// BuildCellSnapshot encodes the full cell content.
func BuildCellSnapshot(c *world.Cell) []byte {
	w := packet.NewWriterWithOpcode(packet.S_CELL_SNAPSHOT)
	writeCellPos(w, c.Pos())
	w.WriteC(byte(c.Level()))
	data, err := c.Section.MarshalBinary()
	if err != nil {
		data = nil
	}
	w.WriteBlob(data)
	return w.Bytes()
}

// BuildCellDelta encodes changed blocks plus the height samples they
// touched.
func BuildCellDelta(pos world.CellPos, blocks []visibility.BlockChange, heights []visibility.HeightChange) []byte {
	w := packet.NewWriterWithOpcode(packet.S_CELL_DELTA)
	writeCellPos(w, pos)
	w.WriteH(uint16(len(blocks)))
	for _, b := range blocks {
		w.WriteH(uint16(b.Addr))
		w.WriteH(b.Block)
		w.WriteC(b.Meta)
	}
	w.WriteH(uint16(len(heights)))
	for _, h := range heights {
		w.WriteC(h.LocalX)
		w.WriteC(h.LocalZ)
		w.WriteD(h.Height)
	}
	return w.Bytes()
}

// BuildColumnSnapshot encodes biomes and the height index.
func BuildColumnSnapshot(col *world.Column) []byte {
	w := packet.NewWriterWithOpcode(packet.S_COLUMN_SNAPSHOT)
	pos := col.Pos()
	w.WriteD(pos.X)
	w.WriteD(pos.Z)
	w.WriteBytes(col.Biomes[:])
	for _, h := range col.Heights {
		w.WriteD(h)
	}
	return w.Bytes()
}
