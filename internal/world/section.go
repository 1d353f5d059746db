package world

import "fmt"

// LightSource is implemented by sections that can export their light arrays.
type LightSource interface {
	LightData() []byte
}

// Section is the host engine's block storage for one cell. The lifecycle
// code never looks inside it; it only reads and writes it verbatim.
type Section interface {
	Block(a BlockAddr) uint16
	SetBlock(a BlockAddr, id uint16)
	Meta(a BlockAddr) uint8
	SetMeta(a BlockAddr, m uint8)
	ClearLight()
	MarshalBinary() ([]byte, error)
}

// SectionFactory rebuilds a Section from its stored payload. A nil payload
// asks for an empty section.
type SectionFactory func(data []byte) (Section, error)

const (
	sectionVolume = CellSize * CellSize * CellSize
	nibbleLen     = sectionVolume / 2
	// ids + metadata + block light + sky light
	blockSectionLen = sectionVolume*2 + nibbleLen*3
)

// BlockSection is the default Section: 16-bit block ids plus nibble arrays
// for metadata, block light and sky light.
type BlockSection struct {
	blocks   [sectionVolume]uint16
	meta     [nibbleLen]byte
	blockLit [nibbleLen]byte
	skyLit   [nibbleLen]byte
}

func NewBlockSection() *BlockSection { return &BlockSection{} }

// DecodeBlockSection is a SectionFactory for BlockSection payloads.
func DecodeBlockSection(data []byte) (Section, error) {
	s := &BlockSection{}
	if data == nil {
		return s, nil
	}
	if len(data) != blockSectionLen {
		return nil, fmt.Errorf("block section: want %d bytes, got %d", blockSectionLen, len(data))
	}
	off := 0
	for i := range s.blocks {
		s.blocks[i] = uint16(data[off]) | uint16(data[off+1])<<8
		off += 2
	}
	off += copy(s.meta[:], data[off:])
	off += copy(s.blockLit[:], data[off:])
	copy(s.skyLit[:], data[off:])
	return s, nil
}

func (s *BlockSection) Block(a BlockAddr) uint16 { return s.blocks[a.Index()] }

func (s *BlockSection) SetBlock(a BlockAddr, id uint16) { s.blocks[a.Index()] = id }

func (s *BlockSection) Meta(a BlockAddr) uint8 { return getNibble(s.meta[:], a.Index()) }

func (s *BlockSection) SetMeta(a BlockAddr, m uint8) { setNibble(s.meta[:], a.Index(), m) }

func (s *BlockSection) BlockLight(a BlockAddr) uint8 { return getNibble(s.blockLit[:], a.Index()) }

func (s *BlockSection) SetBlockLight(a BlockAddr, v uint8) {
	setNibble(s.blockLit[:], a.Index(), v)
}

func (s *BlockSection) SkyLight(a BlockAddr) uint8 { return getNibble(s.skyLit[:], a.Index()) }

func (s *BlockSection) SetSkyLight(a BlockAddr, v uint8) { setNibble(s.skyLit[:], a.Index(), v) }

func (s *BlockSection) ClearLight() {
	s.blockLit = [nibbleLen]byte{}
	s.skyLit = [nibbleLen]byte{}
}

// Empty reports whether every block is air.
func (s *BlockSection) Empty() bool {
	for _, b := range s.blocks {
		if b != 0 {
			return false
		}
	}
	return true
}

func (s *BlockSection) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, blockSectionLen)
	for _, b := range s.blocks {
		out = append(out, byte(b), byte(b>>8))
	}
	out = append(out, s.meta[:]...)
	out = append(out, s.blockLit[:]...)
	out = append(out, s.skyLit[:]...)
	return out, nil
}

// LightData returns the block-light and sky-light arrays concatenated, as
// sent in cell snapshots.
func (s *BlockSection) LightData() []byte {
	out := make([]byte, 0, nibbleLen*2)
	out = append(out, s.blockLit[:]...)
	return append(out, s.skyLit[:]...)
}

func getNibble(arr []byte, i int) uint8 {
	b := arr[i>>1]
	if i&1 == 0 {
		return b & 0x0F
	}
	return b >> 4
}

func setNibble(arr []byte, i int, v uint8) {
	v &= 0x0F
	if i&1 == 0 {
		arr[i>>1] = arr[i>>1]&0xF0 | v
	} else {
		arr[i>>1] = arr[i>>1]&0x0F | v<<4
	}
}
