package packet

// Client opcodes.
const (
	C_JOIN          byte = 1 // name S, x D, y D, z D, viewXZ C, viewY C
	C_MOVE          byte = 2 // x D, y D, z D (block coordinates)
	C_VIEW_DISTANCE byte = 3 // viewXZ C, viewY C
	C_SET_BLOCK     byte = 4 // x D, y D, z D, id H, meta C
)

// Server opcodes.
const (
	S_JOINED          byte = 100 // session D
	S_CELL_SNAPSHOT   byte = 101 // cx D, cy D, cz D, level C, section blob
	S_CELL_DELTA      byte = 102 // cx D, cy D, cz D, n H, n*(addr H, id H, meta C), m H, m*(lx C, lz C, height D)
	S_UNLOAD_CELL     byte = 103 // cx D, cy D, cz D
	S_COLUMN_SNAPSHOT byte = 104 // cx D, cz D, 256 biomes, 256*height D
	S_UNLOAD_COLUMN   byte = 105 // cx D, cz D
	S_ERROR           byte = 110 // message S
)
