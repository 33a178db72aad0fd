package emu

const pageBits = 12

const pageSize = 1 << pageBits

// Memory is a sparse, little-endian byte-addressable memory.
type Memory struct {
	pages map[uint32][]byte
}

// NewMemory creates an empty memory. Unwritten bytes read as zero.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint32][]byte)}
}

func (m *Memory) page(addr uint32, create bool) []byte {
	key := addr >> pageBits
	p, ok := m.pages[key]
	if !ok && create {
		p = make([]byte, pageSize)
		m.pages[key] = p
	}
	return p
}

// Read8 reads one byte.
func (m *Memory) Read8(addr uint32) byte {
	p := m.page(addr, false)
	if p == nil {
		return 0
	}
	return p[addr&(pageSize-1)]
}

// Write8 writes one byte.
func (m *Memory) Write8(addr uint32, v byte) {
	m.page(addr, true)[addr&(pageSize-1)] = v
}

// Read reads size bytes starting at addr as a little-endian value.
func (m *Memory) Read(addr uint32, size int) uint32 {
	var v uint32
	for i := 0; i < size; i++ {
		v |= uint32(m.Read8(addr+uint32(i))) << (8 * i)
	}
	return v
}

// Write writes the low size bytes of v starting at addr.
func (m *Memory) Write(addr uint32, size int, v uint32) {
	for i := 0; i < size; i++ {
		m.Write8(addr+uint32(i), byte(v>>(8*i)))
	}
}

// Read32 reads a 32-bit word.
func (m *Memory) Read32(addr uint32) uint32 {
	return m.Read(addr, 4)
}

// Write32 writes a 32-bit word.
func (m *Memory) Write32(addr uint32, v uint32) {
	m.Write(addr, 4, v)
}

// LoadWords writes each word of data at its address.
func (m *Memory) LoadWords(data map[uint32]uint32) {
	for addr, v := range data {
		m.Write32(addr, v)
	}
}
