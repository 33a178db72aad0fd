package cache

import (
	"github.com/sarchlab/sbcore/emu"
)

// MemoryBacking serves cache lines from emu.Memory.
type MemoryBacking struct {
	memory *emu.Memory
}

// NewMemoryBacking creates a new MemoryBacking adapter.
func NewMemoryBacking(memory *emu.Memory) *MemoryBacking {
	return &MemoryBacking{memory: memory}
}

// ReadLine fills line from memory starting at addr.
func (m *MemoryBacking) ReadLine(addr uint32, line []byte) {
	for i := range line {
		line[i] = m.memory.Read8(addr + uint32(i))
	}
}

// WriteLine copies line into memory starting at addr.
func (m *MemoryBacking) WriteLine(addr uint32, line []byte) {
	for i, b := range line {
		m.memory.Write8(addr+uint32(i), b)
	}
}
