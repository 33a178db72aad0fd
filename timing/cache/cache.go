// Package cache provides the L1 data cache model built on the Akita cache
// directory. It supplies hit/miss latencies to the memory collaborator and
// holds the line data in front of emu.Memory.
package cache

import (
	"errors"
	"fmt"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// ErrBadGeometry is returned for a configuration whose size, ways and line
// size do not describe a whole number of sets.
var ErrBadGeometry = errors.New("invalid cache geometry")

// WritePolicy selects when stores reach the backing store.
type WritePolicy uint8

const (
	// WriteBack keeps stores in the line until it is evicted or flushed.
	WriteBack WritePolicy = iota
	// WriteThrough forwards every store to the backing store as well.
	WriteThrough
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int
	// Associativity (number of ways)
	Associativity int
	// BlockSize in bytes (cache line size)
	BlockSize int
	// HitLatency in cycles
	HitLatency uint64
	// MissLatency in cycles (includes memory access time)
	MissLatency uint64
	// Policy is the store policy. Both policies allocate on a write miss.
	Policy WritePolicy
}

// DefaultL1DConfig returns the default data cache: 4KB, 4-way, 32B lines,
// write-back.
func DefaultL1DConfig() Config {
	return Config{
		Size:          4 * 1024,
		Associativity: 4,
		BlockSize:     32,
		HitLatency:    1,
		MissLatency:   8,
	}
}

// Validate checks the geometry.
func (c Config) Validate() error {
	if c.Associativity <= 0 || c.BlockSize < 4 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("%w: %d ways of %dB lines", ErrBadGeometry, c.Associativity, c.BlockSize)
	}
	if c.Size <= 0 || c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("%w: size %d is not a multiple of %d", ErrBadGeometry,
			c.Size, c.Associativity*c.BlockSize)
	}
	return nil
}

func (c Config) numSets() int {
	return c.Size / (c.Associativity * c.BlockSize)
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// Latency is the number of cycles this access takes.
	Latency uint64
	// Data is the data read (for load operations).
	Data uint32
	// Evicted is true if a valid block was replaced.
	Evicted bool
	// EvictedAddr is the address of the evicted block (if Evicted is true).
	EvictedAddr uint32
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// HitRate returns the fraction of accesses that hit.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// BackingStore is the next level in the memory hierarchy. It moves whole
// lines.
type BackingStore interface {
	ReadLine(addr uint32, line []byte)
	WriteLine(addr uint32, line []byte)
}

// Cache represents an L1 cache using Akita cache components. The directory
// keeps tags, valid and dirty bits and LRU order; lines holds the data,
// indexed by set and way.
type Cache struct {
	config    Config
	directory *akitacache.DirectoryImpl
	lines     [][]byte
	backing   BackingStore
	stats     Statistics
}

// New creates a new cache with the given configuration.
func New(config Config, backing BackingStore) (*Cache, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	lines := make([][]byte, config.numSets()*config.Associativity)
	for i := range lines {
		lines[i] = make([]byte, config.BlockSize)
	}

	return &Cache{
		config: config,
		directory: akitacache.NewDirectory(
			config.numSets(),
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		lines:   lines,
		backing: backing,
	}, nil
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// Contains reports whether the line holding addr is present.
func (c *Cache) Contains(addr uint32) bool {
	return c.lookup(addr) != nil
}

// Read performs a cache read of size bytes. The access must not cross a
// line.
func (c *Cache) Read(addr uint32, size int) AccessResult {
	c.stats.Reads++
	return c.access(addr, size, false, 0)
}

// Write performs a cache write of the low size bytes of data.
func (c *Cache) Write(addr uint32, size int, data uint32) AccessResult {
	c.stats.Writes++
	return c.access(addr, size, true, data)
}

func (c *Cache) access(addr uint32, size int, write bool, data uint32) AccessResult {
	result := AccessResult{Hit: true, Latency: c.config.HitLatency}

	block := c.lookup(addr)
	if block != nil {
		c.stats.Hits++
	} else {
		c.stats.Misses++
		result.Hit = false
		result.Latency = c.config.MissLatency

		block = c.fill(addr, &result)
		if block == nil {
			return result
		}
	}
	c.directory.Visit(block)

	line := c.line(block)
	offset := int(addr) % c.config.BlockSize
	if !write {
		result.Data = getBytes(line, offset, size)
		return result
	}

	putBytes(line, offset, size, data)
	if c.config.Policy == WriteThrough && c.backing != nil {
		c.backing.WriteLine(uint32(block.Tag), line)
	} else {
		block.IsDirty = true
	}
	return result
}

// fill allocates the line for addr, evicting the LRU way of its set.
func (c *Cache) fill(addr uint32, result *AccessResult) *akitacache.Block {
	lineAddr := c.lineAddr(addr)

	victim := c.directory.FindVictim(uint64(lineAddr))
	if victim == nil {
		return nil
	}
	line := c.line(victim)

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = uint32(victim.Tag)
		c.writeBack(victim)
	}

	if c.backing != nil {
		c.backing.ReadLine(lineAddr, line)
	} else {
		clear(line)
	}

	victim.Tag = uint64(lineAddr)
	victim.IsValid = true
	victim.IsDirty = false

	return victim
}

func (c *Cache) writeBack(block *akitacache.Block) {
	if !block.IsValid || !block.IsDirty || c.backing == nil {
		return
	}
	c.stats.Writebacks++
	c.backing.WriteLine(uint32(block.Tag), c.line(block))
	block.IsDirty = false
}

func (c *Cache) line(block *akitacache.Block) []byte {
	return c.lines[block.SetID*c.config.Associativity+block.WayID]
}

func (c *Cache) lineAddr(addr uint32) uint32 {
	return addr &^ uint32(c.config.BlockSize-1)
}

func (c *Cache) lookup(addr uint32) *akitacache.Block {
	block := c.directory.Lookup(0, uint64(c.lineAddr(addr)))
	if block == nil || !block.IsValid {
		return nil
	}
	return block
}

// Invalidate drops the line holding addr without writeback.
func (c *Cache) Invalidate(addr uint32) {
	if block := c.lookup(addr); block != nil {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Flush writes back all dirty lines and invalidates the cache.
func (c *Cache) Flush() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			c.writeBack(block)
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates all lines without writeback and clears statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}

// getBytes assembles a little-endian value from line.
func getBytes(line []byte, offset, size int) uint32 {
	if offset+size > len(line) {
		return 0
	}

	var v uint32
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint32(line[offset+i])
	}
	return v
}

func putBytes(line []byte, offset, size int, v uint32) {
	if offset+size > len(line) {
		return
	}

	for i := 0; i < size; i++ {
		line[offset+i] = byte(v)
		v >>= 8
	}
}
