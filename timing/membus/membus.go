// Package membus provides the memory collaborator of the pipeline: a
// single-outstanding ready/valid port in front of emu.Memory, optionally
// through the L1 data cache model.
package membus

import (
	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/insts"
	"github.com/sarchlab/sbcore/timing/cache"
)

// Request is one memory operation. Addr is a physical address.
type Request struct {
	Write bool
	Addr  uint32
	Data  uint32
	Width insts.Width
}

// Response carries load data, unextended.
type Response struct {
	Data uint32
}

// Storage performs an access and reports how many ticks it takes.
type Storage interface {
	Read(addr uint32, size int) (uint32, uint64)
	Write(addr uint32, size int, data uint32) uint64
}

// FlatStorage is memory with a fixed access latency.
type FlatStorage struct {
	Memory  *emu.Memory
	Latency uint64
}

// Read implements Storage.
func (s FlatStorage) Read(addr uint32, size int) (uint32, uint64) {
	return s.Memory.Read(addr, size), s.Latency
}

// Write implements Storage.
func (s FlatStorage) Write(addr uint32, size int, data uint32) uint64 {
	s.Memory.Write(addr, size, data)
	return s.Latency
}

// CachedStorage routes accesses through the L1 model.
type CachedStorage struct {
	Cache *cache.Cache
}

// Read implements Storage.
func (s CachedStorage) Read(addr uint32, size int) (uint32, uint64) {
	r := s.Cache.Read(addr, size)
	return r.Data, r.Latency
}

// Write implements Storage.
func (s CachedStorage) Write(addr uint32, size int, data uint32) uint64 {
	return s.Cache.Write(addr, size, data).Latency
}

// Statistics holds bus counters.
type Statistics struct {
	Reads       uint64
	Writes      uint64
	Refused     uint64
	BusyCycles  uint64
	TotalWaited uint64
}

// Bus accepts one request at a time. A read's response becomes visible
// after the storage latency has elapsed in Ticks; a write occupies the bus
// for its latency and produces no response.
type Bus struct {
	storage Storage
	flush   func()

	busy      bool
	remaining uint64
	pending   Response
	isRead    bool

	resp      Response
	respValid bool

	stats Statistics
}

// New creates a bus over flat memory with the given latency.
func New(memory *emu.Memory, latency uint64) *Bus {
	return NewWithStorage(FlatStorage{Memory: memory, Latency: latency})
}

// NewCached creates a bus whose accesses go through c.
func NewCached(c *cache.Cache) *Bus {
	b := NewWithStorage(CachedStorage{Cache: c})
	b.flush = c.Flush
	return b
}

// NewWithStorage creates a bus over any Storage.
func NewWithStorage(s Storage) *Bus {
	return &Bus{storage: s}
}

// Send offers a request. It returns false if the bus cannot accept it this
// tick; the caller presents it again.
func (b *Bus) Send(req Request) bool {
	if b.busy || b.respValid {
		b.stats.Refused++
		return false
	}

	size := emu.WidthBytes(req.Width)
	var lat uint64
	if req.Write {
		lat = b.storage.Write(req.Addr, size, req.Data)
		b.stats.Writes++
	} else {
		var data uint32
		data, lat = b.storage.Read(req.Addr, size)
		b.pending = Response{Data: data}
		b.stats.Reads++
	}

	b.isRead = !req.Write
	b.busy = true
	b.remaining = max(lat, 1)
	b.stats.TotalWaited += b.remaining

	return true
}

// Receive takes the response of a completed read.
func (b *Bus) Receive() (Response, bool) {
	if !b.respValid {
		return Response{}, false
	}
	b.respValid = false
	return b.resp, true
}

// Tick advances the outstanding operation by one cycle.
func (b *Bus) Tick() {
	if !b.busy {
		return
	}

	b.stats.BusyCycles++
	b.remaining--
	if b.remaining > 0 {
		return
	}

	b.busy = false
	if b.isRead {
		b.resp = b.pending
		b.respValid = true
	}
}

// Busy returns true while an operation is outstanding or a response has
// not been taken.
func (b *Bus) Busy() bool {
	return b.busy || b.respValid
}

// Flush writes cached data back to memory. It is a no-op without a cache.
func (b *Bus) Flush() {
	if b.flush != nil {
		b.flush()
	}
}

// Stats returns bus statistics.
func (b *Bus) Stats() Statistics {
	return b.stats
}
