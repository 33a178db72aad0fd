// Package csr provides the control/status register collaborator: read-only
// status registers that mirror the core's mode state and a small bank of
// writable scratch registers.
package csr

import (
	"github.com/sarchlab/sbcore/emu"
)

// Status register addresses.
const (
	AddrLevel        uint32 = 0x00
	AddrSupervisorPC uint32 = 0x01
	AddrUserPC       uint32 = 0x02
	AddrCause        uint32 = 0x03
	AddrFaultAddr    uint32 = 0x04
	AddrIRQLatched   uint32 = 0x05
)

// Scratch registers occupy ScratchBase .. ScratchBase+NumScratch-1.
const (
	ScratchBase uint32 = 0x10
	NumScratch         = 16
)

// Status is the mode state visible through the status registers.
type Status struct {
	Level        emu.Level
	SupervisorPC uint32
	UserPC       uint32
	Cause        uint32
	FaultAddr    uint32
	IRQLatched   bool
}

// StatusSource supplies the current status.
type StatusSource interface {
	Status() Status
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func() Status

// Status implements StatusSource.
func (f StatusFunc) Status() Status { return f() }

// Request is one CSR access.
type Request struct {
	Write bool
	Addr  uint32
	Data  uint32
}

// Response carries the data of a CSR read.
type Response struct {
	Data uint32
}

// Statistics holds CSR counters.
type Statistics struct {
	Reads         uint64
	Writes        uint64
	IgnoredWrites uint64
}

// Bank is the CSR collaborator. It accepts one access at a time; reads are
// sampled at acceptance and answered after the latency.
type Bank struct {
	source  StatusSource
	latency uint64
	scratch [NumScratch]uint32

	busy      bool
	remaining uint64
	isRead    bool
	pending   Response

	resp      Response
	respValid bool

	stats Statistics
}

// New creates a bank reading status from src.
func New(src StatusSource, latency uint64) *Bank {
	return &Bank{source: src, latency: max(latency, 1)}
}

func scratchIndex(addr uint32) (int, bool) {
	if addr < ScratchBase || addr >= ScratchBase+NumScratch {
		return 0, false
	}
	return int(addr - ScratchBase), true
}

// Read returns the current value of addr. Unmapped addresses read as zero.
func (b *Bank) Read(addr uint32) uint32 {
	if i, ok := scratchIndex(addr); ok {
		return b.scratch[i]
	}

	if b.source == nil {
		return 0
	}

	s := b.source.Status()
	switch addr {
	case AddrLevel:
		return uint32(s.Level)
	case AddrSupervisorPC:
		return s.SupervisorPC
	case AddrUserPC:
		return s.UserPC
	case AddrCause:
		return s.Cause
	case AddrFaultAddr:
		return s.FaultAddr
	case AddrIRQLatched:
		if s.IRQLatched {
			return 1
		}
	}
	return 0
}

// Write stores to a scratch register. Writes elsewhere are ignored.
func (b *Bank) Write(addr, data uint32) {
	if i, ok := scratchIndex(addr); ok {
		b.scratch[i] = data
		return
	}
	b.stats.IgnoredWrites++
}

// Send offers a request; false means try again next tick.
func (b *Bank) Send(req Request) bool {
	if b.busy || b.respValid {
		return false
	}

	if req.Write {
		b.Write(req.Addr, req.Data)
		b.stats.Writes++
	} else {
		b.pending = Response{Data: b.Read(req.Addr)}
		b.stats.Reads++
	}

	b.isRead = !req.Write
	b.busy = true
	b.remaining = b.latency

	return true
}

// Receive takes the response of a completed read.
func (b *Bank) Receive() (Response, bool) {
	if !b.respValid {
		return Response{}, false
	}
	b.respValid = false
	return b.resp, true
}

// Tick advances the outstanding access by one cycle.
func (b *Bank) Tick() {
	if !b.busy {
		return
	}

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

// Stats returns CSR statistics.
func (b *Bank) Stats() Statistics {
	return b.stats
}
