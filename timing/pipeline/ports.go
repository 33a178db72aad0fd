package pipeline

import (
	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/insts"
	"github.com/sarchlab/sbcore/timing/csr"
	"github.com/sarchlab/sbcore/timing/membus"
)

// FrontEnd supplies decoded instructions to the Issuer.
type FrontEnd interface {
	// Peek returns the descriptor offered this tick, if any.
	Peek() (insts.Descriptor, bool)
	// Accept consumes the offered descriptor.
	Accept()
	// Redirect restarts fetch at pc, fetched at the given level.
	Redirect(pc uint32, level emu.Level)
}

// MemoryPort is the data memory collaborator. At most one operation is in
// flight.
type MemoryPort interface {
	Send(req membus.Request) bool
	Receive() (membus.Response, bool)
}

// CSRPort is the control/status register collaborator.
type CSRPort interface {
	Send(req csr.Request) bool
	Receive() (csr.Response, bool)
}

// InterruptLine is a level-sensitive interrupt input.
type InterruptLine interface {
	Asserted() bool
}

// InterruptFunc adapts a function to InterruptLine.
type InterruptFunc func() bool

// Asserted implements InterruptLine.
func (f InterruptFunc) Asserted() bool { return f() }

// CommitRecord describes one instruction leaving Stage 2.
type CommitRecord struct {
	Cycle uint64
	Seq   uint64
	PC    uint32
	Op    insts.Op

	// Rd and Data are the register write, valid if Wrote.
	Rd    uint8
	Data  uint32
	Wrote bool

	// Squashed is set for instructions dropped in the branch shadow.
	Squashed bool

	// Cause is the exception the instruction raised, if any.
	Cause Cause

	// Taken is set if the instruction redirected fetch.
	Taken bool

	// Level is the privilege level the instruction executed at.
	Level emu.Level
}
