// Package pipeline provides the issue/execute pipeline of the core: the
// Issuer in front of the register scoreboard, Stage 1 (operand evaluation)
// and Stage 2 (resolution and commit), with the mode controller.
package pipeline

import (
	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/insts"
)

// IssueLatch holds the descriptor the Issuer took from the front end.
type IssueLatch struct {
	// Valid indicates if the latch holds a descriptor.
	Valid bool

	// Desc is the held descriptor. It stays unchanged until granted.
	Desc insts.Descriptor

	// Waited counts ticks the descriptor has been refused.
	Waited uint64
}

// Clear resets the latch to empty.
func (l *IssueLatch) Clear() {
	l.Valid = false
	l.Desc = insts.Descriptor{}
	l.Waited = 0
}

// Stage1Register holds an admitted instruction and the operands the
// scoreboard serviced for it.
type Stage1Register struct {
	// Valid indicates if this pipeline register contains valid data.
	Valid bool

	Desc insts.Descriptor

	// Operand values read at admission.
	Read1 uint32
	Read2 uint32

	// Reserved is true if the instruction holds a reservation on Desc.Rd.
	Reserved bool

	Seq   uint64
	Epoch uint64

	// Evaluated is set once the functional units have produced Slot.
	Evaluated bool
	Slot      Slot

	// MulStarted is true once the multiplier accepted the operands.
	MulStarted bool
}

// Clear resets the register to empty state.
func (r *Stage1Register) Clear() {
	*r = Stage1Register{}
}

// Slot is the result of Stage 1 as latched into Stage 2.
type Slot struct {
	// Valid indicates if this pipeline register contains valid data.
	Valid bool

	Desc insts.Descriptor

	Seq   uint64
	Epoch uint64

	// Reserved is true if the instruction holds a reservation on Desc.Rd.
	Reserved bool

	// Operands.
	A uint32
	B uint32

	// Value is the selected unit result for ALU, shift and link writes.
	Value uint32

	// Flags from the ALU subtract of A and B.
	Flags emu.ALUResult

	// BitSet is the tested bit of A for bit-test branches.
	BitSet bool

	Target      uint32
	Fallthrough uint32

	Addr emu.AddressResult

	// StoreData is the truncated store operand.
	StoreData uint32

	// Stage 2 progress.
	Resolved  bool
	ReqIssued bool
}

// Clear resets the slot to empty state.
func (s *Slot) Clear() {
	*s = Slot{}
}
