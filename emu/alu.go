// Package emu provides the functional units and the functional reference
// model of the processor.
//
// Every unit here is a pure input-to-output contract: the pipeline invokes
// all of them each cycle and selects the result it needs afterwards.
package emu

import "github.com/sarchlab/sbcore/insts"

// ALUResult is the output of the ALU: the value and its condition flags.
type ALUResult struct {
	Value uint32

	// Zero is set when Value is zero.
	Zero bool
	// Sign is set when bit 31 of Value is set.
	Sign bool
	// Carry is the unsigned carry out of an add, or "no borrow" of a subtract.
	Carry bool
	// Overflow is the signed overflow of an add or subtract.
	Overflow bool
}

// ALU implements the arithmetic and logic operations.
type ALU struct{}

// NewALU creates a new ALU.
func NewALU() *ALU {
	return &ALU{}
}

// Execute computes op on operands a and b. pc is the address of the
// instruction and altPC the fall-through address, used by OpADDPC and
// OpLINK.
func (u *ALU) Execute(op insts.Op, a, b, pc, altPC uint32) ALUResult {
	var r ALUResult

	switch op {
	case insts.OpADD:
		r.Value = a + b
		r.Carry = r.Value < a
		r.Overflow = addOverflow(a, b, r.Value)
	case insts.OpSUB:
		r = u.subtract(a, b)
	case insts.OpAND:
		r.Value = a & b
	case insts.OpOR:
		r.Value = a | b
	case insts.OpXOR:
		r.Value = a ^ b
	case insts.OpSLT:
		if int32(a) < int32(b) {
			r.Value = 1
		}
	case insts.OpSLTU:
		if a < b {
			r.Value = 1
		}
	case insts.OpMOV:
		r.Value = b
	case insts.OpADDPC:
		r.Value = pc + b
	case insts.OpLINK:
		r.Value = altPC
	default:
		// Comparisons for branches use the subtract flags.
		r = u.subtract(a, b)
	}

	r.Zero = r.Value == 0
	r.Sign = r.Value>>31 == 1

	return r
}

func (u *ALU) subtract(a, b uint32) ALUResult {
	v := a - b
	return ALUResult{
		Value:    v,
		Carry:    a >= b,
		Overflow: subOverflow(a, b, v),
	}
}

// addOverflow reports signed overflow: two operands of the same sign
// produced a result of the other sign.
func addOverflow(a, b, result uint32) bool {
	as, bs, rs := a>>31, b>>31, result>>31
	return as == bs && as != rs
}

// subOverflow reports signed overflow of a - b.
func subOverflow(a, b, result uint32) bool {
	as, bs, rs := a>>31, b>>31, result>>31
	return as != bs && as != rs
}

// Shifter implements the barrel shifter.
type Shifter struct{}

// NewShifter creates a new Shifter.
func NewShifter() *Shifter {
	return &Shifter{}
}

// Shift applies op to a by the low five bits of shamt.
func (s *Shifter) Shift(op insts.Op, a, shamt uint32) uint32 {
	n := shamt & 31

	switch op {
	case insts.OpSLL:
		return a << n
	case insts.OpSRL:
		return a >> n
	case insts.OpSRA:
		return uint32(int32(a) >> n)
	case insts.OpROR:
		if n == 0 {
			return a
		}
		return a>>n | a<<(32-n)
	default:
		return a
	}
}
