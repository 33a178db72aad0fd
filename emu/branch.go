package emu

import "github.com/sarchlab/sbcore/insts"

// BranchTargetCalculator computes the taken and fall-through addresses of an
// instruction.
type BranchTargetCalculator struct{}

// NewBranchTargetCalculator creates a new BranchTargetCalculator.
func NewBranchTargetCalculator() *BranchTargetCalculator {
	return &BranchTargetCalculator{}
}

// Targets returns pc + imm as the branch target and pc + length as the
// fall-through address. imm is a two's complement byte offset.
func (b *BranchTargetCalculator) Targets(pc, imm, length uint32) (target, next uint32) {
	return pc + imm, pc + length
}

// CheckCondition evaluates a branch condition against the flags of a - b.
func CheckCondition(cond insts.Cond, flags ALUResult) bool {
	switch cond {
	case insts.CondEQ:
		return flags.Zero
	case insts.CondNE:
		return !flags.Zero
	case insts.CondLT:
		// Signed less than: N != V
		return flags.Sign != flags.Overflow
	case insts.CondGE:
		// Signed greater than or equal: N == V
		return flags.Sign == flags.Overflow
	case insts.CondLTU:
		// Unsigned lower: borrow
		return !flags.Carry
	case insts.CondGEU:
		// Unsigned higher or same: no borrow
		return flags.Carry
	default:
		return false
	}
}

// TestBit returns the value of bit n of v.
func TestBit(v, n uint32) bool {
	return (v>>(n&31))&1 == 1
}
