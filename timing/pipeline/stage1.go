package pipeline

import (
	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/insts"
)

// Stage1 evaluates every functional unit on the operands of the admitted
// instruction and selects the result by class.
type Stage1 struct {
	alu        *emu.ALU
	shifter    *emu.Shifter
	multiplier *emu.Multiplier
	addrCalc   *emu.AddressCalculator
	targets    *emu.BranchTargetCalculator
}

// NewStage1 creates Stage 1 around the given multiplier and address
// calculator.
func NewStage1(multiplier *emu.Multiplier, addrCalc *emu.AddressCalculator) *Stage1 {
	return &Stage1{
		alu:        emu.NewALU(),
		shifter:    emu.NewShifter(),
		multiplier: multiplier,
		addrCalc:   addrCalc,
		targets:    emu.NewBranchTargetCalculator(),
	}
}

// aluOp returns the operation the ALU performs for d. Control instructions
// with a link compute the fall-through address; all other non-ALU classes
// compare the operands.
func aluOp(d *insts.Descriptor) insts.Op {
	switch {
	case d.Class == insts.ClassALU:
		return d.Op
	case d.Class.IsControl() && d.UseRd:
		return insts.OpLINK
	default:
		return insts.OpSUB
	}
}

// Evaluate fills reg.Slot from the operands in reg. The multiplier is
// started the first time a multiply is evaluated; Evaluate must be called
// again on later ticks until reg.MulStarted is set.
func (s *Stage1) Evaluate(reg *Stage1Register, level emu.Level) {
	d := &reg.Desc

	if !reg.Evaluated {
		reg.Slot = s.compute(reg, level)
		reg.Evaluated = true
	}

	if d.Class == insts.ClassMul && d.NeedsRegisters() && !reg.MulStarted {
		reg.MulStarted = s.multiplier.Start(reg.Slot.A, reg.Slot.B)
	}
}

// Ready returns true if the evaluated instruction can leave Stage 1.
func (s *Stage1) Ready(reg *Stage1Register) bool {
	if !reg.Evaluated {
		return false
	}
	if reg.Desc.Class == insts.ClassMul && reg.Desc.NeedsRegisters() {
		return reg.MulStarted
	}
	return true
}

func (s *Stage1) compute(reg *Stage1Register, level emu.Level) Slot {
	d := &reg.Desc

	slot := Slot{
		Valid:    true,
		Desc:     *d,
		Seq:      reg.Seq,
		Epoch:    reg.Epoch,
		Reserved: reg.Reserved,
	}

	if d.Faulting() {
		return slot
	}

	a := reg.Read1
	b := d.Imm
	if d.UseRs2 {
		b = reg.Read2
	}
	slot.A, slot.B = a, b

	slot.Target, slot.Fallthrough = s.targets.Targets(d.PC, d.Imm, d.Length)

	aluRes := s.alu.Execute(aluOp(d), a, b, d.PC, slot.Fallthrough)
	shifted := s.shifter.Shift(d.Op, a, b)
	slot.Flags = aluRes
	slot.BitSet = emu.TestBit(a, d.Imm2)

	base := emu.BaseRegister
	if !d.UseRs1 {
		base = emu.BaseZero
	}
	slot.Addr = s.addrCalc.Calculate(emu.AddressInput{
		BaseSelect: base,
		Reg:        a,
		PC:         d.PC,
		Offset:     d.Imm,
		Width:      d.Width,
		Level:      level,
		CSR:        d.Class.IsCSR(),
	})

	switch d.Class {
	case insts.ClassShift:
		slot.Value = shifted
	case insts.ClassIndirect:
		slot.Target = slot.Addr.Effective
		slot.Value = aluRes.Value
	case insts.ClassStore:
		slot.StoreData = emu.TruncateStore(reg.Read2, d.Width)
	case insts.ClassCSRStore:
		slot.StoreData = reg.Read2
	default:
		slot.Value = aluRes.Value
	}

	return slot
}
