package emu

import (
	"errors"
	"fmt"

	"github.com/sarchlab/sbcore/insts"
)

// ErrUnsupported is returned when the functional model meets an instruction
// or event it does not model: privilege changes, traps, faults, CSR access.
var ErrUnsupported = errors.New("unsupported by functional model")

// ErrMaxInstructions is returned when the instruction limit is reached.
var ErrMaxInstructions = errors.New("max instructions reached")

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exited is true if the program executed halt.
	Exited bool

	// Err is set if execution cannot continue.
	Err error
}

// Retired records the architectural effect of one instruction.
type Retired struct {
	PC    uint32
	Rd    uint8
	Value uint32
	Wrote bool
}

// Emulator executes descriptor programs one instruction at a time in
// Supervisor mode. It is the functional reference the timing pipeline is
// checked against.
type Emulator struct {
	regs    [insts.NumRegisters]uint32
	pc      uint32
	program map[uint32]insts.Descriptor
	memory  *Memory

	alu     *ALU
	shifter *Shifter
	addr    *AddressCalculator
	targets *BranchTargetCalculator

	trace            []Retired
	instructionCount uint64
	maxInstructions  uint64
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMemory makes the emulator use the given memory.
func WithMemory(m *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = m
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// NewEmulator creates an emulator for the given listing, starting at its
// entry point.
func NewEmulator(listing *insts.Listing, opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		program: make(map[uint32]insts.Descriptor, len(listing.Insts)),
		pc:      listing.Entry,
		alu:     NewALU(),
		shifter: NewShifter(),
		addr:    NewAddressCalculator(Region{}),
		targets: NewBranchTargetCalculator(),
	}
	for _, d := range listing.Insts {
		e.program[d.PC] = d
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.memory == nil {
		e.memory = NewMemory()
		e.memory.LoadWords(listing.Data)
	}

	return e
}

// Reg returns the value of register r.
func (e *Emulator) Reg(r uint8) uint32 {
	return e.regs[r]
}

// SetReg sets register r.
func (e *Emulator) SetReg(r uint8, v uint32) {
	e.regs[r] = v
}

// PC returns the address of the next instruction.
func (e *Emulator) PC() uint32 {
	return e.pc
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// Trace returns the retired instructions in order.
func (e *Emulator) Trace() []Retired {
	return e.trace
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Run executes until halt or an error.
func (e *Emulator) Run() error {
	for {
		res := e.Step()
		if res.Err != nil {
			return res.Err
		}
		if res.Exited {
			return nil
		}
	}
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrMaxInstructions}
	}

	d, ok := e.program[e.pc]
	if !ok {
		return StepResult{Err: fmt.Errorf("no instruction at PC=0x%X: %w", e.pc, ErrUnsupported)}
	}

	res := e.execute(&d)
	if res.Err == nil {
		e.instructionCount++
	}
	return res
}

func (e *Emulator) operands(d *insts.Descriptor) (a, b uint32) {
	if d.UseRs1 {
		a = e.regs[d.Rs1]
	}
	if d.UseRs2 {
		b = e.regs[d.Rs2]
	} else {
		b = d.Imm
	}
	return a, b
}

func (e *Emulator) retire(d *insts.Descriptor, value uint32, write bool) {
	if !write || !d.UseRd {
		e.trace = append(e.trace, Retired{PC: d.PC})
		return
	}
	e.regs[d.Rd] = value
	e.trace = append(e.trace, Retired{PC: d.PC, Rd: d.Rd, Value: value, Wrote: true})
}

// execute dispatches and executes one descriptor.
func (e *Emulator) execute(d *insts.Descriptor) StepResult {
	if d.Faulting() {
		return StepResult{Err: fmt.Errorf("fault at PC=0x%X: %w", d.PC, ErrUnsupported)}
	}

	a, b := e.operands(d)
	target, fallThru := e.targets.Targets(d.PC, d.Imm, d.Length)
	next := fallThru

	switch d.Class {
	case insts.ClassALU:
		r := e.alu.Execute(d.Op, a, b, d.PC, fallThru)
		e.retire(d, r.Value, true)
	case insts.ClassShift:
		e.retire(d, e.shifter.Shift(d.Op, a, b), true)
	case insts.ClassMul:
		e.retire(d, a*b, true)
	case insts.ClassLoad, insts.ClassStore:
		ar := e.addr.Calculate(AddressInput{
			BaseSelect: BaseRegister,
			Reg:        a,
			Offset:     d.Imm,
			Width:      d.Width,
			Level:      LevelSupervisor,
		})
		if ar.Misaligned {
			return StepResult{Err: fmt.Errorf("misaligned access at PC=0x%X: %w", d.PC, ErrUnsupported)}
		}
		size := WidthBytes(d.Width)
		if d.Class == insts.ClassLoad {
			raw := e.memory.Read(ar.Physical, size)
			e.retire(d, ExtendLoad(raw, d.Width, d.SignExtend), true)
		} else {
			e.memory.Write(ar.Physical, size, TruncateStore(e.regs[d.Rs2], d.Width))
			e.retire(d, 0, false)
		}
	case insts.ClassBranch:
		taken := false
		switch d.Op {
		case insts.OpJMP:
			taken = true
		case insts.OpBCond:
			taken = CheckCondition(d.Cond, e.alu.Execute(insts.OpSUB, a, e.regs[d.Rs2], d.PC, fallThru))
		case insts.OpBBitSet:
			taken = TestBit(a, d.Imm2)
		case insts.OpBBitClr:
			taken = !TestBit(a, d.Imm2)
		default:
			return StepResult{Err: fmt.Errorf("%s at PC=0x%X: %w", d.Op, d.PC, ErrUnsupported)}
		}
		e.retire(d, fallThru, true)
		if taken {
			next = target
		}
	case insts.ClassIndirect:
		e.retire(d, fallThru, true)
		next = a + d.Imm
	case insts.ClassSystem:
		e.retire(d, 0, false)
		if d.Op == insts.OpHALT {
			e.pc = next
			return StepResult{Exited: true}
		}
	default:
		return StepResult{Err: fmt.Errorf("%s at PC=0x%X: %w", d.Class, d.PC, ErrUnsupported)}
	}

	e.pc = next
	return StepResult{}
}
