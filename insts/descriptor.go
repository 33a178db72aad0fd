// Package insts provides instruction descriptor definitions and assembly.
package insts

import (
	"fmt"
	"strings"
)

// NumRegisters is the number of general-purpose registers (r0-r14).
const NumRegisters = 15

// DefaultLength is the length in bytes of every assembled instruction.
const DefaultLength = 4

// Class is the execution class of an instruction.
type Class uint8

// Execution classes.
const (
	ClassUnknown  Class = iota
	ClassALU          // Arithmetic and logic
	ClassShift        // Shifter
	ClassMul          // Multiplier
	ClassBranch       // PC-relative and control-flow instructions
	ClassIndirect     // Register-target branches
	ClassLoad         // Memory read
	ClassStore        // Memory write
	ClassCSRLoad      // CSR read
	ClassCSRStore     // CSR write
	ClassSystem       // Halt, no-op
)

var classNames = map[Class]string{
	ClassUnknown:  "unknown",
	ClassALU:      "alu",
	ClassShift:    "shift",
	ClassMul:      "mul",
	ClassBranch:   "branch",
	ClassIndirect: "indirect",
	ClassLoad:     "load",
	ClassStore:    "store",
	ClassCSRLoad:  "csr-load",
	ClassCSRStore: "csr-store",
	ClassSystem:   "system",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// IsMemory returns true for classes that access the memory collaborator.
func (c Class) IsMemory() bool {
	return c == ClassLoad || c == ClassStore
}

// IsCSR returns true for classes that access the CSR collaborator.
func (c Class) IsCSR() bool {
	return c == ClassCSRLoad || c == ClassCSRStore
}

// IsControl returns true for classes whose outcome is resolved as a branch.
func (c Class) IsControl() bool {
	return c == ClassBranch || c == ClassIndirect
}

// Op is the sub-opcode within a class.
type Op uint8

// Sub-opcodes.
const (
	OpUnknown Op = iota

	// ALU
	OpADD
	OpSUB
	OpAND
	OpOR
	OpXOR
	OpSLT
	OpSLTU
	OpMOV   // result = b
	OpADDPC // result = pc + b
	OpLINK  // result = fallthrough PC

	// Shifter
	OpSLL
	OpSRL
	OpSRA
	OpROR

	// Multiplier
	OpMUL

	// Branch
	OpJMP      // unconditional PC-relative, optional link
	OpBCond    // conditional on a - b flags
	OpBBitSet  // taken if bit Imm2 of a is set
	OpBBitClr  // taken if bit Imm2 of a is clear
	OpWFI      // wait for interrupt: self-branch
	OpURET     // switch Supervisor -> User
	OpTRAP     // software trap with index Imm

	// Indirect
	OpJR // target = a + Imm, optional link

	// Memory and CSR
	OpLD
	OpST
	OpCSRR
	OpCSRW

	// System
	OpNOP
	OpHALT
)

var opNames = map[Op]string{
	OpUnknown: "unknown",
	OpADD:     "add",
	OpSUB:     "sub",
	OpAND:     "and",
	OpOR:      "or",
	OpXOR:     "xor",
	OpSLT:     "slt",
	OpSLTU:    "sltu",
	OpMOV:     "mov",
	OpADDPC:   "addpc",
	OpLINK:    "link",
	OpSLL:     "sll",
	OpSRL:     "srl",
	OpSRA:     "sra",
	OpROR:     "ror",
	OpMUL:     "mul",
	OpJMP:     "jmp",
	OpBCond:   "b",
	OpBBitSet: "bbs",
	OpBBitClr: "bbc",
	OpWFI:     "wfi",
	OpURET:    "uret",
	OpTRAP:    "trap",
	OpJR:      "jr",
	OpLD:      "ld",
	OpST:      "st",
	OpCSRR:    "csrr",
	OpCSRW:    "csrw",
	OpNOP:     "nop",
	OpHALT:    "halt",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Cond is the condition of a conditional branch, evaluated on a - b.
type Cond uint8

// Branch conditions.
const (
	CondEQ  Cond = iota // a == b
	CondNE              // a != b
	CondLT              // signed a < b
	CondLTU             // unsigned a < b
	CondGE              // signed a >= b
	CondGEU             // unsigned a >= b
)

var condNames = [...]string{"eq", "ne", "lt", "ltu", "ge", "geu"}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return fmt.Sprintf("cond(%d)", uint8(c))
}

// Width is a memory access width in bytes.
type Width uint8

// Access widths.
const (
	WidthByte Width = 1
	WidthHalf Width = 2
	WidthWord Width = 4
)

// Descriptor is one decoded instruction as delivered by the front end.
type Descriptor struct {
	// PC is the address the instruction was fetched from.
	PC uint32

	Class Class
	Op    Op
	Cond  Cond

	// Source registers with validity flags.
	Rs1    uint8
	UseRs1 bool
	Rs2    uint8
	UseRs2 bool

	// Destination register with validity flag.
	Rd    uint8
	UseRd bool

	// Imm is the primary immediate: operand b when UseRs2 is false, the
	// branch offset, the memory offset, the CSR address or the trap index.
	Imm uint32

	// Imm2 is the secondary immediate: the tested bit index of bit-test
	// branches.
	Imm2 uint32

	// Memory access shape.
	Width      Width
	SignExtend bool

	// Length is the instruction length in bytes.
	Length uint32

	// FetchFault marks a descriptor whose fetch violated the address region.
	FetchFault bool

	// Illegal marks a descriptor the front end could not decode.
	Illegal bool
}

// NeedsRegisters returns false for descriptors that bypass the scoreboard.
func (d *Descriptor) NeedsRegisters() bool {
	return !d.FetchFault && !d.Illegal
}

// Faulting returns true if the descriptor carries a front-end fault.
func (d *Descriptor) Faulting() bool {
	return d.FetchFault || d.Illegal
}

// String renders the descriptor in assembler-like syntax.
func (d Descriptor) String() string {
	if d.FetchFault {
		return fmt.Sprintf("%08x: <fetch fault>", d.PC)
	}
	if d.Illegal {
		return fmt.Sprintf("%08x: <illegal>", d.PC)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%08x: %s", d.PC, d.Op)
	if d.Op == OpBCond {
		b.WriteString(d.Cond.String())
	}

	var operands []string
	if d.UseRd {
		operands = append(operands, fmt.Sprintf("r%d", d.Rd))
	}
	if d.UseRs1 {
		operands = append(operands, fmt.Sprintf("r%d", d.Rs1))
	}
	if d.UseRs2 {
		operands = append(operands, fmt.Sprintf("r%d", d.Rs2))
	} else if d.Imm != 0 {
		operands = append(operands, fmt.Sprintf("#%d", int32(d.Imm)))
	}
	if len(operands) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(operands, ", "))
	}

	return b.String()
}
