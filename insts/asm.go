package insts

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is returned (wrapped with the line number) for malformed source.
var ErrSyntax = errors.New("syntax error")

// Listing is the output of the assembler.
type Listing struct {
	// Insts holds the assembled descriptors in program order.
	Insts []Descriptor

	// Labels maps label names to addresses.
	Labels map[string]uint32

	// Data holds initial memory words from .data directives, by address.
	Data map[uint32]uint32

	// Entry is the address of the first instruction.
	Entry uint32
}

type sourceLine struct {
	num      int
	pc       uint32
	mnemonic string
	args     []string
}

// Assemble translates assembly source into a descriptor listing. Instructions
// are placed starting at origin unless an .org directive moves the location
// counter.
func Assemble(src string, origin uint32) (*Listing, error) {
	listing := &Listing{
		Labels: make(map[string]uint32),
		Data:   make(map[uint32]uint32),
		Entry:  origin,
	}

	lines, err := firstPass(src, origin, listing)
	if err != nil {
		return nil, err
	}

	for _, l := range lines {
		d, err := assembleLine(l, listing.Labels)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", l.num, err)
		}
		listing.Insts = append(listing.Insts, d)
	}

	if len(listing.Insts) > 0 {
		listing.Entry = listing.Insts[0].PC
	}

	return listing, nil
}

// firstPass assigns addresses, records labels and handles directives.
func firstPass(src string, origin uint32, listing *Listing) ([]sourceLine, error) {
	var lines []sourceLine
	pc := origin

	scanner := bufio.NewScanner(strings.NewReader(src))
	num := 0
	for scanner.Scan() {
		num++
		text := stripComment(scanner.Text())

		for {
			idx := strings.Index(text, ":")
			if idx < 0 {
				break
			}
			label := strings.TrimSpace(text[:idx])
			if label == "" || strings.ContainsAny(label, " \t,") {
				return nil, fmt.Errorf("line %d: bad label %q: %w", num, label, ErrSyntax)
			}
			if _, dup := listing.Labels[label]; dup {
				return nil, fmt.Errorf("line %d: duplicate label %q: %w", num, label, ErrSyntax)
			}
			listing.Labels[label] = pc
			text = text[idx+1:]
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		mnemonic, args := splitOperands(text)
		switch mnemonic {
		case ".org":
			if len(args) != 1 {
				return nil, fmt.Errorf("line %d: .org takes one address: %w", num, ErrSyntax)
			}
			addr, err := parseNumber(args[0])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", num, err)
			}
			pc = addr
		case ".data":
			if len(args) < 2 {
				return nil, fmt.Errorf("line %d: .data takes an address and values: %w", num, ErrSyntax)
			}
			addr, err := parseNumber(args[0])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", num, err)
			}
			for i, a := range args[1:] {
				v, err := parseNumber(a)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", num, err)
				}
				listing.Data[addr+uint32(i)*4] = v
			}
		default:
			lines = append(lines, sourceLine{num: num, pc: pc, mnemonic: mnemonic, args: args})
			pc += DefaultLength
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}

	return lines, nil
}

func stripComment(s string) string {
	if idx := strings.Index(s, ";"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, "//"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

func splitOperands(text string) (string, []string) {
	fields := strings.SplitN(text, " ", 2)
	mnemonic := strings.ToLower(strings.TrimSpace(fields[0]))
	if len(fields) == 1 {
		return mnemonic, nil
	}

	var args []string
	for _, a := range strings.Split(fields[1], ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			args = append(args, a)
		}
	}
	return mnemonic, args
}

var aluOps = map[string]Op{
	"add": OpADD, "sub": OpSUB, "and": OpAND, "or": OpOR, "xor": OpXOR,
	"slt": OpSLT, "sltu": OpSLTU,
}

var shiftOps = map[string]Op{
	"sll": OpSLL, "srl": OpSRL, "sra": OpSRA, "ror": OpROR,
}

var branchConds = map[string]Cond{
	"beq": CondEQ, "bne": CondNE, "blt": CondLT, "bltu": CondLTU,
	"bge": CondGE, "bgeu": CondGEU,
}

type memShape struct {
	width Width
	sign  bool
}

var loadShapes = map[string]memShape{
	"lw": {WidthWord, false}, "lh": {WidthHalf, true}, "lhu": {WidthHalf, false},
	"lb": {WidthByte, true}, "lbu": {WidthByte, false},
}

var storeShapes = map[string]memShape{
	"sw": {WidthWord, false}, "sh": {WidthHalf, false}, "sb": {WidthByte, false},
}

// assembleLine converts one instruction line into a descriptor.
func assembleLine(l sourceLine, labels map[string]uint32) (Descriptor, error) {
	d := Descriptor{PC: l.pc, Length: DefaultLength}
	m := l.mnemonic
	args := l.args

	if op, ok := aluOps[m]; ok {
		d.Class, d.Op = ClassALU, op
		return d, threeReg(&d, args)
	}
	if op, ok := aluOps[strings.TrimSuffix(m, "i")]; ok && strings.HasSuffix(m, "i") {
		d.Class, d.Op = ClassALU, op
		return d, regRegImm(&d, args, labels)
	}
	if op, ok := shiftOps[m]; ok {
		d.Class, d.Op = ClassShift, op
		return d, threeReg(&d, args)
	}
	if op, ok := shiftOps[strings.TrimSuffix(m, "i")]; ok && strings.HasSuffix(m, "i") {
		d.Class, d.Op = ClassShift, op
		return d, regRegImm(&d, args, labels)
	}
	if cond, ok := branchConds[m]; ok {
		d.Class, d.Op, d.Cond = ClassBranch, OpBCond, cond
		if err := wantArgs(args, 3); err != nil {
			return d, err
		}
		if err := setSources(&d, args[0], args[1]); err != nil {
			return d, err
		}
		return d, setBranchOffset(&d, args[2], labels)
	}
	if shape, ok := loadShapes[m]; ok {
		d.Class, d.Op = ClassLoad, OpLD
		d.Width, d.SignExtend = shape.width, shape.sign
		if err := wantArgs(args, 2); err != nil {
			return d, err
		}
		if err := setDest(&d, args[0]); err != nil {
			return d, err
		}
		return d, setMemOperand(&d, args[1], labels)
	}
	if shape, ok := storeShapes[m]; ok {
		d.Class, d.Op = ClassStore, OpST
		d.Width = shape.width
		if err := wantArgs(args, 2); err != nil {
			return d, err
		}
		r, err := parseRegister(args[0])
		if err != nil {
			return d, err
		}
		d.Rs2, d.UseRs2 = r, true
		return d, setMemOperand(&d, args[1], labels)
	}

	switch m {
	case "mov":
		d.Class, d.Op = ClassALU, OpMOV
		if err := wantArgs(args, 2); err != nil {
			return d, err
		}
		if err := setDest(&d, args[0]); err != nil {
			return d, err
		}
		r, err := parseRegister(args[1])
		if err != nil {
			return d, err
		}
		d.Rs2, d.UseRs2 = r, true
		return d, nil
	case "li":
		d.Class, d.Op = ClassALU, OpMOV
		if err := wantArgs(args, 2); err != nil {
			return d, err
		}
		if err := setDest(&d, args[0]); err != nil {
			return d, err
		}
		v, err := parseValue(args[1], labels)
		d.Imm = v
		return d, err
	case "addpc":
		d.Class, d.Op = ClassALU, OpADDPC
		if err := wantArgs(args, 2); err != nil {
			return d, err
		}
		if err := setDest(&d, args[0]); err != nil {
			return d, err
		}
		return d, setBranchOffset(&d, args[1], labels)
	case "mul":
		d.Class, d.Op = ClassMul, OpMUL
		return d, threeReg(&d, args)
	case "bbs", "bbc":
		d.Class, d.Op = ClassBranch, OpBBitSet
		if m == "bbc" {
			d.Op = OpBBitClr
		}
		if err := wantArgs(args, 3); err != nil {
			return d, err
		}
		r, err := parseRegister(args[0])
		if err != nil {
			return d, err
		}
		d.Rs1, d.UseRs1 = r, true
		bit, err := parseNumber(args[1])
		if err != nil {
			return d, err
		}
		if bit > 31 {
			return d, fmt.Errorf("bit index %d out of range: %w", bit, ErrSyntax)
		}
		d.Imm2 = bit
		return d, setBranchOffset(&d, args[2], labels)
	case "j":
		d.Class, d.Op = ClassBranch, OpJMP
		if err := wantArgs(args, 1); err != nil {
			return d, err
		}
		return d, setBranchOffset(&d, args[0], labels)
	case "jal":
		d.Class, d.Op = ClassBranch, OpJMP
		if err := wantArgs(args, 2); err != nil {
			return d, err
		}
		if err := setDest(&d, args[0]); err != nil {
			return d, err
		}
		return d, setBranchOffset(&d, args[1], labels)
	case "jr":
		d.Class, d.Op = ClassIndirect, OpJR
		if len(args) < 1 || len(args) > 2 {
			return d, fmt.Errorf("jr takes a register and an optional offset: %w", ErrSyntax)
		}
		return d, setIndirect(&d, args, labels)
	case "jalr":
		d.Class, d.Op = ClassIndirect, OpJR
		if len(args) < 2 || len(args) > 3 {
			return d, fmt.Errorf("jalr takes rd, rs and an optional offset: %w", ErrSyntax)
		}
		if err := setDest(&d, args[0]); err != nil {
			return d, err
		}
		return d, setIndirect(&d, args[1:], labels)
	case "csrr":
		d.Class, d.Op, d.Width = ClassCSRLoad, OpCSRR, WidthWord
		if err := wantArgs(args, 2); err != nil {
			return d, err
		}
		if err := setDest(&d, args[0]); err != nil {
			return d, err
		}
		v, err := parseNumber(args[1])
		d.Imm = v
		return d, err
	case "csrw":
		d.Class, d.Op, d.Width = ClassCSRStore, OpCSRW, WidthWord
		if err := wantArgs(args, 2); err != nil {
			return d, err
		}
		v, err := parseNumber(args[0])
		if err != nil {
			return d, err
		}
		d.Imm = v
		r, err := parseRegister(args[1])
		if err != nil {
			return d, err
		}
		d.Rs2, d.UseRs2 = r, true
		return d, nil
	case "wfi":
		d.Class, d.Op = ClassBranch, OpWFI
		return d, wantArgs(args, 0)
	case "uret":
		d.Class, d.Op = ClassBranch, OpURET
		if len(args) > 1 {
			return d, fmt.Errorf("uret takes an optional register: %w", ErrSyntax)
		}
		if len(args) == 1 {
			r, err := parseRegister(args[0])
			if err != nil {
				return d, err
			}
			d.Rs1, d.UseRs1 = r, true
		}
		return d, nil
	case "trap":
		d.Class, d.Op = ClassBranch, OpTRAP
		if err := wantArgs(args, 1); err != nil {
			return d, err
		}
		v, err := parseNumber(args[0])
		d.Imm = v
		return d, err
	case "nop":
		d.Class, d.Op = ClassSystem, OpNOP
		return d, wantArgs(args, 0)
	case "halt":
		d.Class, d.Op = ClassSystem, OpHALT
		return d, wantArgs(args, 0)
	}

	return d, fmt.Errorf("unknown mnemonic %q: %w", m, ErrSyntax)
}

func wantArgs(args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("expected %d operands, got %d: %w", n, len(args), ErrSyntax)
	}
	return nil
}

func threeReg(d *Descriptor, args []string) error {
	if err := wantArgs(args, 3); err != nil {
		return err
	}
	if err := setDest(d, args[0]); err != nil {
		return err
	}
	return setSources(d, args[1], args[2])
}

func regRegImm(d *Descriptor, args []string, labels map[string]uint32) error {
	if err := wantArgs(args, 3); err != nil {
		return err
	}
	if err := setDest(d, args[0]); err != nil {
		return err
	}
	r, err := parseRegister(args[1])
	if err != nil {
		return err
	}
	d.Rs1, d.UseRs1 = r, true
	v, err := parseValue(args[2], labels)
	d.Imm = v
	return err
}

func setDest(d *Descriptor, arg string) error {
	r, err := parseRegister(arg)
	if err != nil {
		return err
	}
	d.Rd, d.UseRd = r, true
	return nil
}

func setSources(d *Descriptor, a, b string) error {
	r1, err := parseRegister(a)
	if err != nil {
		return err
	}
	r2, err := parseRegister(b)
	if err != nil {
		return err
	}
	d.Rs1, d.UseRs1 = r1, true
	d.Rs2, d.UseRs2 = r2, true
	return nil
}

func setBranchOffset(d *Descriptor, arg string, labels map[string]uint32) error {
	target, err := parseValue(arg, labels)
	if err != nil {
		return err
	}
	d.Imm = target - d.PC
	return nil
}

func setIndirect(d *Descriptor, args []string, labels map[string]uint32) error {
	r, err := parseRegister(args[0])
	if err != nil {
		return err
	}
	d.Rs1, d.UseRs1 = r, true
	if len(args) == 2 {
		v, err := parseValue(args[1], labels)
		if err != nil {
			return err
		}
		d.Imm = v
	}
	return nil
}

// setMemOperand parses "offset(rN)" or "(rN)".
func setMemOperand(d *Descriptor, arg string, labels map[string]uint32) error {
	open := strings.Index(arg, "(")
	if open < 0 || !strings.HasSuffix(arg, ")") {
		return fmt.Errorf("bad memory operand %q: %w", arg, ErrSyntax)
	}
	r, err := parseRegister(arg[open+1 : len(arg)-1])
	if err != nil {
		return err
	}
	d.Rs1, d.UseRs1 = r, true

	if off := strings.TrimSpace(arg[:open]); off != "" {
		v, err := parseValue(off, labels)
		if err != nil {
			return err
		}
		d.Imm = v
	}
	return nil
}

func parseRegister(s string) (uint8, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "r") {
		return 0, fmt.Errorf("bad register %q: %w", s, ErrSyntax)
	}
	n, err := strconv.ParseUint(s[1:], 10, 8)
	if err != nil || n >= NumRegisters {
		return 0, fmt.Errorf("bad register %q: %w", s, ErrSyntax)
	}
	return uint8(n), nil
}

// parseValue accepts a number or a label.
func parseValue(s string, labels map[string]uint32) (uint32, error) {
	if v, ok := labels[strings.TrimSpace(s)]; ok {
		return v, nil
	}
	return parseNumber(s)
}

func parseNumber(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q: %w", s, ErrSyntax)
	}
	if v < -(1<<31) || v > (1<<32)-1 {
		return 0, fmt.Errorf("number %q out of range: %w", s, ErrSyntax)
	}
	return uint32(v), nil
}
