package emu

import "github.com/sarchlab/sbcore/insts"

// Level is a privilege level.
type Level uint8

// Privilege levels.
const (
	LevelSupervisor Level = iota
	LevelUser
)

func (l Level) String() string {
	if l == LevelUser {
		return "user"
	}
	return "supervisor"
}

// Region is the physical window User-mode addresses are translated into.
// User effective address e maps to Base + e and must stay below Limit.
type Region struct {
	Base  uint32
	Limit uint32
}

// Size returns the number of bytes addressable from User mode.
func (r Region) Size() uint32 {
	if r.Limit <= r.Base {
		return 0
	}
	return r.Limit - r.Base
}

// BaseSelect chooses the base of an address computation.
type BaseSelect uint8

// Address bases.
const (
	BaseRegister BaseSelect = iota
	BasePC
	BaseZero
)

// AddressInput holds the operands of an address computation.
type AddressInput struct {
	BaseSelect BaseSelect
	Reg        uint32
	PC         uint32

	// Offset is the immediate added to the base.
	Offset uint32

	Width insts.Width
	Level Level

	// CSR marks an access to the CSR space, which is not translated and is
	// only reachable from Supervisor mode.
	CSR bool
}

// AddressResult is the output of an address computation.
type AddressResult struct {
	Effective   uint32
	Physical    uint32
	AccessFault bool
	Misaligned  bool
}

// AddressCalculator computes effective and physical addresses and detects
// access violations against the User region.
type AddressCalculator struct {
	region Region
}

// NewAddressCalculator creates an AddressCalculator for the given User
// region.
func NewAddressCalculator(region Region) *AddressCalculator {
	return &AddressCalculator{region: region}
}

// Region returns the User region.
func (c *AddressCalculator) Region() Region {
	return c.region
}

// SetRegion replaces the User region bounds.
func (c *AddressCalculator) SetRegion(region Region) {
	c.region = region
}

// Calculate computes the address described by in.
func (c *AddressCalculator) Calculate(in AddressInput) AddressResult {
	var base uint32
	switch in.BaseSelect {
	case BaseRegister:
		base = in.Reg
	case BasePC:
		base = in.PC
	}

	eff := base + in.Offset
	res := AddressResult{Effective: eff, Physical: eff}

	if in.CSR {
		res.AccessFault = in.Level == LevelUser
		return res
	}

	width := uint32(in.Width)
	if width == 0 {
		width = 1
	}
	res.Misaligned = eff%width != 0

	if in.Level == LevelSupervisor {
		return res
	}

	res.Physical = c.region.Base + eff
	if uint64(eff)+uint64(width) > uint64(c.region.Size()) {
		res.AccessFault = true
	}

	return res
}
