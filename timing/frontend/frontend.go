// Package frontend provides the reference instruction supplier of the
// pipeline: a program of decoded descriptors fetched by address.
package frontend

import (
	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/insts"
)

// Statistics holds front-end counters.
type Statistics struct {
	Fetched     uint64
	Redirects   uint64
	FetchFaults uint64
	Illegal     uint64
}

// Program delivers descriptors sequentially from a redirect target. In
// User mode the fetch address is translated through the User region, and a
// fetch outside it yields a fetch-fault descriptor. An address holding no
// instruction yields an illegal descriptor.
type Program struct {
	code     map[uint32]insts.Descriptor
	addrCalc *emu.AddressCalculator

	pc      uint32
	level   emu.Level
	started bool

	stats Statistics
}

// New creates a program from an assembled listing.
func New(listing *insts.Listing, region emu.Region) *Program {
	return NewFromDescriptors(listing.Insts, region)
}

// NewFromDescriptors creates a program from descriptors placed at their PC.
func NewFromDescriptors(ds []insts.Descriptor, region emu.Region) *Program {
	code := make(map[uint32]insts.Descriptor, len(ds))
	for _, d := range ds {
		code[d.PC] = d
	}

	return &Program{
		code:     code,
		addrCalc: emu.NewAddressCalculator(region),
	}
}

// fetch builds the descriptor at the current fetch address.
func (p *Program) fetch() insts.Descriptor {
	phys := p.pc
	if p.level == emu.LevelUser {
		r := p.addrCalc.Calculate(emu.AddressInput{
			BaseSelect: emu.BasePC,
			PC:         p.pc,
			Width:      insts.WidthWord,
			Level:      emu.LevelUser,
		})
		if r.AccessFault || r.Misaligned {
			return insts.Descriptor{PC: p.pc, Length: insts.DefaultLength, FetchFault: true}
		}
		phys = r.Physical
	}

	d, ok := p.code[phys]
	if !ok {
		return insts.Descriptor{PC: p.pc, Length: insts.DefaultLength, Illegal: true}
	}
	d.PC = p.pc
	if d.Length == 0 {
		d.Length = insts.DefaultLength
	}

	return d
}

// Peek returns the descriptor at the fetch address.
func (p *Program) Peek() (insts.Descriptor, bool) {
	if !p.started {
		return insts.Descriptor{}, false
	}
	return p.fetch(), true
}

// Accept consumes the offered descriptor and advances sequentially.
func (p *Program) Accept() {
	if !p.started {
		return
	}

	d := p.fetch()
	switch {
	case d.FetchFault:
		p.stats.FetchFaults++
	case d.Illegal:
		p.stats.Illegal++
	}
	p.stats.Fetched++
	p.pc += d.Length
}

// Redirect restarts fetch at pc in the given level.
func (p *Program) Redirect(pc uint32, level emu.Level) {
	p.pc = pc
	p.level = level
	p.started = true
	p.stats.Redirects++
}

// PC returns the next fetch address.
func (p *Program) PC() uint32 {
	return p.pc
}

// Stats returns front-end statistics.
func (p *Program) Stats() Statistics {
	return p.stats
}
