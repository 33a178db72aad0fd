// Package scoreboard provides the register store with per-register
// reservations that the issue logic uses to resolve data hazards.
//
// The store has two read ports, one write (commit) port and one reservation
// bit per register. A tick has two phases: during the tick, reads are
// serviced against the pre-tick state with an overlay of the commit staged
// for the same tick; at the tick boundary, Tick applies the staged commit.
package scoreboard

import (
	"errors"
	"fmt"

	"github.com/sarchlab/sbcore/insts"
)

// NumRegisters is the number of registers in the store.
const NumRegisters = insts.NumRegisters

// ErrBadRegister is returned for register addresses outside 0..14.
var ErrBadRegister = errors.New("register address out of range")

// ErrCommitPortBusy is returned when a second commit is staged in one tick.
var ErrCommitPortBusy = errors.New("commit port already used this tick")

// Port is one read or reservation target of a request.
type Port struct {
	Valid bool
	Addr  uint8
}

// Request is one issue-side access: up to two reads and one reservation.
type Request struct {
	Read1   Port
	Read2   Port
	Reserve Port
}

// Grant carries the data serviced for a granted request.
type Grant struct {
	Read1Data uint32
	Read2Data uint32
}

// Commit clears the reservation on Addr and, if DataValid, writes Data.
type Commit struct {
	Addr      uint8
	Data      uint32
	DataValid bool
}

// Statistics holds scoreboard counters.
type Statistics struct {
	Grants       uint64
	Refusals     uint64
	ReadBlocks   uint64
	ReserveBlock uint64
	Forwards     uint64
	Commits      uint64
	ClearOnly    uint64
}

// Scoreboard is the 15-entry register store with reservations.
type Scoreboard struct {
	values   [NumRegisters]uint32
	reserved [NumRegisters]bool

	staged    Commit
	hasStaged bool

	stats Statistics
}

// New creates a scoreboard with all registers zero and unreserved.
func New() *Scoreboard {
	return &Scoreboard{}
}

// Validate checks every valid port of r.
func (r Request) Validate() error {
	for _, p := range []Port{r.Read1, r.Read2, r.Reserve} {
		if p.Valid && p.Addr >= NumRegisters {
			return fmt.Errorf("r%d: %w", p.Addr, ErrBadRegister)
		}
	}
	return nil
}

// StageCommit records the commit for the current tick. Reads serviced later
// in the same tick observe it; Tick applies it.
func (s *Scoreboard) StageCommit(c Commit) error {
	if c.Addr >= NumRegisters {
		return fmt.Errorf("commit r%d: %w", c.Addr, ErrBadRegister)
	}
	if s.hasStaged {
		return ErrCommitPortBusy
	}
	s.staged = c
	s.hasStaged = true
	return nil
}

// clearingThisTick returns true if the staged commit releases addr.
func (s *Scoreboard) clearingThisTick(addr uint8) bool {
	return s.hasStaged && s.staged.Addr == addr
}

// readBlocked returns true if a read of p would observe a pending write that
// does not complete this tick.
func (s *Scoreboard) readBlocked(p Port) bool {
	return p.Valid && s.reserved[p.Addr] && !s.clearingThisTick(p.Addr)
}

// read services one read port with same-tick forwarding.
func (s *Scoreboard) read(p Port) uint32 {
	if !p.Valid {
		return 0
	}
	if s.clearingThisTick(p.Addr) && s.staged.DataValid {
		s.stats.Forwards++
		return s.staged.Data
	}
	return s.values[p.Addr]
}

// Request attempts an issue-side access. It is all or nothing: either every
// read is serviced and the reservation is taken, or nothing changes and the
// caller must present the same request again next tick.
func (s *Scoreboard) Request(r Request) (Grant, bool) {
	if err := r.Validate(); err != nil {
		s.stats.Refusals++
		return Grant{}, false
	}

	if s.readBlocked(r.Read1) || s.readBlocked(r.Read2) {
		s.stats.ReadBlocks++
		s.stats.Refusals++
		return Grant{}, false
	}

	if r.Reserve.Valid && s.reserved[r.Reserve.Addr] {
		s.stats.ReserveBlock++
		s.stats.Refusals++
		return Grant{}, false
	}

	g := Grant{
		Read1Data: s.read(r.Read1),
		Read2Data: s.read(r.Read2),
	}

	if r.Reserve.Valid {
		s.reserved[r.Reserve.Addr] = true
	}
	s.stats.Grants++

	return g, true
}

// Tick applies the staged commit and opens the commit port for the next
// tick. It returns the applied commit, if any.
func (s *Scoreboard) Tick() (Commit, bool) {
	if !s.hasStaged {
		return Commit{}, false
	}

	c := s.staged
	s.reserved[c.Addr] = false
	if c.DataValid {
		s.values[c.Addr] = c.Data
	} else {
		s.stats.ClearOnly++
	}
	s.stats.Commits++

	s.staged = Commit{}
	s.hasStaged = false

	return c, true
}

// Reserved returns true if addr has an outstanding reservation.
func (s *Scoreboard) Reserved(addr uint8) bool {
	return addr < NumRegisters && s.reserved[addr]
}

// Value returns the stored value of addr.
func (s *Scoreboard) Value(addr uint8) uint32 {
	if addr >= NumRegisters {
		return 0
	}
	return s.values[addr]
}

// SetValue initializes a register outside the tick protocol.
func (s *Scoreboard) SetValue(addr uint8, v uint32) {
	if addr < NumRegisters {
		s.values[addr] = v
	}
}

// ReservedCount returns the number of reserved registers.
func (s *Scoreboard) ReservedCount() int {
	n := 0
	for _, r := range s.reserved {
		if r {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of all register values.
func (s *Scoreboard) Snapshot() [NumRegisters]uint32 {
	return s.values
}

// Stats returns scoreboard statistics.
func (s *Scoreboard) Stats() Statistics {
	return s.stats
}

// Reset clears all values, reservations and statistics.
func (s *Scoreboard) Reset() {
	*s = Scoreboard{}
}
