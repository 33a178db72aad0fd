package pipeline

import (
	"errors"
	"fmt"

	"github.com/sarchlab/sbcore/emu"
)

// Cause identifies why an exception was taken. The low byte is the cause
// kind; for software traps the remaining bits carry the trap index.
type Cause uint32

// Cause kinds.
const (
	CauseNone        Cause = 0
	CauseFetchFault  Cause = 1
	CauseIllegal     Cause = 2
	CauseAccessFault Cause = 3
	CauseMisaligned  Cause = 4
	CauseTrap        Cause = 5
	CauseInterrupt   Cause = 6
)

var causeNames = map[Cause]string{
	CauseNone:        "none",
	CauseFetchFault:  "fetch-fault",
	CauseIllegal:     "illegal",
	CauseAccessFault: "access-fault",
	CauseMisaligned:  "misaligned",
	CauseTrap:        "trap",
	CauseInterrupt:   "interrupt",
}

// TrapCause returns the cause of a software trap with the given index.
func TrapCause(index uint32) Cause {
	return CauseTrap | Cause(index<<8)
}

// Kind returns the cause without its trap index.
func (c Cause) Kind() Cause {
	return c & 0xFF
}

// TrapIndex returns the index of a software trap.
func (c Cause) TrapIndex() uint32 {
	return uint32(c) >> 8
}

func (c Cause) String() string {
	name, ok := causeNames[c.Kind()]
	if !ok {
		name = fmt.Sprintf("cause(%d)", uint32(c.Kind()))
	}
	if c.Kind() == CauseTrap {
		return fmt.Sprintf("%s %d", name, c.TrapIndex())
	}
	return name
}

// NestedFaultPolicy decides what happens when an exception is raised while
// already in Supervisor mode.
type NestedFaultPolicy uint8

// Nested fault policies.
const (
	// NestedFaultHalt stops the core and reports ErrNestedFault. It is the
	// zero value and the configured default. The architecture leaves a fault
	// in Supervisor mode undefined; halting is a choice of this model, not a
	// defined behaviour, so software should not rely on it.
	NestedFaultHalt NestedFaultPolicy = iota
	// NestedFaultRevector reloads the Supervisor counter from the vector.
	NestedFaultRevector
)

// ErrNestedFault is reported when an exception is raised in Supervisor mode
// under NestedFaultHalt.
var ErrNestedFault = errors.New("exception raised in supervisor mode")

// ParseNestedFaultPolicy converts a configuration name.
func ParseNestedFaultPolicy(name string) (NestedFaultPolicy, error) {
	switch name {
	case "", "halt":
		return NestedFaultHalt, nil
	case "revector":
		return NestedFaultRevector, nil
	}
	return NestedFaultHalt, fmt.Errorf("unknown nested fault policy %q", name)
}

// EventKind classifies what a retiring instruction does to the mode state.
type EventKind uint8

// Mode events.
const (
	// EventRetire advances the active counter past the instruction.
	EventRetire EventKind = iota
	// EventBranch loads the active counter with Target.
	EventBranch
	// EventException enters Supervisor mode at Target.
	EventException
	// EventEnterUser switches to User mode at Target.
	EventEnterUser
)

// ModeEvent is one update of the mode state.
type ModeEvent struct {
	Kind      EventKind
	Length    uint32
	Target    uint32
	Cause     Cause
	FaultAddr uint32
}

// ModeState is the privilege level with one program counter per level.
// It is a value; Apply returns the successor state.
type ModeState struct {
	Level        emu.Level
	SupervisorPC uint32
	UserPC       uint32

	PendingCause     Cause
	PendingFaultAddr uint32

	// IRQLatched records an interrupt asserted while in Supervisor mode.
	IRQLatched bool
}

// ActivePC returns the counter of the current level.
func (m ModeState) ActivePC() uint32 {
	if m.Level == emu.LevelUser {
		return m.UserPC
	}
	return m.SupervisorPC
}

func (m ModeState) withActivePC(pc uint32) ModeState {
	if m.Level == emu.LevelUser {
		m.UserPC = pc
	} else {
		m.SupervisorPC = pc
	}
	return m
}

// Apply returns the state after e. Only the counter of the level being
// executed or entered changes; the counter of a level being left keeps
// pointing at the instruction that left it.
func (m ModeState) Apply(e ModeEvent) ModeState {
	switch e.Kind {
	case EventRetire:
		return m.withActivePC(m.ActivePC() + e.Length)

	case EventBranch:
		return m.withActivePC(e.Target)

	case EventException:
		m.Level = emu.LevelSupervisor
		m.SupervisorPC = e.Target
		m.PendingCause = e.Cause
		m.PendingFaultAddr = e.FaultAddr
		if e.Cause.Kind() == CauseInterrupt {
			m.IRQLatched = false
		}
		return m

	case EventEnterUser:
		m.Level = emu.LevelUser
		m.UserPC = e.Target
		return m
	}

	return m
}

// LatchIRQ returns the state with the interrupt latch set.
func (m ModeState) LatchIRQ() ModeState {
	m.IRQLatched = true
	return m
}

func (m ModeState) String() string {
	return fmt.Sprintf("%s spc=%08x upc=%08x cause=%s",
		m.Level, m.SupervisorPC, m.UserPC, m.PendingCause)
}

// VectorFor returns the Supervisor entry point for cause.
func VectorFor(base, stride uint32, cause Cause) uint32 {
	return base + uint32(cause.Kind())*stride
}
