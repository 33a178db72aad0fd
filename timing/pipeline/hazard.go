package pipeline

import (
	"github.com/sarchlab/sbcore/insts"
	"github.com/sarchlab/sbcore/timing/latency"
)

// Refusal is the reason admission into Stage 1 was refused.
type Refusal uint8

// Admission refusals.
const (
	RefuseNone Refusal = iota
	// RefuseRedirect: Stage 2 is redirecting fetch this tick.
	RefuseRedirect
	// RefuseShadow: a control instruction entered Stage 2 last tick and is
	// resolving now.
	RefuseShadow
	// RefuseMultiplier: the multiplier is still held by an earlier multiply.
	RefuseMultiplier
	// RefuseStage1: Stage 1 cannot take a new instruction.
	RefuseStage1
)

func (r Refusal) String() string {
	switch r {
	case RefuseNone:
		return "none"
	case RefuseRedirect:
		return "redirect"
	case RefuseShadow:
		return "branch-shadow"
	case RefuseMultiplier:
		return "multiplier"
	case RefuseStage1:
		return "stage1-busy"
	}
	return "unknown"
}

// AdmissionControl decides, before the scoreboard is asked, whether an
// instruction may enter Stage 1 this tick.
type AdmissionControl struct {
	table *latency.Table

	shadow     bool
	shadowNext bool

	mulBusyUntil uint64
}

// NewAdmissionControl creates admission control using table for unit
// occupancy.
func NewAdmissionControl(table *latency.Table) *AdmissionControl {
	return &AdmissionControl{table: table}
}

// Check returns the reason d may not be admitted at cycle, or RefuseNone.
func (a *AdmissionControl) Check(d *insts.Descriptor, cycle uint64, redirecting bool) Refusal {
	if redirecting {
		return RefuseRedirect
	}
	if a.shadow {
		return RefuseShadow
	}
	if a.table.OccupiesUnit(d) && cycle < a.mulBusyUntil {
		return RefuseMultiplier
	}
	return RefuseNone
}

// Admitted records the admission of d at cycle.
func (a *AdmissionControl) Admitted(d *insts.Descriptor, cycle uint64) {
	if a.table.OccupiesUnit(d) {
		a.mulBusyUntil = cycle + a.table.GetLatency(d)
	}
}

// ControlAccepted records that Stage 2 took a control instruction this
// tick. Admission is refused for the whole of the next tick.
func (a *AdmissionControl) ControlAccepted() {
	a.shadowNext = true
}

// InShadow returns true if admission is refused this tick for a resolving
// control instruction.
func (a *AdmissionControl) InShadow() bool {
	return a.shadow
}

// Tick moves to the next cycle.
func (a *AdmissionControl) Tick() {
	a.shadow = a.shadowNext
	a.shadowNext = false
}

// Reset clears all holds.
func (a *AdmissionControl) Reset() {
	a.shadow = false
	a.shadowNext = false
	a.mulBusyUntil = 0
}
