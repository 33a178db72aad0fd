package pipeline

import (
	"fmt"

	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/insts"
	"github.com/sarchlab/sbcore/timing/csr"
	"github.com/sarchlab/sbcore/timing/membus"
	"github.com/sarchlab/sbcore/timing/scoreboard"
)

// tickStage2 resolves the slot in Stage 2. It returns true if Stage 2 is
// free to take a new slot at the end of the tick.
func (p *Pipeline) tickStage2(irq bool) bool {
	slot := &p.s2
	if !slot.Valid {
		return true
	}

	if slot.Epoch != p.epoch {
		p.squash(slot)
		return true
	}

	if !slot.Resolved {
		if cause, addr := p.detectException(slot, irq); cause != CauseNone {
			p.raise(slot, cause, addr)
			return true
		}
		slot.Resolved = true
	}

	value, done := p.access(slot)
	if !done {
		return false
	}

	p.retire(slot, value, irq)
	return true
}

// detectException returns the highest-priority exception of slot and the
// address reported with it.
func (p *Pipeline) detectException(slot *Slot, irq bool) (Cause, uint32) {
	d := &slot.Desc

	switch {
	case d.FetchFault:
		return CauseFetchFault, d.PC
	case d.Illegal:
		return CauseIllegal, d.PC
	}

	if (d.Class.IsMemory() || d.Class.IsCSR()) && slot.Addr.AccessFault {
		return CauseAccessFault, slot.Addr.Effective
	}
	if d.Class.IsMemory() && slot.Addr.Misaligned {
		return CauseMisaligned, slot.Addr.Effective
	}
	if d.Op == insts.OpTRAP {
		return TrapCause(d.Imm), d.PC
	}
	// A waiting WFI retires before the interrupt is taken.
	if d.Op != insts.OpWFI && p.interruptPending(irq) {
		return CauseInterrupt, d.PC
	}

	return CauseNone, 0
}

// access performs the memory, CSR or multiplier part of slot. It returns
// false while Stage 2 must wait. The request is sent at most once.
func (p *Pipeline) access(slot *Slot) (uint32, bool) {
	d := &slot.Desc

	switch d.Class {
	case insts.ClassLoad:
		if !slot.ReqIssued {
			req := membus.Request{Addr: slot.Addr.Physical, Width: d.Width}
			if !p.memory.Send(req) {
				p.stats.MemStalls++
				return 0, false
			}
			slot.ReqIssued = true
		}
		resp, ok := p.memory.Receive()
		if !ok {
			p.stats.MemStalls++
			return 0, false
		}
		return emu.ExtendLoad(resp.Data, d.Width, d.SignExtend), true

	case insts.ClassStore:
		req := membus.Request{
			Write: true,
			Addr:  slot.Addr.Physical,
			Data:  slot.StoreData,
			Width: d.Width,
		}
		if !p.memory.Send(req) {
			p.stats.MemStalls++
			return 0, false
		}
		return 0, true

	case insts.ClassCSRLoad:
		if !slot.ReqIssued {
			if !p.csr.Send(csr.Request{Addr: slot.Addr.Effective}) {
				p.stats.CSRStalls++
				return 0, false
			}
			slot.ReqIssued = true
		}
		resp, ok := p.csr.Receive()
		if !ok {
			p.stats.CSRStalls++
			return 0, false
		}
		return resp.Data, true

	case insts.ClassCSRStore:
		req := csr.Request{Write: true, Addr: slot.Addr.Effective, Data: slot.StoreData}
		if !p.csr.Send(req) {
			p.stats.CSRStalls++
			return 0, false
		}
		return 0, true

	case insts.ClassMul:
		v, ok := p.multiplier.Result()
		if !ok {
			p.stats.ExecStalls++
			return 0, false
		}
		p.multiplier.Pop()
		return v, true
	}

	return slot.Value, true
}

// resolveBranch decides a control instruction and returns its mode event.
func (p *Pipeline) resolveBranch(slot *Slot, irq bool) (bool, ModeEvent) {
	d := &slot.Desc
	next := ModeEvent{Kind: EventRetire, Length: d.Length}

	var taken bool
	switch d.Op {
	case insts.OpJMP, insts.OpJR:
		taken = true
	case insts.OpBCond:
		taken = emu.CheckCondition(d.Cond, slot.Flags)
	case insts.OpBBitSet:
		taken = slot.BitSet
	case insts.OpBBitClr:
		taken = !slot.BitSet
	case insts.OpWFI:
		taken = !p.interruptPending(irq)
	case insts.OpURET:
		if p.mode.Level != emu.LevelSupervisor {
			return false, next
		}
		target := p.mode.UserPC
		if d.UseRs1 {
			target = slot.A
		}
		return true, ModeEvent{Kind: EventEnterUser, Target: target}
	}

	if !taken {
		return false, next
	}
	return true, ModeEvent{Kind: EventBranch, Target: slot.Target}
}

func (p *Pipeline) retire(slot *Slot, value uint32, irq bool) {
	d := &slot.Desc
	level := p.mode.Level

	event := ModeEvent{Kind: EventRetire, Length: d.Length}
	taken := false
	if d.Class.IsControl() {
		p.stats.Branches++
		taken, event = p.resolveBranch(slot, irq)
	}
	wake := d.Op == insts.OpWFI && !taken

	if slot.Reserved {
		p.stageCommit(scoreboard.Commit{Addr: d.Rd, Data: value, DataValid: true})
	}

	p.mode = p.mode.Apply(event)
	if taken {
		p.stats.BranchesTaken++
		p.redirect()
	}
	p.stats.Instructions++

	rec := CommitRecord{
		Seq:   slot.Seq,
		PC:    d.PC,
		Op:    d.Op,
		Rd:    d.Rd,
		Data:  value,
		Wrote: slot.Reserved,
		Taken: taken,
		Level: level,
	}
	if wake {
		// The handler resumes after the WFI.
		p.countException(CauseInterrupt)
		p.enterVector(CauseInterrupt, p.mode.UserPC)
		rec.Cause, rec.Taken = CauseInterrupt, true
	}
	p.record(rec)

	if d.Class == insts.ClassSystem && d.Op == insts.OpHALT {
		p.stop(nil)
	}

	slot.Clear()
}

// raise takes an exception on slot: its reservation is cleared without
// data and Supervisor mode is entered at the cause's vector.
func (p *Pipeline) raise(slot *Slot, cause Cause, addr uint32) {
	d := &slot.Desc
	level := p.mode.Level

	p.countException(cause)
	p.dropSlot(slot)
	p.record(CommitRecord{
		Seq:   slot.Seq,
		PC:    d.PC,
		Op:    d.Op,
		Rd:    d.Rd,
		Cause: cause,
		Taken: true,
		Level: level,
	})

	if level == emu.LevelSupervisor && p.nestedPolicy == NestedFaultHalt {
		p.stop(fmt.Errorf("%w: %s at %08x", ErrNestedFault, cause, d.PC))
		slot.Clear()
		return
	}

	p.enterVector(cause, addr)
	slot.Clear()
}

func (p *Pipeline) countException(cause Cause) {
	p.stats.Exceptions++
	if cause.Kind() == CauseInterrupt {
		p.stats.Interrupts++
	}
}

// enterVector switches to Supervisor mode at the vector of cause.
func (p *Pipeline) enterVector(cause Cause, addr uint32) {
	p.mode = p.mode.Apply(ModeEvent{
		Kind:      EventException,
		Target:    VectorFor(p.trapVector, p.vectorStride, cause),
		Cause:     cause,
		FaultAddr: addr,
	})
	p.redirect()
}

// squash drops a slot from a superseded epoch.
func (p *Pipeline) squash(slot *Slot) {
	d := &slot.Desc

	p.stats.Squashed++
	p.dropSlot(slot)
	p.record(CommitRecord{
		Seq:      slot.Seq,
		PC:       d.PC,
		Op:       d.Op,
		Rd:       d.Rd,
		Squashed: true,
		Level:    p.mode.Level,
	})

	slot.Clear()
}

// dropSlot releases what slot holds without committing its result.
func (p *Pipeline) dropSlot(slot *Slot) {
	if slot.Reserved {
		p.stageCommit(scoreboard.Commit{Addr: slot.Desc.Rd})
	}
	if slot.Desc.Class == insts.ClassMul {
		p.multiplier.Flush()
	}
}

func (p *Pipeline) stageCommit(c scoreboard.Commit) {
	if err := p.scoreboard.StageCommit(c); err != nil {
		p.stop(fmt.Errorf("stage 2 commit: %w", err))
	}
}
