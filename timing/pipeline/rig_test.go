package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/insts"
	"github.com/sarchlab/sbcore/timing/csr"
	"github.com/sarchlab/sbcore/timing/frontend"
	"github.com/sarchlab/sbcore/timing/membus"
	"github.com/sarchlab/sbcore/timing/pipeline"
)

var userRegion = emu.Region{Base: 0x10000, Limit: 0x10100}

// rig connects a pipeline to a flat memory bus and a CSR bank the way the
// core does, with an interrupt line the test drives.
type rig struct {
	listing *insts.Listing
	pipe    *pipeline.Pipeline
	bus     *membus.Bus
	bank    *csr.Bank
	mem     *emu.Memory
	irq     bool
}

func supervisorAt(pc uint32) pipeline.ModeState {
	return pipeline.ModeState{Level: emu.LevelSupervisor, SupervisorPC: pc}
}

func userAt(pc uint32) pipeline.ModeState {
	return pipeline.ModeState{Level: emu.LevelUser, UserPC: pc}
}

func newRig(src string, mode pipeline.ModeState, opts ...pipeline.PipelineOption) *rig {
	listing, err := insts.Assemble(src, 0x1000)
	Expect(err).NotTo(HaveOccurred())

	r := &rig{listing: listing, mem: emu.NewMemory()}
	r.mem.LoadWords(listing.Data)
	r.bus = membus.New(r.mem, 2)
	r.bank = csr.New(csr.StatusFunc(func() csr.Status {
		return r.pipe.CSRStatus()
	}), 1)

	all := []pipeline.PipelineOption{
		pipeline.WithRegion(userRegion),
		pipeline.WithTrapVector(0x100, 0x10),
		pipeline.WithInitialMode(mode),
		pipeline.WithInterruptLine(pipeline.InterruptFunc(func() bool { return r.irq })),
		pipeline.WithTrace(),
		pipeline.WithMaxCycles(5000),
	}
	all = append(all, opts...)

	r.pipe = pipeline.NewPipeline(frontend.New(listing, userRegion), r.bus, r.bank, all...)
	return r
}

func (r *rig) tick() {
	r.pipe.Tick()
	r.bus.Tick()
	r.bank.Tick()
}

func (r *rig) ticks(n int) {
	for i := 0; i < n; i++ {
		r.tick()
	}
}

func (r *rig) run() {
	for !r.pipe.Halted() {
		r.tick()
	}
}

// committed returns the first record for pc that was not squashed.
func (r *rig) committed(pc uint32) pipeline.CommitRecord {
	for _, rec := range r.pipe.Trace() {
		if rec.PC == pc && !rec.Squashed {
			return rec
		}
	}
	Fail("no commit record for the given pc")
	return pipeline.CommitRecord{}
}

func (r *rig) squashed() []pipeline.CommitRecord {
	var out []pipeline.CommitRecord
	for _, rec := range r.pipe.Trace() {
		if rec.Squashed {
			out = append(out, rec)
		}
	}
	return out
}

// retired projects the trace onto the functional model's retire records.
func (r *rig) retired() []emu.Retired {
	var out []emu.Retired
	for _, rec := range r.pipe.Trace() {
		if rec.Squashed || rec.Cause != pipeline.CauseNone {
			continue
		}
		if !rec.Wrote {
			out = append(out, emu.Retired{PC: rec.PC})
			continue
		}
		out = append(out, emu.Retired{PC: rec.PC, Rd: rec.Rd, Value: rec.Data, Wrote: true})
	}
	return out
}
