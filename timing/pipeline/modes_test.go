package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/insts"
	"github.com/sarchlab/sbcore/timing/latency"
	"github.com/sarchlab/sbcore/timing/pipeline"
)

var _ = Describe("Mode control", func() {
	Context("trap and return", func() {
		const src = `
		.org 0x150
				li   r10, 3
		sloop:  subi r10, r10, 1
				bne  r10, r0, sloop
				csrr r9, 2
				addi r9, r9, 4
				uret r9
		.org 0x10000
				li   r1, 1
				li   r2, 2
				trap 3
				li   r7, 1
				halt
		`

		It("should keep the user counter while the handler runs", func() {
			r := newRig(src, userAt(0))

			sawSupervisor := false
			for !r.pipe.Halted() {
				r.tick()
				mode := r.pipe.Mode()
				if mode.Level == emu.LevelSupervisor {
					sawSupervisor = true
					Expect(mode.UserPC).To(Equal(uint32(8)))
				}
			}
			Expect(sawSupervisor).To(BeTrue())
			Expect(r.pipe.Err()).NotTo(HaveOccurred())

			mode := r.pipe.Mode()
			Expect(mode.Level).To(Equal(emu.LevelUser))
			Expect(mode.PendingCause).To(Equal(pipeline.TrapCause(3)))
			Expect(mode.SupervisorPC).To(Equal(uint32(0x164)))
			Expect(mode.UserPC).To(Equal(uint32(20)))

			Expect(r.pipe.Register(9)).To(Equal(uint32(12)))
			Expect(r.pipe.Register(7)).To(Equal(uint32(1)))
			Expect(r.pipe.Register(10)).To(BeZero())
			Expect(r.pipe.Stats().Exceptions).To(Equal(uint64(1)))
		})

		It("should record the trap with its index", func() {
			r := newRig(src, userAt(0))
			r.run()

			rec := r.committed(8)
			Expect(rec.Op).To(Equal(insts.OpTRAP))
			Expect(rec.Cause.Kind()).To(Equal(pipeline.CauseTrap))
			Expect(rec.Cause.TrapIndex()).To(Equal(uint32(3)))
			Expect(rec.Level).To(Equal(emu.LevelUser))
		})
	})

	It("should treat a return from User mode as a no-op", func() {
		r := newRig(`
		.org 0x10000
				uret
				li   r1, 1
				halt
		`, userAt(0))
		r.run()

		Expect(r.pipe.Register(1)).To(Equal(uint32(1)))
		Expect(r.pipe.Mode().Level).To(Equal(emu.LevelUser))
		Expect(r.pipe.Stats().Exceptions).To(BeZero())
		Expect(r.squashed()).To(BeEmpty())
	})

	Context("interrupts", func() {
		It("should interrupt User mode precisely", func() {
			r := newRig(`
			.org 0x160
					csrr r9, 3
					csrr r10, 2
					halt
			.org 0x10000
			loop:   addi r1, r1, 1
					j    loop
			`, userAt(0))

			r.ticks(20)
			Expect(r.pipe.Mode().Level).To(Equal(emu.LevelUser))
			r.irq = true
			r.run()

			Expect(r.pipe.Err()).NotTo(HaveOccurred())
			mode := r.pipe.Mode()
			Expect(mode.PendingCause).To(Equal(pipeline.CauseInterrupt))
			Expect(r.pipe.Register(9)).To(Equal(uint32(pipeline.CauseInterrupt)))
			Expect(r.pipe.Register(10)).To(Equal(mode.UserPC))
			Expect(r.pipe.Stats().Interrupts).To(Equal(uint64(1)))

			var interrupted []pipeline.CommitRecord
			for _, rec := range r.pipe.Trace() {
				if rec.Cause == pipeline.CauseInterrupt {
					interrupted = append(interrupted, rec)
				}
			}
			Expect(interrupted).To(HaveLen(1))
			Expect(interrupted[0].PC).To(Equal(mode.UserPC))
			Expect(interrupted[0].Wrote).To(BeFalse())
		})

		It("should hold an interrupt raised in Supervisor mode until User mode", func() {
			r := newRig(`
			.org 0x160
					halt
			.org 0x1000
					li   r1, 0
					li   r2, 5
			wait:   addi r1, r1, 1
					bne  r1, r2, wait
					uret
			.org 0x10000
					li   r3, 1
					halt
			`, supervisorAt(0x1000))

			r.tick()
			r.irq = true
			r.ticks(2)
			r.irq = false
			Expect(r.pipe.Mode().IRQLatched).To(BeTrue())
			Expect(r.pipe.Mode().Level).To(Equal(emu.LevelSupervisor))

			r.run()
			Expect(r.pipe.Err()).NotTo(HaveOccurred())

			mode := r.pipe.Mode()
			Expect(mode.PendingCause).To(Equal(pipeline.CauseInterrupt))
			Expect(mode.IRQLatched).To(BeFalse())
			Expect(mode.UserPC).To(BeZero())
			Expect(r.pipe.Register(1)).To(Equal(uint32(5)))
			Expect(r.pipe.Register(3)).To(BeZero())
		})

		It("should wait in WFI until an interrupt arrives", func() {
			r := newRig(`
			.org 0x160
					halt
			.org 0x10000
					li   r1, 1
					wfi
					li   r2, 1
					halt
			`, userAt(0))

			r.ticks(40)
			Expect(r.pipe.Halted()).To(BeFalse())
			Expect(r.pipe.Mode().Level).To(Equal(emu.LevelUser))
			Expect(r.pipe.Stats().BranchesTaken).To(BeNumerically(">", 1))

			r.irq = true
			r.run()

			mode := r.pipe.Mode()
			Expect(mode.PendingCause).To(Equal(pipeline.CauseInterrupt))
			Expect(mode.PendingFaultAddr).To(Equal(uint32(8)))
			Expect(mode.UserPC).To(Equal(uint32(8)))
			Expect(r.pipe.Register(1)).To(Equal(uint32(1)))
			Expect(r.pipe.Register(2)).To(BeZero())

			var wfi pipeline.CommitRecord
			for _, rec := range r.pipe.Trace() {
				if rec.PC == 0x4 && !rec.Squashed {
					wfi = rec
				}
			}
			Expect(wfi.Op).To(Equal(insts.OpWFI))
			Expect(wfi.Cause).To(Equal(pipeline.CauseInterrupt))
			Expect(wfi.Level).To(Equal(emu.LevelUser))
		})

		It("should continue past WFI after the handler returns", func() {
			r := newRig(`
			.org 0x160
					uret
			.org 0x10000
					li   r1, 1
					wfi
					li   r2, 1
					halt
			`, userAt(0))

			r.ticks(20)
			Expect(r.pipe.Mode().Level).To(Equal(emu.LevelUser))

			r.irq = true
			entered := false
			for !r.pipe.Halted() {
				if r.pipe.Mode().Level == emu.LevelSupervisor {
					entered = true
					r.irq = false
				}
				r.tick()
			}

			Expect(r.pipe.Err()).NotTo(HaveOccurred())
			Expect(entered).To(BeTrue())
			Expect(r.pipe.Register(2)).To(Equal(uint32(1)))
			Expect(r.pipe.Mode().Level).To(Equal(emu.LevelUser))
			Expect(r.pipe.Mode().UserPC).To(Equal(uint32(16)))
			Expect(r.pipe.Stats().Interrupts).To(Equal(uint64(1)))
		})
	})

	Context("nested faults", func() {
		const src = `
		.org 0x150
				csrr r9, 3
				halt
		.org 0x1000
				li   r1, 1
				trap 2
				halt
		`

		It("should stop on a Supervisor fault by default", func() {
			r := newRig(src, supervisorAt(0x1000))
			r.run()

			Expect(r.pipe.Err()).To(MatchError(pipeline.ErrNestedFault))
			Expect(r.pipe.Halted()).To(BeTrue())
			Expect(r.pipe.Register(9)).To(BeZero())
			Expect(r.pipe.Stats().Exceptions).To(Equal(uint64(1)))
		})

		It("should re-enter the vector when configured to", func() {
			r := newRig(src, supervisorAt(0x1000),
				pipeline.WithNestedFaultPolicy(pipeline.NestedFaultRevector))
			r.run()

			Expect(r.pipe.Err()).NotTo(HaveOccurred())
			Expect(r.pipe.Register(9)).To(Equal(uint32(pipeline.TrapCause(2))))
			Expect(r.pipe.Mode().Level).To(Equal(emu.LevelSupervisor))
		})

		It("should warn and halt on an unknown policy name", func() {
			logger, hook := logtest.NewNullLogger()
			config := latency.DefaultTimingConfig()
			config.NestedFaultPolicy = "retry"

			r := newRig(src, supervisorAt(0x1000),
				pipeline.WithLogger(logrus.NewEntry(logger)),
				pipeline.WithTimingConfig(config))

			Expect(hook.Entries).To(HaveLen(1))
			Expect(hook.LastEntry().Level).To(Equal(logrus.WarnLevel))
			Expect(hook.LastEntry().Data).To(HaveKey(logrus.ErrorKey))

			r.run()
			Expect(r.pipe.Err()).To(MatchError(pipeline.ErrNestedFault))
		})
	})

	Context("control/status registers", func() {
		It("should read back a scratch register in Supervisor mode", func() {
			r := newRig(`
					li   r1, 42
					csrw 0x10, r1
					csrr r2, 0x10
					csrr r3, 0
					halt
			`, supervisorAt(0x1000))
			r.run()

			Expect(r.pipe.Err()).NotTo(HaveOccurred())
			Expect(r.pipe.Register(2)).To(Equal(uint32(42)))
			Expect(r.pipe.Register(3)).To(Equal(uint32(emu.LevelSupervisor)))
			Expect(r.bank.Read(0x10)).To(Equal(uint32(42)))
		})

		It("should fault on access from User mode", func() {
			r := newRig(`
			.org 0x130
					csrr r9, 3
					csrr r10, 4
					halt
			.org 0x10000
					csrr r2, 0x10
					halt
			`, userAt(0))
			r.pipe.SetRegister(2, 7)
			r.run()

			Expect(r.pipe.Mode().PendingCause).To(Equal(pipeline.CauseAccessFault))
			Expect(r.pipe.Register(9)).To(Equal(uint32(pipeline.CauseAccessFault)))
			Expect(r.pipe.Register(10)).To(Equal(uint32(0x10)))
			Expect(r.pipe.Register(2)).To(Equal(uint32(7)))
			Expect(r.pipe.Scoreboard().Reserved(2)).To(BeFalse())
		})
	})

	DescribeTable("User-mode faults",
		func(body string, cause pipeline.Cause, faultAddr, userPC uint32) {
			r := newRig(`
			.org 0x110
					halt
			.org 0x120
					halt
			.org 0x130
					halt
			.org 0x140
					halt
			.org 0x10000
			`+body, userAt(0))
			r.run()

			Expect(r.pipe.Err()).NotTo(HaveOccurred())
			mode := r.pipe.Mode()
			Expect(mode.Level).To(Equal(emu.LevelSupervisor))
			Expect(mode.PendingCause).To(Equal(cause))
			Expect(mode.PendingFaultAddr).To(Equal(faultAddr))
			Expect(mode.UserPC).To(Equal(userPC))
			Expect(mode.SupervisorPC).To(Equal(pipeline.VectorFor(0x100, 0x10, cause) + 4))
		},
		Entry("fetch outside the region", `
				li   r1, 0x400
				jr   r1
		`, pipeline.CauseFetchFault, uint32(0x400), uint32(0x400)),
		Entry("fetch with no instruction", `
				li   r1, 0x20
				jr   r1
		`, pipeline.CauseIllegal, uint32(0x20), uint32(0x20)),
		Entry("misaligned load", `
				lw   r1, 2(r0)
				halt
		`, pipeline.CauseMisaligned, uint32(2), uint32(0)),
		Entry("access fault ahead of misalignment", `
				lw   r1, 0xFFE(r0)
				halt
		`, pipeline.CauseAccessFault, uint32(0xFFE), uint32(0)),
		Entry("store outside the region", `
				li   r1, 0x100
				sw   r1, 0(r1)
				halt
		`, pipeline.CauseAccessFault, uint32(0x100), uint32(4)),
	)

	DescribeTable("exception priority with the interrupt line asserted",
		func(start uint32, body string, cause pipeline.Cause, faultAddr uint32) {
			r := newRig(`
			.org 0x110
					halt
			.org 0x120
					halt
			.org 0x130
					halt
			.org 0x140
					halt
			.org 0x150
					halt
			.org 0x160
					halt
			.org 0x10000
			`+body, userAt(start))
			r.irq = true
			r.run()

			Expect(r.pipe.Err()).NotTo(HaveOccurred())
			mode := r.pipe.Mode()
			Expect(mode.PendingCause).To(Equal(cause))
			Expect(mode.PendingFaultAddr).To(Equal(faultAddr))
			Expect(mode.UserPC).To(Equal(start))
			Expect(mode.SupervisorPC).To(Equal(pipeline.VectorFor(0x100, 0x10, cause) + 4))
			Expect(r.pipe.Stats().Exceptions).To(Equal(uint64(1)))
		},
		Entry("fetch fault", uint32(0x400), `
				halt
		`, pipeline.CauseFetchFault, uint32(0x400)),
		Entry("illegal instruction", uint32(0x20), `
				halt
		`, pipeline.CauseIllegal, uint32(0x20)),
		Entry("access fault", uint32(0), `
				lw   r1, 0x100(r0)
				halt
		`, pipeline.CauseAccessFault, uint32(0x100)),
		Entry("misaligned access", uint32(0), `
				lw   r1, 2(r0)
				halt
		`, pipeline.CauseMisaligned, uint32(2)),
		Entry("software trap", uint32(0), `
				trap 3
				halt
		`, pipeline.TrapCause(3), uint32(0)),
		Entry("no other exception", uint32(0), `
				li   r1, 1
				halt
		`, pipeline.CauseInterrupt, uint32(0)),
	)
})
