package emu_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/insts"
)

var _ = Describe("Emulator", func() {
	build := func(src string) *emu.Emulator {
		listing, err := insts.Assemble(src, 0x1000)
		Expect(err).NotTo(HaveOccurred())
		return emu.NewEmulator(listing, emu.WithMaxInstructions(1000))
	}

	It("should run straight-line arithmetic to halt", func() {
		e := build(`
li   r1, 5
li   r2, 7
add  r0, r1, r2
mul  r3, r0, r2
slli r4, r3, 1
halt
`)
		Expect(e.Run()).To(Succeed())
		Expect(e.Reg(0)).To(Equal(uint32(12)))
		Expect(e.Reg(3)).To(Equal(uint32(84)))
		Expect(e.Reg(4)).To(Equal(uint32(168)))
		Expect(e.InstructionCount()).To(Equal(uint64(6)))
	})

	It("should loop with conditional branches", func() {
		e := build(`
      li   r1, 0
      li   r2, 10
loop: addi r1, r1, 1
      bne  r1, r2, loop
      halt
`)
		Expect(e.Run()).To(Succeed())
		Expect(e.Reg(1)).To(Equal(uint32(10)))
	})

	It("should load and store through memory", func() {
		e := build(`
.data 0x2000, 0xFFFFFF80
li  r1, 0x2000
lb  r2, 0(r1)
lbu r3, 0(r1)
sw  r2, 4(r1)
halt
`)
		Expect(e.Run()).To(Succeed())
		Expect(e.Reg(2)).To(Equal(uint32(0xFFFFFF80)))
		Expect(e.Reg(3)).To(Equal(uint32(0x80)))
		Expect(e.Memory().Read32(0x2004)).To(Equal(uint32(0xFFFFFF80)))
	})

	It("should link and return through registers", func() {
		e := build(`
      jal  r14, fn
      halt
fn:   li   r5, 1
      jr   r14
`)
		Expect(e.Run()).To(Succeed())
		Expect(e.Reg(14)).To(Equal(uint32(0x1004)))
		Expect(e.Reg(5)).To(Equal(uint32(1)))
		Expect(e.PC()).To(Equal(uint32(0x1008)))
	})

	It("should record writes in the retire trace", func() {
		e := build("li r1, 3\nnop\nhalt\n")
		Expect(e.Run()).To(Succeed())

		trace := e.Trace()
		Expect(trace).To(HaveLen(3))
		Expect(trace[0]).To(Equal(emu.Retired{PC: 0x1000, Rd: 1, Value: 3, Wrote: true}))
		Expect(trace[1].Wrote).To(BeFalse())
	})

	It("should refuse privileged instructions", func() {
		e := build("trap 1\n")
		err := e.Run()
		Expect(errors.Is(err, emu.ErrUnsupported)).To(BeTrue())
	})

	It("should stop at the instruction limit", func() {
		e := build("loop: j loop\n")
		Expect(errors.Is(e.Run(), emu.ErrMaxInstructions)).To(BeTrue())
	})
})
