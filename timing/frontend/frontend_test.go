package frontend_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/insts"
	"github.com/sarchlab/sbcore/timing/frontend"
)

var _ = Describe("Program", func() {
	var (
		listing *insts.Listing
		prog    *frontend.Program
		region  = emu.Region{Base: 0x10000, Limit: 0x10100}
	)

	BeforeEach(func() {
		var err error
		listing, err = insts.Assemble(`
.org 0x1000
li  r1, 1
li  r2, 2
.org 0x10000
add r3, r1, r2
halt
`, 0)
		Expect(err).NotTo(HaveOccurred())
		prog = frontend.New(listing, region)
	})

	It("should offer nothing before the first redirect", func() {
		_, ok := prog.Peek()
		Expect(ok).To(BeFalse())
	})

	It("should fetch sequentially in Supervisor mode", func() {
		prog.Redirect(0x1000, emu.LevelSupervisor)

		d, ok := prog.Peek()
		Expect(ok).To(BeTrue())
		Expect(d.Op).To(Equal(insts.OpMOV))
		Expect(d.PC).To(Equal(uint32(0x1000)))

		prog.Accept()
		d, _ = prog.Peek()
		Expect(d.PC).To(Equal(uint32(0x1004)))
		Expect(d.Imm).To(Equal(uint32(2)))
	})

	It("should hold the offered descriptor until accepted", func() {
		prog.Redirect(0x1000, emu.LevelSupervisor)
		first, _ := prog.Peek()
		again, _ := prog.Peek()
		Expect(again).To(Equal(first))
	})

	It("should translate User fetches and report User PCs", func() {
		prog.Redirect(0, emu.LevelUser)

		d, _ := prog.Peek()
		Expect(d.Op).To(Equal(insts.OpADD))
		Expect(d.PC).To(BeZero())
	})

	It("should produce a fetch fault outside the User region", func() {
		prog.Redirect(0x100, emu.LevelUser)

		d, _ := prog.Peek()
		Expect(d.FetchFault).To(BeTrue())
		Expect(d.NeedsRegisters()).To(BeFalse())

		prog.Accept()
		Expect(prog.Stats().FetchFaults).To(Equal(uint64(1)))
	})

	It("should produce an illegal descriptor where no instruction exists", func() {
		prog.Redirect(0x2000, emu.LevelSupervisor)

		d, _ := prog.Peek()
		Expect(d.Illegal).To(BeTrue())
		Expect(d.Length).To(Equal(uint32(insts.DefaultLength)))
	})
})
