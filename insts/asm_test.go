package insts_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/sbcore/insts"
)

var _ = Describe("Assembler", func() {
	assembleOne := func(line string) insts.Descriptor {
		listing, err := insts.Assemble(line, 0x1000)
		Expect(err).NotTo(HaveOccurred())
		Expect(listing.Insts).To(HaveLen(1))
		return listing.Insts[0]
	}

	Describe("ALU instructions", func() {
		It("should assemble register-register add", func() {
			d := assembleOne("add r0, r1, r2")

			Expect(d.Class).To(Equal(insts.ClassALU))
			Expect(d.Op).To(Equal(insts.OpADD))
			Expect(d.Rd).To(Equal(uint8(0)))
			Expect(d.UseRd).To(BeTrue())
			Expect(d.Rs1).To(Equal(uint8(1)))
			Expect(d.Rs2).To(Equal(uint8(2)))
			Expect(d.UseRs1).To(BeTrue())
			Expect(d.UseRs2).To(BeTrue())
			Expect(d.PC).To(Equal(uint32(0x1000)))
			Expect(d.Length).To(Equal(uint32(insts.DefaultLength)))
		})

		It("should assemble immediate forms with negative values", func() {
			d := assembleOne("addi r3, r4, -8")

			Expect(d.Op).To(Equal(insts.OpADD))
			Expect(d.UseRs2).To(BeFalse())
			Expect(d.Imm).To(Equal(uint32(0xFFFFFFF8)))
		})

		It("should assemble li as a move of an immediate", func() {
			d := assembleOne("li r5, 0x40")

			Expect(d.Op).To(Equal(insts.OpMOV))
			Expect(d.UseRs1).To(BeFalse())
			Expect(d.Imm).To(Equal(uint32(0x40)))
		})

		It("should assemble shift immediates", func() {
			d := assembleOne("srai r1, r2, 3")

			Expect(d.Class).To(Equal(insts.ClassShift))
			Expect(d.Op).To(Equal(insts.OpSRA))
			Expect(d.Imm).To(Equal(uint32(3)))
		})
	})

	Describe("memory instructions", func() {
		It("should assemble a signed half load", func() {
			d := assembleOne("lh r2, 6(r1)")

			Expect(d.Class).To(Equal(insts.ClassLoad))
			Expect(d.Width).To(Equal(insts.WidthHalf))
			Expect(d.SignExtend).To(BeTrue())
			Expect(d.Rs1).To(Equal(uint8(1)))
			Expect(d.Imm).To(Equal(uint32(6)))
		})

		It("should put store data in the second source", func() {
			d := assembleOne("sb r7, (r3)")

			Expect(d.Class).To(Equal(insts.ClassStore))
			Expect(d.Width).To(Equal(insts.WidthByte))
			Expect(d.Rs2).To(Equal(uint8(7)))
			Expect(d.UseRs2).To(BeTrue())
			Expect(d.UseRd).To(BeFalse())
		})

		It("should assemble CSR accesses", func() {
			listing, err := insts.Assemble("csrr r1, 2\ncsrw 8, r4\n", 0)
			Expect(err).NotTo(HaveOccurred())

			Expect(listing.Insts[0].Class).To(Equal(insts.ClassCSRLoad))
			Expect(listing.Insts[0].Imm).To(Equal(uint32(2)))
			Expect(listing.Insts[1].Class).To(Equal(insts.ClassCSRStore))
			Expect(listing.Insts[1].Rs2).To(Equal(uint8(4)))
		})
	})

	Describe("control flow", func() {
		It("should resolve forward labels into PC-relative offsets", func() {
			src := `
start:  beq r3, r4, done
        add r0, r1, r2
done:   halt
`
			listing, err := insts.Assemble(src, 0x100)
			Expect(err).NotTo(HaveOccurred())
			Expect(listing.Labels).To(HaveKeyWithValue("done", uint32(0x108)))

			b := listing.Insts[0]
			Expect(b.Op).To(Equal(insts.OpBCond))
			Expect(b.Cond).To(Equal(insts.CondEQ))
			Expect(b.Imm).To(Equal(uint32(8)))
		})

		It("should resolve backward labels", func() {
			listing, err := insts.Assemble("loop: nop\nj loop\n", 0x200)
			Expect(err).NotTo(HaveOccurred())
			Expect(listing.Insts[1].Imm).To(Equal(uint32(0xFFFFFFFC)))
		})

		It("should assemble wfi as a self-branch", func() {
			d := assembleOne("wfi")
			Expect(d.Class).To(Equal(insts.ClassBranch))
			Expect(d.Imm).To(BeZero())
		})

		It("should assemble bit tests", func() {
			d := assembleOne("bbc r2, 31, 0x1000")
			Expect(d.Op).To(Equal(insts.OpBBitClr))
			Expect(d.Imm2).To(Equal(uint32(31)))
		})

		It("should assemble jalr with link and offset", func() {
			d := assembleOne("jalr r14, r2, 8")
			Expect(d.Class).To(Equal(insts.ClassIndirect))
			Expect(d.Rd).To(Equal(uint8(14)))
			Expect(d.Rs1).To(Equal(uint8(2)))
			Expect(d.Imm).To(Equal(uint32(8)))
		})

		It("should assemble uret with and without target", func() {
			listing, err := insts.Assemble("uret\nuret r9\n", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(listing.Insts[0].UseRs1).To(BeFalse())
			Expect(listing.Insts[1].UseRs1).To(BeTrue())
		})
	})

	Describe("directives", func() {
		It("should honor .org and .data", func() {
			src := `
.org 0x400
.data 0x2000, 1, 2, 0xdead
entry: halt
`
			listing, err := insts.Assemble(src, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(listing.Entry).To(Equal(uint32(0x400)))
			Expect(listing.Data).To(HaveKeyWithValue(uint32(0x2008), uint32(0xdead)))
			Expect(listing.Labels["entry"]).To(Equal(uint32(0x400)))
		})
	})

	Describe("errors", func() {
		It("should reject register r15", func() {
			_, err := insts.Assemble("add r15, r0, r0", 0)
			Expect(errors.Is(err, insts.ErrSyntax)).To(BeTrue())
		})

		It("should report the line of an unknown mnemonic", func() {
			_, err := insts.Assemble("nop\nfrobnicate r1\n", 0)
			Expect(err).To(MatchError(ContainSubstring("line 2")))
		})

		It("should reject duplicate labels", func() {
			_, err := insts.Assemble("a: nop\na: nop\n", 0)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Descriptor", func() {
		It("should render in assembler-like syntax", func() {
			d := assembleOne("add r0, r1, r2")
			Expect(d.String()).To(Equal("00001000: add r0, r1, r2"))
		})

		It("should bypass registers when faulting", func() {
			d := insts.Descriptor{FetchFault: true}
			Expect(d.NeedsRegisters()).To(BeFalse())
			Expect(d.Faulting()).To(BeTrue())
		})
	})
})
