package csr_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/timing/csr"
)

var _ = Describe("Bank", func() {
	var (
		status csr.Status
		bank   *csr.Bank
	)

	BeforeEach(func() {
		status = csr.Status{
			Level:        emu.LevelSupervisor,
			SupervisorPC: 0x120,
			UserPC:       0x10040,
			Cause:        3,
			FaultAddr:    0x20004,
		}
		bank = csr.New(csr.StatusFunc(func() csr.Status { return status }), 2)
	})

	It("should expose the mode state", func() {
		Expect(bank.Read(csr.AddrUserPC)).To(Equal(uint32(0x10040)))
		Expect(bank.Read(csr.AddrSupervisorPC)).To(Equal(uint32(0x120)))
		Expect(bank.Read(csr.AddrCause)).To(Equal(uint32(3)))
		Expect(bank.Read(csr.AddrFaultAddr)).To(Equal(uint32(0x20004)))
		Expect(bank.Read(csr.AddrLevel)).To(Equal(uint32(emu.LevelSupervisor)))
		Expect(bank.Read(csr.AddrIRQLatched)).To(BeZero())

		status.IRQLatched = true
		Expect(bank.Read(csr.AddrIRQLatched)).To(Equal(uint32(1)))
	})

	It("should ignore writes to status registers", func() {
		bank.Write(csr.AddrUserPC, 0)
		Expect(bank.Read(csr.AddrUserPC)).To(Equal(uint32(0x10040)))
		Expect(bank.Stats().IgnoredWrites).To(Equal(uint64(1)))
	})

	It("should keep scratch values", func() {
		bank.Write(csr.ScratchBase+3, 99)
		Expect(bank.Read(csr.ScratchBase + 3)).To(Equal(uint32(99)))
		Expect(bank.Read(0x7F)).To(BeZero())
	})

	It("should answer reads after the latency", func() {
		Expect(bank.Send(csr.Request{Addr: csr.AddrCause})).To(BeTrue())
		Expect(bank.Send(csr.Request{Addr: csr.AddrCause})).To(BeFalse())

		bank.Tick()
		_, ok := bank.Receive()
		Expect(ok).To(BeFalse())

		bank.Tick()
		resp, ok := bank.Receive()
		Expect(ok).To(BeTrue())
		Expect(resp.Data).To(Equal(uint32(3)))
	})

	It("should apply writes at acceptance", func() {
		Expect(bank.Send(csr.Request{Write: true, Addr: csr.ScratchBase, Data: 5})).To(BeTrue())
		Expect(bank.Read(csr.ScratchBase)).To(Equal(uint32(5)))

		bank.Tick()
		bank.Tick()
		_, ok := bank.Receive()
		Expect(ok).To(BeFalse())
		Expect(bank.Send(csr.Request{Addr: csr.ScratchBase})).To(BeTrue())
	})
})
