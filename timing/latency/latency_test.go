package latency_test

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/sbcore/insts"
	"github.com/sarchlab/sbcore/timing/latency"
)

var _ = Describe("Latency", func() {
	var table *latency.Table

	BeforeEach(func() {
		table = latency.NewTable()
	})

	Describe("Default Timing Values", func() {
		It("should use a two-stage multiplier", func() {
			Expect(table.Config().MultiplyLatency).To(Equal(uint64(2)))
		})

		It("should halt on nested faults by default", func() {
			Expect(table.Config().NestedFaultPolicy).To(Equal(latency.NestedFaultHalt))
		})

		It("should validate", func() {
			Expect(table.Config().Validate()).To(Succeed())
		})
	})

	Describe("GetLatency", func() {
		It("should return the multiply latency for multiplies", func() {
			d := &insts.Descriptor{Class: insts.ClassMul, Op: insts.OpMUL}
			Expect(table.GetLatency(d)).To(Equal(uint64(2)))
			Expect(table.OccupiesUnit(d)).To(BeTrue())
		})

		It("should return one cycle for ALU and branch classes", func() {
			Expect(table.GetLatency(&insts.Descriptor{Class: insts.ClassALU})).To(Equal(uint64(1)))
			Expect(table.GetLatency(&insts.Descriptor{Class: insts.ClassBranch})).To(Equal(uint64(1)))
			Expect(table.GetLatency(nil)).To(Equal(uint64(1)))
		})

		It("should return collaborator latencies for memory and CSR classes", func() {
			Expect(table.GetLatency(&insts.Descriptor{Class: insts.ClassLoad})).To(Equal(uint64(2)))
			Expect(table.GetLatency(&insts.Descriptor{Class: insts.ClassCSRStore})).To(Equal(uint64(1)))
		})

		It("should not occupy the multiplier for a faulting descriptor", func() {
			d := &insts.Descriptor{Class: insts.ClassMul, Illegal: true}
			Expect(table.OccupiesUnit(d)).To(BeFalse())
		})

		It("should classify memory and branch ops", func() {
			Expect(table.IsMemoryOp(&insts.Descriptor{Class: insts.ClassStore})).To(BeTrue())
			Expect(table.IsMemoryOp(&insts.Descriptor{Class: insts.ClassCSRLoad})).To(BeFalse())
			Expect(table.IsBranchOp(&insts.Descriptor{Class: insts.ClassIndirect})).To(BeTrue())
		})

		It("should follow a custom config", func() {
			config := latency.DefaultTimingConfig()
			config.MultiplyLatency = 4
			t := latency.NewTableWithConfig(config)
			Expect(t.GetLatency(&insts.Descriptor{Class: insts.ClassMul})).To(Equal(uint64(4)))
		})
	})

	Describe("Validate", func() {
		It("should reject a zero multiply latency", func() {
			config := latency.DefaultTimingConfig()
			config.MultiplyLatency = 0
			Expect(errors.Is(config.Validate(), latency.ErrInvalidConfig)).To(BeTrue())
		})

		It("should reject an inverted user region", func() {
			config := latency.DefaultTimingConfig()
			config.UserBase, config.UserLimit = 0x2000, 0x1000
			Expect(config.Validate()).To(MatchError(ContainSubstring("user_limit")))
		})

		It("should reject unknown policy names", func() {
			config := latency.DefaultTimingConfig()
			config.NestedFaultPolicy = "ignore"
			Expect(config.Validate()).To(MatchError(ContainSubstring("nested_fault_policy")))

			config = latency.DefaultTimingConfig()
			config.ResetLevel = "hypervisor"
			Expect(config.Validate()).To(MatchError(ContainSubstring("reset_level")))
		})

		It("should require an L1 hit latency only with the cache enabled", func() {
			config := latency.DefaultTimingConfig()
			config.L1HitLatency = 0
			Expect(config.Validate()).To(Succeed())

			config.DCacheEnabled = true
			Expect(config.Validate()).NotTo(Succeed())
		})
	})

	Describe("Clone", func() {
		It("should not share state with the original", func() {
			config := latency.DefaultTimingConfig()
			clone := config.Clone()
			clone.TrapVector = 0x400
			Expect(config.TrapVector).To(Equal(uint32(0x100)))
		})
	})

	Describe("Config files", func() {
		var dir string

		BeforeEach(func() {
			var err error
			dir, err = os.MkdirTemp("", "latency")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, dir)
		})

		It("should round-trip JSON", func() {
			config := latency.DefaultTimingConfig()
			config.MemoryLatency = 9
			config.NestedFaultPolicy = latency.NestedFaultRevector
			path := filepath.Join(dir, "timing.json")

			Expect(config.SaveConfig(path)).To(Succeed())
			loaded, err := latency.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(config))
		})

		It("should round-trip YAML", func() {
			config := latency.DefaultTimingConfig()
			config.DCacheEnabled = true
			config.UserBase = 0x40000
			config.UserLimit = 0x48000
			path := filepath.Join(dir, "timing.yaml")

			Expect(config.SaveConfig(path)).To(Succeed())
			loaded, err := latency.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded).To(Equal(config))
		})

		It("should keep defaults for fields absent from the file", func() {
			path := filepath.Join(dir, "partial.yml")
			Expect(os.WriteFile(path, []byte("csr_latency: 3\n"), 0644)).To(Succeed())

			loaded, err := latency.LoadConfig(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.CSRLatency).To(Equal(uint64(3)))
			Expect(loaded.MultiplyLatency).To(Equal(uint64(2)))
		})

		It("should reject a file that fails validation", func() {
			path := filepath.Join(dir, "bad.json")
			Expect(os.WriteFile(path, []byte(`{"vector_stride": 0}`), 0644)).To(Succeed())

			_, err := latency.LoadConfig(path)
			Expect(errors.Is(err, latency.ErrInvalidConfig)).To(BeTrue())
		})

		It("should report a missing file", func() {
			_, err := latency.LoadConfig(filepath.Join(dir, "missing.json"))
			Expect(err).To(MatchError(ContainSubstring("failed to read")))
		})
	})
})
