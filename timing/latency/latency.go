// Package latency provides the timing configuration of a core and the
// per-class latency lookups derived from it.
package latency

import (
	"github.com/sarchlab/sbcore/insts"
)

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// GetLatency returns the number of ticks the instruction occupies its
// functional unit. Memory and CSR accesses report the uncached collaborator
// latency; the actual wait is decided by the collaborator.
func (t *Table) GetLatency(d *insts.Descriptor) uint64 {
	if d == nil {
		return 1
	}

	switch d.Class {
	case insts.ClassMul:
		return t.config.MultiplyLatency

	case insts.ClassLoad, insts.ClassStore:
		return t.config.MemoryLatency

	case insts.ClassCSRLoad, insts.ClassCSRStore:
		return t.config.CSRLatency

	default:
		return 1
	}
}

// OccupiesUnit returns true if admission of d must hold a non-pipelined
// resource for GetLatency ticks.
func (t *Table) OccupiesUnit(d *insts.Descriptor) bool {
	return d != nil && !d.Faulting() && d.Class == insts.ClassMul
}

// IsMemoryOp returns true if the instruction accesses data memory.
func (t *Table) IsMemoryOp(d *insts.Descriptor) bool {
	return d != nil && d.Class.IsMemory()
}

// IsBranchOp returns true if the instruction may redirect fetch.
func (t *Table) IsBranchOp(d *insts.Descriptor) bool {
	return d != nil && d.Class.IsControl()
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
