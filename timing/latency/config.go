package latency

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Nested fault policies.
const (
	NestedFaultHalt     = "halt"
	NestedFaultRevector = "revector"
)

// Reset levels.
const (
	LevelSupervisor = "supervisor"
	LevelUser       = "user"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid timing config")

// TimingConfig holds the latencies and machine settings of one core.
type TimingConfig struct {
	// MultiplyLatency is the depth of the multiplier pipeline and the number
	// of ticks a multiply holds the multiplier after admission. Default: 2.
	MultiplyLatency uint64 `json:"multiply_latency" yaml:"multiply_latency"`

	// MemoryLatency is the latency of a data access that misses the L1 (or
	// of every access when the L1 is disabled). Default: 2 cycles.
	MemoryLatency uint64 `json:"memory_latency" yaml:"memory_latency"`

	// L1HitLatency is the latency of a data access that hits the L1.
	// Default: 1 cycle.
	L1HitLatency uint64 `json:"l1_hit_latency" yaml:"l1_hit_latency"`

	// DCacheEnabled puts the L1 directory in front of data memory.
	DCacheEnabled bool `json:"dcache_enabled" yaml:"dcache_enabled"`

	// DCacheWriteThrough makes the L1 forward every store to memory.
	DCacheWriteThrough bool `json:"dcache_write_through" yaml:"dcache_write_through"`

	// CSRLatency is the latency of a CSR access. Default: 1 cycle.
	CSRLatency uint64 `json:"csr_latency" yaml:"csr_latency"`

	// TrapVector is the base of the exception vector table.
	TrapVector uint32 `json:"trap_vector" yaml:"trap_vector"`

	// VectorStride is the distance between two vector entries.
	VectorStride uint32 `json:"vector_stride" yaml:"vector_stride"`

	// ResetPC is loaded into the counter of the reset level. Zero means the
	// program entry point.
	ResetPC uint32 `json:"reset_pc" yaml:"reset_pc"`

	// ResetLevel is "supervisor" or "user".
	ResetLevel string `json:"reset_level" yaml:"reset_level"`

	// UserBase and UserLimit bound the User-mode region.
	UserBase  uint32 `json:"user_base" yaml:"user_base"`
	UserLimit uint32 `json:"user_limit" yaml:"user_limit"`

	// NestedFaultPolicy is "halt" or "revector". A fault in Supervisor
	// mode has no architected outcome; the "halt" default is a choice of
	// the model.
	NestedFaultPolicy string `json:"nested_fault_policy" yaml:"nested_fault_policy"`

	// MaxCycles bounds a run. Zero means unbounded.
	MaxCycles uint64 `json:"max_cycles" yaml:"max_cycles"`
}

// DefaultTimingConfig returns a TimingConfig with default values.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		MultiplyLatency:   2,
		MemoryLatency:     2,
		L1HitLatency:      1,
		CSRLatency:        1,
		TrapVector:        0x100,
		VectorStride:      0x10,
		ResetLevel:        LevelSupervisor,
		UserBase:          0x10000,
		UserLimit:         0x20000,
		NestedFaultPolicy: NestedFaultHalt,
		MaxCycles:         1_000_000,
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads a TimingConfig from a JSON or YAML file. The format is
// chosen by extension; fields absent from the file keep their defaults.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON or YAML file.
func (c *TimingConfig) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks latencies, the region and the policy names.
func (c *TimingConfig) Validate() error {
	if c.MultiplyLatency == 0 {
		return fmt.Errorf("%w: multiply_latency must be > 0", ErrInvalidConfig)
	}
	if c.MemoryLatency == 0 {
		return fmt.Errorf("%w: memory_latency must be > 0", ErrInvalidConfig)
	}
	if c.DCacheEnabled && c.L1HitLatency == 0 {
		return fmt.Errorf("%w: l1_hit_latency must be > 0", ErrInvalidConfig)
	}
	if c.CSRLatency == 0 {
		return fmt.Errorf("%w: csr_latency must be > 0", ErrInvalidConfig)
	}
	if c.VectorStride == 0 {
		return fmt.Errorf("%w: vector_stride must be > 0", ErrInvalidConfig)
	}
	if c.UserLimit < c.UserBase {
		return fmt.Errorf("%w: user_limit must be >= user_base", ErrInvalidConfig)
	}

	switch c.ResetLevel {
	case LevelSupervisor, LevelUser:
	default:
		return fmt.Errorf("%w: unknown reset_level %q", ErrInvalidConfig, c.ResetLevel)
	}

	switch c.NestedFaultPolicy {
	case NestedFaultHalt, NestedFaultRevector:
	default:
		return fmt.Errorf("%w: unknown nested_fault_policy %q",
			ErrInvalidConfig, c.NestedFaultPolicy)
	}

	return nil
}

// Clone returns a deep copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}
