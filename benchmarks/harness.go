// Package benchmarks provides the microbenchmark harness used to study the
// core's timing behavior.
package benchmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/sbcore/insts"
	"github.com/sarchlab/sbcore/timing/core"
	"github.com/sarchlab/sbcore/timing/latency"
)

// Version is reported in JSON output.
const Version = "0.3.0"

// BenchmarkResult holds the timing results for a single benchmark run.
type BenchmarkResult struct {
	// Name identifies the benchmark
	Name string `json:"name"`

	// Description explains what the benchmark measures
	Description string `json:"description"`

	// RunID identifies this run in logs
	RunID string `json:"run_id"`

	// SimulatedCycles is the total cycle count from the timing simulator
	SimulatedCycles uint64 `json:"simulated_cycles"`

	// InstructionsRetired is the number of completed instructions
	InstructionsRetired uint64 `json:"instructions_retired"`

	// CPI is cycles per instruction
	CPI float64 `json:"cpi"`

	// StallCycles counts issue refusals
	StallCycles uint64 `json:"stall_cycles"`

	// MemStalls is stalls due to memory latency
	MemStalls uint64 `json:"mem_stalls"`

	// Squashed counts branch-shadow instructions dropped
	Squashed uint64 `json:"squashed"`

	// Exceptions counts exceptions taken
	Exceptions uint64 `json:"exceptions"`

	// DCacheHits/Misses (if cache enabled)
	DCacheHits   uint64 `json:"dcache_hits,omitempty"`
	DCacheMisses uint64 `json:"dcache_misses,omitempty"`

	// Mismatches lists registers that did not hold the expected value
	Mismatches []string `json:"mismatches,omitempty"`

	// Error is set if the run could not complete
	Error string `json:"error,omitempty"`

	// WallTime is the actual time taken to run the simulation
	WallTime time.Duration `json:"wall_time_ns"`
}

// Passed reports whether the run completed with the expected registers.
func (r BenchmarkResult) Passed() bool {
	return r.Error == "" && len(r.Mismatches) == 0
}

// Benchmark defines a single benchmark program.
type Benchmark struct {
	// Name identifies the benchmark
	Name string

	// Description explains what the benchmark measures
	Description string

	// Source is the program in assembler syntax, placed at 0x1000
	Source string

	// Configure adjusts the machine configuration, e.g. to reset into
	// User mode.
	Configure func(config *latency.TimingConfig)

	// Setup prepares the core state before the first tick
	Setup func(c *core.Core)

	// Expected maps registers to their values at halt
	Expected map[uint8]uint32
}

// HarnessConfig configures the benchmark harness.
type HarnessConfig struct {
	// EnableDCache enables data cache simulation
	EnableDCache bool

	// Timing is the base machine configuration (default if nil)
	Timing *latency.TimingConfig

	// Parallel bounds the number of cores simulated at once
	Parallel int

	// Output is where to write results (default: os.Stdout)
	Output io.Writer

	// Logger receives per-run log entries
	Logger *logrus.Logger

	// Verbose enables detailed output
	Verbose bool
}

// DefaultConfig returns a default harness configuration.
func DefaultConfig() HarnessConfig {
	return HarnessConfig{
		EnableDCache: true,
		Parallel:     1,
		Output:       os.Stdout,
		Verbose:      false,
	}
}

// Harness runs timing benchmarks and reports results.
type Harness struct {
	config     HarnessConfig
	benchmarks []Benchmark
}

// NewHarness creates a new benchmark harness.
func NewHarness(config HarnessConfig) *Harness {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Timing == nil {
		config.Timing = latency.DefaultTimingConfig()
	}
	if config.Parallel < 1 {
		config.Parallel = 1
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &Harness{
		config:     config,
		benchmarks: []Benchmark{},
	}
}

// AddBenchmark adds a benchmark to the harness.
func (h *Harness) AddBenchmark(b Benchmark) {
	h.benchmarks = append(h.benchmarks, b)
}

// AddBenchmarks adds multiple benchmarks to the harness.
func (h *Harness) AddBenchmarks(benchmarks []Benchmark) {
	h.benchmarks = append(h.benchmarks, benchmarks...)
}

// RunAll executes all benchmarks and returns results in the order the
// benchmarks were added. Each benchmark runs on its own core; up to
// Parallel cores run at once.
func (h *Harness) RunAll() []BenchmarkResult {
	results := make([]BenchmarkResult, len(h.benchmarks))

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(h.config.Parallel)

	for i, bench := range h.benchmarks {
		i, bench := i, bench
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = h.runBenchmark(bench)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runBenchmark executes a single benchmark.
func (h *Harness) runBenchmark(bench Benchmark) BenchmarkResult {
	result := BenchmarkResult{
		Name:        bench.Name,
		Description: bench.Description,
		RunID:       xid.New().String(),
	}
	log := h.config.Logger.WithFields(logrus.Fields{
		"benchmark": bench.Name,
		"run":       result.RunID,
	})

	listing, err := insts.Assemble(bench.Source, 0x1000)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	config := h.config.Timing.Clone()
	config.DCacheEnabled = h.config.EnableDCache
	if bench.Configure != nil {
		bench.Configure(config)
	}

	c, err := core.NewCore(listing, config, core.WithLogger(log))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if bench.Setup != nil {
		bench.Setup(c)
	}

	// Run simulation and measure time
	start := time.Now()
	runErr := c.Run()
	result.WallTime = time.Since(start)

	// Collect statistics
	stats := c.Stats()
	result.SimulatedCycles = stats.Cycles
	result.InstructionsRetired = stats.Instructions
	result.CPI = stats.CPI()
	result.StallCycles = stats.Stalls
	result.MemStalls = stats.MemStalls
	result.Squashed = stats.Squashed
	result.Exceptions = stats.Exceptions
	result.DCacheHits = stats.CacheHits
	result.DCacheMisses = stats.CacheMisses

	if runErr != nil {
		result.Error = runErr.Error()
		log.WithError(runErr).Warn("benchmark did not complete")
		return result
	}

	result.Mismatches = checkRegisters(c, bench.Expected)
	log.WithField("cycles", result.SimulatedCycles).Debug("benchmark complete")

	return result
}

func checkRegisters(c *core.Core, expected map[uint8]uint32) []string {
	regs := make([]int, 0, len(expected))
	for r := range expected {
		regs = append(regs, int(r))
	}
	sort.Ints(regs)

	var mismatches []string
	for _, r := range regs {
		want := expected[uint8(r)]
		if got := c.Register(uint8(r)); got != want {
			mismatches = append(mismatches, fmt.Sprintf("r%d=%d, want %d", r, got, want))
		}
	}
	return mismatches
}

// PrintResults outputs benchmark results in a human-readable format.
func (h *Harness) PrintResults(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output, "=== sbcore Timing Benchmark Results ===")
	_, _ = fmt.Fprintln(h.config.Output, "")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "Benchmark: %s\n", r.Name)
		_, _ = fmt.Fprintf(h.config.Output, "  Description: %s\n", r.Description)
		if h.config.Verbose {
			_, _ = fmt.Fprintf(h.config.Output, "  Run: %s\n", r.RunID)
		}
		_, _ = fmt.Fprintln(h.config.Output, "  --- Timing ---")
		_, _ = fmt.Fprintf(h.config.Output, "  Simulated Cycles:     %d\n", r.SimulatedCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Instructions Retired: %d\n", r.InstructionsRetired)
		_, _ = fmt.Fprintf(h.config.Output, "  CPI:                  %.3f\n", r.CPI)
		_, _ = fmt.Fprintf(h.config.Output, "  Stall Cycles:         %d\n", r.StallCycles)
		_, _ = fmt.Fprintf(h.config.Output, "  Mem Stalls:           %d\n", r.MemStalls)
		_, _ = fmt.Fprintf(h.config.Output, "  Squashed:             %d\n", r.Squashed)
		if r.Exceptions > 0 {
			_, _ = fmt.Fprintf(h.config.Output, "  Exceptions:           %d\n", r.Exceptions)
		}

		if r.DCacheHits > 0 || r.DCacheMisses > 0 {
			_, _ = fmt.Fprintln(h.config.Output, "  --- D-Cache ---")
			_, _ = fmt.Fprintf(h.config.Output, "  Hits:   %d\n", r.DCacheHits)
			_, _ = fmt.Fprintf(h.config.Output, "  Misses: %d\n", r.DCacheMisses)
		}

		switch {
		case r.Error != "":
			_, _ = fmt.Fprintf(h.config.Output, "  Error: %s\n", r.Error)
		case len(r.Mismatches) > 0:
			_, _ = fmt.Fprintf(h.config.Output, "  Mismatches: %v\n", r.Mismatches)
		}

		_, _ = fmt.Fprintf(h.config.Output, "  Wall Time: %v\n", r.WallTime)
		_, _ = fmt.Fprintln(h.config.Output, "")
	}
}

// PrintCSV outputs benchmark results in CSV format for easy comparison.
func (h *Harness) PrintCSV(results []BenchmarkResult) {
	_, _ = fmt.Fprintln(h.config.Output,
		"name,cycles,instructions,cpi,stalls,mem_stalls,squashed,exceptions,dcache_hits,dcache_misses,passed")

	for _, r := range results {
		_, _ = fmt.Fprintf(h.config.Output, "%s,%d,%d,%.3f,%d,%d,%d,%d,%d,%d,%t\n",
			r.Name,
			r.SimulatedCycles,
			r.InstructionsRetired,
			r.CPI,
			r.StallCycles,
			r.MemStalls,
			r.Squashed,
			r.Exceptions,
			r.DCacheHits,
			r.DCacheMisses,
			r.Passed(),
		)
	}
}

// BenchmarkReport is the complete output format for benchmark results.
type BenchmarkReport struct {
	// Metadata about the benchmark run
	Metadata ReportMetadata `json:"metadata"`

	// Results is the list of individual benchmark results
	Results []BenchmarkResult `json:"results"`

	// Summary contains aggregate statistics
	Summary ReportSummary `json:"summary"`
}

// ReportMetadata contains information about the benchmark run.
type ReportMetadata struct {
	// Timestamp when the benchmark was run
	Timestamp string `json:"timestamp"`

	// Version of the simulator
	Version string `json:"version"`

	// Config is the machine configuration used
	Config *latency.TimingConfig `json:"config"`
}

// ReportSummary contains aggregate statistics across all benchmarks.
type ReportSummary struct {
	// TotalBenchmarks is the number of benchmarks run
	TotalBenchmarks int `json:"total_benchmarks"`

	// Passed is the number of benchmarks that matched expectations
	Passed int `json:"passed"`

	// TotalCycles is the sum of all simulated cycles
	TotalCycles uint64 `json:"total_cycles"`

	// TotalInstructions is the sum of all instructions retired
	TotalInstructions uint64 `json:"total_instructions"`

	// AverageCPI is the average cycles per instruction
	AverageCPI float64 `json:"average_cpi"`

	// TotalWallTime is the total wall clock time for all benchmarks
	TotalWallTime time.Duration `json:"total_wall_time_ns"`
}

// Summarize computes aggregate statistics over results.
func Summarize(results []BenchmarkResult) ReportSummary {
	s := ReportSummary{TotalBenchmarks: len(results)}
	for _, r := range results {
		s.TotalCycles += r.SimulatedCycles
		s.TotalInstructions += r.InstructionsRetired
		s.TotalWallTime += r.WallTime
		if r.Passed() {
			s.Passed++
		}
	}
	if s.TotalInstructions > 0 {
		s.AverageCPI = float64(s.TotalCycles) / float64(s.TotalInstructions)
	}
	return s
}

// PrintJSON outputs benchmark results in JSON format for automated comparison.
func (h *Harness) PrintJSON(results []BenchmarkResult) error {
	config := h.config.Timing.Clone()
	config.DCacheEnabled = h.config.EnableDCache

	report := BenchmarkReport{
		Metadata: ReportMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Config:    config,
		},
		Results: results,
		Summary: Summarize(results),
	}

	encoder := json.NewEncoder(h.config.Output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}
