// Package main provides the entry point for sbcore.
// sbcore is a cycle-accurate model of a scoreboarded two-stage pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/insts"
	"github.com/sarchlab/sbcore/timing/core"
	"github.com/sarchlab/sbcore/timing/latency"
	"github.com/sarchlab/sbcore/timing/pipeline"
)

var (
	timing     = flag.Bool("timing", false, "Enable timing simulation mode")
	configPath = flag.String("config", "", "Path to timing configuration file (.json, .yaml)")
	verbose    = flag.Bool("v", false, "Verbose output")
	trace      = flag.Bool("trace", false, "Log every commit (timing mode)")
	useEngine  = flag.Bool("akita", false, "Drive the core from an Akita serial engine")
	jobs       = flag.Int("j", 1, "Number of programs simulated in parallel")
	origin     = flag.Uint("origin", 0x1000, "Load address of programs without .org")
	irqAt      = flag.Uint64("irq-at", 0, "Assert the interrupt line from this cycle on (0 = never)")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: sbcore [options] <program.s>...\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	switch {
	case *trace:
		logger.SetLevel(logrus.DebugLevel)
	case *verbose:
		logger.SetLevel(logrus.InfoLevel)
	default:
		logger.SetLevel(logrus.WarnLevel)
	}

	if !*timing {
		os.Exit(runEmulation(flag.Args(), uint32(*origin), os.Stdout))
	}

	timingConfig := latency.DefaultTimingConfig()
	if *configPath != "" {
		var err error
		timingConfig, err = latency.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading timing config: %v\n", err)
			os.Exit(1)
		}
	}

	opts := runOptions{
		Config: timingConfig,
		Origin: uint32(*origin),
		Engine: *useEngine,
		IRQAt:  *irqAt,
		Logger: logger,
	}

	reports := runAll(flag.Args(), opts, *jobs)

	exitCode := 0
	for _, r := range reports {
		printReport(os.Stdout, r)
		if r.Err != nil {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

// loadProgram assembles the program at path.
func loadProgram(path string, origin uint32) (*insts.Listing, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}

	listing, err := insts.Assemble(string(src), origin)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return listing, nil
}

// runEmulation runs each program in functional emulation mode and returns
// the process exit code.
func runEmulation(paths []string, origin uint32, out io.Writer) int {
	exitCode := 0
	for _, path := range paths {
		listing, err := loadProgram(path, origin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
			exitCode = 1
			continue
		}

		emulator := emu.NewEmulator(listing, emu.WithMaxInstructions(latency.DefaultTimingConfig().MaxCycles))
		runErr := emulator.Run()

		_, _ = fmt.Fprintf(out, "\nProgram: %s\n", path)
		_, _ = fmt.Fprintf(out, "Instructions executed: %d\n", emulator.InstructionCount())
		if runErr != nil {
			_, _ = fmt.Fprintf(out, "Error: %v\n", runErr)
			exitCode = 1
		}
		if *verbose {
			printRegisters(out, emulator.Reg)
		}
	}
	return exitCode
}

// runOptions configures timing runs.
type runOptions struct {
	Config *latency.TimingConfig
	Origin uint32
	Engine bool
	IRQAt  uint64
	Logger *logrus.Logger
}

// runReport is the outcome of one timing run.
type runReport struct {
	Path  string
	RunID string
	Stats core.Stats
	Mode  pipeline.ModeState
	Regs  [insts.NumRegisters]uint32
	Err   error
}

// runAll simulates each program on its own core, jobs at a time. Reports
// come back in the order of paths.
func runAll(paths []string, opts runOptions, jobs int) []runReport {
	reports := make([]runReport, len(paths))

	g, ctx := errgroup.WithContext(context.Background())
	if jobs < 1 {
		jobs = 1
	}
	g.SetLimit(jobs)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				reports[i] = runReport{Path: path, Err: err}
				return nil
			}
			reports[i] = runTiming(path, opts)
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

// runTiming runs the program at path in timing simulation mode.
func runTiming(path string, opts runOptions) runReport {
	report := runReport{Path: path, RunID: xid.New().String()}
	log := opts.Logger.WithFields(logrus.Fields{
		"program": path,
		"run":     report.RunID,
	})

	listing, err := loadProgram(path, opts.Origin)
	if err != nil {
		report.Err = err
		return report
	}

	var c *core.Core
	coreOpts := []core.Option{core.WithLogger(log)}
	if opts.IRQAt > 0 {
		coreOpts = append(coreOpts, core.WithInterruptLine(pipeline.InterruptFunc(func() bool {
			return c.Stats().Cycles >= opts.IRQAt
		})))
	}
	if opts.Engine {
		coreOpts = append(coreOpts, core.WithEngine(sim.NewSerialEngine(), "Core", 1*sim.GHz))
	}

	c, err = core.NewCore(listing, opts.Config, coreOpts...)
	if err != nil {
		report.Err = err
		return report
	}

	log.Info("simulation started")
	report.Err = c.Run()
	report.Stats = c.Stats()
	report.Mode = c.Pipeline.Mode()
	report.Regs = c.Pipeline.Scoreboard().Snapshot()
	log.WithField("cycles", report.Stats.Cycles).Info("simulation finished")

	return report
}

// printReport prints the timing report of one run.
func printReport(out io.Writer, r runReport) {
	stats := r.Stats

	totalCycles := stats.Cycles
	if totalCycles == 0 {
		totalCycles = 1
	}

	_, _ = fmt.Fprintf(out, "\n")
	_, _ = fmt.Fprintf(out, "Program: %s\n", r.Path)
	_, _ = fmt.Fprintf(out, "Run: %s\n", r.RunID)
	if r.Err != nil {
		_, _ = fmt.Fprintf(out, "Error: %v\n", r.Err)
	}
	_, _ = fmt.Fprintf(out, "Total Instructions: %d\n", stats.Instructions)
	_, _ = fmt.Fprintf(out, "Total Cycles: %d\n", stats.Cycles)
	_, _ = fmt.Fprintf(out, "CPI: %.2f\n", stats.CPI())
	_, _ = fmt.Fprintf(out, "\n")
	_, _ = fmt.Fprintf(out, "Breakdown:\n")
	_, _ = fmt.Fprintf(out, "  Issue stalls:   %4d cycles (%5.1f%%)\n",
		stats.Stalls, 100.0*float64(stats.Stalls)/float64(totalCycles))
	_, _ = fmt.Fprintf(out, "  Memory stalls:  %4d cycles (%5.1f%%)\n",
		stats.MemStalls, 100.0*float64(stats.MemStalls)/float64(totalCycles))
	_, _ = fmt.Fprintf(out, "\n")
	_, _ = fmt.Fprintf(out, "Pipeline Events:\n")
	_, _ = fmt.Fprintf(out, "  Squashed:   %d\n", stats.Squashed)
	_, _ = fmt.Fprintf(out, "  Exceptions: %d\n", stats.Exceptions)
	if stats.CacheHits+stats.CacheMisses > 0 {
		_, _ = fmt.Fprintf(out, "  D-Cache:    %d hits, %d misses\n", stats.CacheHits, stats.CacheMisses)
	}
	_, _ = fmt.Fprintf(out, "Final mode: %s\n", r.Mode)

	if *verbose {
		printRegisters(out, func(i uint8) uint32 { return r.Regs[i] })
	}
}

func printRegisters(out io.Writer, reg func(uint8) uint32) {
	for i := uint8(0); i < insts.NumRegisters; i++ {
		_, _ = fmt.Fprintf(out, "  r%-2d = 0x%08X\n", i, reg(i))
	}
}
