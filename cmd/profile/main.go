// Package main provides a profiling wrapper for sbcore to identify
// simulator performance bottlenecks.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/insts"
	"github.com/sarchlab/sbcore/timing/core"
	"github.com/sarchlab/sbcore/timing/latency"
)

var (
	timing      = flag.Bool("timing", false, "Enable timing simulation mode")
	cpuProfile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile  = flag.String("memprofile", "", "write memory profile to file")
	duration    = flag.Duration("duration", 30*time.Second, "max duration to run (for profiling)")
	instruction = flag.Uint64("max-instr", 1000000, "max instructions (cycles in timing mode) to execute (0 = unlimited)")
	repeat      = flag.Int("repeat", 1, "number of times to run the program")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: profile [options] <program.s>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Start CPU profiling if requested
	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	programPath := flag.Arg(0)

	src, err := os.ReadFile(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}
	listing, err := insts.Assemble(string(src), 0x1000)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error assembling program: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Loaded: %s\n", programPath)
	fmt.Printf("Entry point: 0x%X\n", listing.Entry)

	start := time.Now()

	// Set timeout
	go func() {
		time.Sleep(*duration)
		fmt.Printf("\nTimeout reached after %v - stopping execution\n", *duration)
		os.Exit(2)
	}()

	var instrCount uint64
	for i := 0; i < *repeat; i++ {
		var n uint64
		if *timing {
			n, err = runTimingProfile(listing)
		} else {
			n, err = runEmulationProfile(listing)
		}
		instrCount += n
		if err != nil {
			fmt.Fprintf(os.Stderr, "Run %d: %v\n", i, err)
			break
		}
	}

	elapsed := time.Since(start)

	// Write memory profile if requested
	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	fmt.Printf("\nProfiling Results:\n")
	fmt.Printf("Instructions executed: %d\n", instrCount)
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if instrCount > 0 {
		fmt.Printf("Instructions/second: %.0f\n", float64(instrCount)/elapsed.Seconds())
	}
}

// runEmulationProfile runs the program in functional emulation mode.
func runEmulationProfile(listing *insts.Listing) (uint64, error) {
	emulator := emu.NewEmulator(listing, emu.WithMaxInstructions(*instruction))
	err := emulator.Run()
	return emulator.InstructionCount(), err
}

// runTimingProfile runs the program in timing simulation mode.
func runTimingProfile(listing *insts.Listing) (uint64, error) {
	config := latency.DefaultTimingConfig()
	config.MaxCycles = *instruction

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	c, err := core.NewCore(listing, config, core.WithLogger(logrus.NewEntry(logger)))
	if err != nil {
		return 0, err
	}

	err = c.Run()
	return c.Stats().Instructions, err
}
