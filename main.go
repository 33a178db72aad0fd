// Package main provides the entry point for sbcore.
// sbcore is a cycle-accurate model of a scoreboarded two-stage pipeline
// with precise exceptions across two privilege levels.
//
// For the full CLI, use: go run ./cmd/sbcore
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("sbcore - Scoreboard Pipeline Core Simulator")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: sbcore [options] <program.s>...")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -timing    Enable timing simulation mode")
	fmt.Println("  -config    Path to timing configuration file (.json, .yaml)")
	fmt.Println("  -akita     Drive the core from an Akita serial engine")
	fmt.Println("  -j         Number of programs simulated in parallel")
	fmt.Println("  -irq-at    Assert the interrupt line from this cycle on")
	fmt.Println("  -trace     Log every commit")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/sbcore' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/sbcore' instead.")
	}
}
