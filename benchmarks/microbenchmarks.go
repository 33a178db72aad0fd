package benchmarks

import (
	"fmt"
	"strings"

	"github.com/sarchlab/sbcore/timing/core"
	"github.com/sarchlab/sbcore/timing/latency"
)

// GetMicrobenchmarks returns the standard set of microbenchmarks.
// Each benchmark targets a specific pipeline characteristic.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(),
		memorySequential(),
		functionCalls(),
		branchTaken(),
		multiplyChain(),
		matrixMultiply2x2(),
		loopSimulation(),
		trapRoundTrip(),
	}
}

// GetCoreBenchmarks returns a minimal set of 3 core benchmarks for quick
// validation: loop, matrix multiply and branch-heavy code.
func GetCoreBenchmarks() []Benchmark {
	return []Benchmark{
		loopSimulation(),
		matrixMultiply2x2(),
		branchTaken(),
	}
}

// repeat emits body n times, one instruction per line.
func repeat(n int, body ...string) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		for _, line := range body {
			b.WriteString("\t")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// 1. Arithmetic Sequential - Tests issue throughput with independent operations
func arithmeticSequential() Benchmark {
	return Benchmark{
		Name:        "arithmetic_sequential",
		Description: "20 ADDs over 5 registers - measures issue throughput",
		Source: repeat(4,
			"addi r0, r0, 1",
			"addi r1, r1, 1",
			"addi r2, r2, 1",
			"addi r3, r3, 1",
			"addi r4, r4, 1",
		) + "\thalt\n",
		Expected: map[uint8]uint32{0: 4, 1: 4, 2: 4, 3: 4, 4: 4},
	}
}

// 2. Dependency Chain - Tests the read-after-write stall
func dependencyChain() Benchmark {
	return Benchmark{
		Name:        "dependency_chain",
		Description: "20 dependent ADDs (r0 = r0 + 1) - measures forwarding latency",
		Source:      repeat(20, "addi r0, r0, 1") + "\thalt\n",
		Expected:    map[uint8]uint32{0: 20},
	}
}

// 3. Memory Sequential - Tests memory latency
func memorySequential() Benchmark {
	var src strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&src, "\tsw   r0, %d(r1)\n\tlw   r0, %d(r1)\n", i*4, i*4)
	}
	src.WriteString("\thalt\n")

	return Benchmark{
		Name:        "memory_sequential",
		Description: "10 store/load pairs to sequential addresses - measures memory latency",
		Source:      src.String(),
		Setup: func(c *core.Core) {
			c.SetRegister(0, 42)
			c.SetRegister(1, 0x8000)
		},
		Expected: map[uint8]uint32{0: 42},
	}
}

// 4. Function Calls - Tests call and return overhead
func functionCalls() Benchmark {
	return Benchmark{
		Name:        "function_calls",
		Description: "5 calls (jal + jr pairs) - measures call overhead",
		Source: repeat(5, "jal  r14, add_one") + `
	halt
add_one:
	addi r0, r0, 1
	jr   r14
`,
		Expected: map[uint8]uint32{0: 5},
	}
}

// 5. Branch Taken - Tests taken branch overhead
func branchTaken() Benchmark {
	var src strings.Builder
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&src, "\tj    skip%d\n\taddi r1, r1, 99\nskip%d:\n\taddi r0, r0, 1\n", i, i)
	}
	src.WriteString("\thalt\n")

	return Benchmark{
		Name:        "branch_taken",
		Description: "5 unconditional jumps over one instruction - measures shadow cost",
		Source:      src.String(),
		Expected:    map[uint8]uint32{0: 5, 1: 0},
	}
}

// 6. Multiply Chain - Tests multiplier occupancy
func multiplyChain() Benchmark {
	return Benchmark{
		Name:        "multiply_chain",
		Description: "10 independent multiplies - measures multiplier occupancy",
		Source: repeat(5,
			"mul  r3, r1, r2",
			"mul  r4, r2, r1",
		) + "\thalt\n",
		Setup: func(c *core.Core) {
			c.SetRegister(1, 6)
			c.SetRegister(2, 7)
		},
		Expected: map[uint8]uint32{3: 42, 4: 42},
	}
}

// 7. Matrix Multiply 2x2 - Loads, multiplies and stores
func matrixMultiply2x2() Benchmark {
	return Benchmark{
		Name:        "matrix_multiply_2x2",
		Description: "2x2 matrix product from memory - mixes loads, multiplies and stores",
		Source: `
.data 0x4000, 1, 2, 3, 4
.data 0x4010, 5, 6, 7, 8
	li   r1, 0x4000
	lw   r2, 0(r1)
	lw   r3, 4(r1)
	lw   r4, 8(r1)
	lw   r5, 12(r1)
	lw   r6, 16(r1)
	lw   r7, 20(r1)
	lw   r8, 24(r1)
	lw   r9, 28(r1)
	mul  r10, r2, r6
	mul  r11, r3, r8
	add  r10, r10, r11
	sw   r10, 32(r1)
	mul  r10, r2, r7
	mul  r11, r3, r9
	add  r10, r10, r11
	sw   r10, 36(r1)
	mul  r10, r4, r6
	mul  r11, r5, r8
	add  r12, r10, r11
	sw   r12, 40(r1)
	mul  r10, r4, r7
	mul  r11, r5, r9
	add  r0, r10, r11
	sw   r0, 44(r1)
	halt
`,
		Expected: map[uint8]uint32{0: 50, 12: 43},
	}
}

// 8. Loop Simulation - A counted loop with a backward branch
func loopSimulation() Benchmark {
	return Benchmark{
		Name:        "loop_simulation",
		Description: "10 iteration counted loop - measures backward branch cost",
		Source: `
	li   r1, 10
loop:
	addi r0, r0, 1
	subi r1, r1, 1
	bne  r1, r2, loop
	halt
`,
		Expected: map[uint8]uint32{0: 10, 1: 0},
	}
}

// 9. Trap Round Trip - User code calling a Supervisor handler
func trapRoundTrip() Benchmark {
	return Benchmark{
		Name:        "trap_round_trip",
		Description: "3 traps from User mode returning past the trap - measures mode switch cost",
		Source: `
.org 0x150
	csrr r9, 2
	addi r9, r9, 4
	uret r9
.org 0x10010
` + repeat(3, "trap 1", "addi r0, r0, 1") + "\thalt\n",
		Configure: func(config *latency.TimingConfig) {
			config.ResetLevel = latency.LevelUser
			config.ResetPC = 0x10
		},
		Expected: map[uint8]uint32{0: 3},
	}
}
