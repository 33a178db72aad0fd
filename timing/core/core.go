// Package core provides the cycle-accurate CPU core model.
// It wires the pipeline to its front end, memory and CSR collaborators and
// exposes the whole as an Akita ticking component.
package core

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sirupsen/logrus"

	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/insts"
	"github.com/sarchlab/sbcore/timing/cache"
	"github.com/sarchlab/sbcore/timing/csr"
	"github.com/sarchlab/sbcore/timing/frontend"
	"github.com/sarchlab/sbcore/timing/latency"
	"github.com/sarchlab/sbcore/timing/membus"
	"github.com/sarchlab/sbcore/timing/pipeline"
)

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired.
	Instructions uint64
	// Squashed is the number of shadow instructions dropped.
	Squashed uint64
	// Exceptions is the number of exceptions taken.
	Exceptions uint64
	// Stalls is the number of ticks the Issuer was refused admission.
	Stalls uint64
	// MemStalls is the number of ticks Stage 2 waited on memory.
	MemStalls uint64
	// CacheHits and CacheMisses are zero without the L1.
	CacheHits   uint64
	CacheMisses uint64
}

// CPI returns the cycles per instruction.
func (s Stats) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// Option configures a Core.
type Option func(*Core)

// WithLogger sets the logger the pipeline writes to.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Core) {
		c.log = log
	}
}

// WithInterruptLine connects the interrupt input.
func WithInterruptLine(line pipeline.InterruptLine) Option {
	return func(c *Core) {
		c.irq = line
	}
}

// WithMemory uses memory instead of a fresh one.
func WithMemory(memory *emu.Memory) Option {
	return func(c *Core) {
		c.memory = memory
	}
}

// WithEngine registers the core as a ticking component on engine.
func WithEngine(engine sim.Engine, name string, freq sim.Freq) Option {
	return func(c *Core) {
		c.engine = engine
		c.TickingComponent = sim.NewTickingComponent(name, engine, freq, c)
	}
}

// WithPipelineOptions passes extra options to the pipeline.
func WithPipelineOptions(opts ...pipeline.PipelineOption) Option {
	return func(c *Core) {
		c.pipelineOpts = append(c.pipelineOpts, opts...)
	}
}

// Core represents a cycle-accurate CPU core model.
type Core struct {
	*sim.TickingComponent

	// Pipeline is the issue/execute pipeline.
	Pipeline *pipeline.Pipeline
	// FrontEnd supplies the program.
	FrontEnd *frontend.Program
	// Bus is the data memory collaborator.
	Bus *membus.Bus
	// CSR is the control/status register collaborator.
	CSR *csr.Bank
	// DCache is the L1 data cache, nil when disabled.
	DCache *cache.Cache

	listing *insts.Listing
	config  *latency.TimingConfig
	memory  *emu.Memory
	engine  sim.Engine
	log     *logrus.Entry
	irq     pipeline.InterruptLine

	pipelineOpts []pipeline.PipelineOption
	flushed      bool
}

// NewCore creates a core running listing under config.
func NewCore(listing *insts.Listing, config *latency.TimingConfig, opts ...Option) (*Core, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Core{
		listing: listing,
		config:  config.Clone(),
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.memory == nil {
		c.memory = emu.NewMemory()
	}
	c.memory.LoadWords(listing.Data)

	if err := c.build(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Core) resetMode() (pipeline.ModeState, error) {
	pc := c.config.ResetPC
	if pc == 0 {
		pc = c.listing.Entry
	}

	switch c.config.ResetLevel {
	case latency.LevelUser:
		return pipeline.ModeState{Level: emu.LevelUser, UserPC: pc}, nil
	case latency.LevelSupervisor:
		return pipeline.ModeState{Level: emu.LevelSupervisor, SupervisorPC: pc}, nil
	}
	return pipeline.ModeState{}, fmt.Errorf("unknown reset level %q", c.config.ResetLevel)
}

func (c *Core) build() error {
	mode, err := c.resetMode()
	if err != nil {
		return err
	}

	region := emu.Region{Base: c.config.UserBase, Limit: c.config.UserLimit}
	c.FrontEnd = frontend.New(c.listing, region)

	if c.config.DCacheEnabled {
		l1 := cache.DefaultL1DConfig()
		l1.HitLatency = c.config.L1HitLatency
		l1.MissLatency = c.config.MemoryLatency
		if c.config.DCacheWriteThrough {
			l1.Policy = cache.WriteThrough
		}
		c.DCache, err = cache.New(l1, cache.NewMemoryBacking(c.memory))
		if err != nil {
			return fmt.Errorf("data cache: %w", err)
		}
		c.Bus = membus.NewCached(c.DCache)
	} else {
		c.DCache = nil
		c.Bus = membus.New(c.memory, c.config.MemoryLatency)
	}

	c.CSR = csr.New(csr.StatusFunc(func() csr.Status {
		return c.Pipeline.CSRStatus()
	}), c.config.CSRLatency)

	opts := []pipeline.PipelineOption{
		pipeline.WithTimingConfig(c.config),
		pipeline.WithInitialMode(mode),
		pipeline.WithLogger(c.log),
	}
	if c.irq != nil {
		opts = append(opts, pipeline.WithInterruptLine(c.irq))
	}
	opts = append(opts, c.pipelineOpts...)

	c.Pipeline = pipeline.NewPipeline(c.FrontEnd, c.Bus, c.CSR, opts...)
	c.flushed = false

	return nil
}

// SetRegister initializes a register before the first tick.
func (c *Core) SetRegister(addr uint8, v uint32) {
	c.Pipeline.SetRegister(addr, v)
}

// Register returns the committed value of a register.
func (c *Core) Register(addr uint8) uint32 {
	return c.Pipeline.Register(addr)
}

// Memory returns the data memory. Cached lines are written back when the
// core halts.
func (c *Core) Memory() *emu.Memory {
	return c.memory
}

// Tick executes one cycle of the pipeline and its collaborators. It
// returns false once the core has halted.
func (c *Core) Tick() bool {
	progress := c.Pipeline.Tick()
	c.Bus.Tick()
	c.CSR.Tick()

	if c.Pipeline.Halted() && !c.flushed {
		c.Bus.Flush()
		c.flushed = true
	}

	return progress
}

// Halted returns true if the core has halted.
func (c *Core) Halted() bool {
	return c.Pipeline.Halted()
}

// Err returns the reason the core stopped abnormally, if any.
func (c *Core) Err() error {
	return c.Pipeline.Err()
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	ps := c.Pipeline.Stats()
	s := Stats{
		Cycles:       ps.Cycles,
		Instructions: ps.Instructions,
		Squashed:     ps.Squashed,
		Exceptions:   ps.Exceptions,
		Stalls: ps.ScoreboardStalls + ps.ShadowStalls + ps.RedirectStalls +
			ps.MultiplierStalls + ps.Stage1Stalls,
		MemStalls: ps.MemStalls,
	}
	if c.DCache != nil {
		cs := c.DCache.Stats()
		s.CacheHits, s.CacheMisses = cs.Hits, cs.Misses
	}
	return s
}

// Run executes the core until it halts. With an engine, the core schedules
// itself and the engine runs; otherwise the core ticks directly.
func (c *Core) Run() error {
	if c.engine == nil {
		for c.Tick() {
		}
		return c.Err()
	}

	c.TickLater()
	if err := c.engine.Run(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return c.Err()
}

// RunCycles executes the core for the specified number of cycles.
// Returns true if still running, false if halted.
func (c *Core) RunCycles(cycles uint64) bool {
	for i := uint64(0); i < cycles && !c.Halted(); i++ {
		c.Tick()
	}
	return !c.Halted()
}

// Reset rebuilds the core from its program. Memory is reloaded from the
// program's data but otherwise kept.
func (c *Core) Reset() error {
	c.memory.LoadWords(c.listing.Data)
	return c.build()
}
