package pipeline

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/sarchlab/sbcore/emu"
	"github.com/sarchlab/sbcore/timing/csr"
	"github.com/sarchlab/sbcore/timing/latency"
	"github.com/sarchlab/sbcore/timing/scoreboard"
)

// ErrMaxCycles is reported when a run reaches its cycle limit.
var ErrMaxCycles = errors.New("cycle limit reached")

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired.
	Instructions uint64
	// Squashed is the number of shadow instructions dropped in Stage 2.
	Squashed uint64
	// Discarded is the number of descriptors dropped from the Issuer.
	Discarded uint64
	// Exceptions counts taken exceptions, interrupts included.
	Exceptions uint64
	// Interrupts counts taken hardware interrupts.
	Interrupts uint64
	// Branches is the number of control instructions retired.
	Branches uint64
	// BranchesTaken is the number of retired control instructions that
	// redirected fetch.
	BranchesTaken uint64

	// Issue refusals by reason.
	ScoreboardStalls uint64
	ShadowStalls     uint64
	RedirectStalls   uint64
	MultiplierStalls uint64
	Stage1Stalls     uint64

	// Stage 2 waits.
	MemStalls  uint64
	CSRStalls  uint64
	ExecStalls uint64
}

// CPI returns the cycles per instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger pipeline events are written to.
func WithLogger(log *logrus.Entry) PipelineOption {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithLatencyTable sets the latency table used for unit occupancy.
func WithLatencyTable(table *latency.Table) PipelineOption {
	return func(p *Pipeline) {
		p.latencyTable = table
	}
}

// WithTimingConfig applies latencies, vectors, the User region, the nested
// fault policy and the cycle limit from config. An unknown nested fault
// policy is logged at Warn and NestedFaultHalt is used; validate config
// first to reject it instead.
func WithTimingConfig(config *latency.TimingConfig) PipelineOption {
	return func(p *Pipeline) {
		p.latencyTable = latency.NewTableWithConfig(config)
		p.trapVector = config.TrapVector
		p.vectorStride = config.VectorStride
		p.region = emu.Region{Base: config.UserBase, Limit: config.UserLimit}
		p.maxCycles = config.MaxCycles
		policy, err := ParseNestedFaultPolicy(config.NestedFaultPolicy)
		if err != nil {
			p.optionErrs = append(p.optionErrs, err)
		}
		p.nestedPolicy = policy
	}
}

// WithRegion sets the User-mode address region.
func WithRegion(region emu.Region) PipelineOption {
	return func(p *Pipeline) {
		p.region = region
	}
}

// WithTrapVector sets the exception vector table.
func WithTrapVector(base, stride uint32) PipelineOption {
	return func(p *Pipeline) {
		p.trapVector = base
		p.vectorStride = stride
	}
}

// WithNestedFaultPolicy sets the nested fault policy.
func WithNestedFaultPolicy(policy NestedFaultPolicy) PipelineOption {
	return func(p *Pipeline) {
		p.nestedPolicy = policy
	}
}

// WithInterruptLine connects the interrupt input.
func WithInterruptLine(line InterruptLine) PipelineOption {
	return func(p *Pipeline) {
		p.irq = line
	}
}

// WithInitialMode sets the mode state at reset.
func WithInitialMode(mode ModeState) PipelineOption {
	return func(p *Pipeline) {
		p.mode = mode
	}
}

// WithTrace keeps every CommitRecord in memory.
func WithTrace() PipelineOption {
	return func(p *Pipeline) {
		p.keepTrace = true
	}
}

// WithCommitHook calls hook for every CommitRecord.
func WithCommitHook(hook func(CommitRecord)) PipelineOption {
	return func(p *Pipeline) {
		p.commitHook = hook
	}
}

// WithMaxCycles stops Run after n cycles. Zero means unbounded.
func WithMaxCycles(n uint64) PipelineOption {
	return func(p *Pipeline) {
		p.maxCycles = n
	}
}

// Pipeline is the issue/execute core: Issuer, Stage 1 and Stage 2 around a
// register scoreboard, with the dual-PC mode controller.
type Pipeline struct {
	frontEnd FrontEnd
	memory   MemoryPort
	csr      CSRPort
	irq      InterruptLine

	scoreboard *scoreboard.Scoreboard
	issuer     *Issuer
	admission  *AdmissionControl
	stage1     *Stage1
	multiplier *emu.Multiplier
	addrCalc   *emu.AddressCalculator

	latencyTable *latency.Table

	// Pipeline registers
	s1 Stage1Register
	s2 Slot

	mode         ModeState
	region       emu.Region
	trapVector   uint32
	vectorStride uint32
	nestedPolicy NestedFaultPolicy
	optionErrs   []error

	epoch uint64
	seq   uint64

	// doBranch is the pulse visible during the current tick; doBranchNext
	// is raised by Stage 2 for the next one.
	doBranch     bool
	doBranchNext bool
	redirecting  bool
	irqPrev      bool

	maxCycles uint64
	halted    bool
	err       error

	keepTrace  bool
	trace      []CommitRecord
	commitHook func(CommitRecord)

	log   *logrus.Entry
	stats Statistics
}

// NewPipeline creates a pipeline fed by fe and connected to the memory and
// CSR collaborators. The front end is redirected to the reset counter.
func NewPipeline(fe FrontEnd, memory MemoryPort, csrPort CSRPort, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		frontEnd:     fe,
		memory:       memory,
		csr:          csrPort,
		scoreboard:   scoreboard.New(),
		issuer:       NewIssuer(),
		latencyTable: latency.NewTable(),
		trapVector:   latency.DefaultTimingConfig().TrapVector,
		vectorStride: latency.DefaultTimingConfig().VectorStride,
		log:          logrus.NewEntry(logrus.StandardLogger()),
	}

	for _, opt := range opts {
		opt(p)
	}
	for _, err := range p.optionErrs {
		p.log.WithError(err).Warn("ignoring pipeline option")
	}

	p.multiplier = emu.NewMultiplier(int(p.latencyTable.Config().MultiplyLatency))
	p.addrCalc = emu.NewAddressCalculator(p.region)
	p.stage1 = NewStage1(p.multiplier, p.addrCalc)
	p.admission = NewAdmissionControl(p.latencyTable)

	p.frontEnd.Redirect(p.mode.ActivePC(), p.mode.Level)

	return p
}

// Scoreboard returns the register store.
func (p *Pipeline) Scoreboard() *scoreboard.Scoreboard {
	return p.scoreboard
}

// SetRegister initializes a register before the first tick.
func (p *Pipeline) SetRegister(addr uint8, v uint32) {
	p.scoreboard.SetValue(addr, v)
}

// Register returns the committed value of a register.
func (p *Pipeline) Register(addr uint8) uint32 {
	return p.scoreboard.Value(addr)
}

// Mode returns the current mode state.
func (p *Pipeline) Mode() ModeState {
	return p.mode
}

// CSRStatus returns the mode state in the shape the CSR bank exposes.
func (p *Pipeline) CSRStatus() csr.Status {
	return csr.Status{
		Level:        p.mode.Level,
		SupervisorPC: p.mode.SupervisorPC,
		UserPC:       p.mode.UserPC,
		Cause:        uint32(p.mode.PendingCause),
		FaultAddr:    p.mode.PendingFaultAddr,
		IRQLatched:   p.mode.IRQLatched,
	}
}

// DoBranch returns true if the redirect pulse was asserted during the last
// tick.
func (p *Pipeline) DoBranch() bool {
	return p.doBranch
}

// Epoch returns the current branch epoch.
func (p *Pipeline) Epoch() uint64 {
	return p.epoch
}

// Trace returns the commit records kept with WithTrace.
func (p *Pipeline) Trace() []CommitRecord {
	return p.trace
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	return p.stats
}

// Halted returns true if the pipeline has halted.
func (p *Pipeline) Halted() bool {
	return p.halted
}

// Err returns the reason the pipeline stopped abnormally, if any.
func (p *Pipeline) Err() error {
	return p.err
}

// Run executes the pipeline until it halts and returns Err.
func (p *Pipeline) Run() error {
	for p.Tick() {
	}
	return p.err
}

// RunCycles executes the pipeline for the specified number of cycles.
// Returns true if still running, false if halted.
func (p *Pipeline) RunCycles(cycles uint64) bool {
	for i := uint64(0); i < cycles && !p.halted; i++ {
		p.Tick()
	}
	return !p.halted
}

// Tick executes one pipeline cycle. It returns false once halted.
//
// Stages are evaluated in reverse order (Stage 2, Stage 1, Issuer) so each
// stage sees the same-tick decisions of the stages after it. Stage 2 stages
// its commit on the scoreboard first, which lets the Issuer's reads observe
// it; the commit is applied when the scoreboard ticks at the end.
func (p *Pipeline) Tick() bool {
	if p.halted {
		return false
	}

	p.stats.Cycles++
	p.doBranch = p.doBranchNext
	p.doBranchNext = false
	p.redirecting = false

	irq := p.sampleInterrupt()

	s2Free := p.tickStage2(irq)
	if !p.halted {
		s1Free := p.tickStage1(s2Free)
		p.tickIssuer(s1Free)
	}

	p.scoreboard.Tick()
	p.multiplier.Step()
	p.admission.Tick()

	if !p.halted && p.maxCycles > 0 && p.stats.Cycles >= p.maxCycles {
		p.stop(ErrMaxCycles)
	}

	return true
}

// sampleInterrupt reads the interrupt line. A rising edge seen in
// Supervisor mode is latched for delivery in User mode.
func (p *Pipeline) sampleInterrupt() bool {
	asserted := p.irq != nil && p.irq.Asserted()
	rising := asserted && !p.irqPrev
	p.irqPrev = asserted

	if rising && p.mode.Level == emu.LevelSupervisor && !p.mode.IRQLatched {
		p.mode = p.mode.LatchIRQ()
		p.log.WithField("cycle", p.stats.Cycles).Debug("interrupt latched")
	}

	return asserted
}

func (p *Pipeline) interruptPending(asserted bool) bool {
	return p.mode.Level == emu.LevelUser && (asserted || p.mode.IRQLatched)
}

func (p *Pipeline) tickStage1(s2Free bool) bool {
	if !p.s1.Valid {
		return true
	}

	p.stage1.Evaluate(&p.s1, p.mode.Level)
	if !s2Free || !p.stage1.Ready(&p.s1) {
		return false
	}

	p.s2 = p.s1.Slot
	d := &p.s2.Desc
	if d.Class.IsControl() && !d.Faulting() && p.s2.Epoch == p.epoch {
		p.admission.ControlAccepted()
	}
	p.s1.Clear()

	return true
}

func (p *Pipeline) tickIssuer(s1Free bool) {
	if p.doBranch {
		if p.issuer.Discard() {
			p.stats.Discarded++
		}
		p.frontEnd.Redirect(p.mode.ActivePC(), p.mode.Level)
		return
	}

	p.issuer.Take(p.frontEnd)
	if !p.issuer.Holding() {
		return
	}

	d := p.issuer.Held()
	refusal := RefuseStage1
	if s1Free {
		refusal = p.admission.Check(d, p.stats.Cycles, p.redirecting)
	}
	if refusal != RefuseNone {
		p.countRefusal(refusal)
		p.issuer.Refused()
		return
	}

	grant, ok := p.scoreboard.Request(p.issuer.Request())
	if !ok {
		p.stats.ScoreboardStalls++
		p.issuer.Refused()
		return
	}

	desc := p.issuer.Release()
	p.admission.Admitted(&desc, p.stats.Cycles)
	p.seq++

	p.s1 = Stage1Register{
		Valid:    true,
		Desc:     desc,
		Read1:    grant.Read1Data,
		Read2:    grant.Read2Data,
		Reserved: desc.NeedsRegisters() && desc.UseRd,
		Seq:      p.seq,
		Epoch:    p.epoch,
	}
}

func (p *Pipeline) countRefusal(r Refusal) {
	switch r {
	case RefuseRedirect:
		p.stats.RedirectStalls++
	case RefuseShadow:
		p.stats.ShadowStalls++
	case RefuseMultiplier:
		p.stats.MultiplierStalls++
	case RefuseStage1:
		p.stats.Stage1Stalls++
	}
}

// redirect starts a new epoch and raises do_branch for the next tick.
func (p *Pipeline) redirect() {
	p.epoch++
	p.doBranchNext = true
	p.redirecting = true
}

func (p *Pipeline) stop(err error) {
	p.halted = true
	p.err = err
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"cycle": p.stats.Cycles,
			"mode":  p.mode.String(),
		}).WithError(err).Warn("pipeline stopped")
	}
}

func (p *Pipeline) record(rec CommitRecord) {
	rec.Cycle = p.stats.Cycles

	if p.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		p.log.WithFields(logrus.Fields{
			"cycle":    rec.Cycle,
			"seq":      rec.Seq,
			"pc":       rec.PC,
			"op":       rec.Op.String(),
			"squashed": rec.Squashed,
			"cause":    rec.Cause.String(),
			"taken":    rec.Taken,
		}).Debug("commit")
	}

	if p.keepTrace {
		p.trace = append(p.trace, rec)
	}
	if p.commitHook != nil {
		p.commitHook(rec)
	}
}
