package emu

// DefaultMultiplyStages is the depth of the multiplier pipeline.
const DefaultMultiplyStages = 2

type mulStage struct {
	valid   bool
	product uint32
}

// Multiplier is an in-order pipelined multiplier. An operation accepted by
// Start is computed once it reaches the last stage, where it waits until
// taken with Pop. Step advances the pipeline by one cycle.
type Multiplier struct {
	stages []mulStage
}

// NewMultiplier creates a multiplier with the given number of stages. Fewer
// than one stage is treated as one.
func NewMultiplier(stages int) *Multiplier {
	if stages < 1 {
		stages = 1
	}
	return &Multiplier{stages: make([]mulStage, stages)}
}

// Stages returns the pipeline depth.
func (m *Multiplier) Stages() int {
	return len(m.stages)
}

// Start accepts a new operation into the first stage. It returns false if
// the first stage is still occupied.
func (m *Multiplier) Start(a, b uint32) bool {
	if m.stages[0].valid {
		return false
	}
	m.stages[0] = mulStage{valid: true, product: a * b}
	return true
}

// Step moves every operation one stage forward where the next stage is free.
func (m *Multiplier) Step() {
	for i := len(m.stages) - 1; i > 0; i-- {
		if !m.stages[i].valid && m.stages[i-1].valid {
			m.stages[i] = m.stages[i-1]
			m.stages[i-1] = mulStage{}
		}
	}
}

// Result returns the product in the last stage, if any.
func (m *Multiplier) Result() (uint32, bool) {
	last := m.stages[len(m.stages)-1]
	return last.product, last.valid
}

// Pop removes the product in the last stage.
func (m *Multiplier) Pop() {
	m.stages[len(m.stages)-1] = mulStage{}
}

// Busy returns true if any stage holds an operation.
func (m *Multiplier) Busy() bool {
	for _, s := range m.stages {
		if s.valid {
			return true
		}
	}
	return false
}

// Flush drops every operation in flight.
func (m *Multiplier) Flush() {
	for i := range m.stages {
		m.stages[i] = mulStage{}
	}
}
