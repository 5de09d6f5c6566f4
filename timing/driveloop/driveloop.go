// Package driveloop provides a minimal, in-module stand-in for a fetch
// orchestrator: something to drive the BPU one predicted bundle per cycle,
// feed it resolved outcomes, and print its statistics report, so the BPU
// can be exercised end to end in tests and by the CLI harness without a
// real decode/issue/execute/retire pipeline behind it.
//
// It is explicitly a test/demo harness, not a functional fetch engine: the
// "program" it drives is a caller-supplied, fully precomputed trace of
// instructions rather than anything fetched from memory.
package driveloop

import (
	"github.com/sarchlab/rvfront/timing/bpu"
	"github.com/sarchlab/rvfront/timing/decode"
)

// Step is one instruction of a precomputed program trace: its PC, its
// decoded shape, and (for branch-ish instructions) the address execution
// actually resolved to take.
type Step struct {
	PC           uint64
	Insn         decode.Insn
	IsBranch     bool
	ActualTaken  bool
	ActualTarget uint64
}

// Loop drives bpu.BPU across a precomputed trace of Steps, one bundle
// prediction per call to Predict, in strict program order. It models the
// BTB as always a miss on the first encounter of a branch PC (since that
// mirrors what the BPU's own predict/update contract expects of a caller)
// and as a hit from then on, training it via bpu.Update exactly as a real
// fetch engine's decode stage would.
type Loop struct {
	bpu   *bpu.BPU
	steps []Step
	seen  map[uint64]bool

	cycles  int
	retired uint64
}

// New creates a Loop that will drive the given program trace against b.
func New(b *bpu.BPU, steps []Step) *Loop {
	return &Loop{bpu: b, steps: steps, seen: make(map[uint64]bool)}
}

// Run drives the entire trace to completion, resolving every predicted
// branch against the trace's recorded actual outcome and reporting any
// mispredictions back into the BPU. It returns the number of cycles
// (Predict calls) executed.
func (l *Loop) Run() int {
	pc := uint64(0)
	if len(l.steps) > 0 {
		pc = l.steps[0].PC
	}
	idx := 0

	for idx < len(l.steps) {
		length, nextPC, mark, branches := l.bpu.Predict(pc)
		l.cycles++

		consumed := 0
		btbMissed := false
		for ; consumed < length && idx+consumed < len(l.steps); consumed++ {
			step := l.steps[idx+consumed]
			key := step.PC
			if step.IsBranch && !l.seen[key] {
				l.seen[key] = true
				l.bpu.Update(step.PC, 0, step.ActualTarget, step.Insn)
				btbMissed = true
			}
		}

		if btbMissed {
			l.bpu.BTBMiss(mark)
			idx += consumed
			pc = l.steps[idx-1].PC + 4
			if idx < len(l.steps) {
				pc = l.steps[idx].PC
			}
			continue
		}

		redirected := false
		for _, branch := range branches {
			step := findStep(l.steps, branch.FetchPC)
			mispredicted, redirect := l.bpu.Commit(branch.Tag, step.ActualTaken, step.ActualTarget)
			if mispredicted {
				pc = redirect
				idx = indexOfPC(l.steps, redirect, idx)
				redirected = true
				break
			}
		}
		if redirected {
			continue
		}

		l.retired += uint64(consumed)
		idx += consumed
		pc = nextPC
	}

	return l.cycles
}

// Report renders the BPU's accumulated statistics against the number of
// instructions this Loop has retired.
func (l *Loop) Report() string {
	return l.bpu.Output(l.retired)
}

func findStep(steps []Step, pc uint64) Step {
	for _, s := range steps {
		if s.PC == pc {
			return s
		}
	}
	return Step{}
}

func indexOfPC(steps []Step, pc uint64, from int) int {
	for i := from; i < len(steps); i++ {
		if steps[i].PC == pc {
			return i
		}
	}
	for i := 0; i < len(steps); i++ {
		if steps[i].PC == pc {
			return i
		}
	}
	return len(steps)
}
