package main

import (
	"github.com/sarchlab/rvfront/timing/decode"
	"github.com/sarchlab/rvfront/timing/driveloop"
)

// demoTrace builds a small synthetic program: a loop body ending in a
// backward-taken conditional branch, run a few times, falling through once,
// then a direct call/return pair.
func demoTrace() []driveloop.Step {
	var steps []driveloop.Step

	const loopHead = 0x1000
	const loopBranch = 0x1008
	const afterLoop = 0x100c
	const iterations = 4

	for i := 0; i < iterations; i++ {
		taken := i < iterations-1
		steps = append(steps,
			driveloop.Step{PC: loopHead, Insn: decode.Insn{Category: decode.Other}},
			driveloop.Step{
				PC:           loopBranch,
				Insn:         decode.Insn{Category: decode.Branch},
				IsBranch:     true,
				ActualTaken:  taken,
				ActualTarget: branchTarget(taken, loopHead, afterLoop),
			},
		)
	}

	const callSite = 0x100c
	const callee = 0x2000
	const returnSite = 0x1010

	steps = append(steps,
		driveloop.Step{
			PC:           callSite,
			Insn:         decode.Insn{Category: decode.JAL, Rd: 1, Target: callee},
			IsBranch:     true,
			ActualTaken:  true,
			ActualTarget: callee,
		},
		driveloop.Step{PC: callee, Insn: decode.Insn{Category: decode.Other}},
		driveloop.Step{
			PC:           callee + 4,
			Insn:         decode.Insn{Category: decode.JALR, Rd: 0, Rs1: 1},
			IsBranch:     true,
			ActualTaken:  true,
			ActualTarget: returnSite,
		},
		driveloop.Step{PC: returnSite, Insn: decode.Insn{Category: decode.Other}},
	)

	return steps
}

func branchTarget(taken bool, takenPC, notTakenPC uint64) uint64 {
	if taken {
		return takenPC
	}
	return notTakenPC
}
