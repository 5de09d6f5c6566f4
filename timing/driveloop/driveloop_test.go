package driveloop_test

import (
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvfront/timing/bpu"
	"github.com/sarchlab/rvfront/timing/btb"
	"github.com/sarchlab/rvfront/timing/decode"
	"github.com/sarchlab/rvfront/timing/driveloop"
	"github.com/sarchlab/rvfront/timing/tcm"
)

func TestDriveloop(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Driveloop Suite")
}

func newBPU() *bpu.BPU {
	return bpu.New(bpu.Config{
		BTB: btb.Config{N: 4, Sets: 16, Associativity: 4, M: 2},
		TCM: tcm.Config{Entries: 16, Associativity: 4, N: 8, M: 2},
		CondPCBits: 10, CondBHRBits: 10, CondTableBits: 12,
		TargetPCBits: 10, TargetBHRBits: 10, TargetTableBits: 12,
		BHRWidth:   16,
		RASSize:    8,
		BQCapacity: 16,
	})
}

var _ = Describe("Loop", func() {
	It("drives a straight-line, branch-free trace to completion", func() {
		steps := []driveloop.Step{
			{PC: 0x1000, Insn: decode.Insn{Category: decode.Other}},
			{PC: 0x1004, Insn: decode.Insn{Category: decode.Other}},
			{PC: 0x1008, Insn: decode.Insn{Category: decode.Other}},
		}
		loop := driveloop.New(newBPU(), steps)
		cycles := loop.Run()
		Expect(cycles).To(BeNumerically(">", 0))
	})

	It("drives a trace containing a taken direct branch without looping forever", func() {
		steps := []driveloop.Step{
			{PC: 0x2000, Insn: decode.Insn{Category: decode.Other}},
			{
				PC: 0x2004, Insn: decode.Insn{Category: decode.Branch},
				IsBranch: true, ActualTaken: true, ActualTarget: 0x3000,
			},
			{PC: 0x3000, Insn: decode.Insn{Category: decode.Other}},
		}
		loop := driveloop.New(newBPU(), steps)
		loop.Run()
		Expect(loop.Report()).To(ContainSubstring("Branch"))
	})

	It("renders a report containing a percentage column", func() {
		loop := driveloop.New(newBPU(), nil)
		loop.Run()
		report := loop.Report()
		Expect(strings.Contains(report, "%")).To(BeTrue())
	})
})
