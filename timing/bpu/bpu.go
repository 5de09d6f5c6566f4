// Package bpu implements the Branch Prediction Unit: the orchestrator that
// composes a Trace Cache (checked first), a banked BTB (the fallback
// fetch-bundle provider), a conditional-direction and an indirect-target
// gshare predictor, a Return Address Stack, and a Branch Queue of
// outstanding predictions awaiting resolution.
//
// The BHR feeding each gshare table is only ever advanced, at prediction
// time, once per actual branch of the matching class found while walking a
// bundle -- never once per potential slot -- so that revisiting the same
// fetch PC under the same history repeatedly (e.g. a tight loop) lands on
// the same table index every time. Building the speculative
// "cb_predictions" word handed to the BTB, which requires guessing up to m
// potential conditional-branch outcomes before the real bundle layout is
// known, is done against a scratch copy of the BHR and never touches the
// live one.
package bpu

import (
	"fmt"

	"github.com/sarchlab/rvfront/timing/bq"
	"github.com/sarchlab/rvfront/timing/btb"
	"github.com/sarchlab/rvfront/timing/decode"
	"github.com/sarchlab/rvfront/timing/fail"
	"github.com/sarchlab/rvfront/timing/gshare"
	"github.com/sarchlab/rvfront/timing/ras"
	"github.com/sarchlab/rvfront/timing/tcm"
)

// Config aggregates every sub-component's construction parameters.
type Config struct {
	BTB btb.Config
	TCM tcm.Config

	CondPCBits, CondBHRBits, CondTableBits     uint
	TargetPCBits, TargetBHRBits, TargetTableBits uint
	BHRWidth uint

	RASSize int
	BQCapacity int
}

// Snapshot is the speculative-state checkpoint taken at Mark time, used to
// roll back to a point before any prediction was made (the btb_miss path,
// where the fetch engine discovers a miss only after BPU.Predict already
// ran and must undo it without ever having committed a Branch Queue entry
// for it).
type Snapshot struct {
	Tag     bq.Tag
	CondBHR uint64
	IndBHR  uint64
	RasTOS  int
}

// BranchOutcome describes one predicted branch instruction within a
// predicted bundle, addressed by its own Branch Queue tag.
type BranchOutcome struct {
	Tag     bq.Tag
	Kind    decode.Kind
	FetchPC uint64
	Taken   bool
	NextPC  uint64
}

type categoryStats struct {
	count         uint64
	mispredicts   uint64
}

// BPU is the branch prediction unit.
type BPU struct {
	cfg Config

	condBHR *gshare.BHR
	indBHR  *gshare.BHR

	condTable   *gshare.CondTable
	targetTable *gshare.TargetTable

	btb *btb.BTB
	tcm *tcm.TCM
	ras *ras.RAS
	bq  *bq.BQ

	stats map[decode.Kind]*categoryStats
}

// New constructs a BPU from cfg.
func New(cfg Config) *BPU {
	b := &BPU{
		cfg:         cfg,
		condBHR:     gshare.NewBHR(cfg.BHRWidth),
		indBHR:      gshare.NewBHR(cfg.BHRWidth),
		condTable:   gshare.NewCondTable(cfg.CondPCBits, cfg.CondBHRBits, cfg.CondTableBits),
		targetTable: gshare.NewTargetTable(cfg.TargetPCBits, cfg.TargetBHRBits, cfg.TargetTableBits),
		btb:         btb.New(cfg.BTB),
		tcm:         tcm.New(cfg.TCM),
		ras:         ras.New(cfg.RASSize),
		bq:          bq.New(cfg.BQCapacity),
		stats:       make(map[decode.Kind]*categoryStats),
	}
	for _, k := range []decode.Kind{
		decode.Conditional, decode.DirectJump, decode.DirectCall,
		decode.IndirectJump, decode.IndirectCall, decode.Return,
	} {
		b.stats[k] = &categoryStats{}
	}
	return b
}

// speculativeCondPredictions builds, without mutating the live conditional
// BHR, the packed word of one 2-bit counter per potential conditional branch
// (in program order) that the BTB consumes, plus one predicted-taken bit per
// potential conditional branch used to probe the trace cache. Both are built
// against a scratch BHR seeded from the live one.
func (b *BPU) speculativeCondPredictions(pc uint64) (cbPredictions uint64, takenBits uint64, occTaken []bool, occBHR []uint64) {
	scratch := gshare.NewBHR(b.cfg.BHRWidth)
	scratch.Restore(b.condBHR.Value())

	occTaken = make([]bool, b.cfg.BTB.M)
	occBHR = make([]uint64, b.cfg.BTB.M)

	for i := 0; i < b.cfg.BTB.M; i++ {
		bhrVal := scratch.Value()
		idx := b.condTable.Index(pc, bhrVal)
		counter := b.condTable.Counter(idx)
		taken := counter >= 2

		occBHR[i] = bhrVal
		occTaken[i] = taken
		cbPredictions |= uint64(counter) << uint(2*i)
		if taken {
			takenBits |= 1 << uint(i)
		}
		scratch.Update(taken)
	}
	return cbPredictions, takenBits, occTaken, occBHR
}

// Predict produces one fetch bundle starting at pc: the bundle length, the
// predicted next fetch PC, a roll-back snapshot to use if the caller later
// discovers a BTB miss for a slot this bundle depended on, and one
// BranchOutcome per branch found in the bundle, direct jumps included (each
// already pushed onto the Branch Queue under its own tag, in program
// order).
func (b *BPU) Predict(pc uint64) (length int, nextPC uint64, mark Snapshot, branches []BranchOutcome) {
	mark = Snapshot{
		Tag:     b.bq.Mark(),
		CondBHR: b.condBHR.Value(),
		IndBHR:  b.indBHR.Value(),
		RasTOS:  b.ras.TOS(),
	}

	cbPredictions, takenBits, occTaken, occBHR := b.speculativeCondPredictions(pc)

	var bundle []btb.Desc
	if hit, tcmLen, tcmBundle, tcmNextPC := b.tcm.Lookup(pc, takenBits); hit {
		length, bundle, nextPC = tcmLen, tcmBundle, tcmNextPC
	} else {
		length, bundle, nextPC = b.btb.Lookup(pc, cbPredictions)
		b.tcm.LineFillBuffer(pc, takenBits, length, bundle)
	}

	occIdx := 0
	for slot := 0; slot < length; slot++ {
		d := bundle[slot]
		if !d.Hit {
			continue
		}
		fetchPC := pc + 4*uint64(slot)

		switch {
		case d.Kind.IsConditional():
			fail.Assert(occIdx < len(occTaken), "bpu: more conditional branches in a bundle than m allows")
			taken := occTaken[occIdx]
			snap := occBHR[occIdx]
			occIdx++
			b.condBHR.Update(taken)

			tag := b.bq.Push(bq.Entry{
				Kind: d.Kind, Taken: taken, NextPC: nextPC,
				FetchPC: fetchPC, CondBHR: snap, IndBHR: b.indBHR.Value(), RasTOS: b.ras.TOS(),
			})
			branches = append(branches, BranchOutcome{Tag: tag, Kind: d.Kind, FetchPC: fetchPC, Taken: taken, NextPC: nextPC})

		case d.Kind == decode.Return:
			snapTOS := b.ras.TOS()
			predicted := b.ras.Peek()
			b.ras.Pop()
			nextPC = predicted
			tag := b.bq.Push(bq.Entry{
				Kind: d.Kind, Taken: true, NextPC: predicted,
				FetchPC: fetchPC, CondBHR: b.condBHR.Value(), IndBHR: b.indBHR.Value(), RasTOS: snapTOS,
			})
			branches = append(branches, BranchOutcome{Tag: tag, Kind: d.Kind, FetchPC: fetchPC, Taken: true, NextPC: predicted})

		case d.Kind == decode.IndirectJump || d.Kind == decode.IndirectCall:
			snap := b.indBHR.Value()
			idx := b.targetTable.Index(fetchPC, snap)
			predicted := b.targetTable.Predict(idx)
			b.indBHR.Update(true)
			nextPC = predicted

			if d.Kind == decode.IndirectCall {
				b.ras.Push(fetchPC + 4)
			}

			tag := b.bq.Push(bq.Entry{
				Kind: d.Kind, Taken: true, NextPC: predicted,
				FetchPC: fetchPC, CondBHR: b.condBHR.Value(), IndBHR: snap, RasTOS: b.ras.TOS(),
			})
			branches = append(branches, BranchOutcome{Tag: tag, Kind: d.Kind, FetchPC: fetchPC, Taken: true, NextPC: predicted})

		case d.Kind == decode.DirectCall:
			b.ras.Push(fetchPC + 4)
			tag := b.bq.Push(bq.Entry{
				Kind: d.Kind, Taken: true, NextPC: nextPC,
				FetchPC: fetchPC, CondBHR: b.condBHR.Value(), IndBHR: b.indBHR.Value(), RasTOS: b.ras.TOS(),
			})
			branches = append(branches, BranchOutcome{Tag: tag, Kind: d.Kind, FetchPC: fetchPC, Taken: true, NextPC: nextPC})

		case d.Kind == decode.DirectJump:
			// Statically known target: cannot mispredict, so it is pushed
			// purely to keep the JumpDirect statistics category populated,
			// not for any roll-back it could ever need.
			tag := b.bq.Push(bq.Entry{
				Kind: d.Kind, Taken: true, NextPC: nextPC,
				FetchPC: fetchPC, CondBHR: b.condBHR.Value(), IndBHR: b.indBHR.Value(), RasTOS: b.ras.TOS(),
			})
			branches = append(branches, BranchOutcome{Tag: tag, Kind: d.Kind, FetchPC: fetchPC, Taken: true, NextPC: nextPC})
		}
	}

	return length, nextPC, mark, branches
}

// BTBMiss rolls back to a Predict call's mark: the conditional/indirect BHR
// and RAS are restored to their pre-predict values, and any Branch Queue
// entries pushed since are discarded.
func (b *BPU) BTBMiss(mark Snapshot) {
	b.condBHR.Restore(mark.CondBHR)
	b.indBHR.Restore(mark.IndBHR)
	b.ras.SetTOS(mark.RasTOS)
	b.bq.Rollback(mark.Tag, false)
}

// Update inserts a newly decoded branch into the BTB at (pc, slot). Called
// by the fetch engine after a BTB miss resolves target/kind via the
// external decoder.
func (b *BPU) Update(pc uint64, slot int, target uint64, insn decode.Insn) {
	b.btb.Update(pc, slot, target, insn)
}

// Commit retires the head outstanding branch prediction in program order. If
// an earlier call to Mispredict already resolved this entry out of order,
// Commit only pops it -- training and roll-back already happened there, and
// redoing either would train the predictor twice. Otherwise Commit discovers
// the actual outcome itself: it trains the relevant predictor table
// unconditionally, and reports whether the prediction was wrong; on a
// misprediction it also rolls back the conditional/indirect BHR, RAS, and
// Branch Queue to the state just before this branch was predicted,
// discarding every younger outstanding prediction along with it.
func (b *BPU) Commit(tag bq.Tag, actualTaken bool, actualTarget uint64) (mispredicted bool, redirectPC uint64) {
	fail.Assert(tag == b.bq.HeadTag(), "bpu: Commit called out of program order")
	entry := b.bq.Peek(tag)

	if entry.Misp {
		b.bq.Pop()
		return true, entry.NextPC
	}

	stats := b.stats[entry.Kind]
	stats.count++

	switch {
	case entry.Kind.IsConditional():
		idx := b.condTable.Index(entry.FetchPC, entry.CondBHR)
		b.condTable.Update(idx, actualTaken)
		mispredicted = actualTaken != entry.Taken
		redirectPC = actualTarget

	case entry.Kind == decode.IndirectJump || entry.Kind == decode.IndirectCall:
		idx := b.targetTable.Index(entry.FetchPC, entry.IndBHR)
		b.targetTable.Update(idx, actualTarget)
		mispredicted = actualTarget != entry.NextPC
		redirectPC = actualTarget

	case entry.Kind == decode.Return:
		mispredicted = actualTarget != entry.NextPC
		redirectPC = actualTarget

	case entry.Kind == decode.DirectCall:
		mispredicted = actualTarget != entry.NextPC
		redirectPC = actualTarget
	}

	if !mispredicted {
		b.bq.Pop()
		return false, 0
	}

	stats.mispredicts++

	if entry.Kind.IsConditional() {
		b.condBHR.Restore(entry.CondBHR)
		b.condBHR.Update(actualTaken)
	}
	if entry.Kind == decode.IndirectJump || entry.Kind == decode.IndirectCall {
		b.indBHR.Restore(entry.IndBHR)
		b.indBHR.Update(true)
	}
	b.ras.SetTOS(entry.RasTOS)
	b.bq.Rollback(tag, true)

	return true, redirectPC
}

// Mispredict reports an out-of-order misprediction: tag need not be the
// Branch Queue's current head, since execution can resolve a younger branch
// before an elder one has retired. It trains the relevant predictor table
// and rolls the conditional/indirect BHR and RAS back to tag's checkpoint
// plus the actual outcome, and truncates the Branch Queue to discard every
// entry younger than tag -- but, unlike Commit, it does not pop tag's own
// entry. That entry stays queued, marked resolved, so that once it becomes
// the head in program order a later Commit call against the same tag only
// needs to pop it.
func (b *BPU) Mispredict(tag bq.Tag, actualTaken bool, actualTarget uint64) (redirectPC uint64) {
	entry := b.bq.Peek(tag)

	stats := b.stats[entry.Kind]
	stats.count++
	stats.mispredicts++

	switch {
	case entry.Kind.IsConditional():
		idx := b.condTable.Index(entry.FetchPC, entry.CondBHR)
		b.condTable.Update(idx, actualTaken)
		b.condBHR.Restore(entry.CondBHR)
		b.condBHR.Update(actualTaken)

	case entry.Kind == decode.IndirectJump || entry.Kind == decode.IndirectCall:
		idx := b.targetTable.Index(entry.FetchPC, entry.IndBHR)
		b.targetTable.Update(idx, actualTarget)
		b.indBHR.Restore(entry.IndBHR)
		b.indBHR.Update(true)
	}

	b.ras.SetTOS(entry.RasTOS)
	b.bq.RollbackKeep(tag)
	b.bq.Resolve(tag, actualTaken, actualTarget)

	return actualTarget
}

// Flush discards every outstanding prediction (e.g. on an exception), rolls
// the conditional/indirect BHR back to the state just before the oldest
// outstanding prediction, and sets the RAS top of stack to the one recorded
// in that prediction's entry (for a call, the position after the call's own
// push).
func (b *BPU) Flush() {
	if b.bq.Empty() {
		return
	}
	_, entry := b.bq.Flush()
	b.condBHR.Restore(entry.CondBHR)
	b.indBHR.Restore(entry.IndBHR)
	b.ras.SetTOS(entry.RasTOS)
}

// Output renders the per-category prediction statistics in the reference
// layout: total count, misprediction count, misprediction rate, and
// mispredictions-per-thousand-instructions, for "All" and then each branch
// category in turn.
func (b *BPU) Output(instructionsRetired uint64) string {
	order := []struct {
		label string
		kind  decode.Kind
	}{
		{"Branch", decode.Conditional},
		{"JumpDirect", decode.DirectJump},
		{"CallDirect", decode.DirectCall},
		{"JumpIndirect", decode.IndirectJump},
		{"CallIndirect", decode.IndirectCall},
		{"Return", decode.Return},
	}

	var totalCount, totalMisp uint64
	for _, o := range order {
		totalCount += b.stats[o.kind].count
		totalMisp += b.stats[o.kind].mispredicts
	}

	out := formatRow("All", totalCount, totalMisp, instructionsRetired)
	for _, o := range order {
		s := b.stats[o.kind]
		out += formatRow(o.label, s.count, s.mispredicts, instructionsRetired)
	}
	return out
}

func formatRow(label string, count, mispredicts, instructionsRetired uint64) string {
	rate := 0.0
	if count > 0 {
		rate = 100 * float64(mispredicts) / float64(count)
	}
	mpki := 0.0
	if instructionsRetired > 0 {
		mpki = 1000 * float64(mispredicts) / float64(instructionsRetired)
	}
	return fmt.Sprintf("%-12s %10d %10d %5.2f%% %5.2f\n", label, count, mispredicts, rate, mpki)
}
