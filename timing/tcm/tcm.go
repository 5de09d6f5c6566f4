// Package tcm implements Trace Cache Metadata: an alternate, non-sequential
// fetch-bundle provider that overrides the BTB on hit. Entries are built
// online from observed BTB-hit bundles via a single-entry line-fill buffer
// that accretes slots across one or more consecutive predict cycles.
//
// This package implements the "ends_in_br / fall_thru_pc" variant, which is
// authoritative among the two variants found in the reference source (see
// DESIGN.md, Open Question 2).
package tcm

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/rvfront/timing/btb"
	"github.com/sarchlab/rvfront/timing/decode"
	"github.com/sarchlab/rvfront/timing/fail"
)

// Config holds TCM construction parameters.
type Config struct {
	Entries       int
	Associativity int
	// N is the maximum number of instruction slots a trace may span.
	N int
	// M is the maximum number of conditional branches a trace may span.
	M int
	// DiscardIfNoBranches, when set, discards a completed fill with zero
	// conditional branches in it rather than committing it. A fill whose
	// conditional branches are all predicted not-taken is still committed.
	DiscardIfNoBranches bool
}

// entry is a committed trace: a bundle of per-slot BTB-style descriptors
// plus the masked-prediction metadata needed to decide a hit.
type entry struct {
	bundle     []btb.Desc
	brMask     uint64
	brFlags    uint64
	endsInBr   bool
	fallThruPC uint64
}

// TCM is the trace cache metadata store plus its line-fill buffer.
type TCM struct {
	cfg       Config
	directory *akitacache.DirectoryImpl
	payload   []entry

	fill fillBuffer
}

type fillBuffer struct {
	valid      bool
	pc         uint64
	bundle     []btb.Desc
	brMask     uint64
	brFlags    uint64
	condCount  int
	fallThru   uint64
	running    uint64
	full       bool
	endsInBr   bool
}

// New constructs a TCM from cfg.
func New(cfg Config) *TCM {
	return &TCM{
		cfg:       cfg,
		directory: akitacache.NewDirectory(cfg.Entries/cfg.Associativity, cfg.Associativity, 1, akitacache.NewLRUVictimFinder()),
		payload:   make([]entry, cfg.Entries),
	}
}

func (t *TCM) blockIndex(block *akitacache.Block) int {
	return block.SetID*t.cfg.Associativity + block.WayID
}

// Lookup searches for a trace rooted at pc whose recorded conditional-branch
// directions match predictedTakenBits at every position flagged in the
// trace's br_mask. predictedTakenBits packs one bit per conditional-branch
// occurrence in prediction order (bit 0 = first conditional branch this
// cycle), the same order the BPU uses to build the BTB's cb_predictions
// word.
func (t *TCM) Lookup(pc uint64, predictedTakenBits uint64) (hit bool, length int, bundle []btb.Desc, nextPC uint64) {
	key := pc >> 2
	block := t.directory.Lookup(0, key)
	if block == nil || !block.IsValid {
		return false, 0, nil, 0
	}
	e := t.payload[t.blockIndex(block)]

	if (e.brMask & predictedTakenBits) != (e.brMask & e.brFlags) {
		return false, 0, nil, 0
	}

	t.directory.Visit(block)

	if e.endsInBr {
		nextPC = e.bundle[len(e.bundle)-1].Target
	} else {
		nextPC = e.fallThruPC
	}
	return true, len(e.bundle), e.bundle, nextPC
}

// LineFillBuffer offers a BTB-hit bundle to the line-fill buffer. The first
// call after the buffer is empty initializes it (anchored at pc); this and
// subsequent calls append slots from bundle until a terminator is reached:
// the trace width or conditional-branch cap is hit, or a direct-call/
// indirect-jump/indirect-call/return slot is seen. A *taken* conditional
// branch does not by itself terminate a trace -- accretion keeps going past
// it, following its target, so a trace can span a taken branch followed by
// more instructions (e.g. a taken branch into a direct jump into another
// branch). On a terminator the accreted trace is committed (or discarded,
// under the DiscardIfNoBranches policy) automatically; the caller does not
// need to call CommitLineFill itself in that case. It returns true if the
// fill completed (committed or discarded) this call.
func (t *TCM) LineFillBuffer(pc uint64, predictedTakenBits uint64, length int, bundle []btb.Desc) bool {
	if !t.fill.valid {
		t.fill = fillBuffer{valid: true, pc: pc, running: pc}
	}

	for i := 0; i < length; i++ {
		d := bundle[i]
		if !d.Hit {
			continue
		}
		if len(t.fill.bundle) >= t.cfg.N || t.fill.condCount >= t.cfg.M {
			t.fill.full = true
			break
		}

		t.fill.bundle = append(t.fill.bundle, d)

		switch d.Kind {
		case decode.Conditional:
			bit := (predictedTakenBits >> uint(t.fill.condCount)) & 1
			t.fill.brMask |= 1 << uint(t.fill.condCount)
			if bit == 1 {
				t.fill.brFlags |= 1 << uint(t.fill.condCount)
			}
			t.fill.condCount++
			if bit == 1 {
				t.fill.running = d.Target
				t.fill.endsInBr = true
			} else {
				t.fill.running += 4
				t.fill.fallThru = t.fill.running
				t.fill.endsInBr = false
			}
		case decode.DirectJump:
			t.fill.running = d.Target
			t.fill.fallThru = d.Target
			t.fill.endsInBr = false
		default: // DirectCall, IndirectJump, IndirectCall, Return
			t.fill.running = d.Target
			t.fill.fallThru = d.Target
			t.fill.endsInBr = false
			t.fill.full = true
		}

		if len(t.fill.bundle) >= t.cfg.N || t.fill.condCount >= t.cfg.M {
			t.fill.full = true
		}
		if t.fill.full {
			break
		}
	}

	if !t.fill.full {
		return false
	}

	if t.cfg.DiscardIfNoBranches && t.fill.condCount == 0 {
		t.ClearLineFill()
		return true
	}

	t.commitLineFill()
	return true
}

// CommitLineFill finalizes the current fill buffer into the TCM at the LRU
// way of its indexed set, regardless of whether the width/m/terminator
// condition has naturally been reached. Most callers never need this
// directly -- LineFillBuffer calls it automatically once a terminator is
// found -- but it is exposed for tests and for a fetch engine that wants to
// force-flush a partial trace (e.g. at the end of a run).
func (t *TCM) CommitLineFill() {
	t.commitLineFill()
}

func (t *TCM) commitLineFill() {
	fail.Assert(t.fill.valid, "tcm: commitLineFill with no active fill")
	key := t.fill.pc >> 2

	victim := t.directory.FindVictim(key)
	fail.Assert(victim != nil, "tcm: no victim way available")
	victim.Tag = key
	victim.IsValid = true
	t.directory.Visit(victim)

	t.payload[t.blockIndex(victim)] = entry{
		bundle:     t.fill.bundle,
		brMask:     t.fill.brMask,
		brFlags:    t.fill.brFlags,
		endsInBr:   t.fill.endsInBr,
		fallThruPC: t.fill.fallThru,
	}

	t.fill = fillBuffer{}
}

// ClearLineFill discards the current fill buffer without committing it.
func (t *TCM) ClearLineFill() {
	t.fill = fillBuffer{}
}
