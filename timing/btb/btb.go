// Package btb implements a banked, set-associative Branch Target Buffer.
// Each bank owns an independent akita cache directory for tag/valid/LRU-way
// bookkeeping (mirroring how the teacher's data-cache model delegates the
// same bookkeeping to akita); the BTB itself only owns the bespoke per-way
// payload (branch kind and target) that a generic cache directory has no
// concept of.
package btb

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/rvfront/timing/decode"
	"github.com/sarchlab/rvfront/timing/fail"
)

// Desc is a single fetch-bundle slot's BTB lookup outcome.
type Desc struct {
	Hit    bool
	Kind   decode.Kind
	Target uint64
}

// Config holds BTB construction parameters.
type Config struct {
	// N is the number of instructions per cycle (bundle width), and the
	// number of banks. Must be a power of two.
	N int
	// Sets is the number of sets per bank. Must be a power of two.
	Sets int
	// Associativity is the number of ways per set.
	Associativity int
	// M is the number of conditional branches permitted per bundle.
	M int
}

// BTB is a banked, set-associative branch target buffer. The bank of an
// instruction is its word address ((pc>>2)+slot) modulo n, so the n slots of
// one bundle always land in n distinct banks and can be probed independently
// without one slot's replacement evicting another's.
type BTB struct {
	cfg        Config
	log2n      uint
	directories []*akitacache.DirectoryImpl
	// payload[bank] is a flat [set*assoc+way] array of per-way metadata,
	// indexed exactly like the teacher's dataStore: SetID*assoc+WayID.
	payload [][]wayPayload
}

type wayPayload struct {
	kind   decode.Kind
	target uint64
}

func log2(v int) uint {
	fail.Assert(v > 0 && (v&(v-1)) == 0, "btb: %d is not a power of two", v)
	var l uint
	for (1 << l) < v {
		l++
	}
	return l
}

// New constructs a BTB from cfg.
func New(cfg Config) *BTB {
	log2n := log2(cfg.N)
	_ = log2(cfg.Sets) // validates Sets is a power of two; the directory itself needs no log2 of it

	b := &BTB{
		cfg:        cfg,
		log2n:      log2n,
		directories: make([]*akitacache.DirectoryImpl, cfg.N),
		payload:    make([][]wayPayload, cfg.N),
	}
	for bank := 0; bank < cfg.N; bank++ {
		b.directories[bank] = akitacache.NewDirectory(
			cfg.Sets, cfg.Associativity, 1, akitacache.NewLRUVictimFinder())
		b.payload[bank] = make([]wayPayload, cfg.Sets*cfg.Associativity)
	}
	return b
}

// convert derives (bank, btbPC) for instruction slot pos of the bundle
// starting at pc, following the reference btb_t::convert: bank rotates
// through slots so that every slot in one bundle lands in a distinct bank.
func (b *BTB) convert(pc uint64, pos int) (bank int, btbPC uint64) {
	idx := (pc >> 2) + uint64(pos)
	bank = int(idx) & (b.cfg.N - 1)
	btbPC = idx >> b.log2n
	return bank, btbPC
}

func (b *BTB) blockIndex(block *akitacache.Block) int {
	return block.SetID*b.cfg.Associativity + block.WayID
}

// search looks up (bank, btbPC) and returns the hit way payload, or ok=false
// on miss. It also updates LRU on hit.
func (b *BTB) search(bank int, btbPC uint64) (wayPayload, bool) {
	dir := b.directories[bank]
	block := dir.Lookup(0, btbPC)
	if block == nil || !block.IsValid {
		return wayPayload{}, false
	}
	dir.Visit(block)
	return b.payload[bank][b.blockIndex(block)], true
}

// Lookup scans slots [0, n) from pc, consuming cbPredictions' packed 2-bit
// counters for conditional slots, and returns the bundle length, per-slot
// descriptors, and the next PC: the target of a bundle ending in a
// predicted-taken conditional branch or a direct jump/call, the fall-through
// PC of a bundle ending without a taken branch, and 0 for a bundle ending in
// an indirect jump/call or a return (the BPU fills that one in).
func (b *BTB) Lookup(pc uint64, cbPredictions uint64) (length int, descs []Desc, nextPC uint64) {
	descs = make([]Desc, b.cfg.N)
	condSeen := 0
	preds := cbPredictions

	for slot := 0; slot < b.cfg.N; slot++ {
		bank, btbPC := b.convert(pc, slot)
		way, hit := b.search(bank, btbPC)
		if !hit {
			continue
		}
		descs[slot] = Desc{Hit: true, Kind: way.kind, Target: way.target}

		if way.kind.IsConditional() {
			counter := preds & 0x3
			preds >>= 2
			taken := counter >= 2
			condSeen++
			if taken {
				return slot + 1, descs, way.target
			}
			if condSeen >= b.cfg.M {
				return slot + 1, descs, pc + 4*uint64(slot+1)
			}
			continue
		}

		// Non-conditional branch: bundle always terminates here.
		if way.kind.IsDirect() {
			return slot + 1, descs, way.target
		}
		return slot + 1, descs, 0
	}

	return b.cfg.N, descs, pc + 4*uint64(b.cfg.N)
}

// Update inserts a new entry at the LRU way of the indexed set for
// (pc, slot), decoding the branch kind from insn. It must be preceded by a
// miss search (the caller, normally the BPU's btb_miss handler, is
// responsible for that ordering).
func (b *BTB) Update(pc uint64, slot int, target uint64, insn decode.Insn) {
	bank, btbPC := b.convert(pc, slot)
	dir := b.directories[bank]

	_, hit := b.search(bank, btbPC)
	fail.Assert(!hit, "btb: Update called on a slot that is already present")

	victim := dir.FindVictim(btbPC)
	fail.Assert(victim != nil, "btb: no victim way available")

	victim.Tag = btbPC
	victim.IsValid = true
	dir.Visit(victim)

	b.payload[bank][b.blockIndex(victim)] = wayPayload{
		kind:   decode.DecodeKind(insn),
		target: target,
	}
}
