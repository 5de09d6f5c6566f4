// Package gshare implements the two gshare-indexed predictor tables used by
// the branch prediction unit: a conditional-direction table of 2-bit
// saturating counters (one counter per table entry; m counters are not
// stored together in one word), and an indirect-target table of predicted
// PCs. Both
// are indexed by a hash of the fetch PC and a speculative Branch History
// Register (BHR), which this package also owns.
package gshare

// BHR is a speculative branch-history shift register. It advances at
// prediction time with each predicted direction, so the gshare index
// reflects the speculative path; a correctly predicted branch never touches
// it at commit time. It is explicitly restorable from a checkpoint taken at
// prediction time: the roll-back paths (btb_miss, flush, and a
// misprediction found by Commit or reported through Mispredict) restore it,
// and the misprediction paths then shift in the resolved direction.
type BHR struct {
	bits  uint64
	width uint
}

// NewBHR creates a BHR that tracks the low width bits of history.
func NewBHR(width uint) *BHR {
	return &BHR{width: width}
}

// Value returns the current BHR contents, masked to width bits.
func (b *BHR) Value() uint64 {
	return b.mask(b.bits)
}

// Update shifts in a single predicted-direction bit (1 = taken).
func (b *BHR) Update(taken bool) {
	b.bits <<= 1
	if taken {
		b.bits |= 1
	}
	b.bits = b.mask(b.bits)
}

// Restore overwrites the BHR with a previously snapshotted value, used by
// btb_miss/mispredict/flush roll-back paths.
func (b *BHR) Restore(snapshot uint64) {
	b.bits = b.mask(snapshot)
}

func (b *BHR) mask(v uint64) uint64 {
	if b.width >= 64 {
		return v
	}
	return v & ((uint64(1) << b.width) - 1)
}

// index hashes a PC slice and a BHR value into a table index of the given
// width, by XOR-folding the low pcBits of (pc>>2) with the BHR, matching
// the gshare convention: a configurable low-order PC slice XORed with
// history.
func index(pc uint64, bhr uint64, pcBits, bhrBits, tableBits uint) uint64 {
	pcSlice := (pc >> 2) & ((uint64(1) << pcBits) - 1)
	bhrSlice := bhr & ((uint64(1) << bhrBits) - 1)
	idx := pcSlice ^ bhrSlice
	if tableBits < 64 {
		idx &= (uint64(1) << tableBits) - 1
	}
	return idx
}

// counterMax is the saturating 2-bit counter's maximum value (strongly
// taken).
const counterMax = 3

// CondTable is the conditional-direction predictor: a table of 2-bit
// saturating counters, PC/BHR indexed. Callers pack m counters read in one
// cycle into a single "cb_predictions" word, low bits first, matching the
// BTB.lookup contract.
type CondTable struct {
	counters  []uint8
	pcBits    uint
	bhrBits   uint
	tableBits uint
}

// NewCondTable creates a conditional-direction table with 2^tableBits
// entries, indexed from pcBits bits of PC and bhrBits bits of BHR.
func NewCondTable(pcBits, bhrBits, tableBits uint) *CondTable {
	return &CondTable{
		counters:  make([]uint8, uint64(1)<<tableBits),
		pcBits:    pcBits,
		bhrBits:   bhrBits,
		tableBits: tableBits,
	}
}

// Index computes the table index for (pc, bhr). Exposed so the BPU can
// re-derive the fetch-time index at commit, using the entry's recorded
// fetch PC and fetch-time BHR rather than the live BHR.
func (t *CondTable) Index(pc, bhr uint64) uint64 {
	return index(pc, bhr, t.pcBits, t.bhrBits, t.tableBits)
}

// Counter returns the raw 2-bit counter value at idx.
func (t *CondTable) Counter(idx uint64) uint8 {
	return t.counters[idx]
}

// Predicted reports whether the counter at idx predicts taken (counter >=
// 2, the top bit of the saturating counter).
func (t *CondTable) Predicted(idx uint64) bool {
	return t.counters[idx] >= 2
}

// Update saturating-increments the counter on taken, saturating-decrements
// on not-taken.
func (t *CondTable) Update(idx uint64, taken bool) {
	c := t.counters[idx]
	if taken {
		if c < counterMax {
			c++
		}
	} else {
		if c > 0 {
			c--
		}
	}
	t.counters[idx] = c
}

// TargetTable is the indirect-target predictor: a table of predicted
// target PCs, PC/BHR indexed.
type TargetTable struct {
	targets   []uint64
	pcBits    uint
	bhrBits   uint
	tableBits uint
}

// NewTargetTable creates an indirect-target table with 2^tableBits entries.
func NewTargetTable(pcBits, bhrBits, tableBits uint) *TargetTable {
	return &TargetTable{
		targets:   make([]uint64, uint64(1)<<tableBits),
		pcBits:    pcBits,
		bhrBits:   bhrBits,
		tableBits: tableBits,
	}
}

// Index computes the table index for (pc, bhr).
func (t *TargetTable) Index(pc, bhr uint64) uint64 {
	return index(pc, bhr, t.pcBits, t.bhrBits, t.tableBits)
}

// Predict returns the predicted target stored at idx.
func (t *TargetTable) Predict(idx uint64) uint64 {
	return t.targets[idx]
}

// Update overwrites the predicted target at idx with the resolved next PC.
func (t *TargetTable) Update(idx uint64, nextPC uint64) {
	t.targets[idx] = nextPC
}
