// Package renamer implements a unified-PRF register renamer: a Register Map
// Table / Architected Map Table pair, a circular Free List, a circular
// Active List of in-flight instructions, a flat physical register file with
// per-register ready bits, and a bitmask of in-use branch checkpoints (the
// Global Branch Mask) each pointing at a full shadow copy of the RMT.
//
// The renamer is independent of the branch prediction unit: it exposes its
// own checkpoint/restore pair (Checkpoint/Resolve) addressed by a small
// integer branch ID, not by the BPU's Branch Queue tag.
package renamer

import "github.com/sarchlab/rvfront/timing/fail"

// Config holds renamer construction parameters.
type Config struct {
	NumLogRegs  int
	NumPhysRegs int
	// NumBranches is the number of in-flight branch checkpoints supported
	// (the width of the Global Branch Mask). Must be in [1, 64].
	NumBranches int
}

// alEntry is one Active List slot: the bookkeeping needed to retire or
// squash a single in-flight instruction.
type alEntry struct {
	valid   bool
	pc      uint64
	hasDest bool
	logReg  int
	physReg int

	load   bool
	store  bool
	branch bool
	amo    bool
	csr    bool

	completed           bool
	exception           bool
	loadViolation        bool
	branchMisprediction bool
	valueMisprediction  bool
}

// checkpoint is a snapshot of the RMT plus the free-list state needed to
// restore it, taken at Checkpoint and consumed by Resolve on misprediction.
type checkpoint struct {
	gbm           uint64
	freeListHead  int
	shadowRMT     []int
}

// Renamer is the unified-PRF register renamer.
type Renamer struct {
	cfg Config

	rmt []int
	amt []int

	freeList       []int
	headFreeList   int
	tailFreeList   int
	allocatedFree  int // count of free-list entries currently checked out

	activeList      []alEntry
	headActiveList  int
	tailActiveList  int
	activeListFree  int

	prf   []uint64
	ready []bool

	gbm         uint64
	checkpoints []checkpoint
}

// New constructs a Renamer from cfg.
func New(cfg Config) *Renamer {
	fail.Assert(cfg.NumPhysRegs > cfg.NumLogRegs, "renamer: physical register file must be larger than the logical register count")
	fail.Assert(cfg.NumBranches >= 1 && cfg.NumBranches <= 64, "renamer: NumBranches must be in [1, 64]")

	size := cfg.NumPhysRegs - cfg.NumLogRegs

	r := &Renamer{
		cfg:        cfg,
		rmt:        make([]int, cfg.NumLogRegs),
		amt:        make([]int, cfg.NumLogRegs),
		freeList:   make([]int, size),
		activeList: make([]alEntry, size),
		prf:        make([]uint64, cfg.NumPhysRegs),
		ready:      make([]bool, cfg.NumPhysRegs),
		checkpoints: make([]checkpoint, cfg.NumBranches),
	}
	for i := 0; i < cfg.NumLogRegs; i++ {
		r.rmt[i] = i
		r.amt[i] = i
		r.ready[i] = true
	}
	for i := 0; i < size; i++ {
		r.freeList[i] = i + cfg.NumLogRegs
	}
	r.activeListFree = size
	for i := range r.checkpoints {
		r.checkpoints[i].shadowRMT = make([]int, cfg.NumLogRegs)
	}
	return r
}

func (r *Renamer) freeListSize() int { return len(r.freeList) }
func (r *Renamer) activeListSize() int { return len(r.activeList) }

// StallReg reports whether bundleDst destination registers can be renamed
// this cycle without exceeding the free list's capacity.
func (r *Renamer) StallReg(bundleDst int) bool {
	available := r.freeListSize() - r.allocatedFree
	return available < bundleDst
}

// StallBranch reports whether bundleBranch new branch checkpoints can be
// taken this cycle without exceeding the number of free GBM bits.
func (r *Renamer) StallBranch(bundleBranch int) bool {
	free := 0
	for i := 0; i < r.cfg.NumBranches; i++ {
		if r.gbm&(1<<uint(i)) == 0 {
			free++
		}
	}
	return free < bundleBranch
}

// LookupRsrc returns the physical register currently mapped to a source
// logical register.
func (r *Renamer) LookupRsrc(logReg int) int {
	return r.rmt[logReg]
}

// RenameRdst allocates a fresh physical register from the free list and
// maps logReg to it in the RMT, returning the new physical register.
func (r *Renamer) RenameRdst(logReg int) int {
	fail.Assert(r.allocatedFree < r.freeListSize(), "renamer: RenameRdst with no free physical registers")
	phys := r.freeList[r.headFreeList]
	r.rmt[logReg] = phys
	r.headFreeList = (r.headFreeList + 1) % r.freeListSize()
	r.allocatedFree++
	return phys
}

// Checkpoint takes a new branch checkpoint: it finds a free GBM bit,
// snapshots the full RMT into it, and returns the checkpoint's branch ID.
func (r *Renamer) Checkpoint() int {
	id := -1
	for i := 0; i < r.cfg.NumBranches; i++ {
		if r.gbm&(1<<uint(i)) == 0 {
			id = i
			break
		}
	}
	fail.Assert(id >= 0, "renamer: Checkpoint with no free GBM bit")

	r.gbm |= 1 << uint(id)
	cp := &r.checkpoints[id]
	copy(cp.shadowRMT, r.rmt)
	cp.gbm = r.gbm
	cp.freeListHead = r.headFreeList
	return id
}

// DispatchInst appends one instruction to the tail of the Active List and
// returns its index, for later reference by Retire/Resolve/the completion
// setters. load, store, branch, amo, and csr classify the instruction for
// the memory-ordering, branch-resolution, and atomic/CSR commit checks that
// consult the Active List at precommit time.
func (r *Renamer) DispatchInst(pc uint64, hasDest bool, logReg, physReg int, load, store, branch, amo, csr bool) int {
	fail.Assert(r.activeListFree > 0, "renamer: DispatchInst into a full active list")
	idx := r.tailActiveList
	r.activeList[idx] = alEntry{
		valid: true, pc: pc, hasDest: hasDest, logReg: logReg, physReg: physReg,
		load: load, store: store, branch: branch, amo: amo, csr: csr,
	}
	r.tailActiveList = (r.tailActiveList + 1) % r.activeListSize()
	r.activeListFree--
	return idx
}

// GetBranchMask returns the Global Branch Mask: the set of branch
// checkpoints currently in flight, one bit per live branch ID.
func (r *Renamer) GetBranchMask() uint64 { return r.gbm }

// StallDispatch reports whether bundleInst instructions can be dispatched
// this cycle without overflowing the Active List.
func (r *Renamer) StallDispatch(bundleInst int) bool {
	return r.activeListFree < bundleInst
}

// IsReady reports whether a physical register's value is ready to read.
func (r *Renamer) IsReady(physReg int) bool { return r.ready[physReg] }

// ClearReady marks a physical register's value as not yet produced,
// typically at rename time for a newly allocated destination register.
func (r *Renamer) ClearReady(physReg int) { r.ready[physReg] = false }

// SetReady marks a physical register's value as available, at writeback.
func (r *Renamer) SetReady(physReg int) { r.ready[physReg] = true }

// Read returns the value held in a physical register.
func (r *Renamer) Read(physReg int) uint64 { return r.prf[physReg] }

// Write stores a value into a physical register, at writeback.
func (r *Renamer) Write(physReg int, value uint64) { r.prf[physReg] = value }

// SetCompleted marks an Active List entry as having finished execution.
func (r *Renamer) SetCompleted(alIndex int) { r.activeList[alIndex].completed = true }

// SetException marks an Active List entry as having raised an exception.
func (r *Renamer) SetException(alIndex int) { r.activeList[alIndex].exception = true }

// SetLoadViolation marks an Active List entry as having a load-ordering
// violation.
func (r *Renamer) SetLoadViolation(alIndex int) { r.activeList[alIndex].loadViolation = true }

// SetBranchMisprediction marks an Active List entry as a mispredicted
// branch.
func (r *Renamer) SetBranchMisprediction(alIndex int) {
	r.activeList[alIndex].branchMisprediction = true
}

// SetValueMisprediction marks an Active List entry as a mispredicted value
// (e.g. load-value speculation).
func (r *Renamer) SetValueMisprediction(alIndex int) {
	r.activeList[alIndex].valueMisprediction = true
}

// GetException reports whether an Active List entry has raised an
// exception.
func (r *Renamer) GetException(alIndex int) bool { return r.activeList[alIndex].exception }

// Precommit reports whether the Active List is non-empty and, if so,
// returns the head entry's PC, instruction classification, and completion
// flags without removing it.
func (r *Renamer) Precommit() (ok bool, pc uint64, load, store, branch, amo, csr, exception, loadViolation, branchMisprediction, valueMisprediction bool) {
	if r.activeListFree == r.activeListSize() {
		return false, 0, false, false, false, false, false, false, false, false, false
	}
	e := r.activeList[r.headActiveList]
	return true, e.pc, e.load, e.store, e.branch, e.amo, e.csr,
		e.exception, e.loadViolation, e.branchMisprediction, e.valueMisprediction
}

// Commit retires the head Active List entry: if it has a destination, the
// old AMT mapping is freed back to the free list and the AMT is updated to
// the entry's physical register.
func (r *Renamer) Commit() {
	fail.Assert(r.activeListFree < r.activeListSize(), "renamer: Commit on an empty active list")
	e := r.activeList[r.headActiveList]
	fail.Assert(e.completed, "renamer: Commit on an incomplete instruction")
	fail.Assert(!e.exception, "renamer: Commit on an instruction with a pending exception")
	fail.Assert(!e.loadViolation, "renamer: Commit on an instruction with a pending load violation")
	fail.Assert(!e.branchMisprediction, "renamer: Commit on an unresolved branch misprediction")
	fail.Assert(!e.valueMisprediction, "renamer: Commit on an unresolved value misprediction")

	if e.hasDest {
		fail.Assert(r.allocatedFree > 0, "renamer: Commit free-list push with nothing checked out")
		r.freeList[r.tailFreeList] = r.amt[e.logReg]
		r.amt[e.logReg] = e.physReg
		r.tailFreeList = (r.tailFreeList + 1) % r.freeListSize()
		r.allocatedFree--
	}

	r.activeList[r.headActiveList] = alEntry{}
	r.headActiveList = (r.headActiveList + 1) % r.activeListSize()
	r.activeListFree++
}

// Resolve reports the outcome of a branch's resolution against its
// checkpoint. On a correct prediction, the checkpoint's GBM bit is cleared
// everywhere it appears (this checkpoint and every other live one -- the
// resolved branch no longer needs to be undoable from any of them). On
// a misprediction, the GBM, RMT, and free-list head are rolled back to the
// checkpoint, and every Active List entry younger than alIndex is squashed.
func (r *Renamer) Resolve(alIndex, branchID int, correct bool) {
	if correct {
		bit := uint64(1) << uint(branchID)
		r.gbm &^= bit
		for i := range r.checkpoints {
			r.checkpoints[i].gbm &^= bit
		}
		r.checkpoints[branchID].freeListHead = 0
		return
	}

	cp := &r.checkpoints[branchID]
	r.gbm = cp.gbm
	r.gbm &^= 1 << uint(branchID)
	copy(r.rmt, cp.shadowRMT)

	oldTail := r.tailActiveList
	newTail := (alIndex + 1) % r.activeListSize()

	for i := newTail; i != oldTail; i = (i + 1) % r.activeListSize() {
		r.activeList[i] = alEntry{}
	}
	r.tailActiveList = newTail

	r.headFreeList = cp.freeListHead
	r.allocatedFree = (r.headFreeList - r.tailFreeList + r.freeListSize()) % r.freeListSize()

	inUse := (newTail - r.headActiveList + r.activeListSize()) % r.activeListSize()
	r.activeListFree = r.activeListSize() - inUse
}

// Squash discards all speculative renamer state: the RMT is restored from
// the AMT, the Active List is emptied, the Free List is refilled so that
// every physical register outside the AMT is free again, the GBM is
// cleared, and every checkpoint is invalidated.
func (r *Renamer) Squash() {
	copy(r.rmt, r.amt)

	r.headActiveList = 0
	r.tailActiveList = 0
	r.activeListFree = r.activeListSize()
	for i := range r.activeList {
		r.activeList[i] = alEntry{}
	}

	r.headFreeList = r.tailFreeList
	r.allocatedFree = 0

	r.gbm = 0
	for i := range r.checkpoints {
		r.checkpoints[i] = checkpoint{shadowRMT: make([]int, r.cfg.NumLogRegs)}
	}
}
