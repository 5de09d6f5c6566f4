// Package bq implements the Branch Queue: a circular buffer of outstanding
// branch predictions, phase-tagged so that every externally visible handle
// is a fused (index, phase) value distinguishing aliased head==tail
// positions across wraps.
package bq

import (
	"github.com/sarchlab/rvfront/timing/decode"
	"github.com/sarchlab/rvfront/timing/fail"
)

// Tag is a fused branch-queue handle: (index << 1) | phase.
type Tag uint64

func fuse(index int, phase bool) Tag {
	t := Tag(index) << 1
	if phase {
		t |= 1
	}
	return t
}

// Index extracts the slot index from a fused tag.
func (t Tag) Index() int { return int(t >> 1) }

// Phase extracts the phase bit from a fused tag.
func (t Tag) Phase() bool { return t&1 != 0 }

// Entry is a single outstanding branch prediction: its kind, predicted
// outcome, and the precise checkpoint needed to restore speculative state
// on roll-back.
type Entry struct {
	Kind   decode.Kind
	Taken  bool
	NextPC uint64
	Misp   bool

	FetchPC uint64
	CondBHR uint64
	IndBHR  uint64
	RasTOS  int

	tag Tag
}

// BQ is a phase-tagged circular buffer of Entry.
type BQ struct {
	entries []Entry
	head    int
	tail    int
	phase   bool
	count   int
}

// New creates a BQ with the given capacity.
func New(capacity int) *BQ {
	return &BQ{entries: make([]Entry, capacity)}
}

// Mark records the tail as a roll-back point without allocating a slot.
func (q *BQ) Mark() Tag {
	return fuse(q.tail, q.phase)
}

// Push allocates one slot at the tail and stores e there, flipping the
// phase if the tail wraps around to zero.
func (q *BQ) Push(e Entry) Tag {
	fail.Assert(q.count < len(q.entries), "bq: push into a full branch queue")
	idx := q.tail
	tag := fuse(idx, q.phase)
	e.tag = tag
	q.entries[idx] = e

	q.tail = (q.tail + 1) % len(q.entries)
	if q.tail == 0 {
		q.phase = !q.phase
	}
	q.count++
	return tag
}

// Pop removes and returns the head entry, along with its tag.
func (q *BQ) Pop() (Entry, Tag) {
	fail.Assert(q.count > 0, "bq: pop from an empty branch queue")
	e := q.entries[q.head]
	q.head = (q.head + 1) % len(q.entries)
	q.count--
	return e, e.tag
}

// Peek returns the entry at tag without removing it. It asserts the tag
// still identifies a live entry, i.e. it has not already been popped or
// rolled past.
func (q *BQ) Peek(tag Tag) Entry {
	idx := tag.Index()
	e := q.entries[idx]
	fail.Assert(e.tag == tag, "bq: stale tag passed to Peek")
	fail.Assert((idx-q.head+len(q.entries))%len(q.entries) < q.count, "bq: stale tag passed to Peek")
	return e
}

// HeadTag returns the current head's tag. Asserts the queue is non-empty.
func (q *BQ) HeadTag() Tag {
	fail.Assert(q.count > 0, "bq: HeadTag on an empty branch queue")
	return q.entries[q.head].tag
}

// Empty reports whether the queue currently holds no entries.
func (q *BQ) Empty() bool { return q.count == 0 }

// Rollback truncates the tail to the position named by tag. inclusive
// documents whether the caller intends the entry at that position to be
// logically retained for an immediate re-push (mispredict) or discarded
// outright (btb_miss, which rolls back to a mark that never allocated
// anything); mechanically both cases restore tail/phase identically, since
// the slot's former contents are simply overwritten by whatever pushes
// next.
func (q *BQ) Rollback(tag Tag, inclusive bool) {
	_ = inclusive
	idx := tag.Index()
	q.tail = idx
	q.phase = tag.Phase()
	q.count = (idx - q.head + len(q.entries)) % len(q.entries)
}

// RollbackKeep truncates the tail to just past tag's position, discarding
// every entry younger than it while retaining the entry at tag itself --
// the shape an out-of-order misprediction roll-back needs, since the
// mispredicted branch is re-pushed in place rather than popped.
func (q *BQ) RollbackKeep(tag Tag) {
	idx := tag.Index()
	newTail := (idx + 1) % len(q.entries)
	newPhase := tag.Phase()
	if idx == len(q.entries)-1 {
		newPhase = !newPhase
	}
	q.tail = newTail
	q.phase = newPhase
	q.count = (newTail - q.head + len(q.entries)) % len(q.entries)
}

// Resolve overwrites the outcome recorded at tag with the actual resolved
// direction/target and marks it mispredicted, without removing it from the
// queue. Asserts the tag still identifies a live entry.
func (q *BQ) Resolve(tag Tag, taken bool, nextPC uint64) {
	idx := tag.Index()
	e := &q.entries[idx]
	fail.Assert(e.tag == tag, "bq: stale tag passed to Resolve")
	fail.Assert((idx-q.head+len(q.entries))%len(q.entries) < q.count, "bq: stale tag passed to Resolve")
	e.Taken = taken
	e.NextPC = nextPC
	e.Misp = true
}

// Flush rolls the queue back to its head and returns the head's tag and
// entry so the caller can restore speculative state from it. If the queue
// is empty there is nothing to restore; the zero Entry is returned.
func (q *BQ) Flush() (Tag, Entry) {
	if q.Empty() {
		return fuse(q.head, q.phase), Entry{}
	}
	headTag := q.HeadTag()
	headEntry := q.Peek(headTag)
	q.Rollback(headTag, true)
	q.tail = q.head
	q.count = 0
	return headTag, headEntry
}
