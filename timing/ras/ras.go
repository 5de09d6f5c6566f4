// Package ras implements a bounded Return Address Stack: a ring buffer of
// predicted return targets with a top-of-stack pointer.
//
// TOS restoration on misprediction/roll-back is best-effort: if a
// mispredicted nested call popped entries below the recorded TOS before the
// misprediction was discovered, those entries are gone and cannot be
// un-popped. This is an accepted modeling imprecision, not a bug -- a real
// RAS has the same failure mode.
package ras

// RAS is a bounded ring of predicted return addresses.
type RAS struct {
	entries []uint64
	tos     int // index of the next push slot (one past the logical top)
}

// New creates a RAS with the given capacity.
func New(size int) *RAS {
	return &RAS{entries: make([]uint64, size)}
}

// Push writes addr at the current TOS and advances it, wrapping around and
// overwriting the oldest entry if the ring is full.
func (r *RAS) Push(addr uint64) {
	r.entries[r.tos] = addr
	r.tos = (r.tos + 1) % len(r.entries)
}

// Peek returns the most recently pushed address without removing it.
func (r *RAS) Peek() uint64 {
	idx := (r.tos - 1 + len(r.entries)) % len(r.entries)
	return r.entries[idx]
}

// Pop removes and returns the most recently pushed address.
func (r *RAS) Pop() uint64 {
	r.tos = (r.tos - 1 + len(r.entries)) % len(r.entries)
	return r.entries[r.tos]
}

// TOS returns the raw top-of-stack index, suitable for checkpointing in a
// Branch Queue entry.
func (r *RAS) TOS() int {
	return r.tos
}

// SetTOS restores the top-of-stack index from a checkpoint. Restoration is
// best-effort: see the package doc.
func (r *RAS) SetTOS(tos int) {
	r.tos = tos
}
