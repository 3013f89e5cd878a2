package framebuf

import (
	"fmt"
	"sync"
)

// Ring is a fixed-capacity circular buffer of frames with a single
// "latest" pointer. The oldest slot is overwritten once the ring is full.
//
// Slot assignment and index update happen under one lock, so a reader
// always gets a complete frame from a single write.
type Ring struct {
	mu    sync.RWMutex
	slots []Frame
	index int // slot most recently written
}

// NewRing allocates a ring with the given capacity.
// It panics if capacity < 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		panic(fmt.Sprintf("framebuf: capacity must be >= 1, got %d", capacity))
	}
	// index starts on the last slot so the first write lands on slot 0
	// while ReadLatest still returns the (empty) slot under index.
	return &Ring{
		slots: make([]Frame, capacity),
		index: capacity - 1,
	}
}

// Capacity returns the number of slots.
func (r *Ring) Capacity() int {
	return len(r.slots)
}

// Write advances the index, stores f in that slot and returns the slot index.
func (r *Ring) Write(f Frame) int {
	r.mu.Lock()
	next := (r.index + 1) % len(r.slots)
	r.slots[next] = f
	r.index = next
	r.mu.Unlock()
	return next
}

// ReadLatest returns the frame in the most recently written slot, or the
// empty sentinel if nothing was written yet. It never waits on I/O.
func (r *Ring) ReadLatest() Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[r.index]
}

// Snapshot returns the valid frames currently held, oldest first.
func (r *Ring) Snapshot() []Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Frame, 0, len(r.slots))
	for i := 1; i <= len(r.slots); i++ {
		f := r.slots[(r.index+i)%len(r.slots)]
		if f.Valid {
			out = append(out, f)
		}
	}
	return out
}

// Len returns how many slots hold a valid frame.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, f := range r.slots {
		if f.Valid {
			n++
		}
	}
	return n
}
