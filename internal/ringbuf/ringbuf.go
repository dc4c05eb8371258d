// Package ringbuf provides a fixed-capacity, overwrite-oldest ring buffer.
// It backs the bot's decision log: writers never block, and once full every
// push evicts the oldest entry.
package ringbuf

import "sync"

// Ring is a mutex-guarded circular buffer of T. Safe for concurrent use.
type Ring[T any] struct {
	mu      sync.RWMutex
	buf     []T
	pos     int // next write position
	full    bool
	evicted uint64
}

// New creates a ring holding at most capacity entries. Minimum capacity is 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, overwriting the oldest entry when the ring is full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.full {
		r.evicted++
	}
	r.buf[r.pos] = v
	r.pos = (r.pos + 1) % len(r.buf)
	if r.pos == 0 {
		r.full = true
	}
}

// Snapshot returns a copy of the entries, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.len()
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.buf[r.index(i)])
	}
	return out
}

// Len returns the number of entries currently held.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.len()
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Evicted returns how many entries have been overwritten.
func (r *Ring[T]) Evicted() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evicted
}

func (r *Ring[T]) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.pos
}

// index maps logical position i (0 = oldest) to a buffer slot.
func (r *Ring[T]) index(i int) int {
	if !r.full {
		return i
	}
	return (r.pos + i) % len(r.buf)
}
