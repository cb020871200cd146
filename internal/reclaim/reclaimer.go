// Package reclaim defers freeing of render resources until no frame still
// in flight can reference them.
//
// A Reclaimer holds retired handles tagged with the generation at which they
// were retired. The owning render loop advances the generation once per
// frame boundary; a handle retired at generation G is freed (or handed back
// through Acquire) only once current-G exceeds the number of frames in
// flight.
package reclaim

type retired[H any] struct {
	handle    H
	retiredAt uint64
}

// Reclaimer is a generational free list. Not safe for concurrent use; it is
// owned by the render role.
type Reclaimer[H any] struct {
	inFlight   uint64
	generation uint64
	entries    []retired[H] // ordered by retiredAt ascending
	free       func(H)
}

// New creates a Reclaimer for a backend that may have inFlight frames queued
// at once. free is called for every handle the reclaimer releases.
func New[H any](inFlight int, free func(H)) *Reclaimer[H] {
	if inFlight < 0 {
		inFlight = 0
	}
	return &Reclaimer[H]{
		inFlight: uint64(inFlight),
		free:     free,
	}
}

// InFlight returns N, the number of generations a retired handle is kept.
func (r *Reclaimer[H]) InFlight() int {
	return int(r.inFlight)
}

// Generation returns the current generation.
func (r *Reclaimer[H]) Generation() uint64 {
	return r.generation
}

// Advance moves to the next generation. Called once per frame boundary.
func (r *Reclaimer[H]) Advance() uint64 {
	r.generation++
	return r.generation
}

// Retire queues h for release once it is no longer reachable by in-flight
// frames.
func (r *Reclaimer[H]) Retire(h H) {
	r.entries = append(r.entries, retired[H]{handle: h, retiredAt: r.generation})
}

func (r *Reclaimer[H]) collectable(e retired[H]) bool {
	return r.generation-e.retiredAt > r.inFlight
}

// Collect frees every handle retired more than N generations ago and returns
// how many were freed.
func (r *Reclaimer[H]) Collect() int {
	n := 0
	for n < len(r.entries) && r.collectable(r.entries[n]) {
		if r.free != nil {
			r.free(r.entries[n].handle)
		}
		n++
	}
	r.drop(n)
	return n
}

// Acquire removes and returns the oldest collectable handle accepted by fit,
// so callers can recycle storage instead of allocating. Handles that are not
// yet collectable are never returned.
func (r *Reclaimer[H]) Acquire(fit func(H) bool) (H, bool) {
	for i, e := range r.entries {
		if !r.collectable(e) {
			break
		}
		if fit == nil || fit(e.handle) {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return e.handle, true
		}
	}
	var zero H
	return zero, false
}

// Flush frees every retired handle regardless of generation. Only valid at
// teardown, after the backend has drained all frames.
func (r *Reclaimer[H]) Flush() int {
	n := len(r.entries)
	if r.free != nil {
		for _, e := range r.entries {
			r.free(e.handle)
		}
	}
	r.drop(n)
	return n
}

// Pending returns the number of retired handles not yet freed.
func (r *Reclaimer[H]) Pending() int {
	return len(r.entries)
}

func (r *Reclaimer[H]) drop(n int) {
	if n == 0 {
		return
	}
	var zero retired[H]
	for i := 0; i < n; i++ {
		r.entries[i] = zero
	}
	if n == len(r.entries) {
		r.entries = r.entries[:0]
		return
	}
	r.entries = r.entries[n:]
}
