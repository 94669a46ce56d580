// Package relay implements the single-slot GPU frame hand-off between the
// pipeline worker (producer) and the render thread (consumer).
//
// Philosophy: "Drop frames, never queue. Latency > Completeness."
//
// The slot holds at most one Handle. Publish overwrites, AcquireLatest peeks
// with a fresh reference. The mutex only guards the pointer swap and the
// reference bump; releasing a superseded frame happens after the unlock so
// native teardown never runs under the guard.
package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Relay is a single-slot, overwrite-on-arrival frame buffer.
//
// Thread-safety: all methods are safe for concurrent use. The intended
// topology is one producer and one consumer, but any number of consumers may
// observe the same frame.
type Relay struct {
	mu     sync.Mutex
	slot   *Handle
	closed bool

	published  uint64 // atomic
	superseded uint64 // atomic
	acquired   uint64 // atomic
	rejected   uint64 // atomic, publishes after Close
}

// Stats is a snapshot of relay counters.
type Stats struct {
	// Published counts handles accepted into the slot
	Published uint64
	// Superseded counts handles replaced before anybody released the slot
	Superseded uint64
	// Acquired counts successful AcquireLatest calls
	Acquired uint64
	// Rejected counts handles published after Close (released immediately)
	Rejected uint64
	// Resident is true if the slot currently holds a handle
	Resident bool
	// Closed is true after Close
	Closed bool
}

// New creates an empty relay.
func New() *Relay {
	return &Relay{}
}

// Publish stores h as the latest frame, taking ownership of the caller's
// reference. The previously held handle (if any) is released exactly once
// and superseded reports whether there was one.
//
// Never blocks beyond the pointer swap.
func (r *Relay) Publish(h *Handle) (superseded bool) {
	if h == nil {
		return false
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		atomic.AddUint64(&r.rejected, 1)
		h.Release()
		return false
	}
	prev := r.slot
	r.slot = h
	r.mu.Unlock()

	atomic.AddUint64(&r.published, 1)

	if prev != nil {
		atomic.AddUint64(&r.superseded, 1)
		prev.Release()
		return true
	}
	return false
}

// AcquireLatest returns a new reference to the resident handle, or nil if
// nothing has been published yet. The handle stays in the slot. The caller
// owns the returned reference and must Release it.
func (r *Relay) AcquireLatest() *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slot == nil {
		return nil
	}
	atomic.AddUint64(&r.acquired, 1)
	return r.slot.Retain()
}

// Close releases the resident handle and rejects further publishes.
// Idempotent. References already handed out by AcquireLatest stay valid.
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	prev := r.slot
	r.slot = nil
	r.mu.Unlock()

	if prev != nil {
		prev.Release()
	}

	slog.Debug("relay: closed",
		"published", atomic.LoadUint64(&r.published),
		"superseded", atomic.LoadUint64(&r.superseded),
	)
}

// Stats returns counters (non-blocking snapshot, may be slightly stale).
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	resident := r.slot != nil
	closed := r.closed
	r.mu.Unlock()

	return Stats{
		Published:  atomic.LoadUint64(&r.published),
		Superseded: atomic.LoadUint64(&r.superseded),
		Acquired:   atomic.LoadUint64(&r.acquired),
		Rejected:   atomic.LoadUint64(&r.rejected),
		Resident:   resident,
		Closed:     closed,
	}
}
