package glplayback

import "context"

// Controller defines the playback lifecycle contract.
//
// Implementations must guarantee:
//   - every method is safe to call from any goroutine
//   - Teardown() is reachable from every state and idempotent
//   - no method succeeds after Teardown()
//   - no frame reaches the relay outside the playing state
type Controller interface {
	// Build constructs the element graph for src and wires branch linking and
	// context interception. Legal only from unbuilt.
	//
	// ctx bounds the worker started later by Start: cancelling it stops
	// playback as if Stop had been called. A nil ctx means
	// context.Background().
	//
	// Returns an error wrapping ErrGraphConstruction if an element or static
	// link could not be created.
	Build(ctx context.Context, src Source) error

	// Start begins or resumes playback. Legal from built and paused. The
	// worker goroutine is launched on the first Start.
	Start() error

	// Pause pauses playback. Legal from playing.
	Pause() error

	// Stop requests the idle pipeline state and quits the worker loop.
	// Legal from every state except torn-down; a no-op when already stopped.
	Stop() error

	// Teardown stops, joins the worker (bounded wait), releases the graph and
	// the relay. Idempotent.
	Teardown() error

	// State returns the current lifecycle state.
	State() State
}

var _ Controller = (*Player)(nil)
