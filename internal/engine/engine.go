// Package engine is the contract between the playback controller and the
// media framework that actually builds and runs the element graph.
//
// The controller never touches framework objects. An engine builds the
// graph, exposes the unconnected chain inputs for the linker, and calls the
// Hooks from its own threads:
//
//   - Intercept and OnBranch and OnFrame: on the streaming thread that raised them
//   - OnMessage: on the goroutine running Graph.Run (the worker)
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/glcontext"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/linker"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/relay"
)

// ErrGraphConstruction reports a missing element or a failed static link.
// Builders wrap it; the controller surfaces it from Build.
var ErrGraphConstruction = errors.New("engine: graph construction failed")

// TargetState is the framework-level state requested by the controller.
type TargetState int

const (
	// StateNull releases every framework resource (idle)
	StateNull TargetState = iota
	// StatePaused prerolls without running the clock
	StatePaused
	// StatePlaying runs the graph
	StatePlaying
)

// String returns a human-readable name for the target state
func (s TargetState) String() string {
	switch s {
	case StateNull:
		return "null"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source describes what to play and how the video chain is shaped.
type Source struct {
	// URI selects the source element by scheme
	URI string
	// Width and Height are the scale target of the video chain
	Width  int
	Height int
	// Audio enables the audio chain
	Audio bool
	// Sync makes the frame sink sync against the pipeline clock
	Sync bool
}

// MessageKind classifies an asynchronous pipeline notification.
type MessageKind int

const (
	MessageOther MessageKind = iota
	MessageError
	MessageWarning
	MessageEOS
	MessageStateChanged
	MessageStreamStatus
	MessageClockLost
)

// String returns a human-readable name for the message kind
func (k MessageKind) String() string {
	switch k {
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	case MessageEOS:
		return "eos"
	case MessageStateChanged:
		return "state_changed"
	case MessageStreamStatus:
		return "stream_status"
	case MessageClockLost:
		return "clock_lost"
	default:
		return "other"
	}
}

// Message is an engine-neutral pipeline notification.
type Message struct {
	Kind MessageKind
	// Source is the name of the posting element
	Source string
	// FromPipeline is true when the top-level pipeline posted it
	FromPipeline bool
	// Text is the error/warning message
	Text string
	// Debug is the framework debug string
	Debug string
	// Category is the telemetry classification of errors/warnings
	Category string
	// OldState and NewState are set for MessageStateChanged
	OldState string
	NewState string
}

// Hooks are the controller callbacks an engine must invoke.
type Hooks struct {
	// Intercept answers a context request synchronously, before the
	// requesting element proceeds
	Intercept func(req glcontext.Request) glcontext.Verdict
	// OnBranch is called for each pad the decoder exposes
	OnBranch func(src linker.SourcePad)
	// OnFrame receives a completed GPU frame; ownership of the reference
	// passes to the callee
	OnFrame func(h *relay.Handle)
	// OnMessage receives bus notifications on the worker goroutine
	OnMessage func(msg Message)
}

// Graph is a built element graph.
type Graph interface {
	// Targets returns the unconnected inputs of the pre-built chains
	Targets() map[linker.Kind]linker.SinkPad
	// SetState requests a framework state change
	SetState(s TargetState) error
	// Run pumps bus messages into Hooks.OnMessage until ctx is done.
	// Runs on the worker goroutine.
	Run(ctx context.Context) error
	// Close releases the graph. The graph must already be in StateNull.
	Close() error
}

// Builder constructs graphs.
type Builder interface {
	Build(src Source, hooks Hooks) (Graph, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(src Source, hooks Hooks) (Graph, error)

// Build calls f.
func (f BuilderFunc) Build(src Source, hooks Hooks) (Graph, error) {
	return f(src, hooks)
}
