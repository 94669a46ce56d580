package glplayback

import (
	"fmt"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/notify"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/relay"
)

// State is the controller lifecycle state.
type State int

const (
	StateUnbuilt State = iota
	StateBuilt
	StatePlaying
	StatePaused
	StateStopped
	StateTornDown
)

// String returns the state name. Names match the metrics state labels.
func (s State) String() string {
	switch s {
	case StateUnbuilt:
		return "unbuilt"
	case StateBuilt:
		return "built"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	case StateTornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source describes the media to play and the shape of the video chain.
type Source = engine.Source

// Event is an observable notification for the host.
type Event = notify.Event

// EventKind is the category of an Event.
type EventKind = notify.Kind

const (
	EventStateChanged            = notify.KindStateChanged
	EventBranchLinked            = notify.KindBranchLinked
	EventLinkFailed              = notify.KindLinkFailed
	EventContextHandled          = notify.KindContextHandled
	EventContextRequestUnhandled = notify.KindContextUnhandled
	EventStreamWarning           = notify.KindStreamWarning
	EventStreamFatal             = notify.KindStreamFatal
	EventEndOfStream             = notify.KindEndOfStream
)

// FrameHandle is a reference-counted GPU frame. Release every handle taken
// from FrameRelay.AcquireLatest.
type FrameHandle = relay.Handle

// FrameInfo is the metadata a FrameHandle carries.
type FrameInfo = relay.FrameInfo

// MemoryKind tells where a frame's pixels live.
type MemoryKind = relay.MemoryKind

const (
	MemoryGPU    = relay.MemoryGPU
	MemorySystem = relay.MemorySystem
)

// Stats is a snapshot of the player.
type Stats struct {
	SessionID string
	State     State
	URI       string

	// Relay counters
	FramesPublished  uint64
	FramesSuperseded uint64
	FramesAcquired   uint64
	FrameResident    bool

	// FramesGated counts frames discarded because the player was not playing
	FramesGated uint64

	// Branches maps "video"/"audio" to the linked decoder pad name
	Branches map[string]string

	ContextsHandled   uint64
	ContextsUnhandled uint64
	LinkFailures      uint64
	Warnings          uint64
	FatalErrors       uint64

	// EventsDropped sums the events lost by slow subscribers
	EventsDropped uint64

	// Uptime is measured from the first Start
	Uptime time.Duration
}
