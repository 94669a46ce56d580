package glplayback

import (
	"errors"
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/glcontext"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/linker"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/notify"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/render"
)

// Error kinds. Internal packages own the sentinels they raise; they are
// re-exported here so callers only import glplayback.
var (
	// ErrGraphConstruction: a mandatory element or static link could not be
	// created. Fatal to Build.
	ErrGraphConstruction = engine.ErrGraphConstruction

	// ErrLink: a discovered branch failed to attach. Branch-local.
	ErrLink = linker.ErrLink

	// ErrContextRequestUnhandled: a context request had no matching
	// descriptor and fell through to default handling.
	ErrContextRequestUnhandled = glcontext.ErrUnhandled

	// ErrNotGPUResident: the render bridge received a system-memory frame.
	ErrNotGPUResident = render.ErrNotGPUResident

	ErrStreamFatal       = errors.New("gl-playback: fatal stream error")
	ErrStreamWarning     = errors.New("gl-playback: stream warning")
	ErrEndOfStream       = errors.New("gl-playback: end of stream")
	ErrInvalidTransition = errors.New("gl-playback: invalid state transition")
	ErrTornDown          = errors.New("gl-playback: player torn down")
	ErrInvalidConfig     = errors.New("gl-playback: invalid config")

	ErrSubscriberExists   = notify.ErrSubscriberExists
	ErrSubscriberNotFound = notify.ErrSubscriberNotFound
	ErrNilChannel         = notify.ErrNilChannel
)

// TransitionError is returned when an operation is not legal in the current
// state. It wraps ErrTornDown after teardown and ErrInvalidTransition
// otherwise.
type TransitionError struct {
	Op   string
	From State
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("gl-playback: %s not allowed in state %s", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return e.Err }

func transitionError(op string, from State) error {
	if from == StateTornDown {
		return &TransitionError{Op: op, From: from, Err: ErrTornDown}
	}
	return &TransitionError{Op: op, From: from, Err: ErrInvalidTransition}
}

// StreamError is an error or warning posted by a pipeline element.
// errors.Is matches ErrStreamFatal or ErrStreamWarning.
type StreamError struct {
	Source   string
	Message  string
	Debug    string
	Category string
	Fatal    bool
}

func (e *StreamError) Error() string {
	severity := "warning"
	if e.Fatal {
		severity = "error"
	}
	return fmt.Sprintf("gl-playback: stream %s from %s [%s]: %s", severity, e.Source, e.Category, e.Message)
}

func (e *StreamError) Is(target error) bool {
	if e.Fatal {
		return target == ErrStreamFatal
	}
	return target == ErrStreamWarning
}
