// Package linker attaches runtime-discovered decoder branches to the
// pre-built downstream chains.
//
// decodebin exposes its output pads only after it has typefound the stream,
// so the video and audio chains are built and linked statically up to their
// first element, and each new branch is linked onto that element's input
// when it shows up.
package linker

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Kind classifies a branch by its negotiated media type.
type Kind int

const (
	// KindOther is any branch this player does not render
	KindOther Kind = iota
	// KindVideo is a raw video branch
	KindVideo
	// KindAudio is a raw audio branch
	KindAudio
)

// String returns a human-readable kind name
func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "other"
	}
}

// Classify maps a caps structure name to a Kind.
func Classify(mediaType string) Kind {
	switch {
	case strings.HasPrefix(mediaType, "video/x-raw"):
		return KindVideo
	case strings.HasPrefix(mediaType, "audio/x-raw"):
		return KindAudio
	default:
		return KindOther
	}
}

// ErrLink marks a branch that could not be attached to its chain.
var ErrLink = errors.New("linker: branch link failed")

// LinkError is a branch-local failure. It never affects other branches.
type LinkError struct {
	Kind      Kind
	Pad       string
	MediaType string
	Err       error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("linker: %s branch %s (%s): %v", e.Kind, e.Pad, e.MediaType, e.Err)
}

// Is makes errors.Is(err, ErrLink) true.
func (e *LinkError) Is(target error) bool { return target == ErrLink }

func (e *LinkError) Unwrap() error { return e.Err }

// SinkPad is the unconnected input of a pre-built chain.
type SinkPad interface {
	Name() string
	IsLinked() bool
}

// SourcePad is a newly discovered branch output.
type SourcePad interface {
	Name() string
	// MediaType returns the caps structure name (current caps, else queried caps)
	MediaType() string
	// LinkTo connects this pad to sink
	LinkTo(sink SinkPad) error
}

// Outcome is the result of handling one discovery event.
type Outcome int

const (
	// OutcomeLinked: the branch is now connected
	OutcomeLinked Outcome = iota
	// OutcomeAlreadyLinked: the chain input was connected before, no-op
	OutcomeAlreadyLinked
	// OutcomeIgnored: unknown media type or no chain for this kind
	OutcomeIgnored
	// OutcomeFailed: the link attempt failed (LinkError returned)
	OutcomeFailed
)

// String returns a human-readable outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeLinked:
		return "linked"
	case OutcomeAlreadyLinked:
		return "already_linked"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Linker routes discovered branches to chain inputs, at most once per chain.
//
// Thread-safety: OnBranch is serialized so two concurrent notifications for
// the same kind produce exactly one link.
type Linker struct {
	mu      sync.Mutex
	targets map[Kind]SinkPad
	linked  map[Kind]string // kind -> source pad that won
}

// New creates a linker for the given chain inputs. A kind without a target
// is ignored (e.g. audio disabled).
func New(targets map[Kind]SinkPad) *Linker {
	t := make(map[Kind]SinkPad, len(targets))
	for k, v := range targets {
		if v != nil && k != KindOther {
			t[k] = v
		}
	}
	return &Linker{targets: t, linked: make(map[Kind]string)}
}

// OnBranch handles one discovery event.
func (l *Linker) OnBranch(src SourcePad) (Kind, Outcome, error) {
	mediaType := src.MediaType()
	kind := Classify(mediaType)

	sink, ok := l.targets[kind]
	if !ok {
		slog.Info("linker: ignoring branch",
			"pad", src.Name(),
			"media_type", mediaType,
		)
		return kind, OutcomeIgnored, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, done := l.linked[kind]; done || sink.IsLinked() {
		slog.Debug("linker: chain input already linked, skipping",
			"kind", kind.String(),
			"pad", src.Name(),
			"sink", sink.Name(),
		)
		return kind, OutcomeAlreadyLinked, nil
	}

	if err := src.LinkTo(sink); err != nil {
		lerr := &LinkError{Kind: kind, Pad: src.Name(), MediaType: mediaType, Err: err}
		slog.Error("linker: failed to link branch",
			"kind", kind.String(),
			"src_pad", src.Name(),
			"sink_pad", sink.Name(),
			"error", err,
		)
		return kind, OutcomeFailed, lerr
	}

	l.linked[kind] = src.Name()
	slog.Info("linker: branch linked",
		"kind", kind.String(),
		"src_pad", src.Name(),
		"sink_pad", sink.Name(),
	)
	return kind, OutcomeLinked, nil
}

// Linked reports which kinds are connected.
func (l *Linker) Linked() map[Kind]string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[Kind]string, len(l.linked))
	for k, v := range l.linked {
		out[k] = v
	}
	return out
}
