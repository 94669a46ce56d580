package notify

import (
	"errors"
	"time"
)

// Internal errors - mapped to public errors in the glplayback package
var (
	ErrBusClosed          = errors.New("notify: bus is closed")
	ErrSubscriberExists   = errors.New("notify: subscriber already exists")
	ErrSubscriberNotFound = errors.New("notify: subscriber not found")
	ErrNilChannel         = errors.New("notify: nil channel provided")
)

// Kind is the category of an observable notification.
type Kind int

const (
	KindStateChanged Kind = iota
	KindBranchLinked
	KindLinkFailed
	KindContextHandled
	KindContextUnhandled
	KindStreamWarning
	KindStreamFatal
	KindEndOfStream
)

// String returns a human-readable name for the kind
func (k Kind) String() string {
	switch k {
	case KindStateChanged:
		return "state_changed"
	case KindBranchLinked:
		return "branch_linked"
	case KindLinkFailed:
		return "link_failed"
	case KindContextHandled:
		return "context_handled"
	case KindContextUnhandled:
		return "context_request_unhandled"
	case KindStreamWarning:
		return "stream_warning"
	case KindStreamFatal:
		return "stream_fatal"
	case KindEndOfStream:
		return "end_of_stream"
	default:
		return "unknown"
	}
}

// Event is one notification delivered to host subscribers.
type Event struct {
	Kind Kind
	// Seq is assigned by the bus on Publish
	Seq uint64
	// Time is when the event was raised
	Time time.Time
	// Source names the element or component that raised it
	Source string
	// From and To are set for KindStateChanged
	From string
	To   string
	// Detail is a short human-readable description
	Detail string
	// Err carries the classified error for failure kinds
	Err error
}

// SubscriberStats tracks event distribution metrics
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// Stats is a snapshot of the whole bus
type Stats struct {
	TotalPublished uint64
	Subscribers    map[string]SubscriberStats
}
