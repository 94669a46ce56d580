package glcontext

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnhandled marks a context request that no descriptor answered. The
// requesting element falls back to creating its own resource.
var ErrUnhandled = errors.New("glcontext: context request unhandled")

// Request is a pipeline element asking for a shared resource.
type Request interface {
	// ContextType is the tag the element asked for
	ContextType() ContextType
	// Requester names the element (for logs)
	Requester() string
	// Attach hands the descriptor to the requesting element
	Attach(d Descriptor) error
}

// Verdict tells the message dispatcher what to do with the request.
type Verdict int

const (
	// VerdictPass forwards the request for default handling
	VerdictPass Verdict = iota
	// VerdictHandled drops the request: the descriptor has been attached
	VerdictHandled
)

// String returns a human-readable verdict name
func (v Verdict) String() string {
	switch v {
	case VerdictHandled:
		return "handled"
	case VerdictPass:
		return "pass"
	default:
		return "unknown"
	}
}

// UnhandledError describes a request that was passed through.
type UnhandledError struct {
	ContextType ContextType
	Requester   string
	// Degraded is true when the tag is a GL tag, i.e. frames may not be GPU
	// resident in the host context.
	Degraded bool
	// Err is the attach failure, if the descriptor existed but could not be set
	Err error
}

func (e *UnhandledError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("glcontext: request %q from %s unhandled: %v", e.ContextType, e.Requester, e.Err)
	}
	return fmt.Sprintf("glcontext: request %q from %s unhandled", e.ContextType, e.Requester)
}

// Is makes errors.Is(err, ErrUnhandled) true.
func (e *UnhandledError) Is(target error) bool { return target == ErrUnhandled }

func (e *UnhandledError) Unwrap() error { return e.Err }

// Observer receives the outcome of each interception. Called synchronously
// on the requesting thread, so it must not block.
type Observer interface {
	ContextHandled(typ ContextType, requester string)
	ContextUnhandled(err *UnhandledError)
}

// Negotiator answers context requests from a Registry.
type Negotiator struct {
	registry *Registry
	observer Observer
}

// NewNegotiator creates a negotiator. registry may be nil (every request
// passes through); observer may be nil.
func NewNegotiator(registry *Registry, observer Observer) *Negotiator {
	return &Negotiator{registry: registry, observer: observer}
}

// Intercept answers req synchronously.
//
// Known tag: attach the descriptor and return VerdictHandled so the request
// is not forwarded. Anything else: return VerdictPass unmodified.
func (n *Negotiator) Intercept(req Request) Verdict {
	typ := req.ContextType()

	d, ok := n.registry.Lookup(typ)
	if !ok {
		n.unhandled(&UnhandledError{ContextType: typ, Requester: req.Requester(), Degraded: typ.IsGL()})
		return VerdictPass
	}

	if err := req.Attach(d); err != nil {
		n.unhandled(&UnhandledError{ContextType: typ, Requester: req.Requester(), Degraded: typ.IsGL(), Err: err})
		return VerdictPass
	}

	slog.Debug("glcontext: context request intercepted",
		"type", string(typ),
		"requester", req.Requester(),
	)
	if n.observer != nil {
		n.observer.ContextHandled(typ, req.Requester())
	}
	return VerdictHandled
}

func (n *Negotiator) unhandled(err *UnhandledError) {
	if err.Degraded {
		slog.Warn("glcontext: GL context request passed through, upload falls back to its own context",
			"type", string(err.ContextType),
			"requester", err.Requester,
			"error", err.Err,
		)
	} else {
		slog.Debug("glcontext: context request passed through",
			"type", string(err.ContextType),
			"requester", err.Requester,
		)
	}
	if n.observer != nil {
		n.observer.ContextUnhandled(err)
	}
}
