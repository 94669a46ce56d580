// Package glcontext holds the host-built GL context descriptors and answers
// pipeline context requests with them.
//
// The host creates the descriptors once, before the pipeline exists, and
// never mutates them. The Negotiator reads them from whichever thread posts
// the request, so no cross-thread wait on the render thread is ever needed.
package glcontext

import (
	"errors"
	"fmt"
	"strings"
)

// ContextType is the resource tag carried by a context request.
type ContextType string

const (
	// DisplayContextType is the tag GStreamer GL elements use for the
	// display connection (GST_GL_DISPLAY_CONTEXT_TYPE).
	DisplayContextType ContextType = "gst.gl.GLDisplay"
	// AppContextType is the tag for an application-provided rendering context.
	AppContextType ContextType = "gst.gl.app_context"
)

// IsGL reports whether the tag belongs to the GStreamer GL family. Unhandled
// GL requests mean the upload path creates its own, uncoordinated context.
func (t ContextType) IsGL() bool {
	return strings.HasPrefix(string(t), "gst.gl.")
}

var (
	// ErrInvalidDescriptor is returned for descriptors with a wrong tag or no native value
	ErrInvalidDescriptor = errors.New("glcontext: invalid descriptor")
)

// Descriptor pairs a context type with the native resource to hand out.
// Immutable after construction.
type Descriptor struct {
	typ    ContextType
	native any
}

// NewDescriptor creates a descriptor. native is opaque to this package; the
// engine that receives it knows its concrete type.
func NewDescriptor(typ ContextType, native any) (Descriptor, error) {
	if typ == "" {
		return Descriptor{}, fmt.Errorf("%w: empty context type", ErrInvalidDescriptor)
	}
	if native == nil {
		return Descriptor{}, fmt.Errorf("%w: nil native resource for %q", ErrInvalidDescriptor, typ)
	}
	return Descriptor{typ: typ, native: native}, nil
}

// Type returns the descriptor tag.
func (d Descriptor) Type() ContextType { return d.typ }

// Native returns the wrapped native resource.
func (d Descriptor) Native() any { return d.native }

// Valid reports whether the descriptor was built by NewDescriptor.
func (d Descriptor) Valid() bool { return d.typ != "" && d.native != nil }

// Registry is the immutable set of descriptors supplied by the host.
type Registry struct {
	byType map[ContextType]Descriptor
}

// NewRegistry validates and stores the display and rendering-context
// descriptors. Both are mandatory and must carry their well-known tags.
func NewRegistry(display, app Descriptor) (*Registry, error) {
	if !display.Valid() || display.Type() != DisplayContextType {
		return nil, fmt.Errorf("%w: display descriptor must be %q, got %q",
			ErrInvalidDescriptor, DisplayContextType, display.Type())
	}
	if !app.Valid() || app.Type() != AppContextType {
		return nil, fmt.Errorf("%w: rendering descriptor must be %q, got %q",
			ErrInvalidDescriptor, AppContextType, app.Type())
	}

	return &Registry{
		byType: map[ContextType]Descriptor{
			DisplayContextType: display,
			AppContextType:     app,
		},
	}, nil
}

// Lookup returns the descriptor for typ. Safe on a nil registry.
func (r *Registry) Lookup(typ ContextType) (Descriptor, bool) {
	if r == nil {
		return Descriptor{}, false
	}
	d, ok := r.byType[typ]
	return d, ok
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byType)
}
