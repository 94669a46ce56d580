package glplayback

import (
	"unsafe"

	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/glcontext"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/gstgraph"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/relay"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/render"
)

// Registry holds the host's display and rendering context descriptors.
// Obtain one from HostContext.Registry.
type Registry = glcontext.Registry

// Builder constructs the element graph for a player.
type Builder = engine.Builder

// HostContext wraps the host's X11 display and GLX context for the pipeline.
// Close it after the player is torn down.
type HostContext = gstgraph.X11Context

// FrameRelay hands the latest frame from the pipeline to the render thread.
type FrameRelay = relay.Relay

// RenderSurface is the host drawing target. Implementations issue GL calls
// and must only be used on the render thread.
type RenderSurface = render.Surface

// RenderBridge draws the latest relay frame on a RenderSurface each cycle.
type RenderBridge = render.Bridge

var (
	// ErrNoNativeHandle: NewX11Context got a nil display or context.
	ErrNoNativeHandle = gstgraph.ErrNoNativeHandle

	// ErrContextNotCurrent: NewX11Context was called on a thread where the
	// GLX context is not current.
	ErrContextNotCurrent = gstgraph.ErrContextNotCurrent
)

// NewX11Context wraps an X11 Display* and a GLX context owned by the host.
// The GLX context must be current on the calling thread; it is current again
// on return.
func NewX11Context(display unsafe.Pointer, glxContext uintptr) (*HostContext, error) {
	return gstgraph.NewX11Context(display, glxContext)
}

// NewGStreamerBuilder returns the Builder that runs GL-accelerated
// GStreamer pipelines.
func NewGStreamerBuilder() Builder {
	return gstgraph.NewBuilder()
}

// NewRenderBridge creates a bridge pulling from src, normally
// Player.Relay(), and drawing on surface. Call its methods from the thread
// where the host GL context is current.
func NewRenderBridge(src *FrameRelay, surface RenderSurface) *RenderBridge {
	return render.New(src, surface)
}
