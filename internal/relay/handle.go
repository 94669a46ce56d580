package relay

import (
	"fmt"
	"sync/atomic"
	"time"
)

// MemoryKind tells where the pixels of a handle live.
type MemoryKind int

const (
	// MemoryGPU means the frame is a texture in the shared GL context.
	MemoryGPU MemoryKind = iota
	// MemorySystem means the frame fell back to CPU memory (no texture id).
	MemorySystem
)

// String returns a human-readable name for the memory kind
func (m MemoryKind) String() string {
	switch m {
	case MemoryGPU:
		return "gpu"
	case MemorySystem:
		return "system"
	default:
		return "unknown"
	}
}

// FrameInfo is the immutable metadata carried by a Handle.
type FrameInfo struct {
	// Texture is the GL texture name (valid only when Memory == MemoryGPU)
	Texture uint32
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Format is the negotiated video format (e.g. "RGBA")
	Format string
	// Memory tells whether the frame is GPU resident
	Memory MemoryKind
	// Seq is the monotonic sequence number assigned by the producer
	Seq uint64
	// Timestamp is when the frame left the upload stage
	Timestamp time.Time
	// TraceID identifies the frame in logs
	TraceID string
}

// Handle is a reference-counted GPU frame.
//
// A new Handle starts with one reference owned by its creator. Every Retain
// must be paired with a Release. The release callback runs exactly once, on
// the goroutine that drops the last reference.
type Handle struct {
	FrameInfo

	refs    atomic.Int32
	release func()
}

// NewHandle wraps a frame with a single owned reference.
// release may be nil when the frame holds no native resources.
func NewHandle(info FrameInfo, release func()) *Handle {
	h := &Handle{FrameInfo: info, release: release}
	h.refs.Store(1)
	return h
}

// Retain adds a reference and returns the same handle for chaining.
func (h *Handle) Retain() *Handle {
	if h.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("relay: retain on released handle seq=%d", h.Seq))
	}
	return h
}

// Release drops one reference. Releasing more times than retained panics.
func (h *Handle) Release() {
	n := h.refs.Add(-1)
	switch {
	case n == 0:
		if h.release != nil {
			h.release()
		}
	case n < 0:
		panic(fmt.Sprintf("relay: handle seq=%d released too many times", h.Seq))
	}
}

// Refs returns the current reference count (diagnostics only).
func (h *Handle) Refs() int32 {
	return h.refs.Load()
}

// GPUResident reports whether the handle can be drawn as a texture.
func (h *Handle) GPUResident() bool {
	return h.Memory == MemoryGPU && h.Texture != 0
}
