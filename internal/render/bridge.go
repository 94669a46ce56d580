// Package render draws the most recent relay frame on the host's GL surface.
//
// Every method here must be called on the thread that owns the rendering
// context. The bridge never waits for a frame: an empty relay makes a cycle a
// no-op so the host loop keeps pumping window events.
package render

import (
	"errors"
	"log/slog"

	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/relay"
)

// ErrNotGPUResident is returned for a frame that did not arrive as a texture.
// This happens when a context request was not satisfied and the pipeline
// fell back to system memory.
var ErrNotGPUResident = errors.New("render: frame is not GPU resident")

// Source is where the bridge pulls frames from.
type Source interface {
	AcquireLatest() *relay.Handle
}

// Surface is the host rendering surface. Implementations issue GL calls and
// are therefore thread-affine.
type Surface interface {
	MakeCurrent() error
	BindTexture(id uint32)
	DrawFullscreenQuad()
	UnbindTexture()
	Present()
}

// Bridge pulls one frame per cycle and presents it.
type Bridge struct {
	src     Source
	surface Surface

	lastSeq   uint64
	drawn     uint64
	cpuStreak bool
}

// New creates a bridge. Both arguments are required.
func New(src Source, surface Surface) *Bridge {
	return &Bridge{src: src, surface: surface}
}

// RenderOnce runs a single cycle. It reports whether a frame was presented.
func (b *Bridge) RenderOnce() (bool, error) {
	h := b.src.AcquireLatest()
	if h == nil {
		metrics.IncRenderSkipped("empty")
		return false, nil
	}
	defer h.Release()

	if !h.GPUResident() {
		if !b.cpuStreak {
			slog.Warn("render: frame is not GPU resident, skipping",
				"seq", h.Seq,
				"memory", h.Memory.String(),
				"trace_id", h.TraceID,
			)
			b.cpuStreak = true
		}
		metrics.IncRenderSkipped("not_gpu_resident")
		return false, ErrNotGPUResident
	}
	if b.cpuStreak {
		slog.Info("render: GPU resident frames resumed", "seq", h.Seq)
		b.cpuStreak = false
	}

	if err := b.surface.MakeCurrent(); err != nil {
		metrics.IncRenderSkipped("make_current")
		return false, err
	}

	b.surface.BindTexture(h.Texture)
	b.surface.DrawFullscreenQuad()
	b.surface.UnbindTexture()
	b.surface.Present()

	if h.Seq != b.lastSeq {
		slog.Debug("render: new frame presented",
			"seq", h.Seq,
			"texture", h.Texture,
			"trace_id", h.TraceID,
		)
	}
	b.lastSeq = h.Seq
	b.drawn++
	metrics.IncFrameRendered()
	return true, nil
}

// Run cycles until running reports false. perFrame runs after every cycle
// (window event pumping, input). Non-residency is already logged by
// RenderOnce; other errors are logged here and the loop continues.
func (b *Bridge) Run(running func() bool, perFrame func()) {
	for running() {
		if _, err := b.RenderOnce(); err != nil && !errors.Is(err, ErrNotGPUResident) {
			slog.Error("render: cycle failed", "error", err)
		}
		if perFrame != nil {
			perFrame()
		}
	}
}

// Drawn returns how many cycles presented a frame.
func (b *Bridge) Drawn() uint64 {
	return b.drawn
}

// LastSeq returns the sequence number of the last presented frame.
func (b *Bridge) LastSeq() uint64 {
	return b.lastSeq
}
