// Package gstgraph builds and runs the GStreamer element graph behind the
// engine contract.
//
// Graph structure:
//
//	source → decodebin ─┬→ queue → videoscale → capsfilter → glupload →
//	                    │  glcolorconvert → appsink(GLMemory, RGBA)
//	                    └→ queue → audioconvert → audioresample → autoaudiosink
//
// decodebin exposes its pads at runtime; they are handed to the engine hooks
// and linked by the controller. rtspsrc pads are linked to decodebin here.
package gstgraph

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/linker"
)

// frameCaps is what the frame sink accepts: RGBA textures in GL memory.
const frameCaps = "video/x-raw(memory:GLMemory),format=RGBA"

// Graph is a built pipeline.
type Graph struct {
	pipeline *gst.Pipeline
	source   *gst.Element
	decoder  *gst.Element
	sink     *app.Sink
	videoIn  *gst.Pad
	audioIn  *gst.Pad
	hooks    engine.Hooks
	src      engine.Source

	closed atomic.Bool

	// Statistics (atomic for thread-safety)
	frameSeq    uint64
	emptyPulls  uint64
	systemFrame uint64
}

// Builder builds graphs. The zero value is ready to use.
type Builder struct{}

// NewBuilder returns a graph builder.
func NewBuilder() *Builder {
	return &Builder{}
}

var _ engine.Builder = (*Builder)(nil)

// Build creates the pipeline, adds and statically links every chain, and
// installs the callbacks. The pipeline is left in the NULL state.
//
// Returns an error wrapping engine.ErrGraphConstruction if an element cannot
// be created or linked.
func (b *Builder) Build(src engine.Source, hooks engine.Hooks) (engine.Graph, error) {
	if err := CheckAvailable(); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrGraphConstruction, err)
	}

	spec, err := SourceFor(src.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrGraphConstruction, err)
	}

	pipeline, err := gst.NewPipeline("gl-playback")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create pipeline: %v", engine.ErrGraphConstruction, err)
	}

	g := &Graph{pipeline: pipeline, hooks: hooks, src: src}

	if err := g.buildSource(spec); err != nil {
		return nil, err
	}
	if err := g.buildVideoChain(src); err != nil {
		return nil, err
	}
	if src.Audio {
		if err := g.buildAudioChain(); err != nil {
			return nil, err
		}
	}

	// decodebin pads appear once the stream type is known
	if _, err := g.decoder.Connect("pad-added", func(self *gst.Element, pad *gst.Pad) {
		g.onDecoderPad(pad)
	}); err != nil {
		return nil, fmt.Errorf("%w: failed to connect pad-added: %v", engine.ErrGraphConstruction, err)
	}

	g.pipeline.GetPipelineBus().SetSyncHandler(g.onSyncMessage)

	slog.Info("gstgraph: pipeline created",
		"source", spec.Factory,
		"uri", src.URI,
		"resolution", fmt.Sprintf("%dx%d", src.Width, src.Height),
		"audio", src.Audio,
		"sync", src.Sync,
	)
	return g, nil
}

func (g *Graph) buildSource(spec SourceSpec) error {
	source, err := makeElement(spec.Factory, "source")
	if err != nil {
		return err
	}
	source.SetProperty(spec.Property, spec.Value)

	if spec.Factory == "rtspsrc" {
		source.SetProperty("latency", 200)
		source.SetProperty("tcp-timeout", uint64(10000000)) // 10s
	}

	decoder, err := makeElement("decodebin", "decoder")
	if err != nil {
		return err
	}

	if err := g.pipeline.AddMany(source, decoder); err != nil {
		return fmt.Errorf("%w: failed to add source elements: %v", engine.ErrGraphConstruction, err)
	}

	if spec.Dynamic {
		// rtspsrc has dynamic pads, linked in pad-added callback
		if _, err := source.Connect("pad-added", func(self *gst.Element, pad *gst.Pad) {
			onSourcePad(pad, decoder)
		}); err != nil {
			return fmt.Errorf("%w: failed to connect source pad-added: %v", engine.ErrGraphConstruction, err)
		}
	} else if err := source.Link(decoder); err != nil {
		return fmt.Errorf("%w: failed to link %s to decodebin: %v", engine.ErrGraphConstruction, spec.Factory, err)
	}

	g.source = source
	g.decoder = decoder
	return nil
}

func (g *Graph) buildVideoChain(src engine.Source) error {
	queue, err := makeElement("queue", "video_queue")
	if err != nil {
		return err
	}
	scale, err := makeElement("videoscale", "videoscale")
	if err != nil {
		return err
	}
	capsfilter, err := makeElement("capsfilter", "video_caps")
	if err != nil {
		return err
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(scaleCaps(src.Width, src.Height)))

	upload, err := makeElement("glupload", "glupload")
	if err != nil {
		return err
	}
	convert, err := makeElement("glcolorconvert", "glcolorconvert")
	if err != nil {
		return err
	}

	sink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("%w: failed to create appsink: %v", engine.ErrGraphConstruction, err)
	}
	sink.SetCaps(gst.NewCapsFromString(frameCaps))
	sink.SetProperty("sync", src.Sync)
	sink.SetProperty("max-buffers", 1) // Keep only latest frame
	sink.SetProperty("drop", true)     // Drop old frames
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: g.onNewSample,
	})

	if err := g.pipeline.AddMany(queue, scale, capsfilter, upload, convert, sink.Element); err != nil {
		return fmt.Errorf("%w: failed to add video chain: %v", engine.ErrGraphConstruction, err)
	}
	if err := gst.ElementLinkMany(queue, scale, capsfilter, upload, convert, sink.Element); err != nil {
		return fmt.Errorf("%w: failed to link video chain: %v", engine.ErrGraphConstruction, err)
	}

	g.videoIn = queue.GetStaticPad("sink")
	if g.videoIn == nil {
		return fmt.Errorf("%w: video queue has no sink pad", engine.ErrGraphConstruction)
	}
	g.sink = sink
	return nil
}

func (g *Graph) buildAudioChain() error {
	queue, err := makeElement("queue", "audio_queue")
	if err != nil {
		return err
	}
	convert, err := makeElement("audioconvert", "audio_convert")
	if err != nil {
		return err
	}
	resample, err := makeElement("audioresample", "audio_resample")
	if err != nil {
		return err
	}
	out, err := makeElement("autoaudiosink", "audio_sink")
	if err != nil {
		return err
	}

	if err := g.pipeline.AddMany(queue, convert, resample, out); err != nil {
		return fmt.Errorf("%w: failed to add audio chain: %v", engine.ErrGraphConstruction, err)
	}
	if err := gst.ElementLinkMany(queue, convert, resample, out); err != nil {
		return fmt.Errorf("%w: failed to link audio chain: %v", engine.ErrGraphConstruction, err)
	}

	g.audioIn = queue.GetStaticPad("sink")
	if g.audioIn == nil {
		return fmt.Errorf("%w: audio queue has no sink pad", engine.ErrGraphConstruction)
	}
	return nil
}

// Targets returns the chain inputs the decoder pads are linked to.
func (g *Graph) Targets() map[linker.Kind]linker.SinkPad {
	targets := map[linker.Kind]linker.SinkPad{
		linker.KindVideo: &sinkPad{pad: g.videoIn},
	}
	if g.audioIn != nil {
		targets[linker.KindAudio] = &sinkPad{pad: g.audioIn}
	}
	return targets
}

// SetState requests a pipeline state change.
func (g *Graph) SetState(s engine.TargetState) error {
	var target gst.State
	switch s {
	case engine.StateNull:
		target = gst.StateNull
	case engine.StatePaused:
		target = gst.StatePaused
	case engine.StatePlaying:
		target = gst.StatePlaying
	default:
		return fmt.Errorf("gstgraph: unknown target state %s", s)
	}

	if err := g.pipeline.SetState(target); err != nil {
		return fmt.Errorf("gstgraph: failed to set pipeline to %s: %w", s, err)
	}
	slog.Debug("gstgraph: pipeline state requested", "state", s.String())
	return nil
}

// Close releases the pipeline. Idempotent.
func (g *Graph) Close() error {
	if !g.closed.CompareAndSwap(false, true) {
		return nil
	}

	// Set pipeline to NULL state (stops and releases resources)
	if err := g.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstgraph: failed to set pipeline to NULL: %w", err)
	}

	slog.Info("gstgraph: pipeline closed",
		"frames", atomic.LoadUint64(&g.frameSeq),
		"system_memory_frames", atomic.LoadUint64(&g.systemFrame),
		"empty_pulls", atomic.LoadUint64(&g.emptyPulls),
	)
	return nil
}

func makeElement(factory, name string) (*gst.Element, error) {
	el, err := gst.NewElementWithName(factory, name)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create %s: %v", engine.ErrGraphConstruction, factory, err)
	}
	return el, nil
}

func scaleCaps(width, height int) string {
	return fmt.Sprintf("video/x-raw,width=%d,height=%d", width, height)
}

// CheckAvailable verifies GStreamer can create elements.
func CheckAvailable() error {
	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}
