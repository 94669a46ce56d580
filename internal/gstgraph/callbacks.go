package gstgraph

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/linker"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/relay"
)

// onNewSample is called by GStreamer on a streaming thread when the frame
// sink has a sample.
//
// The sample is wrapped in a relay handle that keeps it (and its texture)
// alive until the last reference is released. The handle is always handed
// to the hooks, which decide whether it is published.
func (g *Graph) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		// Graceful degradation: skip frame instead of terminating stream
		atomic.AddUint64(&g.emptyPulls, 1)
		slog.Warn("gstgraph: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	info, release := frameFromSample(sample)
	info.Seq = atomic.AddUint64(&g.frameSeq, 1)
	info.Timestamp = time.Now()
	info.TraceID = uuid.New().String()
	if info.Width == 0 || info.Height == 0 {
		info.Width, info.Height = g.src.Width, g.src.Height
	}

	if info.Memory != relay.MemoryGPU {
		if atomic.AddUint64(&g.systemFrame, 1) == 1 {
			slog.Warn("gstgraph: frame sink received system memory, GL context was not shared",
				"seq", info.Seq,
			)
		}
	}

	slog.Debug("gstgraph: frame ready",
		"seq", info.Seq,
		"texture", info.Texture,
		"memory", info.Memory.String(),
		"trace_id", info.TraceID,
	)

	if g.hooks.OnFrame == nil {
		release()
		return gst.FlowOK
	}
	g.hooks.OnFrame(relay.NewHandle(info, release))
	return gst.FlowOK
}

// onDecoderPad runs on a streaming thread for every decodebin output pad.
func (g *Graph) onDecoderPad(pad *gst.Pad) {
	slog.Debug("gstgraph: decoder pad added", "pad", pad.GetName())
	if g.hooks.OnBranch == nil {
		return
	}
	g.hooks.OnBranch(&sourcePad{pad: pad})
}

// onSourcePad links a dynamic source pad (rtspsrc) to the decoder.
func onSourcePad(srcPad *gst.Pad, decoder *gst.Element) {
	slog.Debug("gstgraph: source pad added", "pad", srcPad.GetName())

	sinkPad := decoder.GetStaticPad("sink")
	if sinkPad == nil {
		slog.Error("gstgraph: failed to get sink pad from decodebin")
		return
	}
	if sinkPad.IsLinked() {
		slog.Debug("gstgraph: decodebin already linked, ignoring source pad", "pad", srcPad.GetName())
		return
	}

	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		slog.Error("gstgraph: failed to link source pad",
			"src_pad", srcPad.GetName(),
			"sink_pad", sinkPad.GetName(),
			"ret", ret,
		)
		return
	}

	slog.Debug("gstgraph: source pad linked",
		"src_pad", srcPad.GetName(),
		"sink_pad", sinkPad.GetName(),
	)
}

// sourcePad adapts a decoder output pad to linker.SourcePad.
type sourcePad struct {
	pad *gst.Pad
}

func (p *sourcePad) Name() string {
	return p.pad.GetName()
}

// MediaType reads the negotiated caps, falling back to a caps query when the
// pad has not negotiated yet.
func (p *sourcePad) MediaType() string {
	caps := p.pad.GetCurrentCaps()
	if caps == nil {
		caps = p.pad.QueryCaps(nil)
	}
	if caps == nil || caps.GetSize() == 0 {
		return ""
	}
	return caps.GetStructureAt(0).Name()
}

func (p *sourcePad) LinkTo(sink linker.SinkPad) error {
	s, ok := sink.(*sinkPad)
	if !ok {
		return fmt.Errorf("gstgraph: foreign sink pad %T", sink)
	}
	if ret := p.pad.Link(s.pad); ret != gst.PadLinkOK {
		return fmt.Errorf("gstgraph: pad link returned %v", ret)
	}
	return nil
}

// sinkPad adapts a chain input pad to linker.SinkPad.
type sinkPad struct {
	pad *gst.Pad
}

func (p *sinkPad) Name() string {
	return p.pad.GetName()
}

func (p *sinkPad) IsLinked() bool {
	return p.pad.IsLinked()
}
