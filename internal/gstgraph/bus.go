package gstgraph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/glcontext"
)

// busPollInterval bounds how long Run takes to notice cancellation.
const busPollInterval = 50 * time.Millisecond

// onSyncMessage runs on the posting thread before the message is queued.
// Need-context requests are answered here so the requesting element sees
// the context before it continues; everything else goes to the queue.
func (g *Graph) onSyncMessage(msg *gst.Message) gst.BusSyncReply {
	if msg.Type() != gst.MessageNeedContext || g.hooks.Intercept == nil {
		return gst.BusPass
	}

	if g.hooks.Intercept(newContextRequest(msg)) == glcontext.VerdictHandled {
		return gst.BusDrop
	}
	return gst.BusPass
}

// Run pumps queued bus messages into Hooks.OnMessage until ctx is done.
//
// Polls with a short timeout for responsive shutdown. Returns ctx.Err().
func (g *Graph) Run(ctx context.Context) error {
	if g.pipeline == nil {
		return fmt.Errorf("gstgraph: pipeline not initialized")
	}

	bus := g.pipeline.GetPipelineBus()
	pipelineName := g.pipeline.GetName()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("gstgraph: context cancelled, stopping bus loop")
			return ctx.Err()

		default:
			msg := bus.TimedPop(busPollInterval)
			if msg == nil {
				continue
			}
			if g.hooks.OnMessage != nil {
				g.hooks.OnMessage(translate(msg, pipelineName))
			}
		}
	}
}

// translate converts a bus message to the engine-neutral form.
func translate(msg *gst.Message, pipelineName string) engine.Message {
	out := engine.Message{
		Kind:         messageKind(msg.Type()),
		Source:       msg.Source(),
		FromPipeline: msg.Source() == pipelineName,
	}

	switch out.Kind {
	case engine.MessageError:
		gerr := msg.ParseError()
		if gerr != nil {
			out.Text = gerr.Error()
			out.Debug = gerr.DebugString()
		}
		out.Category = ClassifyGStreamerError(gerr).String()

	case engine.MessageWarning:
		gerr := msg.ParseWarning()
		if gerr != nil {
			out.Text = gerr.Error()
			out.Debug = gerr.DebugString()
		}
		out.Category = ClassifyGStreamerError(gerr).String()

	case engine.MessageStateChanged:
		from, to := msg.ParseStateChanged()
		out.OldState = stateName(from)
		out.NewState = stateName(to)
	}
	return out
}

func messageKind(t gst.MessageType) engine.MessageKind {
	switch t {
	case gst.MessageError:
		return engine.MessageError
	case gst.MessageWarning:
		return engine.MessageWarning
	case gst.MessageEOS:
		return engine.MessageEOS
	case gst.MessageStateChanged:
		return engine.MessageStateChanged
	case gst.MessageStreamStatus:
		return engine.MessageStreamStatus
	case gst.MessageClockLost:
		return engine.MessageClockLost
	default:
		return engine.MessageOther
	}
}

func stateName(s gst.State) string {
	switch s {
	case gst.StateNull:
		return "null"
	case gst.StateReady:
		return "ready"
	case gst.StatePaused:
		return "paused"
	case gst.StatePlaying:
		return "playing"
	default:
		return "void_pending"
	}
}
