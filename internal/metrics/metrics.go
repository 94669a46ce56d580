// Package metrics exposes Prometheus instruments for the playback bridge.
//
// Labels are bounded enums only (state names, branch kinds, error
// categories). Session and trace ids never become labels.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glplayback_frames_published_total",
		Help: "Frames handed to the relay by the frame sink",
	})

	framesSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glplayback_frames_superseded_total",
		Help: "Frames replaced in the relay before any consumer acquired them",
	})

	framesGated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glplayback_frames_gated_total",
		Help: "Frames discarded because the pipeline left the playing/paused states",
	})

	framesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "glplayback_frames_rendered_total",
		Help: "Frames drawn and presented by the render bridge",
	})

	renderSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glplayback_render_skipped_total",
		Help: "Render iterations that did not draw, by reason",
	}, []string{"reason"})

	pipelineState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "glplayback_pipeline_state",
		Help: "1 for the current controller state, 0 otherwise",
	}, []string{"state"})

	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glplayback_state_transitions_total",
		Help: "Controller state transitions",
	}, []string{"from", "to"})

	branchesLinked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glplayback_branches_linked_total",
		Help: "Decoder output branches linked to a chain",
	}, []string{"kind"})

	linkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glplayback_link_failures_total",
		Help: "Decoder output branches that failed to link",
	}, []string{"kind"})

	contextRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glplayback_context_requests_total",
		Help: "Context requests seen on the bus, by outcome",
	}, []string{"outcome"})

	streamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glplayback_stream_errors_total",
		Help: "Error and warning messages posted by the pipeline",
	}, []string{"severity", "category"})
)

// States lists every controller state name the gauge knows about.
var States = []string{"unbuilt", "built", "playing", "paused", "stopped", "torn_down"}

// IncFramePublished records a frame offered to the relay.
func IncFramePublished() { framesPublished.Inc() }

// IncFrameSuperseded records a frame dropped by the single-slot relay.
func IncFrameSuperseded() { framesSuperseded.Inc() }

// IncFrameGated records a frame discarded after a stop/fatal/EOS transition.
func IncFrameGated() { framesGated.Inc() }

// IncFrameRendered records a presented frame.
func IncFrameRendered() { framesRendered.Inc() }

// IncRenderSkipped records a render iteration that drew nothing.
func IncRenderSkipped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	renderSkipped.WithLabelValues(reason).Inc()
}

// RecordState moves the state gauge and counts the transition.
func RecordState(from, to string) {
	for _, s := range States {
		v := 0.0
		if s == to {
			v = 1
		}
		pipelineState.WithLabelValues(s).Set(v)
	}
	stateTransitions.WithLabelValues(from, to).Inc()
}

// IncBranchLinked records a successful branch link.
func IncBranchLinked(kind string) { branchesLinked.WithLabelValues(kind).Inc() }

// IncLinkFailure records a failed branch link.
func IncLinkFailure(kind string) { linkFailures.WithLabelValues(kind).Inc() }

// IncContextRequest records a context request outcome ("handled", "unhandled").
func IncContextRequest(outcome string) { contextRequests.WithLabelValues(outcome).Inc() }

// IncStreamError records an error ("fatal") or warning posted by the pipeline.
func IncStreamError(severity, category string) {
	if category == "" {
		category = "unknown"
	}
	streamErrors.WithLabelValues(severity, category).Inc()
}
