package glplayback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/glcontext"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/linker"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/notify"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/relay"
)

// Player implements Controller on top of an engine.Builder.
type Player struct {
	cfg        Config
	builder    engine.Builder
	negotiator *glcontext.Negotiator
	log        *slog.Logger
	sessionID  string

	// Lifecycle, guarded by mu
	mu      sync.Mutex
	state   State
	closing bool
	src     Source
	parent  context.Context
	graph   engine.Graph
	cancel  context.CancelFunc
	started time.Time
	wg      sync.WaitGroup

	linker atomic.Pointer[linker.Linker]

	// Frame gate: publishes hold the read side, transitions out of playing
	// take the write side. Once closed, no publish is in flight.
	gate     sync.RWMutex
	gateOpen bool

	relay  *relay.Relay
	events *notify.Bus

	// Statistics (atomic for thread-safety)
	framesGated       uint64
	contextsHandled   uint64
	contextsUnhandled uint64
	linkFailures      uint64
	warnings          uint64
	fatalErrors       uint64
}

// NewPlayer creates a player with fail-fast validation.
//
// registry holds the host's display and rendering context descriptors. A nil
// registry is accepted: every context request then falls through to the
// framework defaults and frames will not be usable by the host context.
func NewPlayer(cfg Config, builder Builder, registry *Registry) (*Player, error) {
	if builder == nil {
		return nil, fmt.Errorf("%w: engine builder is required", ErrInvalidConfig)
	}
	if cfg.TeardownTimeoutMS <= 0 {
		return nil, fmt.Errorf("%w: teardown_timeout_ms must be > 0, got %d", ErrInvalidConfig, cfg.TeardownTimeoutMS)
	}

	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	p := &Player{
		cfg:       cfg,
		builder:   builder,
		sessionID: sessionID,
		log:       slog.Default().With("session_id", sessionID),
		state:     StateUnbuilt,
		relay:     relay.New(),
		events:    notify.New(),
	}
	p.negotiator = glcontext.NewNegotiator(registry, contextObserver{p})

	if registry == nil {
		p.log.Warn("gl-playback: no context registry, GL elements will create their own context")
	}
	p.log.Info("gl-playback: player created",
		"teardown_timeout", cfg.TeardownTimeout(),
		"registry_entries", registry.Len(),
	)
	return p, nil
}

// SessionID identifies this player in logs.
func (p *Player) SessionID() string {
	return p.sessionID
}

// Relay is where the render bridge pulls frames from.
func (p *Player) Relay() *FrameRelay {
	return p.relay
}

// Subscribe registers ch for events. Delivery never blocks: a full channel
// loses events.
func (p *Player) Subscribe(id string, ch chan<- Event) error {
	return p.events.Subscribe(id, ch)
}

// Unsubscribe removes a subscriber registered with Subscribe.
func (p *Player) Unsubscribe(id string) error {
	return p.events.Unsubscribe(id)
}

// State returns the current lifecycle state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Build constructs the element graph. See Controller.
func (p *Player) Build(ctx context.Context, src Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateUnbuilt || p.closing {
		return transitionError("build", p.state)
	}
	if err := validateSource(src); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	hooks := engine.Hooks{
		Intercept: p.negotiator.Intercept,
		OnBranch:  p.onBranch,
		OnFrame:   p.onFrame,
		OnMessage: p.onMessage,
	}

	g, err := p.builder.Build(src, hooks)
	if err != nil {
		p.log.Error("gl-playback: failed to build graph",
			"uri", src.URI,
			"error", err,
		)
		if errors.Is(err, ErrGraphConstruction) {
			return fmt.Errorf("gl-playback: build %s: %w", src.URI, err)
		}
		return fmt.Errorf("gl-playback: build %s: %w: %w", src.URI, ErrGraphConstruction, err)
	}

	p.linker.Store(linker.New(g.Targets()))
	p.graph = g
	p.src = src
	p.parent = ctx

	p.log.Info("gl-playback: graph built",
		"uri", src.URI,
		"resolution", fmt.Sprintf("%dx%d", src.Width, src.Height),
		"audio", src.Audio,
	)
	p.setStateLocked(StateBuilt)
	return nil
}

// Start begins or resumes playback. See Controller.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if (p.state != StateBuilt && p.state != StatePaused) || p.closing {
		return transitionError("start", p.state)
	}

	if p.cancel == nil {
		ctx, cancel := context.WithCancel(p.parent)
		p.cancel = cancel
		p.started = time.Now()
		p.wg.Add(1)
		go p.worker(ctx, p.graph)
	}

	p.openGate()
	if err := p.graph.SetState(engine.StatePlaying); err != nil {
		p.closeGate()
		p.log.Error("gl-playback: failed to start pipeline", "error", err)
		return fmt.Errorf("gl-playback: failed to start pipeline: %w", err)
	}

	p.setStateLocked(StatePlaying)
	return nil
}

// Pause pauses playback. See Controller.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePlaying || p.closing {
		return transitionError("pause", p.state)
	}

	p.closeGate()
	if err := p.graph.SetState(engine.StatePaused); err != nil {
		p.openGate()
		p.log.Error("gl-playback: failed to pause pipeline", "error", err)
		return fmt.Errorf("gl-playback: failed to pause pipeline: %w", err)
	}

	p.setStateLocked(StatePaused)
	return nil
}

// Stop moves the player to stopped. See Controller.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.state == StateTornDown || p.closing:
		return transitionError("stop", p.state)
	case p.state == StateStopped:
		p.log.Debug("gl-playback: already stopped, nothing to stop")
		return nil
	}

	p.haltLocked("stop requested")
	return nil
}

// Teardown releases everything. See Controller.
//
// This method:
//  1. Stops the pipeline if it is built, playing or paused
//  2. Quits the worker loop and waits for it (bounded)
//  3. Closes the graph, the relay and the event bus
//
// Idempotent - safe to call multiple times.
func (p *Player) Teardown() error {
	p.mu.Lock()
	if p.state == StateTornDown || p.closing {
		p.mu.Unlock()
		p.log.Debug("gl-playback: already torn down, nothing to do")
		return nil
	}
	p.closing = true

	if p.state == StateBuilt || p.state == StatePlaying || p.state == StatePaused {
		p.haltLocked("teardown")
	}
	cancel := p.cancel
	p.mu.Unlock()

	p.log.Info("gl-playback: tearing down")

	// Waiting without the lock: the worker takes it on its way out.
	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timeout := p.cfg.TeardownTimeout()
	select {
	case <-done:
		p.log.Debug("gl-playback: worker stopped cleanly")
	case <-time.After(timeout):
		p.log.Warn("gl-playback: teardown timeout exceeded, worker may still be running",
			"timeout", timeout,
		)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var closeErr error
	if p.graph != nil {
		if err := p.graph.Close(); err != nil {
			p.log.Error("gl-playback: failed to close graph", "error", err)
			closeErr = fmt.Errorf("gl-playback: close graph: %w", err)
		}
		p.graph = nil
	}
	p.linker.Store(nil)
	p.relay.Close()

	stats := p.relay.Stats()
	p.log.Info("gl-playback: torn down",
		"frames_published", stats.Published,
		"frames_superseded", stats.Superseded,
		"frames_gated", atomic.LoadUint64(&p.framesGated),
		"fatal_errors", atomic.LoadUint64(&p.fatalErrors),
	)

	p.setStateLocked(StateTornDown)
	p.closing = false
	p.events.Close()
	return closeErr
}

// Stats returns a snapshot of player statistics.
func (p *Player) Stats() Stats {
	p.mu.Lock()
	state := p.state
	uri := p.src.URI
	started := p.started
	p.mu.Unlock()

	rs := p.relay.Stats()
	out := Stats{
		SessionID:         p.sessionID,
		State:             state,
		URI:               uri,
		FramesPublished:   rs.Published,
		FramesSuperseded:  rs.Superseded,
		FramesAcquired:    rs.Acquired,
		FrameResident:     rs.Resident,
		FramesGated:       atomic.LoadUint64(&p.framesGated),
		Branches:          map[string]string{},
		ContextsHandled:   atomic.LoadUint64(&p.contextsHandled),
		ContextsUnhandled: atomic.LoadUint64(&p.contextsUnhandled),
		LinkFailures:      atomic.LoadUint64(&p.linkFailures),
		Warnings:          atomic.LoadUint64(&p.warnings),
		FatalErrors:       atomic.LoadUint64(&p.fatalErrors),
	}
	if l := p.linker.Load(); l != nil {
		for kind, pad := range l.Linked() {
			out.Branches[kind.String()] = pad
		}
	}
	for _, s := range p.events.Stats().Subscribers {
		out.EventsDropped += s.Dropped
	}
	if !started.IsZero() {
		out.Uptime = time.Since(started)
	}
	return out
}

// worker pumps the bus until its context is cancelled. Locked to one OS
// thread for the lifetime of the loop.
func (p *Player) worker(ctx context.Context, g engine.Graph) {
	defer p.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p.log.Debug("gl-playback: worker started")

	if err := g.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.handleStreamError(&StreamError{
			Source:   "worker",
			Message:  err.Error(),
			Category: "loop",
			Fatal:    true,
		})
	}

	// The parent context passed to Build may end the loop without Stop.
	p.mu.Lock()
	if p.state == StatePlaying || p.state == StatePaused {
		p.haltLocked("event loop exited")
	}
	p.mu.Unlock()

	p.log.Debug("gl-playback: worker exited")
}

// haltLocked moves a live graph to stopped. p.mu must be held.
func (p *Player) haltLocked(reason string) {
	p.closeGate()

	if p.graph != nil {
		if err := p.graph.SetState(engine.StateNull); err != nil {
			p.log.Warn("gl-playback: failed to set pipeline to null", "error", err)
		}
	}
	if p.cancel != nil {
		p.cancel()
	}

	p.log.Info("gl-playback: pipeline stopped", "reason", reason)
	p.setStateLocked(StateStopped)
}

// setStateLocked records a transition. p.mu must be held.
func (p *Player) setStateLocked(to State) {
	from := p.state
	p.state = to

	metrics.RecordState(from.String(), to.String())
	p.log.Debug("gl-playback: state changed", "from", from.String(), "to", to.String())
	p.events.Publish(Event{
		Kind:   EventStateChanged,
		Source: "player",
		From:   from.String(),
		To:     to.String(),
	})
}

func (p *Player) openGate() {
	p.gate.Lock()
	p.gateOpen = true
	p.gate.Unlock()
}

// closeGate returns once every in-flight publish has finished.
func (p *Player) closeGate() {
	p.gate.Lock()
	p.gateOpen = false
	p.gate.Unlock()
}

// onFrame runs on a streaming thread. Takes ownership of h.
func (p *Player) onFrame(h *relay.Handle) {
	p.gate.RLock()
	defer p.gate.RUnlock()

	if !p.gateOpen {
		atomic.AddUint64(&p.framesGated, 1)
		metrics.IncFrameGated()
		h.Release()
		return
	}

	metrics.IncFramePublished()
	if p.relay.Publish(h) {
		metrics.IncFrameSuperseded()
	}
}

// onBranch runs on a streaming thread.
func (p *Player) onBranch(src linker.SourcePad) {
	l := p.linker.Load()
	if l == nil {
		p.log.Warn("gl-playback: branch discovered without a graph", "pad", src.Name())
		return
	}

	kind, outcome, err := l.OnBranch(src)
	switch outcome {
	case linker.OutcomeLinked:
		metrics.IncBranchLinked(kind.String())
		p.events.Publish(Event{
			Kind:   EventBranchLinked,
			Source: src.Name(),
			Detail: kind.String(),
		})
	case linker.OutcomeFailed:
		atomic.AddUint64(&p.linkFailures, 1)
		metrics.IncLinkFailure(kind.String())
		p.events.Publish(Event{
			Kind:   EventLinkFailed,
			Source: src.Name(),
			Detail: kind.String(),
			Err:    err,
		})
	}
}

// onMessage runs on the worker goroutine.
func (p *Player) onMessage(msg engine.Message) {
	switch msg.Kind {
	case engine.MessageError:
		p.handleStreamError(&StreamError{
			Source:   msg.Source,
			Message:  msg.Text,
			Debug:    msg.Debug,
			Category: msg.Category,
			Fatal:    true,
		})

	case engine.MessageWarning:
		p.handleStreamError(&StreamError{
			Source:   msg.Source,
			Message:  msg.Text,
			Debug:    msg.Debug,
			Category: msg.Category,
		})

	case engine.MessageEOS:
		p.handleEndOfStream()

	case engine.MessageStateChanged:
		if msg.FromPipeline {
			p.log.Debug("gl-playback: pipeline state changed",
				"from", msg.OldState,
				"to", msg.NewState,
			)
		}

	case engine.MessageClockLost:
		p.log.Warn("gl-playback: pipeline clock lost", "source", msg.Source)

	default:
		p.log.Debug("gl-playback: bus message",
			"kind", msg.Kind.String(),
			"source", msg.Source,
		)
	}
}

func (p *Player) handleStreamError(se *StreamError) {
	if !se.Fatal {
		atomic.AddUint64(&p.warnings, 1)
		metrics.IncStreamError("warning", se.Category)
		p.log.Warn("gl-playback: stream warning",
			"source", se.Source,
			"warning", se.Message,
			"debug", se.Debug,
			"category", se.Category,
		)
		p.events.Publish(Event{Kind: EventStreamWarning, Source: se.Source, Detail: se.Message, Err: se})
		return
	}

	atomic.AddUint64(&p.fatalErrors, 1)
	metrics.IncStreamError("fatal", se.Category)
	p.log.Error("gl-playback: fatal stream error",
		"source", se.Source,
		"error", se.Message,
		"debug", se.Debug,
		"category", se.Category,
	)

	p.mu.Lock()
	if p.state == StatePlaying || p.state == StatePaused {
		p.haltLocked("fatal stream error")
	}
	p.mu.Unlock()

	p.events.Publish(Event{Kind: EventStreamFatal, Source: se.Source, Detail: se.Message, Err: se})
}

func (p *Player) handleEndOfStream() {
	p.mu.Lock()
	if p.state == StatePlaying {
		p.log.Info("gl-playback: end of stream received",
			"uri", p.src.URI,
			"uptime", time.Since(p.started),
		)
		p.haltLocked("end of stream")
	} else {
		p.log.Debug("gl-playback: end of stream ignored", "state", p.state.String())
	}
	p.mu.Unlock()

	p.events.Publish(Event{Kind: EventEndOfStream, Source: "pipeline", Err: ErrEndOfStream})
}

// contextObserver turns negotiation outcomes into events and counters.
// Runs on the requesting streaming thread.
type contextObserver struct {
	p *Player
}

func (o contextObserver) ContextHandled(typ glcontext.ContextType, requester string) {
	atomic.AddUint64(&o.p.contextsHandled, 1)
	metrics.IncContextRequest("handled")
	o.p.events.Publish(Event{
		Kind:   EventContextHandled,
		Source: requester,
		Detail: string(typ),
	})
}

func (o contextObserver) ContextUnhandled(err *glcontext.UnhandledError) {
	atomic.AddUint64(&o.p.contextsUnhandled, 1)
	metrics.IncContextRequest("unhandled")
	o.p.events.Publish(Event{
		Kind:   EventContextRequestUnhandled,
		Source: err.Requester,
		Detail: string(err.ContextType),
		Err:    err,
	})
}
