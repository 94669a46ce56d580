package glplayback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/engine"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/glcontext"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/linker"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/internal/relay"
)

// fakeSink is an unconnected chain input.
type fakeSink struct {
	name   string
	linked atomic.Bool
	links  atomic.Int32
}

func (s *fakeSink) Name() string     { return s.name }
func (s *fakeSink) IsLinked() bool   { return s.linked.Load() }
func (s *fakeSink) link()            { s.links.Add(1); s.linked.Store(true) }
func (s *fakeSink) linkCount() int32 { return s.links.Load() }

// fakePad is a decoder output pad.
type fakePad struct {
	name      string
	mediaType string
	err       error
}

func (p *fakePad) Name() string      { return p.name }
func (p *fakePad) MediaType() string { return p.mediaType }
func (p *fakePad) LinkTo(sink linker.SinkPad) error {
	if p.err != nil {
		return p.err
	}
	sink.(*fakeSink).link()
	return nil
}

// fakeGraph records state requests and delivers injected bus messages on
// the worker goroutine.
type fakeGraph struct {
	hooks   engine.Hooks
	video   *fakeSink
	audio   *fakeSink
	msgs    chan engine.Message
	setErr  error
	closed  atomic.Int32
	running atomic.Bool

	// block makes Run ignore ctx until closed
	block chan struct{}

	mu     sync.Mutex
	states []engine.TargetState
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		video: &fakeSink{name: "queue-video:sink"},
		audio: &fakeSink{name: "queue-audio:sink"},
		msgs:  make(chan engine.Message, 16),
	}
}

func (g *fakeGraph) Targets() map[linker.Kind]linker.SinkPad {
	return map[linker.Kind]linker.SinkPad{
		linker.KindVideo: g.video,
		linker.KindAudio: g.audio,
	}
}

func (g *fakeGraph) SetState(s engine.TargetState) error {
	if g.setErr != nil {
		return g.setErr
	}
	g.mu.Lock()
	g.states = append(g.states, s)
	g.mu.Unlock()
	return nil
}

func (g *fakeGraph) requested() []engine.TargetState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]engine.TargetState(nil), g.states...)
}

func (g *fakeGraph) Run(ctx context.Context) error {
	g.running.Store(true)
	defer g.running.Store(false)

	if g.block != nil {
		<-g.block
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-g.msgs:
			g.hooks.OnMessage(msg)
		}
	}
}

func (g *fakeGraph) Close() error {
	g.closed.Add(1)
	return nil
}

func (g *fakeGraph) builder() engine.Builder {
	return engine.BuilderFunc(func(_ engine.Source, hooks engine.Hooks) (engine.Graph, error) {
		g.hooks = hooks
		return g, nil
	})
}

func testSource() Source {
	return Source{URI: "file:///clip.mp4", Width: 640, Height: 360, Audio: true, Sync: true}
}

func newTestPlayer(t *testing.T, g *fakeGraph) *Player {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TeardownTimeoutMS = 500
	p, err := NewPlayer(cfg, g.builder(), nil)
	require.NoError(t, err)
	return p
}

func gpuFrame(seq uint64, released *atomic.Int32) *relay.Handle {
	return relay.NewHandle(relay.FrameInfo{
		Texture: uint32(seq),
		Width:   640,
		Height:  360,
		Format:  "RGBA",
		Memory:  relay.MemoryGPU,
		Seq:     seq,
	}, func() { released.Add(1) })
}

// waitEvent reads events until one of kind arrives.
func waitEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s event", kind)
			return Event{}
		}
	}
}

// reach drives a fresh player to the requested state.
func reach(t *testing.T, p *Player, s State) {
	t.Helper()
	ctx := context.Background()
	switch s {
	case StateUnbuilt:
	case StateBuilt:
		require.NoError(t, p.Build(ctx, testSource()))
	case StatePlaying:
		require.NoError(t, p.Build(ctx, testSource()))
		require.NoError(t, p.Start())
	case StatePaused:
		require.NoError(t, p.Build(ctx, testSource()))
		require.NoError(t, p.Start())
		require.NoError(t, p.Pause())
	case StateStopped:
		require.NoError(t, p.Build(ctx, testSource()))
		require.NoError(t, p.Start())
		require.NoError(t, p.Stop())
	default:
		t.Fatalf("cannot reach %s", s)
	}
	require.Equal(t, s, p.State())
}

func TestNewPlayer_Validation(t *testing.T) {
	_, err := NewPlayer(DefaultConfig(), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := DefaultConfig()
	cfg.TeardownTimeoutMS = 0
	_, err = NewPlayer(cfg, newFakeGraph().builder(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.SessionID = "cam-7"
	p, err := NewPlayer(cfg, newFakeGraph().builder(), nil)
	require.NoError(t, err)
	assert.Equal(t, "cam-7", p.SessionID())
	assert.Equal(t, StateUnbuilt, p.State())
}

func TestLifecycle_FullCycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	g := newFakeGraph()
	p := newTestPlayer(t, g)

	events := make(chan Event, 32)
	require.NoError(t, p.Subscribe("test", events))

	require.NoError(t, p.Build(context.Background(), testSource()))
	assert.Equal(t, StateBuilt, p.State())

	require.NoError(t, p.Start())
	assert.Equal(t, StatePlaying, p.State())
	require.Eventually(t, g.running.Load, time.Second, 5*time.Millisecond, "worker runs the loop")

	require.NoError(t, p.Pause())
	assert.Equal(t, StatePaused, p.State())

	require.NoError(t, p.Start())
	assert.Equal(t, StatePlaying, p.State())

	require.NoError(t, p.Stop())
	assert.Equal(t, StateStopped, p.State())

	require.NoError(t, p.Teardown())
	assert.Equal(t, StateTornDown, p.State())
	assert.False(t, g.running.Load(), "worker joined")
	assert.Equal(t, int32(1), g.closed.Load())

	assert.Equal(t, []engine.TargetState{
		engine.StatePlaying,
		engine.StatePaused,
		engine.StatePlaying,
		engine.StateNull,
	}, g.requested())

	var path []string
	for len(events) > 0 {
		ev := <-events
		if ev.Kind == EventStateChanged {
			path = append(path, ev.To)
		}
	}
	assert.Equal(t, []string{"built", "playing", "paused", "playing", "stopped", "torn_down"}, path)
}

func TestTransitions_Illegal(t *testing.T) {
	tests := []struct {
		from State
		op   string
	}{
		{StateUnbuilt, "start"},
		{StateUnbuilt, "pause"},
		{StateBuilt, "build"},
		{StateBuilt, "pause"},
		{StatePlaying, "build"},
		{StatePlaying, "start"},
		{StatePaused, "pause"},
		{StateStopped, "start"},
		{StateStopped, "pause"},
		{StateStopped, "build"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_from_%s", tt.op, tt.from), func(t *testing.T) {
			g := newFakeGraph()
			p := newTestPlayer(t, g)
			defer p.Teardown()
			reach(t, p, tt.from)

			var err error
			switch tt.op {
			case "build":
				err = p.Build(context.Background(), testSource())
			case "start":
				err = p.Start()
			case "pause":
				err = p.Pause()
			}

			require.ErrorIs(t, err, ErrInvalidTransition)
			var terr *TransitionError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, tt.op, terr.Op)
			assert.Equal(t, tt.from, terr.From)
			assert.Equal(t, tt.from, p.State(), "state unchanged")
		})
	}
}

func TestStop_FromAnyState(t *testing.T) {
	for _, from := range []State{StateUnbuilt, StateBuilt, StatePlaying, StatePaused, StateStopped} {
		t.Run(from.String(), func(t *testing.T) {
			p := newTestPlayer(t, newFakeGraph())
			defer p.Teardown()
			reach(t, p, from)

			require.NoError(t, p.Stop())
			assert.Equal(t, StateStopped, p.State())
		})
	}
}

// Teardown is reachable from every non-terminal state, idempotent, and
// nothing is legal afterwards.
func TestTeardown_FromEveryState(t *testing.T) {
	for _, from := range []State{StateUnbuilt, StateBuilt, StatePlaying, StatePaused, StateStopped} {
		t.Run(from.String(), func(t *testing.T) {
			defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

			g := newFakeGraph()
			p := newTestPlayer(t, g)
			reach(t, p, from)

			require.NoError(t, p.Teardown())
			assert.Equal(t, StateTornDown, p.State())

			require.NoError(t, p.Teardown(), "second teardown is a no-op")
			assert.Equal(t, StateTornDown, p.State())

			assert.ErrorIs(t, p.Build(context.Background(), testSource()), ErrTornDown)
			assert.ErrorIs(t, p.Start(), ErrTornDown)
			assert.ErrorIs(t, p.Pause(), ErrTornDown)
			assert.ErrorIs(t, p.Stop(), ErrTornDown)
			assert.Equal(t, StateTornDown, p.State())

			if from != StateUnbuilt {
				assert.Equal(t, int32(1), g.closed.Load(), "graph closed once")
			}
			assert.True(t, p.Relay().Stats().Closed)
		})
	}
}

func TestTeardown_Concurrent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	g := newFakeGraph()
	p := newTestPlayer(t, g)
	reach(t, p, StatePlaying)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Teardown())
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return p.State() == StateTornDown }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), g.closed.Load())
}

// A worker that ignores the quit signal must not hang Teardown.
func TestTeardown_BoundedWait(t *testing.T) {
	g := newFakeGraph()
	g.block = make(chan struct{})

	cfg := DefaultConfig()
	cfg.TeardownTimeoutMS = 50
	p, err := NewPlayer(cfg, g.builder(), nil)
	require.NoError(t, err)
	reach(t, p, StatePlaying)
	require.Eventually(t, g.running.Load, time.Second, 5*time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Teardown())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateTornDown, p.State())

	close(g.block)
	p.wg.Wait()
	assert.Equal(t, StateTornDown, p.State(), "late worker exit does not move the state")
}

func TestBuild_GraphConstructionError(t *testing.T) {
	missing := errors.New("no element \"glupload\"")

	tests := []struct {
		name string
		err  error
	}{
		{"plain error", missing},
		{"already classified", fmt.Errorf("gstgraph: %w: %w", engine.ErrGraphConstruction, missing)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := engine.BuilderFunc(func(engine.Source, engine.Hooks) (engine.Graph, error) {
				return nil, tt.err
			})
			p, err := NewPlayer(DefaultConfig(), builder, nil)
			require.NoError(t, err)
			defer p.Teardown()

			err = p.Build(context.Background(), testSource())
			assert.ErrorIs(t, err, ErrGraphConstruction)
			assert.ErrorIs(t, err, missing)
			assert.Equal(t, StateUnbuilt, p.State())
		})
	}
}

func TestBuild_InvalidSource(t *testing.T) {
	p := newTestPlayer(t, newFakeGraph())
	defer p.Teardown()

	err := p.Build(context.Background(), Source{URI: "", Width: 640, Height: 360})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, StateUnbuilt, p.State())
}

func TestStart_SetStateFailure(t *testing.T) {
	g := newFakeGraph()
	p := newTestPlayer(t, g)
	defer p.Teardown()
	reach(t, p, StateBuilt)

	g.setErr = errors.New("state change failure")
	assert.Error(t, p.Start())
	assert.Equal(t, StateBuilt, p.State())

	var released atomic.Int32
	g.hooks.OnFrame(gpuFrame(1, &released))
	assert.Equal(t, int32(1), released.Load(), "gate stays closed")
	g.setErr = nil
}

// A fatal error while playing moves the player to stopped within one loop
// iteration and no frame is published afterwards.
func TestFatalError_StopsAndGatesFrames(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	g := newFakeGraph()
	p := newTestPlayer(t, g)
	events := make(chan Event, 32)
	require.NoError(t, p.Subscribe("test", events))
	reach(t, p, StatePlaying)

	var released atomic.Int32
	g.hooks.OnFrame(gpuFrame(1, &released))
	require.Equal(t, uint64(1), p.Relay().Stats().Published)

	g.msgs <- engine.Message{
		Kind:     engine.MessageError,
		Source:   "decodebin0",
		Text:     "Internal data stream error.",
		Category: "codec",
	}

	ev := waitEvent(t, events, EventStreamFatal)
	assert.ErrorIs(t, ev.Err, ErrStreamFatal)
	var serr *StreamError
	require.ErrorAs(t, ev.Err, &serr)
	assert.Equal(t, "decodebin0", serr.Source)
	assert.Equal(t, StateStopped, p.State())

	for seq := uint64(2); seq < 10; seq++ {
		g.hooks.OnFrame(gpuFrame(seq, &released))
	}
	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.FramesPublished, "no publish after fatal error")
	assert.Equal(t, uint64(8), stats.FramesGated)
	assert.Equal(t, uint64(1), stats.FatalErrors)
	assert.Equal(t, int32(8), released.Load(), "gated frames released immediately")

	assert.Equal(t, engine.StateNull, g.requested()[len(g.requested())-1])

	require.NoError(t, p.Teardown())
	assert.Equal(t, int32(9), released.Load())
}

func TestFatalError_WhilePaused(t *testing.T) {
	g := newFakeGraph()
	p := newTestPlayer(t, g)
	defer p.Teardown()
	reach(t, p, StatePaused)

	g.msgs <- engine.Message{Kind: engine.MessageError, Source: "rtspsrc0", Text: "Could not connect", Category: "network"}

	require.Eventually(t, func() bool { return p.State() == StateStopped }, time.Second, 5*time.Millisecond)
}

func TestEndOfStream_StopsWhilePlaying(t *testing.T) {
	g := newFakeGraph()
	p := newTestPlayer(t, g)
	defer p.Teardown()
	events := make(chan Event, 32)
	require.NoError(t, p.Subscribe("test", events))
	reach(t, p, StatePlaying)

	g.msgs <- engine.Message{Kind: engine.MessageEOS, Source: "pipeline0", FromPipeline: true}

	ev := waitEvent(t, events, EventEndOfStream)
	assert.ErrorIs(t, ev.Err, ErrEndOfStream)
	assert.Equal(t, StateStopped, p.State())
}

func TestWarning_NoStateChange(t *testing.T) {
	g := newFakeGraph()
	p := newTestPlayer(t, g)
	defer p.Teardown()
	events := make(chan Event, 32)
	require.NoError(t, p.Subscribe("test", events))
	reach(t, p, StatePlaying)

	g.msgs <- engine.Message{Kind: engine.MessageWarning, Source: "glupload0", Text: "falling back", Category: "resource"}

	ev := waitEvent(t, events, EventStreamWarning)
	assert.ErrorIs(t, ev.Err, ErrStreamWarning)
	assert.NotErrorIs(t, ev.Err, ErrStreamFatal)
	assert.Equal(t, StatePlaying, p.State())
	assert.Equal(t, uint64(1), p.Stats().Warnings)
}

func TestParentContextCancel_Stops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	g := newFakeGraph()
	p := newTestPlayer(t, g)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Build(ctx, testSource()))
	require.NoError(t, p.Start())

	cancel()
	require.Eventually(t, func() bool { return p.State() == StateStopped }, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Teardown())
}

// A nil parent context behaves like context.Background().
func TestBuild_NilContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	g := newFakeGraph()
	p := newTestPlayer(t, g)

	var ctx context.Context
	require.NoError(t, p.Build(ctx, testSource()))
	require.NotPanics(t, func() { require.NoError(t, p.Start()) })
	assert.Equal(t, StatePlaying, p.State())

	require.NoError(t, p.Stop())
	require.NoError(t, p.Teardown())
	assert.Equal(t, StateTornDown, p.State())
}

// Both branches link exactly once under duplicate, concurrent discovery and
// the relay eventually holds a frame the render side can acquire.
func TestEndToEnd_BranchesAndFrames(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	g := newFakeGraph()
	p := newTestPlayer(t, g)
	events := make(chan Event, 64)
	require.NoError(t, p.Subscribe("test", events))
	reach(t, p, StatePlaying)

	pads := []*fakePad{
		{name: "src_0", mediaType: "video/x-raw"},
		{name: "src_1", mediaType: "audio/x-raw"},
		{name: "src_0", mediaType: "video/x-raw"},
		{name: "src_1", mediaType: "audio/x-raw"},
		{name: "src_2", mediaType: "text/x-raw"},
	}
	var wg sync.WaitGroup
	for _, pad := range pads {
		wg.Add(1)
		go func(pad *fakePad) {
			defer wg.Done()
			g.hooks.OnBranch(pad)
		}(pad)
	}
	wg.Wait()

	assert.Equal(t, int32(1), g.video.linkCount())
	assert.Equal(t, int32(1), g.audio.linkCount())
	assert.Equal(t, map[string]string{"video": "src_0", "audio": "src_1"}, p.Stats().Branches)

	// Streaming thread
	var released atomic.Int32
	stop := make(chan struct{})
	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		for seq := uint64(1); ; seq++ {
			select {
			case <-stop:
				return
			default:
			}
			g.hooks.OnFrame(gpuFrame(seq, &released))
			time.Sleep(time.Millisecond)
		}
	}()

	var got *relay.Handle
	require.Eventually(t, func() bool {
		got = p.Relay().AcquireLatest()
		return got != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, got.GPUResident())
	got.Release()

	close(stop)
	<-producerDone

	require.NoError(t, p.Teardown())
	stats := p.Stats()
	assert.Equal(t, int64(stats.FramesPublished+stats.FramesGated), int64(released.Load()), "every frame released exactly once")

	linked := 0
	for len(events) > 0 {
		if (<-events).Kind == EventBranchLinked {
			linked++
		}
	}
	assert.Equal(t, 2, linked)
}

func TestBranch_LinkFailureIsLocal(t *testing.T) {
	g := newFakeGraph()
	p := newTestPlayer(t, g)
	defer p.Teardown()
	events := make(chan Event, 32)
	require.NoError(t, p.Subscribe("test", events))
	reach(t, p, StatePlaying)

	g.hooks.OnBranch(&fakePad{name: "src_1", mediaType: "audio/x-raw", err: errors.New("caps incompatible")})
	g.hooks.OnBranch(&fakePad{name: "src_0", mediaType: "video/x-raw"})

	ev := waitEvent(t, events, EventLinkFailed)
	assert.ErrorIs(t, ev.Err, ErrLink)
	assert.Equal(t, StatePlaying, p.State())
	assert.Equal(t, int32(1), g.video.linkCount())
	assert.Equal(t, uint64(1), p.Stats().LinkFailures)
}

// fakeRequest is a need-context message.
type fakeRequest struct {
	typ      glcontext.ContextType
	attached []glcontext.Descriptor
}

func (r *fakeRequest) ContextType() glcontext.ContextType { return r.typ }
func (r *fakeRequest) Requester() string                  { return "glupload0" }
func (r *fakeRequest) Attach(d glcontext.Descriptor) error {
	r.attached = append(r.attached, d)
	return nil
}

func TestContextInterception(t *testing.T) {
	display, err := glcontext.NewDescriptor(glcontext.DisplayContextType, "display")
	require.NoError(t, err)
	app, err := glcontext.NewDescriptor(glcontext.AppContextType, "glx")
	require.NoError(t, err)
	registry, err := glcontext.NewRegistry(display, app)
	require.NoError(t, err)

	g := newFakeGraph()
	p, err := NewPlayer(DefaultConfig(), g.builder(), registry)
	require.NoError(t, err)
	defer p.Teardown()
	events := make(chan Event, 32)
	require.NoError(t, p.Subscribe("test", events))
	reach(t, p, StateBuilt)

	req := &fakeRequest{typ: glcontext.AppContextType}
	assert.Equal(t, glcontext.VerdictHandled, g.hooks.Intercept(req))
	require.Len(t, req.attached, 1)
	assert.Equal(t, "glx", req.attached[0].Native())

	other := &fakeRequest{typ: "gst.vaapi.Display"}
	assert.Equal(t, glcontext.VerdictPass, g.hooks.Intercept(other))
	assert.Empty(t, other.attached)

	ev := waitEvent(t, events, EventContextRequestUnhandled)
	assert.ErrorIs(t, ev.Err, ErrContextRequestUnhandled)
	assert.Equal(t, "gst.vaapi.Display", ev.Detail)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.ContextsHandled)
	assert.Equal(t, uint64(1), stats.ContextsUnhandled)
}

func TestSubscribe_AfterTeardown(t *testing.T) {
	p := newTestPlayer(t, newFakeGraph())
	require.NoError(t, p.Teardown())

	err := p.Subscribe("late", make(chan Event, 1))
	assert.Error(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "torn_down", StateTornDown.String())
	assert.Equal(t, "state(42)", State(42).String())
}
