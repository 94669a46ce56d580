// Package glplayback plays a media stream into a GL context owned by the host.
//
// Decoded frames stay on the GPU: the pipeline uploads them into textures
// that share the host's GL display and context, and the host render thread
// draws the latest one each cycle. There is no CPU copy on the frame path.
//
// # Quick Start
//
//	// With the host GLX context current on this thread:
//	host, err := glplayback.NewX11Context(x11Display, glxContext)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer host.Close()
//
//	cfg := glplayback.DefaultConfig()
//	cfg.Media.URI = "file:///videos/clip.mp4"
//
//	player, err := glplayback.NewPlayer(cfg, glplayback.NewGStreamerBuilder(), host.Registry())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer player.Teardown()
//
//	if err := player.Build(ctx, cfg.Source()); err != nil {
//	    log.Fatal(err)
//	}
//	if err := player.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
//	// On the thread that owns the GL context; gldraw.New(window) gives a
//	// ready-made surface:
//	bridge := glplayback.NewRenderBridge(player.Relay(), surface)
//	bridge.Run(func() bool { return !window.ShouldClose() }, glfw.PollEvents)
//
// A runnable version lives in examples/basic.
//
// # Lifecycle
//
//	unbuilt → built → playing ⇄ paused → stopped → torn-down
//
// Stop is accepted from any state except torn-down. Teardown is accepted from
// every state, joins the worker and is idempotent. Nothing is accepted after
// torn-down. A fatal stream error while playing or paused, or end of stream
// while playing, moves the player to stopped on its own; no frame is
// published after that transition.
//
// # Threads
//
//   - Worker: one goroutine locked to its OS thread pumps the pipeline bus.
//   - Streaming threads: owned by GStreamer. Context interception, branch
//     linking and frame publishing run on them.
//   - Render thread: owned by the host. It is the only thread that issues GL
//     calls.
//
// The Frame Relay is the only structure the streaming threads and the render
// thread share.
//
// # Errors
//
// Branch and context failures are absorbed and reported as events
// (see Subscribe). Only ErrStreamFatal and ErrEndOfStream change state.
package glplayback
