package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	glplayback "github.com/e7canasta/orion-care-sensor/modules/gl-playback"
	"github.com/e7canasta/orion-care-sensor/modules/gl-playback/gldraw"
)

// Version information
const version = "v0.1.0"

func init() {
	// GLFW and every GL call must stay on the main thread
	runtime.LockOSThread()
}

func main() {
	// Parse command-line flags
	uri := flag.String("uri", "", "Media URI: file path, file://, rtsp://, http(s)://, udp://")
	configPath := flag.String("config", "", "YAML config file (optional)")
	width := flag.Int("width", 0, "Video width (overrides config)")
	height := flag.Int("height", 0, "Video height (overrides config)")
	noAudio := flag.Bool("no-audio", false, "Disable the audio chain")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	statsInterval := flag.Int("stats-interval", 10, "Seconds between stats reports (0 = off)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	logJSON := flag.Bool("log-json", false, "Log in JSON format")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gl-player %s\n", version)
		os.Exit(0)
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if *logJSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	cfg := glplayback.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = glplayback.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *uri != "" {
		cfg.Media.URI = *uri
	}
	if *width > 0 {
		cfg.Media.Width = *width
	}
	if *height > 0 {
		cfg.Media.Height = *height
	}
	if *noAudio {
		cfg.Media.Audio = false
	}

	if cfg.Media.URI == "" {
		fmt.Fprintf(os.Stderr, "Error: --uri flag (or source.uri in --config) is required\n\n")
		fmt.Fprintf(os.Stderr, "Usage example:\n")
		fmt.Fprintf(os.Stderr, "  gl-player --uri /videos/clip.mp4\n")
		fmt.Fprintf(os.Stderr, "  gl-player --uri rtsp://192.168.1.100/stream --no-audio --metrics-addr :9090\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := run(cfg, *metricsAddr, time.Duration(*statsInterval)*time.Second); err != nil {
		slog.Error("gl-player: exiting with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg glplayback.Config, metricsAddr string, statsInterval time.Duration) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize glfw: %w", err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ContextVersionMajor, 2)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	win, err := glfw.CreateWindow(cfg.Media.Width, cfg.Media.Height, "gl-player", nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}
	defer win.Destroy()
	win.MakeContextCurrent()
	glfw.SwapInterval(1)

	surface, err := gldraw.New(win)
	if err != nil {
		return err
	}
	slog.Info("gl-player: GL context ready", "version", surface.Version())

	host, err := glplayback.NewX11Context(
		unsafe.Pointer(glfw.GetX11Display()),
		uintptr(unsafe.Pointer(win.GetGLXContext())),
	)
	if err != nil {
		return fmt.Errorf("failed to share GL context: %w", err)
	}
	defer host.Close()

	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("gl-player: metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		slog.Info("gl-player: metrics enabled", "addr", metricsAddr)
	}

	player, err := glplayback.NewPlayer(cfg, glplayback.NewGStreamerBuilder(), host.Registry())
	if err != nil {
		return err
	}
	defer player.Teardown()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stopEvents, err := followEvents(player, "cli")
	if err != nil {
		return err
	}
	defer stopEvents()

	if err := player.Build(ctx, cfg.Source()); err != nil {
		return err
	}
	if err := player.Start(); err != nil {
		return err
	}

	fmt.Printf("Playing %s\n", cfg.Media.URI)
	fmt.Printf("Press Space to pause/resume, Escape or Ctrl+C to quit\n\n")

	win.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeySpace:
			togglePause(player)
		}
	})

	bridge := glplayback.NewRenderBridge(player.Relay(), surface)
	lastStats := time.Now()
	bridge.Run(
		func() bool {
			return !win.ShouldClose() && ctx.Err() == nil && player.State() != glplayback.StateStopped
		},
		func() {
			glfw.PollEvents()
			if statsInterval > 0 && time.Since(lastStats) >= statsInterval {
				printStats(player.Stats(), bridge.Drawn())
				lastStats = time.Now()
			}
		},
	)

	printStats(player.Stats(), bridge.Drawn())
	err = player.Teardown()
	stopEvents()
	return err
}

func togglePause(player *glplayback.Player) {
	var err error
	switch player.State() {
	case glplayback.StatePlaying:
		err = player.Pause()
	case glplayback.StatePaused:
		err = player.Start()
	}
	if err != nil {
		slog.Warn("gl-player: pause toggle failed", "error", err)
	}
}

// eventSource is the part of the player the event logger needs.
type eventSource interface {
	Subscribe(id string, ch chan<- glplayback.Event) error
	Unsubscribe(id string) error
}

// followEvents logs the events of src until stop is called. stop
// unsubscribes, closes the channel and waits until the logger has drained
// it. stop is idempotent and also works after the player was torn down.
func followEvents(src eventSource, id string) (stop func(), err error) {
	events := make(chan glplayback.Event, 64)
	if err := src.Subscribe(id, events); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		logEvents(events)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			// Teardown already dropped every subscriber
			if err := src.Unsubscribe(id); err != nil && !errors.Is(err, glplayback.ErrSubscriberNotFound) {
				slog.Warn("gl-player: unsubscribe failed", "id", id, "error", err)
			}
			close(events)
			<-done
		})
	}, nil
}

func logEvents(events <-chan glplayback.Event) {
	for ev := range events {
		attrs := []any{"seq", ev.Seq, "kind", ev.Kind.String()}
		if ev.Source != "" {
			attrs = append(attrs, "source", ev.Source)
		}
		if ev.From != "" || ev.To != "" {
			attrs = append(attrs, "from", ev.From, "to", ev.To)
		}
		if ev.Detail != "" {
			attrs = append(attrs, "detail", ev.Detail)
		}
		if ev.Err != nil {
			attrs = append(attrs, "error", ev.Err)
			slog.Warn("gl-player: event", attrs...)
			continue
		}
		slog.Info("gl-player: event", attrs...)
	}
}

func printStats(s glplayback.Stats, drawn uint64) {
	fmt.Printf("\n")
	fmt.Printf("╭─────────────────────────────────────────────────────────╮\n")
	fmt.Printf("│ Playback Statistics\n")
	fmt.Printf("├─────────────────────────────────────────────────────────┤\n")
	fmt.Printf("│ Session:            %s\n", s.SessionID)
	fmt.Printf("│ State:              %s\n", s.State)
	fmt.Printf("│ Uptime:             %s\n", s.Uptime.Round(time.Second))
	fmt.Printf("│ Frames Published:   %6d\n", s.FramesPublished)
	fmt.Printf("│ Frames Superseded:  %6d\n", s.FramesSuperseded)
	fmt.Printf("│ Frames Gated:       %6d\n", s.FramesGated)
	fmt.Printf("│ Frames Drawn:       %6d\n", drawn)
	fmt.Printf("│ Branches:           %v\n", s.Branches)
	fmt.Printf("│ Contexts Handled:   %6d (unhandled %d)\n", s.ContextsHandled, s.ContextsUnhandled)
	fmt.Printf("│ Link Failures:      %6d\n", s.LinkFailures)
	fmt.Printf("│ Warnings / Fatal:   %6d / %d\n", s.Warnings, s.FatalErrors)
	fmt.Printf("╰─────────────────────────────────────────────────────────╯\n")
}
