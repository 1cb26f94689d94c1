// Package web serves the tracker dashboard: a JSON API for status, tracks,
// tuning and camera settings, plus websocket streams of tracks, the camera
// overlay and logs.
package web

import (
	"context"
	"embed"
	"errors"
	"image"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/camera"
	"github.com/teslashibe/go-facetrack/pkg/hub"
	"github.com/teslashibe/go-facetrack/pkg/overlay"
	"github.com/teslashibe/go-facetrack/pkg/tracking"
)

//go:embed static
var staticFiles embed.FS

// maxLogs bounds the log backlog kept for /api/logs and new log clients.
const maxLogs = 500

// Tracker is the part of tracking.Tracker the dashboard drives.
type Tracker interface {
	Stats() tracking.Stats
	Tracks() []tracking.Track
	Objects() []tracking.TrackedObject
	Tuning() tracking.TuningParams
	SetTuning(tracking.TuningParams) error
	Reset()
}

var _ Tracker = (*tracking.Tracker)(nil)

// Options configures the dashboard.
type Options struct {
	Addr      string // listen address, e.g. ":8080"
	Source    string // shown in status
	SessionID string // track log session, if recording

	// Camera, if set, enables GET/POST /api/camera.
	Camera *camera.Manager

	StreamFPS int // overlay frames per second on /ws/camera
	Quality   int // overlay JPEG quality
}

// Server is the web dashboard server
type Server struct {
	app     *fiber.App
	opts    Options
	tracker Tracker
	logger  *slog.Logger
	started time.Time

	// Log buffer (last maxLogs entries)
	logs   []LogEntry
	logsMu sync.RWMutex

	// Hubs for websocket broadcast
	tracksHub *hub.Hub
	logHub    *hub.Hub
	cameraHub *hub.Hub

	streamer *overlay.Streamer
}

// NewServer creates the dashboard for tracker.
func NewServer(tracker Tracker, opts Options) *Server {
	if opts.StreamFPS <= 0 {
		opts.StreamFPS = 10
	}
	if opts.Quality <= 0 {
		opts.Quality = 70
	}

	s := &Server{
		opts:      opts,
		tracker:   tracker,
		logger:    log.Component("web"),
		started:   time.Now(),
		logs:      make([]LogEntry, 0, maxLogs),
		tracksHub: hub.New("tracks"),
		logHub:    hub.New("logs"),
		cameraHub: hub.New("camera"),
	}
	s.streamer = overlay.NewStreamer(overlay.DefaultStyle(), opts.StreamFPS, opts.Quality, s.cameraHub.BroadcastBinary)
	s.streamer.Active = func() bool { return s.cameraHub.ClientCount() > 0 }
	if opts.Camera != nil {
		s.streamer.SetQuality(opts.Camera.GetConfig().Quality)
	}

	app := fiber.New(fiber.Config{
		AppName:               "facetrack dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/tracks", s.handleTracks)
	api.Get("/tuning", s.handleGetTuning)
	api.Post("/tuning", s.handleSetTuning)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleSetCamera)
	api.Post("/reset", s.handleReset)
	api.Get("/logs", s.handleGetLogs)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/tracks", websocket.New(s.handleTracksWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))
	app.Get("/ws/logs", websocket.New(s.handleLogsWS))

	// Dashboard page
	static, _ := fs.Sub(staticFiles, "static")
	app.Use("/", filesystem.New(filesystem.Config{
		Root:  http.FS(static),
		Index: "index.html",
	}))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Run starts the hubs and the overlay renderer and serves on ln until ctx
// is cancelled.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, h := range []*hub.Hub{s.tracksHub, s.logHub, s.cameraHub} {
		go h.Run(ctx)
	}
	go s.streamer.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listener(ln) }()
	s.logger.Info("dashboard listening", "url", "http://"+ln.Addr().String())

	select {
	case <-ctx.Done():
		return s.app.ShutdownWithTimeout(5 * time.Second)
	case err := <-errCh:
		return err
	}
}

// ListenAndServe listens on Options.Addr and runs the server.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	err = s.Run(ctx, ln)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// HandleFrame publishes a processed frame to the track and camera streams.
// It implements tracking.Sink and never blocks.
func (s *Server) HandleFrame(frame *image.Gray, res tracking.FrameResult) {
	if res.Err != nil {
		return
	}
	if s.tracksHub.ClientCount() > 0 {
		if err := s.tracksHub.BroadcastJSON(res); err != nil {
			s.logger.Debug("encode frame result", "error", err)
		}
	}
	s.streamer.HandleFrame(frame, res)
}
