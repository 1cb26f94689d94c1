package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-facetrack/pkg/camera"
	"github.com/teslashibe/go-facetrack/pkg/hub"
	"github.com/teslashibe/go-facetrack/pkg/tracking"
)

// Status is the body of GET /api/status.
type Status struct {
	Source    string         `json:"source"`
	SessionID string         `json:"session_id,omitempty"`
	Uptime    float64        `json:"uptime_s"`
	Stats     tracking.Stats `json:"stats"`
	Clients   map[string]int `json:"clients"`
}

// handleStatus returns tracker counters and dashboard clients
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(Status{
		Source:    s.opts.Source,
		SessionID: s.opts.SessionID,
		Uptime:    time.Since(s.started).Seconds(),
		Stats:     s.tracker.Stats(),
		Clients: map[string]int{
			"tracks": s.tracksHub.ClientCount(),
			"camera": s.cameraHub.ClientCount(),
			"logs":   s.logHub.ClientCount(),
		},
	})
}

// handleTracks returns shown tracks and, with ?objects=1, every live object
func (s *Server) handleTracks(c *fiber.Ctx) error {
	body := fiber.Map{"tracks": nonNil(s.tracker.Tracks())}
	if c.QueryBool("objects") {
		body["objects"] = nonNil(s.tracker.Objects())
	}
	return c.JSON(body)
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func (s *Server) handleGetTuning(c *fiber.Ctx) error {
	return c.JSON(s.tracker.Tuning())
}

// handleSetTuning queues new tuning for the next frame
func (s *Server) handleSetTuning(c *fiber.Ctx) error {
	var p tracking.TuningParams
	if err := c.BodyParser(&p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid tuning body: " + err.Error(),
		})
	}
	if err := s.tracker.SetTuning(p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.logger.Info("tuning queued", "remote", c.IP())
	return c.JSON(fiber.Map{
		"status": "queued",
		"tuning": p,
	})
}

func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.opts.Camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "camera settings not available for this source",
		})
	}
	return c.JSON(fiber.Map{
		"config":       s.opts.Camera.GetConfigJSON(),
		"capabilities": camera.Capabilities(),
	})
}

// handleSetCamera applies a partial camera update or a preset
func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	if s.opts.Camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "camera settings not available for this source",
		})
	}

	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid camera body: " + err.Error(),
		})
	}
	if err := s.opts.Camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.streamer.SetQuality(s.opts.Camera.GetConfig().Quality)
	s.logger.Info("camera config updated", "params", len(params))
	return c.JSON(fiber.Map{
		"status": "applied",
		"config": s.opts.Camera.GetConfigJSON(),
	})
}

func (s *Server) handleReset(c *fiber.Ctx) error {
	s.tracker.Reset()
	return c.JSON(fiber.Map{"status": "reset"})
}

// handleGetLogs returns recent log entries, optionally from ?level= up
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	min := parseLevel(c.Query("level"))

	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	out := make([]LogEntry, 0, len(s.logs))
	for _, e := range s.logs {
		if parseLevel(e.Level) >= min {
			out = append(out, e)
		}
	}
	return c.JSON(out)
}

// handleTracksWS streams a FrameResult per processed frame
func (s *Server) handleTracksWS(c *websocket.Conn) {
	s.serve(s.tracksHub, c, nil)
}

// handleCameraWS streams JPEG overlay frames
func (s *Server) handleCameraWS(c *websocket.Conn) {
	s.serve(s.cameraHub, c, nil)
}

// handleLogsWS streams log entries, starting with the backlog
func (s *Server) handleLogsWS(c *websocket.Conn) {
	s.serve(s.logHub, c, func(client *hub.Client) {
		s.logsMu.RLock()
		defer s.logsMu.RUnlock()
		// The client queue is short; send the newest entries.
		start := max(0, len(s.logs)-32)
		for _, e := range s.logs[start:] {
			if msg, err := hub.JSON(e); err == nil {
				client.Send(msg)
			}
		}
	})
}

func (s *Server) serve(h *hub.Hub, c *websocket.Conn, onConnect func(*hub.Client)) {
	client := hub.NewClient(h, c)
	if client == nil {
		_ = c.Close()
		return
	}
	if onConnect != nil {
		onConnect(client)
	}
	client.Run()
}
