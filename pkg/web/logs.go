package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/teslashibe/go-facetrack/internal/log"
)

// LogEntry represents a log line for the dashboard
type LogEntry struct {
	Time      string         `json:"time"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

func parseLevel(s string) slog.Level {
	if s == "" {
		return slog.LevelDebug
	}
	return log.ParseLevel(s)
}

// AddLog adds a log entry and broadcasts to clients
func (s *Server) AddLog(entry LogEntry) {
	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[len(s.logs)-maxLogs:]
	}
	s.logsMu.Unlock()

	if s.logHub.ClientCount() > 0 {
		_ = s.logHub.BroadcastJSON(entry)
	}
}

// LogHandler wraps next so every record at or above min is also added to
// the dashboard log. Use it with log.Wrap.
func (s *Server) LogHandler(next slog.Handler, min slog.Level) slog.Handler {
	return &logHandler{next: next, server: s, min: min}
}

type logHandler struct {
	next      slog.Handler
	server    *Server
	min       slog.Level
	component string
	attrs     []slog.Attr
}

func (h *logHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min || h.next.Enabled(ctx, level)
}

func (h *logHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.min {
		entry := LogEntry{
			Time:      r.Time.Format(time.TimeOnly),
			Level:     r.Level.String(),
			Component: h.component,
			Message:   r.Message,
		}
		add := func(a slog.Attr) bool {
			if a.Key == "component" {
				entry.Component = a.Value.String()
				return true
			}
			if entry.Attrs == nil {
				entry.Attrs = make(map[string]any)
			}
			entry.Attrs[a.Key] = a.Value.Resolve().Any()
			return true
		}
		for _, a := range h.attrs {
			add(a)
		}
		r.Attrs(add)
		for k, v := range entry.Attrs {
			if err, ok := v.(error); ok {
				entry.Attrs[k] = err.Error()
			}
		}
		h.server.AddLog(entry)
	}
	if h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.next = h.next.WithAttrs(attrs)
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	for _, a := range attrs {
		if a.Key == "component" {
			c.component = a.Value.String()
		}
	}
	return &c
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.next = h.next.WithGroup(name)
	return &c
}
