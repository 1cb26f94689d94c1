package tracking

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/geom"
)

// FrameSource supplies grayscale frames. It returns io.EOF when the stream
// has ended; other errors are treated as a missed frame.
type FrameSource interface {
	Frame(ctx context.Context) (*image.Gray, error)
}

// Sink consumes processed frames. HandleFrame is called on the frame loop
// and must not block.
type Sink interface {
	HandleFrame(frame *image.Gray, res FrameResult)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(frame *image.Gray, res FrameResult)

// HandleFrame calls f.
func (f SinkFunc) HandleFrame(frame *image.Gray, res FrameResult) { f(frame, res) }

// Sinks fans a frame out to several sinks in order.
type Sinks []Sink

// HandleFrame calls every sink.
func (s Sinks) HandleFrame(frame *image.Gray, res FrameResult) {
	for _, sink := range s {
		if sink != nil {
			sink.HandleFrame(frame, res)
		}
	}
}

// FrameResult describes one processed frame.
type FrameResult struct {
	Index      uint64      `json:"index"`
	Time       time.Time   `json:"time"`
	Submitted  bool        `json:"submitted"`
	Regions    []Region    `json:"regions"`
	Detections []geom.Rect `json:"detections"`
	Tracks     []Track     `json:"tracks"`
	Err        error       `json:"-"`
}

// Stats summarizes tracker activity.
type Stats struct {
	SchedulerStats
	Frames       uint64 `json:"frames"`
	FrameErrors  uint64 `json:"frame_errors"`
	SourceMisses uint64 `json:"source_misses"`
	LiveObjects  int    `json:"live_objects"`
	ShownTracks  int    `json:"shown_tracks"`
	NextID       int64  `json:"next_id"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithObserver registers a track lifecycle observer.
func WithObserver(o Observer) Option {
	return func(t *Tracker) { t.observer = o }
}

// WithIDAllocator sets the allocator used for track ids.
func WithIDAllocator(ids *IDAllocator) Option {
	return func(t *Tracker) { t.ids = ids }
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// Tracker combines background full-frame detection, local refinement and
// track association into a per-frame pipeline.
type Tracker struct {
	logger   *slog.Logger
	observer Observer
	ids      *IDAllocator

	sched   *Scheduler
	manager *Manager

	// mu serializes the frame loop against Reset and snapshot readers.
	mu  sync.Mutex
	cfg Config

	snapMu sync.RWMutex
	tracks []Track
	live   int

	tuning        Mailbox[TuningParams]
	intervalReset chan time.Duration

	frames       atomic.Uint64
	frameErrors  atomic.Uint64
	sourceMisses atomic.Uint64
	closed       atomic.Bool
}

// New creates a tracker. The tracker owns full and closes it on Close; local
// is used only from the frame loop and remains owned by the caller.
func New(cfg Config, full, local RegionDetector, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tracking config: %w", err)
	}
	if full == nil || local == nil {
		return nil, errors.New("tracking: full-frame and local detectors are required")
	}

	t := &Tracker{
		cfg:           cfg.clone(),
		intervalReset: make(chan time.Duration, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = log.Component("tracker")
	}

	t.sched = NewScheduler(cfg, full, local)
	t.manager = NewManager(cfg, t.ids)
	t.ids = t.manager.ids
	if t.observer != nil {
		t.manager.SetObserver(t.observer)
	}
	return t, nil
}

// Start launches the background full-frame detector.
func (t *Tracker) Start(ctx context.Context) error {
	if t.closed.Load() {
		return ErrClosed
	}
	return t.sched.Start(ctx)
}

// Process runs one frame through the pipeline. It never panics; a failed
// frame does not replace the published tracks and reports the error in
// the result.
func (t *Tracker) Process(frame *image.Gray) (res FrameResult) {
	res.Index = t.frames.Add(1)
	res.Time = time.Now()

	if t.closed.Load() {
		res.Err = ErrClosed
		return res
	}
	if frame == nil || frame.Bounds().Empty() {
		res.Err = ErrEmptyFrame
		t.frameErrors.Add(1)
		return res
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			t.frameErrors.Add(1)
			res.Err = fmt.Errorf("frame %d: panic: %v", res.Index, r)
			t.logger.Error("frame processing failed", "frame", res.Index, "panic", r)
		}
	}()

	t.applyTuning()

	step := t.sched.Step(frame, t.manager.SearchRegions())
	t.manager.Update(step.Detections)

	res.Submitted = step.Submitted
	res.Regions = step.Regions
	res.Detections = step.Detections
	res.Tracks = t.manager.ActiveTracks()

	t.snapMu.Lock()
	t.tracks = res.Tracks
	t.live = t.manager.Len()
	t.snapMu.Unlock()

	return res
}

// Run pulls frames from src at Config.FrameInterval, processes them and
// hands the results to sink. It returns nil when src reports io.EOF or ctx
// is cancelled.
func (t *Tracker) Run(ctx context.Context, src FrameSource, sink Sink) error {
	interval := t.Config().FrameInterval
	ticker := newFrameTicker(interval)
	defer ticker.Stop()

	t.logger.Info("frame loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("frame loop stopped", "frames", t.frames.Load())
			return nil

		case d := <-t.intervalReset:
			ticker.Reset(d)
			t.logger.Info("frame interval updated", "interval", d)

		case <-ticker.C():
			frame, err := src.Frame(ctx)
			if errors.Is(err, io.EOF) {
				t.logger.Info("frame source ended", "frames", t.frames.Load())
				return nil
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if t.sourceMisses.Add(1)%30 == 1 {
					t.logger.Warn("frame source error", "error", err)
				}
				continue
			}

			res := t.Process(frame)
			if errors.Is(res.Err, ErrClosed) {
				return ErrClosed
			}
			if sink != nil {
				sink.HandleFrame(frame, res)
			}
		}
	}
}

// Tracks returns the shown tracks of the most recent frame.
func (t *Tracker) Tracks() []Track {
	t.snapMu.RLock()
	defer t.snapMu.RUnlock()
	return append([]Track(nil), t.tracks...)
}

// Objects returns copies of every live tracked object.
func (t *Tracker) Objects() []TrackedObject {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manager.Objects()
}

// Reset drops every track. Ids keep increasing.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.manager.Reset()
	t.mu.Unlock()

	t.snapMu.Lock()
	t.tracks = nil
	t.live = 0
	t.snapMu.Unlock()

	t.logger.Info("tracks reset")
}

// SetTuning queues new tuning parameters. They are validated and applied
// at the start of the next frame; a pending update is replaced.
func (t *Tracker) SetTuning(p TuningParams) error {
	if _, err := p.Apply(t.Config()); err != nil {
		return err
	}
	t.tuning.Put(p)
	return nil
}

// Tuning returns the tunable subset of the current configuration.
func (t *Tracker) Tuning() TuningParams {
	return TuningFromConfig(t.Config())
}

// Config returns a copy of the current configuration.
func (t *Tracker) Config() Config {
	t.snapMu.RLock()
	defer t.snapMu.RUnlock()
	return t.cfg.clone()
}

// applyTuning applies a pending tuning update. Called with mu held.
func (t *Tracker) applyTuning() {
	p, ok := t.tuning.Take()
	if !ok {
		return
	}

	cur := t.Config()
	cfg, err := p.Apply(cur)
	if err != nil {
		t.logger.Warn("tuning rejected", "error", err)
		return
	}

	t.manager.SetConfig(cfg)
	t.sched.SetConfig(cfg)

	t.snapMu.Lock()
	t.cfg = cfg
	t.snapMu.Unlock()

	if cfg.FrameInterval != cur.FrameInterval && cfg.FrameInterval > 0 {
		// Non-blocking: a pending reset is superseded on the next update.
		select {
		case t.intervalReset <- cfg.FrameInterval:
		default:
		}
	}
	t.logger.Info("tuning applied",
		"warmup", cfg.WarmupFrames, "lifetime", cfg.MaxTrackLifetime,
		"window", cfg.SearchWindowScale, "damping", cfg.MotionDamping)
}

// Stats returns a snapshot of tracker counters.
func (t *Tracker) Stats() Stats {
	t.snapMu.RLock()
	shown, live := len(t.tracks), t.live
	t.snapMu.RUnlock()

	return Stats{
		SchedulerStats: t.sched.Stats(),
		Frames:         t.frames.Load(),
		FrameErrors:    t.frameErrors.Load(),
		SourceMisses:   t.sourceMisses.Load(),
		LiveObjects:    live,
		ShownTracks:    shown,
		NextID:         t.ids.Peek(),
	}
}

// Close stops the background detector. It returns ErrStopTimeout when the
// worker does not exit within Config.StopTimeout.
func (t *Tracker) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sched.Close()
}

// frameTicker is a time.Ticker that fires continuously for a zero interval.
type frameTicker struct {
	ticker *time.Ticker
	always chan time.Time
}

func newFrameTicker(d time.Duration) *frameTicker {
	ft := &frameTicker{}
	ft.Reset(d)
	return ft
}

func (ft *frameTicker) C() <-chan time.Time {
	if ft.ticker != nil {
		return ft.ticker.C
	}
	select {
	case ft.always <- time.Now():
	default:
	}
	return ft.always
}

func (ft *frameTicker) Reset(d time.Duration) {
	if d <= 0 {
		ft.Stop()
		ft.always = make(chan time.Time, 1)
		return
	}
	if ft.ticker != nil {
		ft.ticker.Reset(d)
		return
	}
	ft.ticker = time.NewTicker(d)
}

func (ft *frameTicker) Stop() {
	if ft.ticker != nil {
		ft.ticker.Stop()
		ft.ticker = nil
	}
}
