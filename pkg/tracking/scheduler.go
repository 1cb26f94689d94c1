package tracking

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/geom"
)

// RegionSource says where a search region came from.
type RegionSource int

const (
	RegionPredicted RegionSource = iota // Motion-predicted track position
	RegionFullFrame                     // Background full-frame detection
)

func (s RegionSource) String() string {
	switch s {
	case RegionFullFrame:
		return "full_frame"
	default:
		return "predicted"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s RegionSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Region is one search region of a frame.
type Region struct {
	Rect   geom.Rect    `json:"rect"`   // Proposed object position
	Window geom.Rect    `json:"window"` // Area handed to the local detector
	Source RegionSource `json:"source"`
}

// Step is the outcome of one pass of the per-frame protocol.
type Step struct {
	Submitted  bool        // Frame queued for full-frame detection
	FullFrame  bool        // Regions came from a full-frame result
	Regions    []Region    // Search regions used this frame
	Detections []geom.Rect // Local detections, in region order
}

type request struct {
	frame   *image.Gray
	minSize image.Point
}

// Scheduler runs the expensive full-frame detector on a background
// goroutine and the cheap local detector on the caller's goroutine.
//
// Submit, Poll and Step must be called from a single goroutine.
type Scheduler struct {
	cfg        Config
	full       RegionDetector
	perception *Perception
	logger     *slog.Logger

	requests chan request
	results  Mailbox[[]geom.Rect]
	busy     atomic.Bool
	frames   sync.Pool

	lastSubmit time.Time
	now        func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	closed  bool

	submitted atomic.Uint64
	skipped   atomic.Uint64
	consumed  atomic.Uint64
	failures  atomic.Uint64
}

// NewScheduler creates a scheduler. The scheduler owns full and closes it
// (if it implements io.Closer) when the worker exits.
func NewScheduler(cfg Config, full, local RegionDetector) *Scheduler {
	logger := log.Component("scheduler")
	return &Scheduler{
		cfg:        cfg.clone(),
		full:       full,
		perception: NewPerception(cfg, local, logger),
		logger:     logger,
		requests:   make(chan request, 1),
		now:        time.Now,
	}
}

// SetConfig updates search and submission parameters. It must be called
// from the frame loop goroutine.
func (s *Scheduler) SetConfig(cfg Config) {
	s.cfg = cfg.clone()
	s.perception.SetConfig(cfg)
}

// Start launches the background detection worker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.worker(ctx)
	return nil
}

// Submit queues a copy of frame for full-frame detection. It returns false
// without copying when a detection is already queued or running, when
// MinDetectionPeriod has not elapsed, or when the scheduler is not running.
func (s *Scheduler) Submit(frame *image.Gray) bool {
	if !s.running() || frame == nil {
		return false
	}
	if p := s.cfg.MinDetectionPeriod; p > 0 && !s.lastSubmit.IsZero() && s.now().Sub(s.lastSubmit) < p {
		return false
	}
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		return false
	}

	ratio := s.cfg.FullFrameMinSizeRatio
	m := int(math.RoundToEven(float64(frame.Bounds().Dy()) * ratio))
	req := request{frame: s.copyFrame(frame), minSize: image.Pt(m, m)}

	select {
	case s.requests <- req:
	default:
		// Unreachable while busy guards the channel.
		s.frames.Put(req.frame)
		s.busy.Store(false)
		return false
	}

	// The worker may have exited after running was checked; its drain
	// has then already run, so take the request back here.
	if s.exited() {
		s.drain()
		return false
	}
	s.lastSubmit = s.now()
	s.submitted.Add(1)
	return true
}

// Poll takes the latest full-frame result without blocking.
func (s *Scheduler) Poll() ([]geom.Rect, bool) {
	rects, ok := s.results.Take()
	if ok {
		s.consumed.Add(1)
	}
	return rects, ok
}

// Step runs the per-frame protocol: submit the frame if the worker is
// idle, take a pending full-frame result or fall back to the predicted
// positions, then run the local detector around each region.
func (s *Scheduler) Step(frame *image.Gray, fallback []geom.Rect) Step {
	st := Step{Submitted: s.Submit(frame)}

	regions, source := fallback, RegionPredicted
	if rects, ok := s.Poll(); ok {
		regions, source = rects, RegionFullFrame
		st.FullFrame = true
	}

	st.Regions = make([]Region, 0, len(regions))
	for _, r := range regions {
		window, found := s.perception.Search(frame, r)
		st.Regions = append(st.Regions, Region{Rect: r, Window: window, Source: source})
		st.Detections = append(st.Detections, found...)
	}
	return st
}

// Busy reports whether a full-frame detection is queued or running.
func (s *Scheduler) Busy() bool {
	return s.busy.Load()
}

// Close stops the worker and waits up to StopTimeout for it to exit.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	if !started {
		closeDetector(s.full, s.logger)
		return nil
	}

	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-time.After(s.cfg.StopTimeout):
		s.logger.Error("background detector did not stop", "timeout", s.cfg.StopTimeout)
		return ErrStopTimeout
	}
}

// running reports whether the worker accepts requests. A worker stopped
// by the context passed to Start no longer does.
func (s *Scheduler) running() bool {
	s.mu.Lock()
	ok := s.started && !s.closed
	s.mu.Unlock()
	return ok && !s.exited()
}

func (s *Scheduler) exited() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer close(s.done)
	defer closeDetector(s.full, s.logger)
	defer s.drain()

	s.logger.Debug("full-frame worker started")
	for {
		select {
		case <-ctx.Done():
			if s.running() {
				s.logger.Warn("full-frame worker stopped by context, detection disabled")
			} else {
				s.logger.Debug("full-frame worker stopped")
			}
			return
		case req := <-s.requests:
			s.detect(ctx, req)
		}
	}
}

// detect runs one full-frame detection and publishes the result. Errors
// and panics are logged and publish nothing.
func (s *Scheduler) detect(ctx context.Context, req request) {
	defer s.busy.Store(false)
	defer s.frames.Put(req.frame)
	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			s.logger.Error("full-frame detector panic", "panic", r)
		}
	}()

	start := time.Now()
	region := geom.FromImage(req.frame.Bounds())
	rects, err := s.full.Detect(req.frame, region, req.minSize, image.Point{})
	if err != nil {
		s.failures.Add(1)
		s.logger.Warn("full-frame detection failed", "error", err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	if s.results.Put(rects) {
		s.logger.Debug("unconsumed full-frame result replaced")
	}
	s.logger.Debug("full-frame detection", "objects", len(rects), "took", time.Since(start))
}

func (s *Scheduler) drain() {
	for {
		select {
		case req := <-s.requests:
			s.frames.Put(req.frame)
			s.busy.Store(false)
		default:
			return
		}
	}
}

// copyFrame copies frame into a pooled buffer with its origin at (0, 0).
func (s *Scheduler) copyFrame(frame *image.Gray) *image.Gray {
	b := frame.Bounds()
	dst, _ := s.frames.Get().(*image.Gray)
	if dst == nil || dst.Rect.Dx() != b.Dx() || dst.Rect.Dy() != b.Dy() {
		dst = image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	for y := 0; y < b.Dy(); y++ {
		src := frame.Pix[frame.PixOffset(b.Min.X, b.Min.Y+y):][:b.Dx()]
		copy(dst.Pix[y*dst.Stride:], src)
	}
	return dst
}

// SchedulerStats counts scheduler activity.
type SchedulerStats struct {
	Submitted      uint64 `json:"submitted"`
	Skipped        uint64 `json:"skipped"`
	Consumed       uint64 `json:"consumed"`
	Dropped        uint64 `json:"dropped"`
	DetectorErrors uint64 `json:"detector_errors"`
	LocalErrors    uint64 `json:"local_errors"`
	EmptyWindows   uint64 `json:"empty_windows"`
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Submitted:      s.submitted.Load(),
		Skipped:        s.skipped.Load(),
		Consumed:       s.consumed.Load(),
		Dropped:        s.results.Dropped(),
		DetectorErrors: s.failures.Load(),
		LocalErrors:    s.perception.Failures(),
		EmptyWindows:   s.perception.Skipped(),
	}
}

func closeDetector(d RegionDetector, logger *slog.Logger) {
	c, ok := d.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("closing detector", "error", fmt.Errorf("close full-frame detector: %w", err))
	}
}
