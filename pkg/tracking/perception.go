package tracking

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/teslashibe/go-facetrack/pkg/geom"
)

// RegionDetector finds objects inside a region of a grayscale frame.
// Returned rectangles are in frame coordinates. A region that does not
// overlap the frame yields no rectangles and no error. A zero maxSize means
// unbounded.
type RegionDetector interface {
	Detect(frame *image.Gray, region geom.Rect, minSize, maxSize image.Point) ([]geom.Rect, error)
}

// RegionDetectorFunc adapts a function to RegionDetector.
type RegionDetectorFunc func(frame *image.Gray, region geom.Rect, minSize, maxSize image.Point) ([]geom.Rect, error)

// Detect calls f.
func (f RegionDetectorFunc) Detect(frame *image.Gray, region geom.Rect, minSize, maxSize image.Point) ([]geom.Rect, error) {
	return f(frame, region, minSize, maxSize)
}

// Perception runs the cheap local detector around known or proposed
// object positions on the frame loop.
type Perception struct {
	detector RegionDetector
	logger   *slog.Logger

	windowScale  float64
	minSizeScale float64

	failures atomic.Uint64
	skipped  atomic.Uint64
}

// NewPerception creates local search over detector.
func NewPerception(cfg Config, detector RegionDetector, logger *slog.Logger) *Perception {
	p := &Perception{detector: detector, logger: logger}
	p.SetConfig(cfg)
	return p
}

// SetConfig updates the window and minimum size coefficients.
func (p *Perception) SetConfig(cfg Config) {
	p.windowScale = cfg.SearchWindowScale
	p.minSizeScale = cfg.LocalMinSizeScale
}

// Window returns the search window for an object at r, clipped to a frame
// of the given size.
func (p *Perception) Window(r geom.Rect, frame image.Point) geom.Rect {
	return r.Scale(p.windowScale).Clip(frame)
}

// MinSize returns the smallest object the local detector looks for around r.
func (p *Perception) MinSize(r geom.Rect) image.Point {
	s := int(math.RoundToEven(float64(min(r.W, r.H)) * p.minSizeScale))
	return image.Pt(s, s)
}

// Search runs the local detector around r and returns the window it
// searched together with the detections. Errors and panics from the
// detector count as no detections.
func (p *Perception) Search(frame *image.Gray, r geom.Rect) (geom.Rect, []geom.Rect) {
	size := frame.Bounds().Size()
	window := p.Window(r, size)
	if window.Empty() {
		p.skipped.Add(1)
		p.logger.Debug("search window outside frame", "rect", r, "frame", size)
		return window, nil
	}

	found, err := p.detect(frame, window, p.MinSize(r), window.Size())
	if err != nil {
		p.failures.Add(1)
		p.logger.Warn("local detection failed", "window", window, "error", err)
		return window, nil
	}
	return window, found
}

func (p *Perception) detect(frame *image.Gray, window geom.Rect, minSize, maxSize image.Point) (found []geom.Rect, err error) {
	defer func() {
		if r := recover(); r != nil {
			found, err = nil, fmt.Errorf("detector panic: %v", r)
		}
	}()
	return p.detector.Detect(frame, window, minSize, maxSize)
}

// Failures returns how many local detections failed.
func (p *Perception) Failures() uint64 {
	return p.failures.Load()
}

// Skipped returns how many search windows fell outside the frame.
func (p *Perception) Skipped() uint64 {
	return p.skipped.Load()
}
