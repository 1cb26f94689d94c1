// Package overlay draws tracker output onto frames and streams the result
// as JPEG.
package overlay

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/geom"
	"github.com/teslashibe/go-facetrack/pkg/tracking"
)

// Style holds the overlay colours.
type Style struct {
	FullFrame color.RGBA // full-frame detector results
	Predicted color.RGBA // predicted positions searched this frame
	Track     color.RGBA // shown tracks
	Thickness int
	Labels    bool // draw track ids
}

// DefaultStyle draws full-frame results blue, predicted regions green and
// tracks red.
func DefaultStyle() Style {
	return Style{
		FullFrame: color.RGBA{0, 0, 255, 255},
		Predicted: color.RGBA{0, 255, 0, 255},
		Track:     color.RGBA{255, 0, 0, 255},
		Thickness: 2,
		Labels:    true,
	}
}

// Draw paints res onto a 3-channel image.
func (s Style) Draw(img *gocv.Mat, res tracking.FrameResult) {
	for _, r := range res.Regions {
		c := s.Predicted
		if r.Source == tracking.RegionFullFrame {
			c = s.FullFrame
		}
		if r.Rect.Empty() {
			continue
		}
		gocv.Rectangle(img, toImage(r.Rect), c, s.Thickness)
	}

	for _, tr := range res.Tracks {
		gocv.Rectangle(img, toImage(tr.Rect), s.Track, s.Thickness)
		if !s.Labels {
			continue
		}
		pt := image.Pt(tr.Rect.X, max(tr.Rect.Y-6, 12))
		gocv.PutText(img, strconv.FormatInt(tr.ID, 10), pt, gocv.FontHersheySimplex, 0.5, s.Track, 1)
	}
}

func toImage(r geom.Rect) image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Render draws res onto a colour copy of frame and encodes it as JPEG.
func (s Style) Render(frame *image.Gray, res tracking.FrameResult, quality int) ([]byte, error) {
	gray, err := gocv.ImageGrayToMatGray(frame)
	if err != nil {
		return nil, fmt.Errorf("frame to mat: %w", err)
	}
	defer gray.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)

	s.Draw(&bgr, res)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, bgr, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

type job struct {
	frame *image.Gray
	res   tracking.FrameResult
}

// Streamer renders frames off the frame loop at a bounded rate and hands
// the JPEGs to Publish. It implements tracking.Sink.
type Streamer struct {
	Style   Style
	Publish func(jpeg []byte)

	// Active, if set, gates rendering, e.g. on connected viewers.
	Active func() bool

	logger   *slog.Logger
	interval time.Duration
	quality  atomic.Int64

	pending tracking.Mailbox[job]
	wake    chan struct{}

	mu       sync.Mutex
	lastSent time.Time

	rendered atomic.Uint64
	failures atomic.Uint64
}

// NewStreamer renders at most fps frames per second.
func NewStreamer(style Style, fps, quality int, publish func([]byte)) *Streamer {
	s := &Streamer{
		Style:    style,
		Publish:  publish,
		logger:   log.Component("overlay"),
		interval: time.Second / time.Duration(max(fps, 1)),
		wake:     make(chan struct{}, 1),
	}
	s.quality.Store(int64(quality))
	return s
}

// SetQuality changes the JPEG quality.
func (s *Streamer) SetQuality(q int) { s.quality.Store(int64(q)) }

// HandleFrame queues the frame for rendering. It never blocks.
func (s *Streamer) HandleFrame(frame *image.Gray, res tracking.FrameResult) {
	if res.Err != nil || frame == nil {
		return
	}
	if s.Active != nil && !s.Active() {
		return
	}

	s.mu.Lock()
	due := time.Since(s.lastSent) >= s.interval
	if due {
		s.lastSent = time.Now()
	}
	s.mu.Unlock()
	if !due {
		return
	}

	s.pending.Put(job{frame: frame, res: res})
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run renders queued frames until ctx is done.
func (s *Streamer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			j, ok := s.pending.Take()
			if !ok {
				continue
			}
			data, err := s.Style.Render(j.frame, j.res, int(s.quality.Load()))
			if err != nil {
				if s.failures.Add(1)%50 == 1 {
					s.logger.Warn("overlay render failed", "error", err)
				}
				continue
			}
			s.rendered.Add(1)
			if s.Publish != nil {
				s.Publish(data)
			}
		}
	}
}

// Stats returns rendered frames, frames replaced before rendering and
// render failures.
func (s *Streamer) Stats() (rendered, skipped, failures uint64) {
	return s.rendered.Load(), s.pending.Dropped(), s.failures.Load()
}
