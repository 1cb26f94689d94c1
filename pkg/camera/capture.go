package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facetrack/internal/log"
)

// ErrNoFrame is returned when the device delivered no image this time.
var ErrNoFrame = errors.New("camera: no frame available")

// Capture reads frames from an OpenCV capture device, file or stream URL
// and converts them to preprocessed grayscale images.
type Capture struct {
	logger *slog.Logger

	mu    sync.Mutex
	cap   *gocv.VideoCapture
	cfg   Config
	file  bool
	raw   gocv.Mat
	gray  gocv.Mat
	work  gocv.Mat
	last  gocv.Mat // most recent color frame, for the dashboard
	reads uint64
}

// Open opens the capture source named by cfg.Source.
func Open(cfg Config) (*Capture, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera config: %v", errs)
	}

	var (
		vc  *gocv.VideoCapture
		err error
	)
	dev, isDevice := cfg.Device()
	if isDevice {
		vc, err = gocv.OpenVideoCapture(dev)
	} else {
		vc, err = gocv.OpenVideoCapture(cfg.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("open capture %q: %w", cfg.Source, err)
	}
	if !vc.IsOpened() {
		_ = vc.Close()
		return nil, fmt.Errorf("open capture %q: device not opened", cfg.Source)
	}

	c := &Capture{
		logger: log.Component("camera"),
		cap:    vc,
		file:   !isDevice,
		raw:    gocv.NewMat(),
		gray:   gocv.NewMat(),
		work:   gocv.NewMat(),
		last:   gocv.NewMat(),
	}
	c.apply(cfg)
	c.logger.Info("capture opened", "source", cfg.Source, "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return c, nil
}

// Apply updates the capture properties and preprocessing. It is used as a
// Manager.OnConfigChange callback. The source itself cannot change.
func (c *Capture) Apply(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return io.ErrClosedPipe
	}
	if cfg.Source != c.cfg.Source {
		return fmt.Errorf("camera source cannot change at runtime (%q -> %q)", c.cfg.Source, cfg.Source)
	}
	c.apply(cfg)
	return nil
}

// apply is called with mu held.
func (c *Capture) apply(cfg Config) {
	c.cfg = cfg
	if c.file {
		return
	}
	c.cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	c.cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	c.cap.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	if cfg.Brightness > 0 {
		c.cap.Set(gocv.VideoCaptureBrightness, cfg.Brightness)
	}
	if cfg.Contrast > 0 {
		c.cap.Set(gocv.VideoCaptureContrast, cfg.Contrast)
	}
	if cfg.Gain > 0 {
		c.cap.Set(gocv.VideoCaptureGain, cfg.Gain)
	}
	if cfg.Exposure != 0 {
		c.cap.Set(gocv.VideoCaptureExposure, cfg.Exposure)
	}
}

// Frame reads the next frame. It returns io.EOF at the end of a file and
// ErrNoFrame when a device delivers nothing.
func (c *Capture) Frame(ctx context.Context) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return nil, io.ErrClosedPipe
	}

	if ok := c.cap.Read(&c.raw); !ok || c.raw.Empty() {
		if c.file {
			return nil, io.EOF
		}
		return nil, ErrNoFrame
	}
	c.reads++

	src := c.raw
	if c.cfg.ProcessWidth > 0 && src.Cols() > c.cfg.ProcessWidth {
		h := src.Rows() * c.cfg.ProcessWidth / src.Cols()
		gocv.Resize(src, &c.work, image.Pt(c.cfg.ProcessWidth, h), 0, 0, gocv.InterpolationArea)
		src = c.work
	}
	if c.cfg.Mirror {
		gocv.Flip(src, &c.last, 1)
	} else {
		src.CopyTo(&c.last)
	}

	if c.last.Channels() == 1 {
		c.last.CopyTo(&c.gray)
	} else {
		gocv.CvtColor(c.last, &c.gray, gocv.ColorBGRToGray)
	}
	if c.cfg.Equalize {
		gocv.EqualizeHist(c.gray, &c.gray)
	}
	return MatToGray(c.gray)
}

// Snapshot encodes the most recent color frame as JPEG at the configured
// quality.
func (c *Capture) Snapshot() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last.Empty() {
		return nil, ErrNoFrame
	}
	return EncodeJPEG(c.last, c.cfg.Quality)
}

// Close releases the device and buffers.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.cap = nil
	for _, m := range []*gocv.Mat{&c.raw, &c.gray, &c.work, &c.last} {
		_ = m.Close()
	}
	c.logger.Info("capture closed", "frames", c.reads)
	return err
}

// MatToGray copies a single-channel 8-bit Mat into a new image.Gray.
func MatToGray(m gocv.Mat) (*image.Gray, error) {
	if m.Empty() {
		return nil, ErrNoFrame
	}
	if m.Type() != gocv.MatTypeCV8UC1 {
		return nil, fmt.Errorf("camera: expected 8-bit gray mat, got type %v", m.Type())
	}
	img, err := m.ToImage()
	if err != nil {
		return nil, fmt.Errorf("mat to image: %w", err)
	}
	gray, ok := img.(*image.Gray)
	if !ok {
		return nil, fmt.Errorf("camera: unexpected image type %T", img)
	}
	return gray, nil
}

// EncodeJPEG encodes a Mat as JPEG.
func EncodeJPEG(m gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, m, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
