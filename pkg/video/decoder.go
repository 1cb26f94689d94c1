package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/tracking"
)

// Decoder feeds H264 access units into a persistent ffmpeg process and
// reads back fixed-size grayscale frames. Only the latest frame is kept.
type Decoder struct {
	width, height int
	logger        *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer

	frames tracking.Mailbox[*image.Gray]
	ready  chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	closed  bool
	decoded atomic.Uint64
	blank   atomic.Uint64
	readErr error
}

// NewDecoder starts ffmpeg scaling its output to width x height.
func NewDecoder(ctx context.Context, width, height int) (*Decoder, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("decoder size must be positive, got %dx%d", width, height)
	}
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	d := &Decoder{
		width:  width,
		height: height,
		logger: log.Component("decoder"),
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	d.cmd = exec.CommandContext(ctx, path,
		"-loglevel", "error",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-f", "h264", // Input format
		"-i", "pipe:0", // Read from stdin
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", "rawvideo", // Raw planes, no container
		"-pix_fmt", "gray",
		"pipe:1",
	)
	d.cmd.Stderr = &d.stderr

	if d.stdin, err = d.cmd.StdinPipe(); err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := d.cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go d.readFrames(stdout)
	return d, nil
}

// Write sends one access unit to the decoder.
func (d *Decoder) Write(au []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return io.ErrClosedPipe
	}
	if _, err := d.stdin.Write(au); err != nil {
		return fmt.Errorf("write to ffmpeg: %w", err)
	}
	return nil
}

func (d *Decoder) readFrames(r io.Reader) {
	defer close(d.done)
	size := d.width * d.height
	for {
		img := image.NewGray(image.Rect(0, 0, d.width, d.height))
		if _, err := io.ReadFull(r, img.Pix[:size]); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				d.mu.Lock()
				d.readErr = err
				d.mu.Unlock()
			}
			return
		}
		if isBlankFrame(img) {
			d.blank.Add(1)
			continue
		}
		d.decoded.Add(1)
		d.frames.Put(img)
		select {
		case d.ready <- struct{}{}:
		default:
		}
	}
}

// Latest returns a frame decoded since the previous call, if any.
func (d *Decoder) Latest() (*image.Gray, bool) {
	return d.frames.Take()
}

// Ready is signalled when a new frame is available.
func (d *Decoder) Ready() <-chan struct{} { return d.ready }

// Done is closed when ffmpeg's output ends.
func (d *Decoder) Done() <-chan struct{} { return d.done }

// Decoded returns the number of frames published and skipped as blank.
func (d *Decoder) Decoded() (frames, blank uint64) {
	return d.decoded.Load(), d.blank.Load()
}

// Close stops ffmpeg and waits for it to exit.
func (d *Decoder) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	_ = d.stdin.Close()
	d.mu.Unlock()

	<-d.done
	err := d.cmd.Wait()

	d.mu.Lock()
	readErr := d.readErr
	d.mu.Unlock()
	if readErr != nil {
		return fmt.Errorf("read frames: %w", readErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// ffmpeg exits non-zero when the stream was cut mid-frame.
		d.logger.Debug("ffmpeg exited", "code", exitErr.ExitCode(), "stderr", d.stderr.String())
		return nil
	}
	return err
}

// isBlankFrame reports frames that carry no picture: the black frames
// before the first keyframe and the uniform gray of missing references.
func isBlankFrame(img *image.Gray) bool {
	b := img.Bounds()
	if b.Dx() < 10 || b.Dy() < 10 {
		return true
	}

	// Sample a 10x10 grid
	var sum, sumSq, samples int
	for y := b.Min.Y; y < b.Max.Y; y += b.Dy() / 10 {
		for x := b.Min.X; x < b.Max.X; x += b.Dx() / 10 {
			v := int(img.GrayAt(x, y).Y)
			sum += v
			sumSq += v * v
			samples++
		}
	}

	mean := sum / samples
	variance := sumSq/samples - mean*mean

	if mean < 30 && variance < 100 {
		return true
	}
	// Uniform mid gray
	return variance < 15 && mean > 100 && mean < 150
}
