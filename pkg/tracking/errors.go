package tracking

import "errors"

var (
	// ErrStopTimeout is returned by Close when the background detector does
	// not exit within Config.StopTimeout. Frame buffers it holds are not
	// released; the host should treat this as fatal.
	ErrStopTimeout = errors.New("tracking: background detector did not stop in time")

	// ErrClosed is returned by operations on a closed tracker or scheduler.
	ErrClosed = errors.New("tracking: closed")

	// ErrEmptyFrame is reported for nil or zero-sized frames.
	ErrEmptyFrame = errors.New("tracking: empty frame")
)
