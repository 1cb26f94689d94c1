package overlay

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facetrack/pkg/geom"
	"github.com/teslashibe/go-facetrack/pkg/tracking"
)

func sampleResult() tracking.FrameResult {
	return tracking.FrameResult{
		Index: 1,
		Regions: []tracking.Region{
			{Rect: geom.R(10, 10, 40, 40), Source: tracking.RegionFullFrame},
			{Rect: geom.R(100, 20, 40, 40), Source: tracking.RegionPredicted},
		},
		Tracks: []tracking.Track{{ID: 3, Rect: geom.R(60, 60, 50, 50)}},
	}
}

func TestStyle_Draw(t *testing.T) {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 160, 200, gocv.MatTypeCV8UC3)
	defer img.Close()

	style := DefaultStyle()
	style.Labels = false
	style.Draw(&img, sampleResult())

	bgr := func(x, y int) []uint8 {
		v := img.GetVecbAt(y, x)
		return []uint8{v[0], v[1], v[2]}
	}
	assert.Equal(t, []uint8{255, 0, 0}, bgr(10, 10), "full-frame region blue")
	assert.Equal(t, []uint8{0, 255, 0}, bgr(100, 20), "predicted region green")
	assert.Equal(t, []uint8{0, 0, 255}, bgr(60, 60), "track red")
	assert.Equal(t, []uint8{0, 0, 0}, bgr(180, 150), "background untouched")
}

func TestStyle_Render(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 200, 160))
	data, err := DefaultStyle().Render(frame, sampleResult(), 80)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 160), img.Bounds())
}

func TestStreamer_RateLimitsAndPublishes(t *testing.T) {
	var (
		mu  sync.Mutex
		got [][]byte
	)
	s := NewStreamer(DefaultStyle(), 1, 70, func(b []byte) {
		mu.Lock()
		got = append(got, b)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	frame := image.NewGray(image.Rect(0, 0, 64, 48))
	for i := 0; i < 10; i++ {
		s.HandleFrame(frame, tracking.FrameResult{Index: uint64(i)})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Len(t, got, 1, "rate limit of one frame per second")
	mu.Unlock()

	rendered, _, failures := s.Stats()
	assert.Equal(t, uint64(1), rendered)
	assert.Zero(t, failures)
}

func TestStreamer_Inactive(t *testing.T) {
	s := NewStreamer(DefaultStyle(), 30, 70, nil)
	s.Active = func() bool { return false }

	s.HandleFrame(image.NewGray(image.Rect(0, 0, 8, 8)), tracking.FrameResult{})
	assert.False(t, s.pending.Pending())

	s.Active = nil
	s.HandleFrame(nil, tracking.FrameResult{})
	assert.False(t, s.pending.Pending(), "nil frame ignored")
}
