package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-facetrack/pkg/geom"
	"github.com/teslashibe/go-facetrack/pkg/tracking"
)

func newObject(id int64, r geom.Rect) tracking.TrackedObject {
	return tracking.TrackedObject{ID: id, LastPositions: []geom.Rect{r}, NumDetectedFrames: 1}
}

func TestRecorder_WritesOnClose(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess, err := s.StartSession(ctx, "test", tracking.DefaultConfig())
	require.NoError(t, err)

	rec := NewRecorder(s, sess.ID, 64)
	rec.FlushInterval = time.Hour
	rec.Start(ctx)

	obj := newObject(1, geom.R(10, 10, 40, 40))
	rec.TrackCreated(obj, 1)
	for f := uint64(2); f <= 5; f++ {
		rec.HandleFrame(nil, tracking.FrameResult{
			Index:  f,
			Time:   time.Now(),
			Tracks: []tracking.Track{{ID: 1, Rect: geom.R(10, 10, 40, 40)}},
		})
	}
	rec.HandleFrame(nil, tracking.FrameResult{Index: 6}) // nothing shown
	rec.TrackEvicted(obj, 9, tracking.EvictLifetime)

	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close(), "second Close")

	written, dropped, failed := rec.Stats()
	assert.Equal(t, uint64(6), written)
	assert.Zero(t, dropped)
	assert.Zero(t, failed)

	sums, err := s.TrackSummaries(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 4, sums[0].Shown)
	assert.Equal(t, uint64(9), sums[0].EvictedAt)
	assert.Equal(t, tracking.EvictLifetime, sums[0].EvictReason)

	rec.TrackCreated(obj, 10)
	_, dropped, _ = rec.Stats()
	assert.Equal(t, uint64(1), dropped, "record after Close")
}

func TestRecorder_FlushesPeriodically(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess, err := s.StartSession(ctx, "test", tracking.DefaultConfig())
	require.NoError(t, err)

	rec := NewRecorder(s, sess.ID, 16)
	rec.FlushInterval = 5 * time.Millisecond
	rec.Start(ctx)
	t.Cleanup(func() { _ = rec.Close() })

	rec.TrackCreated(newObject(3, geom.R(0, 0, 8, 8)), 1)

	require.Eventually(t, func() bool {
		written, _, _ := rec.Stats()
		return written == 1
	}, 2*time.Second, time.Millisecond)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	s := openTestStore(t)
	rec := NewRecorder(s, "unused", 2) // not started: nothing drains

	for i := 0; i < 5; i++ {
		rec.TrackCreated(newObject(int64(i), geom.R(0, 0, 8, 8)), 1)
	}
	_, dropped, _ := rec.Stats()
	assert.Equal(t, uint64(3), dropped)
	require.NoError(t, rec.Close())
}
