package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-facetrack/pkg/geom"
	"github.com/teslashibe/go-facetrack/pkg/tracking"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "tracks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_MigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracks.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening finds the schema at the latest version.
	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.StartSession(ctx, "camera:0", tracking.DefaultConfig())
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.StartSession(ctx, "clip.mp4", tracking.StableConfig())
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	require.NoError(t, s.EndSession(ctx, first.ID, 120))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.ID, sessions[0].ID, "newest first")
	assert.Nil(t, sessions[0].EndedAt)

	got, err := s.Session(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "camera:0", got.Source)
	assert.Equal(t, uint64(120), got.Frames)
	require.NotNil(t, got.EndedAt)

	var cfg tracking.Config
	require.NoError(t, json.Unmarshal(got.Config, &cfg))
	assert.Equal(t, tracking.DefaultConfig().WarmupFrames, cfg.WarmupFrames)
}

func TestSession_Unknown(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Session(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNoSession), "Session() = %v", err)

	_, err = s.TrackSummaries(ctx, "missing")
	assert.ErrorIs(t, err, ErrNoSession)

	assert.ErrorIs(t, s.EndSession(ctx, "missing", 1), ErrNoSession)
}

func TestTrackSummaries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sess, err := s.StartSession(ctx, "test", tracking.DefaultConfig())
	require.NoError(t, err)

	now := time.Now()
	events := []Event{
		{TrackID: 1, Kind: KindCreated, Frame: 1, Rect: geom.R(0, 0, 10, 10), Detected: 1, Time: now},
		{TrackID: 2, Kind: KindCreated, Frame: 3, Rect: geom.R(50, 0, 20, 20), Detected: 1, Time: now},
		{TrackID: 1, Kind: KindEvicted, Reason: tracking.EvictLifetime, Frame: 20, Rect: geom.R(0, 0, 10, 10), Detected: 19, Time: now},
	}
	positions := []Position{
		{TrackID: 1, Frame: 7, Rect: geom.R(0, 0, 10, 10), Time: now},
		{TrackID: 1, Frame: 8, Rect: geom.R(0, 0, 12, 14), Time: now},
		{TrackID: 1, Frame: 8, Rect: geom.R(0, 0, 12, 14), Time: now}, // duplicate frame replaced
	}
	require.NoError(t, s.Write(ctx, sess.ID, events, positions))
	require.NoError(t, s.Write(ctx, sess.ID, nil, nil))

	got, err := s.TrackSummaries(ctx, sess.ID)
	require.NoError(t, err)

	want := []TrackSummary{
		{TrackID: 1, CreatedAt: 1, EvictedAt: 20, EvictReason: tracking.EvictLifetime,
			Shown: 2, FirstShown: 7, LastShown: 8, MeanWidth: 11, MeanHeight: 12},
		{TrackID: 2, CreatedAt: 3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TrackSummaries() mismatch (-want +got):\n%s", diff)
	}
}

func TestWrite_RejectsUnknownSession(t *testing.T) {
	s := openTestStore(t)
	err := s.Write(context.Background(), "missing",
		[]Event{{TrackID: 1, Kind: KindCreated, Time: time.Now()}}, nil)
	assert.Error(t, err, "foreign key")
}
