package tracking

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/geom"
)

// Slot markers used during association. Values >= 0 link a detection to
// the object at that index.
const (
	newRectangle         = -1
	intersectedRectangle = -2
)

// Manager associates per-frame detections into persistent tracked objects.
//
// Manager is not safe for concurrent use. It is driven from the frame loop
// only; Tracker serializes access for callers on other goroutines.
type Manager struct {
	cfg      Config
	ids      *IDAllocator
	objects  []*TrackedObject // Creation order
	frame    uint64
	observer Observer
	logger   *slog.Logger
}

// NewManager creates a track manager. A nil allocator gets a fresh one
// starting at 1.
func NewManager(cfg Config, ids *IDAllocator) *Manager {
	if ids == nil {
		ids = NewIDAllocator(1)
	}
	return &Manager{
		cfg:    cfg.clone(),
		ids:    ids,
		logger: log.Component("tracks"),
	}
}

// SetObserver registers a lifecycle observer. Pass nil to remove it.
func (m *Manager) SetObserver(o Observer) {
	m.observer = o
}

// SetConfig replaces the configuration. Histories longer than the new
// HistoryLength are trimmed on the next append.
func (m *Manager) SetConfig(cfg Config) {
	m.cfg = cfg.clone()
}

// Frame returns the number of Update calls so far.
func (m *Manager) Frame() uint64 {
	return m.frame
}

// Len returns the number of live tracked objects.
func (m *Manager) Len() int {
	return len(m.objects)
}

// Update associates this frame's detections with existing tracks, spawns
// tracks for unmatched detections and evicts stale ones.
func (m *Manager) Update(detected []geom.Rect) {
	m.frame++

	// TODO: this counts frames since creation, not frames with a matching
	// detection, yet warmup and unshown eviction read it as the latter.
	// Decide whether to increment only on association.
	for _, obj := range m.objects {
		obj.NumDetectedFrames++
	}

	correspondence := make([]int, len(detected))
	for j := range correspondence {
		correspondence[j] = newRectangle
	}

	for i, obj := range m.objects {
		prev := obj.Last()
		bestIndex := -1
		bestArea := -1

		for j, r := range detected {
			if correspondence[j] != newRectangle {
				continue
			}
			overlap := prev.Intersect(r)
			if overlap.Empty() {
				continue
			}
			correspondence[j] = intersectedRectangle
			if a := overlap.Area(); a > bestArea {
				bestIndex = j
				bestArea = a
			}
		}

		if bestIndex < 0 {
			obj.NumFramesNotDetected++
			continue
		}

		correspondence[bestIndex] = i
		best := detected[bestIndex]

		// Absorb near-duplicate detections of the winner.
		for j, r := range detected {
			if j == bestIndex || correspondence[j] >= 0 {
				continue
			}
			if best.Overlaps(r) {
				correspondence[j] = intersectedRectangle
			}
		}
	}

	for j, r := range detected {
		switch c := correspondence[j]; {
		case c >= 0:
			obj := m.objects[c]
			obj.LastPositions = appendBounded(obj.LastPositions, r, m.cfg.HistoryLength)
			obj.NumFramesNotDetected = 0
		case c == newRectangle:
			m.spawn(r)
		}
	}

	m.evict()
}

func (m *Manager) spawn(r geom.Rect) {
	obj := &TrackedObject{
		ID:                m.ids.Next(),
		LastPositions:     []geom.Rect{r},
		NumDetectedFrames: 1,
		CreatedFrame:      m.frame,
	}
	m.objects = append(m.objects, obj)

	m.logger.Debug("track created", "id", obj.ID, "rect", r)
	if m.observer != nil {
		m.observer.TrackCreated(obj.clone(), m.frame)
	}
}

func (m *Manager) evict() {
	kept := m.objects[:0]
	for _, obj := range m.objects {
		reason, gone := m.evictReason(obj)
		if !gone {
			kept = append(kept, obj)
			continue
		}
		m.logger.Debug("track evicted", "id", obj.ID, "reason", reason,
			"detected", obj.NumDetectedFrames, "missed", obj.NumFramesNotDetected)
		if m.observer != nil {
			m.observer.TrackEvicted(obj.clone(), m.frame, reason)
		}
	}
	clear(m.objects[len(kept):])
	m.objects = kept
}

func (m *Manager) evictReason(obj *TrackedObject) (EvictReason, bool) {
	if obj.NumFramesNotDetected > m.cfg.MaxTrackLifetime {
		return EvictLifetime, true
	}
	if obj.NumDetectedFrames <= m.cfg.WarmupFrames && obj.NumFramesNotDetected > m.cfg.UnshownPatience {
		return EvictUnshown, true
	}
	return "", false
}

// DisplayRect returns the smoothed rectangle to show for obj, or false
// while the object is warming up or has gone undetected for longer than
// ShowGrace.
func (m *Manager) DisplayRect(obj TrackedObject) (geom.Rect, bool) {
	if len(obj.LastPositions) == 0 {
		return geom.Rect{}, false
	}
	if obj.NumDetectedFrames <= m.cfg.WarmupFrames || obj.NumFramesNotDetected > m.cfg.ShowGrace {
		return geom.Rect{}, false
	}

	last := obj.LastPositions[len(obj.LastPositions)-1]

	w, h := float64(last.W), float64(last.H)
	if ws, hs, weights := recentSizes(obj.LastPositions, m.cfg.SizeWeights); len(weights) > 0 {
		w = stat.Mean(ws, weights)
		h = stat.Mean(hs, weights)
	}

	cx, cy := last.CenterF()
	if xs, ys, weights := recentCenters(obj.LastPositions, m.cfg.PositionWeights); len(weights) > 0 {
		cx = stat.Mean(xs, weights)
		cy = stat.Mean(ys, weights)
	}

	return geom.FromCenter(cx, cy, w, h), true
}

// recentSizes returns the widths and heights of the last min(N, len(w))
// positions, most recent first, with the matching weights.
func recentSizes(pos []geom.Rect, w []float64) (ws, hs, weights []float64) {
	n := min(len(pos), len(w))
	ws = make([]float64, n)
	hs = make([]float64, n)
	for k := 0; k < n; k++ {
		r := pos[len(pos)-1-k]
		ws[k] = float64(r.W)
		hs[k] = float64(r.H)
	}
	return ws, hs, w[:n]
}

func recentCenters(pos []geom.Rect, w []float64) (xs, ys, weights []float64) {
	n := min(len(pos), len(w))
	xs = make([]float64, n)
	ys = make([]float64, n)
	for k := 0; k < n; k++ {
		xs[k], ys[k] = pos[len(pos)-1-k].CenterF()
	}
	return xs, ys, w[:n]
}

// SearchRegions returns the predicted position of every live object: the
// last position shifted by the damped displacement between the last two
// integer centres. Degenerate positions are skipped.
func (m *Manager) SearchRegions() []geom.Rect {
	regions := make([]geom.Rect, 0, len(m.objects))
	for _, obj := range m.objects {
		last := obj.Last()
		if last.Empty() {
			m.logger.Debug("skipping degenerate position", "id", obj.ID, "rect", last)
			continue
		}
		if n := len(obj.LastPositions); n >= 2 {
			prev := obj.LastPositions[n-2]
			d := last.Center().Sub(prev.Center())
			last = last.Shift(
				int(math.RoundToEven(m.cfg.MotionDamping*float64(d.X))),
				int(math.RoundToEven(m.cfg.MotionDamping*float64(d.Y))),
			)
		}
		regions = append(regions, last)
	}
	return regions
}

// ActiveTracks returns the shown tracks with their display rectangles, in
// creation order. Tracks whose display rectangle has no area are skipped.
func (m *Manager) ActiveTracks() []Track {
	tracks := make([]Track, 0, len(m.objects))
	for _, obj := range m.objects {
		if r, ok := m.DisplayRect(*obj); ok && !r.Empty() {
			tracks = append(tracks, Track{ID: obj.ID, Rect: r})
		}
	}
	return tracks
}

// Objects returns deep copies of every live tracked object.
func (m *Manager) Objects() []TrackedObject {
	out := make([]TrackedObject, len(m.objects))
	for i, obj := range m.objects {
		out[i] = obj.clone()
	}
	return out
}

// Reset drops every tracked object. Ids are not reused.
func (m *Manager) Reset() {
	if m.observer != nil {
		for _, obj := range m.objects {
			m.observer.TrackEvicted(obj.clone(), m.frame, EvictReset)
		}
	}
	m.objects = nil
}

func appendBounded(pos []geom.Rect, r geom.Rect, k int) []geom.Rect {
	pos = append(pos, r)
	if k > 0 && len(pos) > k {
		pos = append(pos[:0], pos[len(pos)-k:]...)
	}
	return pos
}
