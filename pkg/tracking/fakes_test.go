package tracking

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-facetrack/pkg/geom"
)

func testFrame() *image.Gray {
	return image.NewGray(image.Rect(0, 0, 640, 480))
}

// scene is a fake world of faces. As a full-frame detector it returns every
// face; as a local detector it returns faces lying inside the region.
type scene struct {
	mu    sync.Mutex
	faces []geom.Rect
	calls atomic.Int64
}

func newScene(faces ...geom.Rect) *scene {
	return &scene{faces: faces}
}

func (s *scene) set(faces ...geom.Rect) {
	s.mu.Lock()
	s.faces = faces
	s.mu.Unlock()
}

func (s *scene) Detect(frame *image.Gray, region geom.Rect, minSize, maxSize image.Point) ([]geom.Rect, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []geom.Rect
	for _, f := range s.faces {
		if f.Intersect(region) != f {
			continue
		}
		if f.W < minSize.X || f.H < minSize.Y {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// gatedDetector blocks in Detect until the gate is closed.
type gatedDetector struct {
	entered chan struct{}
	gate    chan struct{}
	result  []geom.Rect
	closed  atomic.Bool
}

func newGatedDetector(result ...geom.Rect) *gatedDetector {
	return &gatedDetector{
		entered: make(chan struct{}, 16),
		gate:    make(chan struct{}),
		result:  result,
	}
}

func (g *gatedDetector) Detect(frame *image.Gray, region geom.Rect, minSize, maxSize image.Point) ([]geom.Rect, error) {
	g.entered <- struct{}{}
	<-g.gate
	return g.result, nil
}

func (g *gatedDetector) Close() error {
	g.closed.Store(true)
	return nil
}

var errDetector = errors.New("detector failed")

// recordingDetector records the arguments of each call.
type recordingDetector struct {
	mu      sync.Mutex
	regions []geom.Rect
	minSize []image.Point
	err     error
	panics  bool
}

func (r *recordingDetector) Detect(frame *image.Gray, region geom.Rect, minSize, maxSize image.Point) ([]geom.Rect, error) {
	r.mu.Lock()
	r.regions = append(r.regions, region)
	r.minSize = append(r.minSize, minSize)
	r.mu.Unlock()
	if r.panics {
		panic("native detector crashed")
	}
	if r.err != nil {
		return nil, r.err
	}
	return nil, nil
}

// recordingObserver records lifecycle events.
type recordingObserver struct {
	created []int64
	evicted map[int64]EvictReason
}

func (o *recordingObserver) TrackCreated(obj TrackedObject, frame uint64) {
	o.created = append(o.created, obj.ID)
}

func (o *recordingObserver) TrackEvicted(obj TrackedObject, frame uint64, reason EvictReason) {
	if o.evicted == nil {
		o.evicted = make(map[int64]EvictReason)
	}
	o.evicted[obj.ID] = reason
}

// sliceSource yields a fixed number of frames, then io.EOF.
type sliceSource struct {
	n int
}

func (s *sliceSource) Frame(ctx context.Context) (*image.Gray, error) {
	if s.n == 0 {
		return nil, io.EOF
	}
	s.n--
	return testFrame(), nil
}
