package store

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/tracking"
)

var (
	_ tracking.Observer = (*Recorder)(nil)
	_ tracking.Sink     = (*Recorder)(nil)
)

// record is one queued write: either an event or a frame's positions.
type record struct {
	event     *Event
	positions []Position
}

// Recorder writes track events and shown positions of a session from its
// own goroutine. The observer and sink methods only enqueue; when the
// queue is full records are dropped.
type Recorder struct {
	store   *Store
	session string
	logger  *slog.Logger

	// FlushInterval bounds how long records wait before being written.
	FlushInterval time.Duration
	// BatchSize triggers an early flush.
	BatchSize int

	queue chan record
	done  chan struct{}
	once  sync.Once
	mu    sync.RWMutex // guards queue against send after close
	shut  bool

	started atomic.Bool

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewRecorder creates a recorder for session with a queue of buffer records.
func NewRecorder(s *Store, session string, buffer int) *Recorder {
	return &Recorder{
		store:         s,
		session:       session,
		logger:        log.Component("recorder").With("session", session),
		FlushInterval: time.Second,
		BatchSize:     256,
		queue:         make(chan record, max(buffer, 1)),
		done:          make(chan struct{}),
	}
}

// Start launches the writer goroutine. It runs until Close, which also
// flushes; ctx supplies the values of each write.
func (r *Recorder) Start(ctx context.Context) {
	if r.started.CompareAndSwap(false, true) {
		go r.run(ctx)
	}
}

// TrackCreated implements tracking.Observer.
func (r *Recorder) TrackCreated(obj tracking.TrackedObject, frame uint64) {
	r.enqueue(record{event: &Event{
		TrackID:  obj.ID,
		Kind:     KindCreated,
		Frame:    frame,
		Rect:     obj.Last(),
		Detected: obj.NumDetectedFrames,
		Time:     time.Now(),
	}})
}

// TrackEvicted implements tracking.Observer.
func (r *Recorder) TrackEvicted(obj tracking.TrackedObject, frame uint64, reason tracking.EvictReason) {
	r.enqueue(record{event: &Event{
		TrackID:  obj.ID,
		Kind:     KindEvicted,
		Reason:   reason,
		Frame:    frame,
		Rect:     obj.Last(),
		Detected: obj.NumDetectedFrames,
		Time:     time.Now(),
	}})
}

// HandleFrame implements tracking.Sink, recording the shown tracks.
func (r *Recorder) HandleFrame(_ *image.Gray, res tracking.FrameResult) {
	if res.Err != nil || len(res.Tracks) == 0 {
		return
	}
	positions := make([]Position, len(res.Tracks))
	for i, t := range res.Tracks {
		positions[i] = Position{TrackID: t.ID, Frame: res.Index, Rect: t.Rect, Time: res.Time}
	}
	r.enqueue(record{positions: positions})
}

func (r *Recorder) enqueue(rec record) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.shut {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- rec:
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.logger.Warn("track log queue full, dropping records", "dropped", r.dropped.Load())
		}
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.FlushInterval)
	defer ticker.Stop()

	var (
		events    []Event
		positions []Position
		pending   int
	)
	flush := func() {
		if pending == 0 {
			return
		}
		// Writes finish even after ctx is cancelled.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		err := r.store.Write(wctx, r.session, events, positions)
		cancel()
		if err != nil {
			r.failed.Add(uint64(pending))
			r.logger.Error("track log write failed", "records", pending, "error", err)
		} else {
			r.written.Add(uint64(pending))
		}
		events, positions, pending = events[:0], positions[:0], 0
	}

	for {
		select {
		case rec, ok := <-r.queue:
			if !ok {
				flush()
				return
			}
			if rec.event != nil {
				events = append(events, *rec.event)
			}
			positions = append(positions, rec.positions...)
			pending++
			if pending >= r.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close stops accepting records, flushes the queue and waits for the
// writer to finish.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		r.mu.Lock()
		r.shut = true
		close(r.queue)
		r.mu.Unlock()
	})
	if r.started.Load() {
		<-r.done
	}
	return nil
}

// Stats returns records written, dropped and failed.
func (r *Recorder) Stats() (written, dropped, failed uint64) {
	return r.written.Load(), r.dropped.Load(), r.failed.Load()
}
