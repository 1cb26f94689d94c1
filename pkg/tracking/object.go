package tracking

import (
	"github.com/teslashibe/go-facetrack/pkg/geom"
)

// TrackedObject is a persistent identity linking detections of the same
// face across frames.
type TrackedObject struct {
	ID            int64       `json:"id"`
	LastPositions []geom.Rect `json:"last_positions"` // Most recent last, never empty

	// NumDetectedFrames counts frames observed since creation. It starts at
	// 1 and is incremented on every Update whether or not the object was
	// matched.
	NumDetectedFrames int `json:"num_detected_frames"`

	// NumFramesNotDetected counts consecutive frames without a match.
	NumFramesNotDetected int `json:"num_frames_not_detected"`

	CreatedFrame uint64 `json:"created_frame"`
}

// Last returns the most recent stored position.
func (o *TrackedObject) Last() geom.Rect {
	return o.LastPositions[len(o.LastPositions)-1]
}

func (o *TrackedObject) clone() TrackedObject {
	c := *o
	c.LastPositions = append([]geom.Rect(nil), o.LastPositions...)
	return c
}

// Track is a shown object as consumed by renderers and the dashboard.
type Track struct {
	ID   int64     `json:"id"`
	Rect geom.Rect `json:"rect"`
}

// EvictReason says why a track was removed.
type EvictReason string

const (
	EvictLifetime EvictReason = "lifetime" // Not detected for longer than MaxTrackLifetime
	EvictUnshown  EvictReason = "unshown"  // Lost before it was ever shown
	EvictReset    EvictReason = "reset"    // Dropped by Reset
)

// Observer receives track lifecycle events. Calls are made synchronously
// from the frame loop, so implementations must not block.
type Observer interface {
	TrackCreated(obj TrackedObject, frame uint64)
	TrackEvicted(obj TrackedObject, frame uint64, reason EvictReason)
}
