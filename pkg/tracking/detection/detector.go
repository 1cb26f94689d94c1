// Package detection provides region detectors for the tracker: OpenCV
// Haar/LBP cascades, the YuNet and YOLO networks through gocv, and the
// pure-Go pigo cascade.
package detection

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sort"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facetrack/pkg/geom"
	"github.com/teslashibe/go-facetrack/pkg/tracking"
)

var (
	_ tracking.RegionDetector = (*CascadeDetector)(nil)
	_ tracking.RegionDetector = (*YuNetDetector)(nil)
	_ tracking.RegionDetector = (*YOLODetector)(nil)
	_ tracking.RegionDetector = (*PigoDetector)(nil)
)

// ErrModelNotFound is returned when a model or cascade file is missing.
var ErrModelNotFound = errors.New("detection: model file not found")

// Detection is a scored box in frame pixel coordinates
type Detection struct {
	Rect       geom.Rect
	Confidence float64 // Detection confidence (0-1 for networks, raw score for pigo)
}

// Rects returns the boxes of dets, highest confidence first.
func Rects(dets []Detection) []geom.Rect {
	sorted := append([]Detection(nil), dets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	out := make([]geom.Rect, len(sorted))
	for i, d := range sorted {
		out[i] = d.Rect
	}
	return out
}

// SelectBest picks the best face from multiple detections
// Priority: confidence * 0.7 + area * 0.3
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}
	if len(dets) == 1 {
		return &dets[0]
	}

	// Find max area for normalization
	maxArea := 0
	for _, d := range dets {
		maxArea = max(maxArea, d.Rect.Area())
	}
	if maxArea == 0 {
		return &dets[0]
	}

	bestScore := -1.0
	var best *Detection
	for i := range dets {
		score := dets[i].Confidence*0.7 + float64(dets[i].Rect.Area())/float64(maxArea)*0.3
		if score > bestScore {
			bestScore = score
			best = &dets[i]
		}
	}
	return best
}

// FilterSize keeps rectangles whose width and height lie within
// [minSize, maxSize]. A zero maxSize component is unbounded.
func FilterSize(rects []geom.Rect, minSize, maxSize image.Point) []geom.Rect {
	out := rects[:0:0]
	for _, r := range rects {
		if fits(r, minSize, maxSize) {
			out = append(out, r)
		}
	}
	return out
}

func fits(r geom.Rect, minSize, maxSize image.Point) bool {
	if r.W < minSize.X || r.H < minSize.Y {
		return false
	}
	return (maxSize.X <= 0 || r.W <= maxSize.X) && (maxSize.Y <= 0 || r.H <= maxSize.Y)
}

// pick size-filters dets and returns their boxes, highest confidence
// first. With single set only the SelectBest box is kept, the way the
// local cascade stops at the biggest object.
func pick(dets []Detection, minSize, maxSize image.Point, single bool) []geom.Rect {
	kept := dets[:0:0]
	for _, d := range dets {
		if fits(d.Rect, minSize, maxSize) {
			kept = append(kept, d)
		}
	}
	if !single {
		return Rects(kept)
	}
	if best := SelectBest(kept); best != nil {
		return []geom.Rect{best.Rect}
	}
	return nil
}

// Crop copies the part of frame covered by region into a new image with
// its origin at (0, 0). Region is in frame coordinates relative to the
// frame's top-left corner. It returns the clipped region, or an empty Rect
// and nil when the region does not overlap the frame.
func Crop(frame *image.Gray, region geom.Rect) (*image.Gray, geom.Rect) {
	b := frame.Bounds()
	region = region.Clip(b.Size())
	if region.Empty() {
		return nil, geom.Rect{}
	}

	dst := image.NewGray(image.Rect(0, 0, region.W, region.H))
	for y := 0; y < region.H; y++ {
		off := frame.PixOffset(b.Min.X+region.X, b.Min.Y+region.Y+y)
		copy(dst.Pix[y*dst.Stride:], frame.Pix[off:off+region.W])
	}
	return dst, region
}

// cropMat crops region out of frame into a single-channel Mat. The caller
// closes the Mat. ok is false when the region does not overlap the frame.
func cropMat(frame *image.Gray, region geom.Rect) (mat gocv.Mat, clipped geom.Rect, ok bool, err error) {
	img, clipped := Crop(frame, region)
	if img == nil {
		return gocv.Mat{}, clipped, false, nil
	}
	mat, err = gocv.ImageGrayToMatGray(img)
	if err != nil {
		return gocv.Mat{}, clipped, false, fmt.Errorf("convert region to mat: %w", err)
	}
	return mat, clipped, true, nil
}

// toFrame translates region-relative rectangles into frame coordinates.
func toFrame(rects []image.Rectangle, origin geom.Rect) []geom.Rect {
	out := make([]geom.Rect, 0, len(rects))
	for _, r := range rects {
		out = append(out, geom.FromImage(r).Shift(origin.X, origin.Y))
	}
	return out
}

func checkFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return nil
}
