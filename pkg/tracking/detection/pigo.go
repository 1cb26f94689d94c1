package detection

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/teslashibe/go-facetrack/pkg/geom"
)

// PigoConfig holds pigo cascade configuration
type PigoConfig struct {
	CascadePath  string  // Binary pigo cascade ("facefinder")
	MinScore     float32 // Minimum cluster score kept
	ShiftFactor  float64 // Window step as a fraction of its size
	ScaleFactor  float64 // Window growth between scales
	IoUThreshold float64 // Cluster merge threshold
	MinFaceSize  int     // Lower bound when the caller asks for less
	Single       bool    // Report only the best face per region (local search)
}

// DefaultPigoConfig returns defaults for the stock facefinder cascade
func DefaultPigoConfig() PigoConfig {
	return PigoConfig{
		CascadePath:  "models/facefinder",
		MinScore:     5.0,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinFaceSize:  20,
	}
}

// PigoDetector is a pure-Go pixel-intensity-comparison face detector. It
// needs no OpenCV and is safe for concurrent use.
type PigoDetector struct {
	classifier *pigo.Pigo
	config     PigoConfig
}

// NewPigo unpacks a pigo cascade file.
func NewPigo(cfg PigoConfig) (*PigoDetector, error) {
	if err := checkFile(cfg.CascadePath); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(cfg.CascadePath)
	if err != nil {
		return nil, fmt.Errorf("read cascade: %w", err)
	}
	return NewPigoFromBytes(cfg, data)
}

// NewPigoFromBytes unpacks a cascade already in memory.
func NewPigoFromBytes(cfg PigoConfig, cascade []byte) (*PigoDetector, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack pigo cascade: %w", err)
	}
	return &PigoDetector{classifier: classifier, config: cfg}, nil
}

// Detect implements tracking.RegionDetector.
func (d *PigoDetector) Detect(frame *image.Gray, region geom.Rect, minSize, maxSize image.Point) ([]geom.Rect, error) {
	return pick(d.DetectScored(frame, region, minSize, maxSize), minSize, maxSize, d.config.Single), nil
}

// DetectScored returns clustered faces with their pigo scores.
func (d *PigoDetector) DetectScored(frame *image.Gray, region geom.Rect, minSize, maxSize image.Point) []Detection {
	img, clipped := Crop(frame, region)
	if img == nil {
		return nil
	}

	lo := max(d.config.MinFaceSize, min(minSize.X, minSize.Y))
	hi := min(clipped.W, clipped.H)
	if maxSize.X > 0 && maxSize.Y > 0 {
		hi = min(hi, maxSize.X, maxSize.Y)
	}
	if lo > hi {
		return nil
	}

	params := pigo.CascadeParams{
		MinSize:     lo,
		MaxSize:     hi,
		ShiftFactor: d.config.ShiftFactor,
		ScaleFactor: d.config.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: img.Pix,
			Rows:   clipped.H,
			Cols:   clipped.W,
			Dim:    img.Stride,
		},
	}

	faces := d.classifier.RunCascade(params, 0)
	faces = d.classifier.ClusterDetections(faces, d.config.IoUThreshold)

	var dets []Detection
	for _, f := range faces {
		if f.Q < d.config.MinScore {
			continue
		}
		// Detections are centre row/column with a square window
		r := geom.R(f.Col-f.Scale/2, f.Row-f.Scale/2, f.Scale, f.Scale)
		dets = append(dets, Detection{
			Rect:       r.Shift(clipped.X, clipped.Y),
			Confidence: float64(f.Q),
		})
	}
	return dets
}

// Close is a no-op; pigo holds no native resources.
func (d *PigoDetector) Close() error {
	return nil
}
