package detection

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facetrack/pkg/geom"
)

// Cascade flags as defined by OpenCV's objdetect module.
const (
	FlagDoCannyPruning    = 1
	FlagScaleImage        = 2
	FlagFindBiggestObject = 4
	FlagDoRoughSearch     = 8
)

// CascadeConfig holds Haar/LBP cascade detector configuration
type CascadeConfig struct {
	Path         string  // Cascade XML file
	ScaleFactor  float64 // Pyramid step between scales
	MinNeighbors int     // Neighbouring hits required to keep a candidate
	Flags        int     // OpenCV CASCADE_* flags
}

// FullFrameCascadeConfig returns the precise configuration used by the
// background full-frame detector.
func FullFrameCascadeConfig(path string) CascadeConfig {
	return CascadeConfig{
		Path:         path,
		ScaleFactor:  1.1,
		MinNeighbors: 2,
		Flags:        FlagScaleImage,
	}
}

// LocalCascadeConfig returns the cheap configuration used around known
// objects. It stops at the biggest object in each search window.
func LocalCascadeConfig(path string) CascadeConfig {
	return CascadeConfig{
		Path:         path,
		ScaleFactor:  1.1,
		MinNeighbors: 2,
		Flags:        FlagDoCannyPruning | FlagScaleImage | FlagFindBiggestObject,
	}
}

// CascadeDetector runs an OpenCV cascade classifier over frame regions
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
	config     CascadeConfig
	mu         sync.Mutex // Protects the classifier
}

// NewCascade loads a cascade classifier.
func NewCascade(cfg CascadeConfig) (*CascadeDetector, error) {
	if err := checkFile(cfg.Path); err != nil {
		return nil, err
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cfg.Path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade from %s", cfg.Path)
	}

	return &CascadeDetector{
		classifier: classifier,
		config:     cfg,
	}, nil
}

// Detect implements tracking.RegionDetector.
func (d *CascadeDetector) Detect(frame *image.Gray, region geom.Rect, minSize, maxSize image.Point) ([]geom.Rect, error) {
	mat, clipped, ok, err := cropMat(frame, region)
	if err != nil || !ok {
		return nil, err
	}
	defer mat.Close()

	d.mu.Lock()
	found := d.classifier.DetectMultiScaleWithParams(
		mat,
		d.config.ScaleFactor,
		d.config.MinNeighbors,
		d.config.Flags,
		minSize,
		maxSize,
	)
	d.mu.Unlock()

	return FilterSize(toFrame(found, clipped), minSize, maxSize), nil
}

// Config returns the detector configuration.
func (d *CascadeDetector) Config() CascadeConfig {
	return d.config
}

// Close releases the classifier
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
