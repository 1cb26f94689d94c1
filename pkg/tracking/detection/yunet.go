package detection

import (
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/geom"
)

// Config holds YuNet detector configuration
type Config struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum confidence (default 0.5)
	NMSThresh        float64 // Box suppression threshold (default 0.3)
	InputWidth       int     // Initial model input width
	InputHeight      int     // Initial model input height
	Single           bool    // Report only the best face per region (local search)
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// YuNetDetector uses OpenCV's FaceDetectorYN for face detection
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	config   Config
	mu       sync.Mutex // Protects inference
}

// NewYuNet creates a new YuNet face detector using GoCV's built-in FaceDetectorYN
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if err := checkFile(cfg.ModelPath); err != nil {
		return nil, err
	}

	// Input size is updated per region
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"", // No config file needed for ONNX
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		5000, // Top K
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		detector: detector,
		config:   cfg,
	}, nil
}

// Detect implements tracking.RegionDetector.
func (d *YuNetDetector) Detect(frame *image.Gray, region geom.Rect, minSize, maxSize image.Point) ([]geom.Rect, error) {
	dets, err := d.DetectScored(frame, region)
	if err != nil {
		return nil, err
	}
	return pick(dets, minSize, maxSize, d.config.Single), nil
}

// DetectScored returns the faces found in region with their scores.
func (d *YuNetDetector) DetectScored(frame *image.Gray, region geom.Rect) ([]Detection, error) {
	gray, clipped, ok, err := cropMat(frame, region)
	if err != nil || !ok {
		return nil, err
	}
	defer gray.Close()

	// The network expects three channels
	img := gocv.NewMat()
	defer img.Close()
	gocv.CvtColor(gray, &img, gocv.ColorGrayToBGR)

	faces := gocv.NewMat()
	defer faces.Close()

	d.mu.Lock()
	d.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))
	d.detector.Detect(img, &faces)
	d.mu.Unlock()

	var detections []Detection
	for r := 0; r < faces.Rows(); r++ {
		// YuNet output format (15 columns):
		// 0-3: x, y, w, h (bounding box in pixels)
		// 4-13: 5 facial landmarks (x,y pairs)
		// 14: face score
		box := geom.R(
			int(faces.GetFloatAt(r, 0)),
			int(faces.GetFloatAt(r, 1)),
			int(faces.GetFloatAt(r, 2)),
			int(faces.GetFloatAt(r, 3)),
		)
		detections = append(detections, Detection{
			Rect:       box.Shift(clipped.X, clipped.Y),
			Confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}

	if len(detections) > 0 {
		log.Debug("yunet detections", "faces", len(detections), "region", clipped)
	}
	return detections, nil
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
