package detection

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/geom"
)

// ObjectDetection is a detection with its COCO class
type ObjectDetection struct {
	Detection
	ClassID   int    // COCO class ID
	ClassName string // Human-readable class name
}

// YOLOConfig holds YOLO detector configuration
type YOLOConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
	Classes          []string // Classes reported by Detect; empty means all
	Single           bool     // Report only the best object per region (local search)
}

// DefaultYOLOConfig returns production defaults for YOLOv8n tracking people
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
		Classes:          []string{"person"},
	}
}

// YOLODetector uses YOLOv8 for general object detection
type YOLODetector struct {
	net       gocv.Net
	config    YOLOConfig
	classes   map[string]bool
	mu        sync.Mutex
	inputSize image.Point
}

// NewYOLO creates a new YOLO object detector
func NewYOLO(cfg YOLOConfig) (*YOLODetector, error) {
	if err := checkFile(cfg.ModelPath); err != nil {
		return nil, err
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	d := &YOLODetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}
	if len(cfg.Classes) > 0 {
		d.classes = make(map[string]bool, len(cfg.Classes))
		for _, c := range cfg.Classes {
			d.classes[c] = true
		}
	}
	return d, nil
}

// Detect implements tracking.RegionDetector, reporting the configured classes.
func (d *YOLODetector) Detect(frame *image.Gray, region geom.Rect, minSize, maxSize image.Point) ([]geom.Rect, error) {
	objs, err := d.DetectObjects(frame, region)
	if err != nil {
		return nil, err
	}

	dets := make([]Detection, 0, len(objs))
	for _, o := range objs {
		if d.classes == nil || d.classes[o.ClassName] {
			dets = append(dets, o.Detection)
		}
	}
	return pick(dets, minSize, maxSize, d.config.Single), nil
}

// DetectObjects returns every object found in region.
func (d *YOLODetector) DetectObjects(frame *image.Gray, region geom.Rect) ([]ObjectDetection, error) {
	gray, clipped, ok, err := cropMat(frame, region)
	if err != nil || !ok {
		return nil, err
	}
	defer gray.Close()

	img := gocv.NewMat()
	defer img.Close()
	gocv.CvtColor(gray, &img, gocv.ColorGrayToBGR)

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	// Output shape: [1, 84, 8400] - 84 = 4 bbox + 80 classes, 8400 candidates
	detections := d.parseYOLOv8Output(output, float32(img.Cols()), float32(img.Rows()))
	for i := range detections {
		detections[i].Rect = detections[i].Rect.Shift(clipped.X, clipped.Y)
	}

	if len(detections) > 0 {
		log.Debug("yolo detections", "objects", len(detections), "region", clipped)
	}
	return detections, nil
}

// parseYOLOv8Output parses the YOLOv8 output tensor into region pixels
func (d *YOLODetector) parseYOLOv8Output(output gocv.Mat, imgW, imgH float32) []ObjectDetection {
	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	// Drop the batch dimension: [1, 84, 8400] -> [84, 8400]
	if sizes := output.Size(); len(sizes) == 3 {
		flat := output.Reshape(1, sizes[1])
		defer flat.Close()
		output = flat
	}

	// Attribute c of candidate i is at c*rows+i
	rows := output.Cols()
	cols := output.Rows()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil
	}

	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < cols; c++ {
			if score := data[c*rows+i]; score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}
		if maxScore < d.config.ConfidenceThresh {
			continue
		}

		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		sx := imgW / float32(d.config.InputWidth)
		sy := imgH / float32(d.config.InputHeight)
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*sx), int((cy-h/2)*sy),
			int((cx+w/2)*sx), int((cy+h/2)*sy),
		))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)

	detections := make([]ObjectDetection, 0, len(indices))
	for _, idx := range indices {
		detections = append(detections, ObjectDetection{
			Detection: Detection{
				Rect:       geom.FromImage(boxes[idx]),
				Confidence: float64(confidences[idx]),
			},
			ClassID:   classIDs[idx],
			ClassName: ClassName(classIDs[idx]),
		})
	}
	return detections
}

// Close releases the detector resources
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// ClassName returns the COCO name for id, or "" when out of range.
func ClassName(id int) string {
	if id < 0 || id >= len(COCOClasses) {
		return ""
	}
	return COCOClasses[id]
}

// COCOClasses contains the 80 COCO class names
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
