package detection

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/teslashibe/go-facetrack/pkg/geom"
)

// Model tests skip unless the files are present under models/.

type regionDetector interface {
	Detect(frame *image.Gray, region geom.Rect, minSize, maxSize image.Point) ([]geom.Rect, error)
	Close() error
}

func TestYuNetNewInvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	_, err := NewYuNet(cfg)
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Expected ErrModelNotFound, got %v", err)
	}
}

func TestCascadeNewInvalidPath(t *testing.T) {
	_, err := NewCascade(LocalCascadeConfig("/nonexistent/haarcascade.xml"))
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Expected ErrModelNotFound, got %v", err)
	}
}

func TestPigoNewInvalidCascade(t *testing.T) {
	if _, err := NewPigoFromBytes(DefaultPigoConfig(), []byte{1, 2, 3}); err == nil {
		t.Error("Expected error for a truncated cascade")
	}
}

func TestCascadeConfigs(t *testing.T) {
	full := FullFrameCascadeConfig("a.xml")
	if full.Flags != FlagScaleImage || full.MinNeighbors != 2 || full.ScaleFactor != 1.1 {
		t.Errorf("Unexpected full-frame config: %+v", full)
	}

	local := LocalCascadeConfig("a.xml")
	if local.Flags != FlagDoCannyPruning|FlagScaleImage|FlagFindBiggestObject {
		t.Errorf("Unexpected local flags: %d", local.Flags)
	}
}

func TestDetectors_SolidFrame(t *testing.T) {
	detectors := map[string]func(t *testing.T) regionDetector{
		"yunet": func(t *testing.T) regionDetector {
			cfg := DefaultConfig()
			cfg.ModelPath = findModelPath(t, "face_detection_yunet.onnx")
			d, err := NewYuNet(cfg)
			if err != nil {
				t.Fatalf("NewYuNet failed: %v", err)
			}
			return d
		},
		"cascade": func(t *testing.T) regionDetector {
			d, err := NewCascade(LocalCascadeConfig(findModelPath(t, "haarcascade_frontalface_alt.xml")))
			if err != nil {
				t.Fatalf("NewCascade failed: %v", err)
			}
			return d
		},
		"pigo": func(t *testing.T) regionDetector {
			cfg := DefaultPigoConfig()
			cfg.CascadePath = findModelPath(t, "facefinder")
			d, err := NewPigo(cfg)
			if err != nil {
				t.Fatalf("NewPigo failed: %v", err)
			}
			return d
		},
	}

	frame := solidGray(320, 240, 128)

	for name, open := range detectors {
		t.Run(name, func(t *testing.T) {
			d := open(t)
			defer d.Close()

			found, err := d.Detect(frame, geom.R(0, 0, 320, 240), image.Pt(20, 20), image.Point{})
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if len(found) > 0 {
				t.Errorf("Expected no detections in solid frame, got %v", found)
			}

			// A region outside the frame is not an error
			found, err = d.Detect(frame, geom.R(1000, 1000, 50, 50), image.Pt(20, 20), image.Point{})
			if err != nil || len(found) != 0 {
				t.Errorf("Outside region: %v, %v", found, err)
			}
		})
	}
}

func TestYuNetConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = findModelPath(t, "face_detection_yunet.onnx")

	detector, err := NewYuNet(cfg)
	if err != nil {
		t.Fatalf("NewYuNet failed: %v", err)
	}
	defer detector.Close()

	frame := solidGray(320, 240, 100)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			region := geom.R(i*10, 0, 160, 160)
			if _, err := detector.Detect(frame, region, image.Point{}, image.Point{}); err != nil {
				t.Errorf("Concurrent detection failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

// Helper functions

func findModelPath(t *testing.T, name string) string {
	t.Helper()
	if cwd, err := os.Getwd(); err == nil {
		// Walk up to find models directory
		for dir := cwd; dir != "/"; dir = filepath.Dir(dir) {
			p := filepath.Join(dir, "models", name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
	}
	t.Skipf("%s not found, skipping test", name)
	return ""
}

func solidGray(width, height int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func colorGray(v uint8) color.Gray {
	return color.Gray{Y: v}
}
