package tracking

import (
	"image"
	"testing"

	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/geom"
)

func TestPerception_WindowAndMinSize(t *testing.T) {
	p := NewPerception(DefaultConfig(), nil, log.L())
	frame := image.Pt(640, 480)

	tests := []struct {
		name    string
		rect    geom.Rect
		window  geom.Rect
		minSize int
	}{
		{
			name:    "inside frame",
			rect:    geom.R(100, 100, 40, 40),
			window:  geom.R(80, 80, 80, 80),
			minSize: 34,
		},
		{
			name:    "clipped at top-left",
			rect:    geom.R(0, 10, 40, 20),
			window:  geom.R(0, 0, 60, 40),
			minSize: 17,
		},
		{
			name:    "outside frame",
			rect:    geom.R(700, 100, 40, 40),
			window:  geom.Rect{},
			minSize: 34,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Window(tt.rect, frame); got != tt.window {
				t.Errorf("Window = %v, want %v", got, tt.window)
			}
			if got := p.MinSize(tt.rect); got != image.Pt(tt.minSize, tt.minSize) {
				t.Errorf("MinSize = %v, want %d", got, tt.minSize)
			}
		})
	}
}

func TestPerception_SearchPassesWindow(t *testing.T) {
	det := &recordingDetector{}
	p := NewPerception(DefaultConfig(), det, log.L())

	window, found := p.Search(testFrame(), geom.R(100, 100, 40, 40))

	if window != geom.R(80, 80, 80, 80) {
		t.Errorf("Unexpected window %v", window)
	}
	if len(found) != 0 {
		t.Errorf("Expected no detections, got %v", found)
	}
	if len(det.regions) != 1 || det.regions[0] != window {
		t.Errorf("Detector called with %v", det.regions)
	}
	if det.minSize[0] != image.Pt(34, 34) {
		t.Errorf("Detector min size %v", det.minSize[0])
	}
}

func TestPerception_SkipsEmptyWindow(t *testing.T) {
	det := &recordingDetector{}
	p := NewPerception(DefaultConfig(), det, log.L())

	p.Search(testFrame(), geom.R(-200, -200, 40, 40))

	if len(det.regions) != 0 {
		t.Error("Detector should not run on an empty window")
	}
	if p.Skipped() != 1 {
		t.Errorf("Expected 1 skipped window, got %d", p.Skipped())
	}
}

func TestPerception_DetectorFailures(t *testing.T) {
	tests := []struct {
		name string
		det  *recordingDetector
	}{
		{"error", &recordingDetector{err: errDetector}},
		{"panic", &recordingDetector{panics: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPerception(DefaultConfig(), tt.det, log.L())

			_, found := p.Search(testFrame(), geom.R(100, 100, 40, 40))

			if found != nil {
				t.Errorf("Expected no detections, got %v", found)
			}
			if p.Failures() != 1 {
				t.Errorf("Expected 1 failure, got %d", p.Failures())
			}
		})
	}
}
