package detection

import (
	"errors"
	"image"
	"testing"

	"github.com/teslashibe/go-facetrack/pkg/geom"
)

func TestRects_SortedByConfidence(t *testing.T) {
	dets := []Detection{
		{Rect: geom.R(0, 0, 10, 10), Confidence: 0.6},
		{Rect: geom.R(20, 0, 10, 10), Confidence: 0.9},
		{Rect: geom.R(40, 0, 10, 10), Confidence: 0.6},
	}

	got := Rects(dets)
	want := []geom.Rect{geom.R(20, 0, 10, 10), geom.R(0, 0, 10, 10), geom.R(40, 0, 10, 10)}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Rects = %v, want %v", got, want)
		}
	}

	// Input order is untouched
	if dets[0].Confidence != 0.6 {
		t.Error("Rects reordered its input")
	}
}

func TestSelectBest(t *testing.T) {
	tests := []struct {
		name string
		dets []Detection
		want int // index, -1 for nil
	}{
		{name: "empty", dets: nil, want: -1},
		{
			name: "single",
			dets: []Detection{{Rect: geom.R(0, 0, 10, 10), Confidence: 0.2}},
			want: 0,
		},
		{
			name: "confidence dominates",
			dets: []Detection{
				{Rect: geom.R(0, 0, 100, 100), Confidence: 0.3},
				{Rect: geom.R(0, 0, 80, 80), Confidence: 0.95},
			},
			want: 1,
		},
		{
			name: "area breaks near tie",
			dets: []Detection{
				{Rect: geom.R(0, 0, 20, 20), Confidence: 0.8},
				{Rect: geom.R(0, 0, 100, 100), Confidence: 0.78},
			},
			want: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SelectBest(tc.dets)
			if tc.want < 0 {
				if got != nil {
					t.Errorf("Expected nil, got %+v", got)
				}
				return
			}
			if got != &tc.dets[tc.want] {
				t.Errorf("Expected detection %d, got %+v", tc.want, got)
			}
		})
	}
}

func TestFilterSize(t *testing.T) {
	rects := []geom.Rect{
		geom.R(0, 0, 10, 10),
		geom.R(0, 0, 30, 30),
		geom.R(0, 0, 30, 80),
		geom.R(0, 0, 200, 200),
	}

	got := FilterSize(rects, image.Pt(20, 20), image.Pt(100, 100))
	if len(got) != 2 || got[0] != rects[1] || got[1] != rects[2] {
		t.Errorf("FilterSize = %v", got)
	}

	unbounded := FilterSize(rects, image.Pt(20, 20), image.Point{})
	if len(unbounded) != 3 {
		t.Errorf("Zero max size should be unbounded, got %v", unbounded)
	}
}

func TestPick(t *testing.T) {
	dets := []Detection{
		{Rect: geom.R(0, 0, 40, 40), Confidence: 0.7},
		{Rect: geom.R(50, 0, 10, 10), Confidence: 0.99}, // below min size
		{Rect: geom.R(100, 0, 60, 60), Confidence: 0.9},
	}
	minSize := image.Pt(20, 20)

	tests := []struct {
		name   string
		single bool
		dets   []Detection
		want   []geom.Rect
	}{
		{name: "all", dets: dets, want: []geom.Rect{geom.R(100, 0, 60, 60), geom.R(0, 0, 40, 40)}},
		{name: "single keeps best that fits", single: true, dets: dets, want: []geom.Rect{geom.R(100, 0, 60, 60)}},
		{name: "single none fit", single: true, dets: dets[1:2], want: nil},
		{name: "empty", dets: nil, want: []geom.Rect{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := pick(tc.dets, minSize, image.Point{}, tc.single)
			if len(got) != len(tc.want) {
				t.Fatalf("pick = %v, want %v", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("pick = %v, want %v", got, tc.want)
				}
			}
		})
	}

	if dets[1].Confidence != 0.99 || len(dets) != 3 {
		t.Error("pick modified its input")
	}
}

func TestCrop(t *testing.T) {
	frame := image.NewGray(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			frame.Pix[y*frame.Stride+x] = uint8(y*10 + x)
		}
	}

	img, clipped := Crop(frame, geom.R(6, 4, 5, 5))
	if clipped != geom.R(6, 4, 2, 2) {
		t.Fatalf("clipped = %v", clipped)
	}
	if img.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	if got := img.GrayAt(1, 1).Y; got != 57 {
		t.Errorf("pixel (1,1) = %d, want 57", got)
	}

	if img, r := Crop(frame, geom.R(20, 20, 5, 5)); img != nil || !r.Empty() {
		t.Error("Expected nil crop outside the frame")
	}
}

func TestCrop_SubImage(t *testing.T) {
	full := image.NewGray(image.Rect(0, 0, 10, 10))
	full.SetGray(5, 5, colorGray(200))
	sub := full.SubImage(image.Rect(3, 3, 9, 9)).(*image.Gray)

	// (2, 2) in sub-image coordinates is (5, 5) in the parent
	img, _ := Crop(sub, geom.R(2, 2, 1, 1))
	if got := img.GrayAt(0, 0).Y; got != 200 {
		t.Errorf("Expected crop relative to sub-image origin, got %d", got)
	}
}

func TestToFrame(t *testing.T) {
	got := toFrame([]image.Rectangle{image.Rect(1, 2, 11, 22)}, geom.R(100, 50, 40, 40))
	if len(got) != 1 || got[0] != geom.R(101, 52, 10, 20) {
		t.Errorf("toFrame = %v", got)
	}
}

func TestCheckFile_Missing(t *testing.T) {
	err := checkFile("/nonexistent/cascade.xml")
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Expected ErrModelNotFound, got %v", err)
	}
}
