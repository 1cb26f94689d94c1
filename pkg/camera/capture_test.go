package camera

import (
	"bytes"
	"image"
	"image/jpeg"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(FileConfig(filepath.Join(t.TempDir(), "missing.mp4")))
	if err == nil {
		t.Fatal("Open() on a missing file succeeded")
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Width = 0
	if _, err := Open(cfg); err == nil {
		t.Fatal("Open() accepted an invalid config")
	}
}

func TestMatToGray(t *testing.T) {
	m := gocv.NewMatWithSize(30, 40, gocv.MatTypeCV8UC1)
	defer m.Close()
	m.SetUCharAt(2, 3, 200)

	img, err := MatToGray(m)
	if err != nil {
		t.Fatalf("MatToGray() error = %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 40, 30) {
		t.Errorf("bounds = %v", img.Bounds())
	}
	if got := img.GrayAt(3, 2).Y; got != 200 {
		t.Errorf("pixel = %d, want 200", got)
	}

	color := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer color.Close()
	if _, err := MatToGray(color); err == nil {
		t.Error("MatToGray() accepted a 3-channel mat")
	}

	empty := gocv.NewMat()
	defer empty.Close()
	if _, err := MatToGray(empty); err != ErrNoFrame {
		t.Errorf("MatToGray(empty) error = %v, want ErrNoFrame", err)
	}
}

func TestEncodeJPEG(t *testing.T) {
	m := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
	defer m.Close()

	data, err := EncodeJPEG(m, 75)
	if err != nil {
		t.Fatalf("EncodeJPEG() error = %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Errorf("decoded size = %dx%d", cfg.Width, cfg.Height)
	}
}
