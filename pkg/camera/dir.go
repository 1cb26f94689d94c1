package camera

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// imageExts lists the still-image formats DirSource reads.
var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".gif": true, ".tif": true, ".tiff": true,
}

// DirSource replays the still images of a directory in name order.
type DirSource struct {
	paths []string
	cfg   Config
	loop  bool

	mu   sync.Mutex
	next int
}

// OpenDir lists the images in dir. With loop set the sequence restarts
// instead of ending with io.EOF.
func OpenDir(dir string, cfg Config, loop bool) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	sort.Strings(paths)
	return &DirSource{paths: paths, cfg: cfg, loop: loop}, nil
}

// Len returns the number of images.
func (d *DirSource) Len() int { return len(d.paths) }

// Frame decodes the next image into a preprocessed grayscale frame.
func (d *DirSource) Frame(ctx context.Context) (*image.Gray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.next >= len(d.paths) {
		if !d.loop {
			d.mu.Unlock()
			return nil, io.EOF
		}
		d.next = 0
	}
	path := d.paths[d.next]
	d.next++
	cfg := d.cfg
	d.mu.Unlock()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return Preprocess(img, cfg)
}

// Apply updates the preprocessing settings.
func (d *DirSource) Apply(cfg Config) error {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
	return nil
}

// Close is a no-op.
func (d *DirSource) Close() error { return nil }

// Preprocess converts img into the grayscale frame the tracker consumes,
// applying the resize, mirror and equalization settings of cfg.
func Preprocess(img image.Image, cfg Config) (*image.Gray, error) {
	if cfg.ProcessWidth > 0 && img.Bounds().Dx() > cfg.ProcessWidth {
		img = imaging.Resize(img, cfg.ProcessWidth, 0, imaging.Box)
	}
	if cfg.Mirror {
		img = imaging.FlipH(img)
	}

	mat, err := gocv.ImageToMatRGBA(img)
	if err != nil {
		return nil, fmt.Errorf("image to mat: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRAToGray)
	if cfg.Equalize {
		gocv.EqualizeHist(gray, &gray)
	}
	return MatToGray(gray)
}

// EqualizeGray returns a histogram-equalized copy of img.
func EqualizeGray(img *image.Gray) (*image.Gray, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrNoFrame
	}
	src, err := gocv.ImageGrayToMatGray(img)
	if err != nil {
		return nil, fmt.Errorf("gray to mat: %w", err)
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.EqualizeHist(src, &dst)
	return MatToGray(dst)
}
