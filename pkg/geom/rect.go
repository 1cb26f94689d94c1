// Package geom provides the integer rectangle used throughout the tracker.
package geom

import (
	"fmt"
	"image"
	"math"
)

// Rect is an axis-aligned region in frame pixel coordinates.
// It is a value type: every operation returns a new Rect.
type Rect struct {
	X int `json:"x"` // Top-left corner
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// R is shorthand for Rect{x, y, w, h}.
func R(x, y, w, h int) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// FromImage converts an image.Rectangle.
func FromImage(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Image converts to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Area returns W*H, or 0 for degenerate rectangles.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.W * r.H
}

// Empty reports whether the rectangle has no positive area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Size returns the rectangle dimensions as a point.
func (r Rect) Size() image.Point {
	return image.Pt(r.W, r.H)
}

// TopLeft returns the top-left corner.
func (r Rect) TopLeft() image.Point {
	return image.Pt(r.X, r.Y)
}

// BottomRight returns the exclusive bottom-right corner.
func (r Rect) BottomRight() image.Point {
	return image.Pt(r.X+r.W, r.Y+r.H)
}

// Center returns the integer centre (x + w/2, y + h/2).
func (r Rect) Center() image.Point {
	return image.Pt(r.X+r.W/2, r.Y+r.H/2)
}

// CenterF returns the exact centre, the midpoint of the top-left and
// bottom-right corners.
func (r Rect) CenterF() (x, y float64) {
	return float64(r.X)*0.5 + float64(r.X+r.W)*0.5, float64(r.Y)*0.5 + float64(r.Y+r.H)*0.5
}

// Intersect returns the overlap of r and o. The zero Rect is returned when
// they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.X+r.W, o.X+o.W)
	y1 := min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Overlaps reports whether r and o share a region of positive area.
func (r Rect) Overlaps(o Rect) bool {
	return !r.Intersect(o).Empty()
}

// Inflate grows the rectangle by dx on the left and right and dy on the top
// and bottom. Negative values shrink it.
func (r Rect) Inflate(dx, dy int) Rect {
	return Rect{X: r.X - dx, Y: r.Y - dy, W: r.W + 2*dx, H: r.H + 2*dy}
}

// Scale inflates the rectangle around its centre so that it becomes roughly
// coeff times its size.
func (r Rect) Scale(coeff float64) Rect {
	dx := int(float64(r.W)*coeff-float64(r.W)) / 2
	dy := int(float64(r.H)*coeff-float64(r.H)) / 2
	return r.Inflate(dx, dy)
}

// Shift translates the rectangle.
func (r Rect) Shift(dx, dy int) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W, H: r.H}
}

// Translate moves the rectangle by the given offset point.
func (r Rect) Translate(p image.Point) Rect {
	return r.Shift(p.X, p.Y)
}

// FromCenter builds a rectangle of size (w, h) centred on (cx, cy). Values
// are rounded half to even.
func FromCenter(cx, cy, w, h float64) Rect {
	return Rect{
		X: int(math.RoundToEven(cx - w*0.5)),
		Y: int(math.RoundToEven(cy - h*0.5)),
		W: int(math.RoundToEven(w)),
		H: int(math.RoundToEven(h)),
	}
}

// Clip returns r restricted to a frame of the given size.
func (r Rect) Clip(frame image.Point) Rect {
	return r.Intersect(Rect{W: frame.X, H: frame.Y})
}

// String implements fmt.Stringer.
func (r Rect) String() string {
	return fmt.Sprintf("{%d, %d, %dx%d}", r.X, r.Y, r.W, r.H)
}
