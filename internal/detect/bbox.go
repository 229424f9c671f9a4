package detect

import (
	"image"
	"math"
)

// BBox is an axis-aligned bounding box in pixel space. X and Y are the
// top-left corner.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// BBoxFromCenter builds a box from its center and size.
func BBoxFromCenter(cx, cy, w, h float64) BBox {
	return BBox{X: cx - w/2, Y: cy - h/2, W: w, H: h}
}

// Center returns the box center.
func (b BBox) Center() (float64, float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Area returns W*H, or 0 for degenerate boxes.
func (b BBox) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Valid reports whether the box has finite coordinates and positive size.
func (b BBox) Valid() bool {
	for _, v := range [4]float64{b.X, b.Y, b.W, b.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.W > 0 && b.H > 0
}

// IoU returns the intersection-over-union of two boxes in [0, 1].
func (b BBox) IoU(o BBox) float64 {
	x1 := math.Max(b.X, o.X)
	y1 := math.Max(b.Y, o.Y)
	x2 := math.Min(b.X+b.W, o.X+o.W)
	y2 := math.Min(b.Y+b.H, o.Y+o.H)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Rect converts the box to an integer image.Rectangle, rounding outward.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X)),
		int(math.Floor(b.Y)),
		int(math.Ceil(b.X+b.W)),
		int(math.Ceil(b.Y+b.H)),
	)
}

// ClampTo returns the part of the box that lies inside bounds. The result may
// be degenerate when the box is entirely outside.
func (b BBox) ClampTo(bounds image.Rectangle) BBox {
	x1 := math.Max(b.X, float64(bounds.Min.X))
	y1 := math.Max(b.Y, float64(bounds.Min.Y))
	x2 := math.Min(b.X+b.W, float64(bounds.Max.X))
	y2 := math.Min(b.Y+b.H, float64(bounds.Max.Y))
	return BBox{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// NormalizedCenter maps the box center into [-1, 1]² relative to a frame of
// the given size. The origin is the frame center, +x right, +y down.
func (b BBox) NormalizedCenter(width, height int) (float64, float64) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	cx, cy := b.Center()
	hw, hh := float64(width)/2, float64(height)/2
	return clampUnit((cx - hw) / hw), clampUnit((cy - hh) / hh)
}

func clampUnit(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
