// Package images - Geometry for detection boxes in image pixel space.
package images

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// BoundingBox is a rectangle in image pixel coordinates described by its
// top-left corner and its extent.
//
// Width and Height may be zero or negative when the model proposes a box that
// is degenerate or lies outside the frame. Such boxes are kept as-is; callers
// that draw them intersect with the frame bounds (see ToRect).
type BoundingBox struct {
	Left   float32 `json:"left" yaml:"left"`
	Top    float32 `json:"top" yaml:"top"`
	Width  float32 `json:"width" yaml:"width"`
	Height float32 `json:"height" yaml:"height"`
}

// Right returns the exclusive right edge.
func (b BoundingBox) Right() float32 {
	return b.Left + b.Width
}

// Bottom returns the exclusive bottom edge.
func (b BoundingBox) Bottom() float32 {
	return b.Top + b.Height
}

// Area returns the box area, or 0 when either extent is not positive.
func (b BoundingBox) Area() float32 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// ToRect converts the box to a canonical image.Rectangle.
//
// Fractional pixels are truncated, which is fine for drawing and cropping.
//
// Returns:
//   - image.Rectangle: The canonicalized integer rectangle.
//
// @example
// box := BoundingBox{Left: 10.7, Top: 20.2, Width: 100, Height: 50}
// rect := box.ToRect() // (10,20)-(110,70)
func (b BoundingBox) ToRect() image.Rectangle {
	return image.Rect(int(b.Left), int(b.Top), int(b.Right()), int(b.Bottom())).Canon()
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("(%.0f, %.0f) %.0fx%.0f", b.Left, b.Top, b.Width, b.Height)
}

// ToPixelBox converts a normalized center-form box into pixel space.
//
// The normalized values are relative to the model input and are typically in
// [0, 1]:
//
//	left   = (cx - w/2) * frameWidth
//	top    = (cy - h/2) * frameHeight
//	width  = w * frameWidth
//	height = h * frameHeight
//
// Every value is rounded to the nearest whole pixel (half away from zero), so
// float32 noise such as 255.99998 never shifts a box by a full pixel.
//
// Arguments:
//   - cx, cy: Normalized center of the box.
//   - w, h: Normalized width and height.
//   - frameWidth, frameHeight: Dimensions of the frame in pixels.
//
// Returns:
//   - BoundingBox: The box in pixel coordinates.
//
// @example
// box := ToPixelBox(0.5, 0.5, 0.2, 0.4, 640, 640)
// // box == BoundingBox{Left: 256, Top: 192, Width: 128, Height: 256}
func ToPixelBox(cx, cy, w, h float32, frameWidth, frameHeight int) BoundingBox {
	fw := float32(frameWidth)
	fh := float32(frameHeight)

	return BoundingBox{
		Left:   math32.Round((cx - w/2) * fw),
		Top:    math32.Round((cy - h/2) * fh),
		Width:  math32.Round(w * fw),
		Height: math32.Round(h * fh),
	}
}

// CalculateIoU returns the Intersection over Union of two boxes.
//
//	IoU = Area of Intersection / Area of Union
//
// The intersection is bounded by the larger of the two left/top edges and the
// smaller of the two right/bottom edges. Disjoint or merely touching boxes have
// no intersection and score 0. The union follows inclusion-exclusion:
//
//	Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
//
// A union of zero (two empty boxes) scores 0 rather than dividing by zero.
//
// Arguments:
//   - a: The first box.
//   - b: The second box.
//
// Returns:
//   - float32: A value in [0, 1].
//
// @example
// a := BoundingBox{Left: 0, Top: 0, Width: 10, Height: 10}
// b := BoundingBox{Left: 5, Top: 5, Width: 10, Height: 10}
// iou := CalculateIoU(a, b) // 25 / 175 = 0.142857
func CalculateIoU(a, b BoundingBox) float32 {
	ix1 := math32.Max(a.Left, b.Left)
	iy1 := math32.Max(a.Top, b.Top)
	ix2 := math32.Min(a.Right(), b.Right())
	iy2 := math32.Min(a.Bottom(), b.Bottom())

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0
	}
	interArea := interW * interH

	unionArea := a.Area() + b.Area() - interArea
	if unionArea <= 0 {
		return 0
	}

	iou := interArea / unionArea
	if iou > 1 {
		// Only reachable through float32 rounding on near-identical boxes.
		return 1
	}
	return iou
}
