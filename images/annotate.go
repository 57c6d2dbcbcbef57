package images

import (
	"fmt"
	"image"
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// labelOffset is the distance between a box's top edge and the baseline of its label.
const labelOffset = 5

// DefaultBoxColor is used when a palette has no colours.
var DefaultBoxColor = color.RGBA{G: 255, A: 255}

// Palette assigns each class id a stable colour.
type Palette []color.RGBA

// NewPalette returns n colours with evenly spaced hues.
//
// Arguments:
//   - n: The number of classes.
//
// Returns:
//   - Palette: n opaque colours; nil when n is not positive.
//
// @example
// palette := NewPalette(80)
// c := palette.Color(detection.ClassID)
func NewPalette(n int) Palette {
	if n <= 0 {
		return nil
	}

	palette := make(Palette, n)
	for i := range palette {
		hue := 360 * float64(i) / float64(n)
		r, g, b := colorful.Hsv(hue, 0.85, 0.95).RGB255()
		palette[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return palette
}

// Color returns the colour of classID. Ids beyond the palette wrap around.
func (p Palette) Color(classID int) color.RGBA {
	if len(p) == 0 {
		return DefaultBoxColor
	}
	idx := classID % len(p)
	if idx < 0 {
		idx += len(p)
	}
	return p[idx]
}

// LabelText formats the caption drawn above a box, e.g. "person: 0.87".
func LabelText(name string, confidence float32) string {
	return fmt.Sprintf("%s: %.2f", name, confidence)
}

// ClipRect returns the drawable part of box within bounds. The result is empty when the box lies
// entirely outside.
func ClipRect(box BoundingBox, bounds image.Rectangle) image.Rectangle {
	return box.ToRect().Intersect(bounds)
}

// LabelOrigin returns the baseline origin of the caption for rect: just above its top-left corner,
// or just inside the box when that would leave the frame.
func LabelOrigin(rect image.Rectangle, textHeight int) image.Point {
	y := rect.Min.Y - labelOffset
	if y-textHeight < 0 {
		y = rect.Min.Y + textHeight + labelOffset
	}
	return image.Pt(rect.Min.X, y)
}

// TrackText returns the caption of a track id, e.g. "#12".
func TrackText(id int) string {
	return fmt.Sprintf("#%d", id)
}

// TrackOrigin returns the baseline origin of a track caption, just inside the bottom-left corner
// of rect.
func TrackOrigin(rect image.Rectangle) image.Point {
	return image.Pt(rect.Min.X+labelOffset, rect.Max.Y-labelOffset)
}
