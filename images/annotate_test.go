package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPalette(t *testing.T) {
	palette := NewPalette(80)
	require.Len(t, palette, 80)

	seen := make(map[color.RGBA]bool)
	for _, c := range palette {
		assert.Equal(t, uint8(255), c.A)
		seen[c] = true
	}
	assert.Len(t, seen, 80, "every class gets its own colour")

	assert.Equal(t, palette, NewPalette(80), "palettes are deterministic")
	assert.Nil(t, NewPalette(0))
}

func TestPalette_Color(t *testing.T) {
	palette := NewPalette(3)

	assert.Equal(t, palette[1], palette.Color(1))
	assert.Equal(t, palette[1], palette.Color(4))
	assert.Equal(t, palette[2], palette.Color(-1))
	assert.Equal(t, DefaultBoxColor, Palette(nil).Color(5))
}

func TestLabelText(t *testing.T) {
	assert.Equal(t, "person: 0.87", LabelText("person", 0.8712))
	assert.Equal(t, "class 500: 1.00", LabelText("class 500", 1))
}

func TestClipRect(t *testing.T) {
	bounds := image.Rect(0, 0, 640, 480)

	tests := []struct {
		name     string
		box      BoundingBox
		expected image.Rectangle
	}{
		{
			name:     "inside",
			box:      BoundingBox{Left: 10, Top: 20, Width: 100, Height: 50},
			expected: image.Rect(10, 20, 110, 70),
		},
		{
			name:     "crosses the left and bottom edges",
			box:      BoundingBox{Left: -5, Top: 400, Width: 20, Height: 200},
			expected: image.Rect(0, 400, 15, 480),
		},
		{
			name:     "outside",
			box:      BoundingBox{Left: 700, Top: 10, Width: 10, Height: 10},
			expected: image.Rectangle{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClipRect(tt.box, bounds)
			if tt.expected.Empty() {
				assert.True(t, got.Empty())
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLabelOrigin(t *testing.T) {
	assert.Equal(t, image.Pt(10, 95), LabelOrigin(image.Rect(10, 100, 50, 150), 12))
	assert.Equal(t, image.Pt(10, 20), LabelOrigin(image.Rect(10, 3, 50, 150), 12), "label moves inside the box at the top edge")
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path     string
		expected ImageFormat
		wantErr  bool
	}{
		{path: "frame-1.jpg", expected: FormatJPEG},
		{path: "frame-1.JPEG", expected: FormatJPEG},
		{path: "a/b/c.png", expected: FormatPNG},
		{path: "c.bmp", expected: FormatBMP},
		{path: "c.gif", wantErr: true},
		{path: "c.mp4", wantErr: true},
		{path: "noext", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatFromPath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIsVideoPath(t *testing.T) {
	assert.True(t, IsVideoPath("clip.mp4"))
	assert.True(t, IsVideoPath("clip.MOV"))
	assert.False(t, IsVideoPath("clip.jpg"))
	assert.False(t, IsVideoPath("clip"))
}

func TestTrackCaption(t *testing.T) {
	assert.Equal(t, "#12", TrackText(12))
	assert.Equal(t, image.Pt(15, 145), TrackOrigin(image.Rect(10, 100, 50, 150)))
}
