// Package postprocess - Turns raw detection model output into a clean set of detections.
package postprocess

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models"
)

// boxFields is the number of leading box values (cx, cy, w, h) in every row.
const boxFields = 4

// Candidate is a decoded detection that has not been filtered or suppressed yet.
type Candidate struct {
	// The bounding box in frame pixel coordinates.
	Box images.BoundingBox `json:"box" yaml:"box"`
	// Index of the winning class.
	ClassID int `json:"class_id" yaml:"class_id"`
	// Score of the winning class, in [0, 1].
	Confidence float32 `json:"confidence" yaml:"confidence"`
}

// Detection is a candidate that survived filtering and suppression.
type Detection Candidate

// Label resolves the class name through the label table.
func (d Detection) Label(classes models.OutputClassSet) string {
	return classes.Name(d.ClassID)
}

// OutputLayout declares how many rows to decode and how each row is composed.
type OutputLayout struct {
	// Number of rows to decode.
	RowCount int
	// Values per row, which must equal 4 + NumClasses.
	RowLength int
	// Number of class scores per row.
	NumClasses int
	// When non-zero, box values are in model input pixels and are normalized by this size
	// before being scaled to the frame. YOLO ONNX exports report boxes this way.
	InputSize image.Point
}

// Validate checks the layout against itself and against the tensor.
func (l OutputLayout) Validate(raw *RawTensor) error {
	if raw == nil {
		return errors.Wrap(ErrInvalidInput, "raw tensor is nil")
	}
	if l.NumClasses < 1 {
		return errors.Wrapf(ErrInvalidInput, "need at least one class, got %d", l.NumClasses)
	}
	if l.RowLength != boxFields+l.NumClasses {
		return errors.Wrapf(ErrInvalidInput,
			"row length %d does not match 4 box values + %d classes", l.RowLength, l.NumClasses)
	}
	if l.RowLength != raw.Stride() {
		return errors.Wrapf(ErrInvalidInput,
			"row length %d does not match tensor stride %d", l.RowLength, raw.Stride())
	}
	if l.RowCount < 0 {
		return errors.Wrapf(ErrInvalidInput, "negative row count %d", l.RowCount)
	}
	if l.RowCount > raw.Rows() {
		return errors.Wrapf(ErrInvalidInput,
			"%d rows of %d values need %d values, tensor holds %d",
			l.RowCount, l.RowLength, l.RowCount*l.RowLength, raw.Len())
	}
	if l.InputSize.X < 0 || l.InputSize.Y < 0 {
		return errors.Wrapf(ErrInvalidInput, "negative input size %v", l.InputSize)
	}

	return nil
}

// Decode interprets the first l.RowCount rows of raw as candidates.
//
// For every row the class is the index of the highest score among the l.NumClasses scores
// (the first one wins a tie) and the confidence is that score, clamped to [0, 1] with NaN
// read as 0. The box is converted from center form to frame pixels with images.ToPixelBox.
// No filtering happens here: the result has exactly l.RowCount candidates in row order.
//
// Arguments:
//   - raw: The model output.
//   - l: The declared row layout.
//   - frameWidth: Width of the original frame in pixels.
//   - frameHeight: Height of the original frame in pixels.
//
// Returns:
//   - []Candidate: One candidate per row.
//   - error: ErrInvalidInput when the layout does not match the tensor or the frame is empty.
//
// @example
//
//	candidates, err := Decode(raw, OutputLayout{
//	    RowCount:   raw.Rows(),
//	    RowLength:  84,
//	    NumClasses: 80,
//	    InputSize:  image.Pt(640, 640),
//	}, 1280, 720)
func Decode(raw *RawTensor, l OutputLayout, frameWidth, frameHeight int) ([]Candidate, error) {
	if err := l.Validate(raw); err != nil {
		return nil, err
	}
	if frameWidth <= 0 || frameHeight <= 0 {
		return nil, errors.Wrapf(ErrInvalidInput, "frame size %dx%d must be positive", frameWidth, frameHeight)
	}

	scaleX, scaleY := float32(1), float32(1)
	if l.InputSize.X > 0 && l.InputSize.Y > 0 {
		scaleX = 1 / float32(l.InputSize.X)
		scaleY = 1 / float32(l.InputSize.Y)
	}

	candidates := make([]Candidate, 0, l.RowCount)
	row := make([]float32, l.RowLength)

	for i := 0; i < l.RowCount; i++ {
		var err error
		if row, err = raw.Row(i, row); err != nil {
			return nil, err
		}

		classID, score := argmax(row[boxFields:])

		candidates = append(candidates, Candidate{
			Box: images.ToPixelBox(
				row[0]*scaleX, row[1]*scaleY,
				row[2]*scaleX, row[3]*scaleY,
				frameWidth, frameHeight,
			),
			ClassID:    classID,
			Confidence: clampScore(score),
		})
	}

	return candidates, nil
}

// argmax returns the index and value of the largest score. NaN never wins.
func argmax(scores []float32) (int, float32) {
	best := 0
	bestScore := scores[0]
	for i := 1; i < len(scores); i++ {
		if scores[i] > bestScore || (math32.IsNaN(bestScore) && !math32.IsNaN(scores[i])) {
			best = i
			bestScore = scores[i]
		}
	}
	return best, bestScore
}

func clampScore(s float32) float32 {
	switch {
	case math32.IsNaN(s), s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
