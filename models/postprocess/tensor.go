package postprocess

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Layout describes how detection rows are laid out in a flat output buffer.
type Layout int

const (
	// LayoutRowMajor stores one detection per row: [rows][stride].
	LayoutRowMajor Layout = iota
	// LayoutChannelMajor stores one field per row: [stride][rows]. This is the native layout of
	// YOLOv8/YOLO11 ONNX exports, e.g. [1, 84, 8400].
	LayoutChannelMajor
)

func (l Layout) String() string {
	switch l {
	case LayoutRowMajor:
		return "row_major"
	case LayoutChannelMajor:
		return "channel_major"
	default:
		return fmt.Sprintf("layout(%d)", int(l))
	}
}

// ParseLayout parses the names produced by Layout.String.
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "row_major", "row-major", "rows":
		return LayoutRowMajor, nil
	case "channel_major", "channel-major", "channels":
		return LayoutChannelMajor, nil
	default:
		return 0, errors.Wrapf(ErrInvalidConfig, "unknown layout %q", s)
	}
}

// RawTensor is a read-only view over a model's detection output.
//
// Every logical row holds 4 box values (cx, cy, w, h) followed by one score per class. The
// number of values per row (the stride) is part of the tensor and never assumed. All access is
// bounds-checked; nothing outside the buffer is ever read.
//
// The values are held by a [rows, stride] dense tensor. Channel-major input is transposed into
// that shape once, when the tensor is built.
type RawTensor struct {
	dense  *tensor.Dense
	rows   int
	stride int
	layout Layout
}

// NewRawTensor wraps a flat output buffer.
//
// The buffer is copied, so the caller may reuse data afterwards. The buffer length must be an
// exact multiple of stride in both layouts: a remainder means the stride does not describe the
// buffer.
//
// Arguments:
//   - data: The flat output values.
//   - stride: Number of values per logical row (4 + number of classes).
//   - layout: The physical arrangement of data.
//
// Returns:
//   - *RawTensor: The wrapped tensor.
//   - error: ErrInvalidInput if stride is not positive or the length does not fit the layout.
//
// @example
// raw, err := NewRawTensor(output, 84, LayoutChannelMajor)
//
//	if err != nil {
//	    return err
//	}
//
// fmt.Println(raw.Rows()) // 8400
func NewRawTensor(data []float32, stride int, layout Layout) (*RawTensor, error) {
	if stride < 1 {
		return nil, errors.Wrapf(ErrInvalidInput, "stride must be positive, got %d", stride)
	}
	if layout != LayoutRowMajor && layout != LayoutChannelMajor {
		return nil, errors.Wrapf(ErrInvalidInput, "unknown layout %v", layout)
	}
	if len(data)%stride != 0 {
		return nil, errors.Wrapf(ErrInvalidInput,
			"%v buffer of %d values is not a multiple of stride %d", layout, len(data), stride)
	}

	rows := len(data) / stride
	t := &RawTensor{
		rows:   rows,
		stride: stride,
		layout: layout,
	}
	if rows == 0 {
		return t, nil
	}

	owned := make([]float32, len(data))
	copy(owned, data)

	if layout == LayoutRowMajor {
		t.dense = tensor.New(tensor.WithShape(rows, stride), tensor.WithBacking(owned))
		return t, nil
	}

	t.dense = tensor.New(tensor.WithShape(stride, rows), tensor.WithBacking(owned))
	if err := t.dense.T(); err != nil {
		return nil, errors.Wrap(err, "failed to transpose channel-major output")
	}
	if err := t.dense.Transpose(); err != nil {
		return nil, errors.Wrap(err, "failed to transpose channel-major output")
	}

	return t, nil
}

// RawTensorFromShape wraps an engine output using its reported shape.
//
// Leading dimensions of size 1 (the batch) are dropped; what remains must be two dimensions.
// With LayoutRowMajor the shape is read as [rows, stride], with LayoutChannelMajor as
// [stride, rows].
//
// Arguments:
//   - data: The flat output values.
//   - shape: The output shape, e.g. [1, 84, 8400].
//   - layout: The physical arrangement of data.
//
// Returns:
//   - *RawTensor: The wrapped tensor.
//   - error: ErrInvalidInput if the shape is not two-dimensional or does not match len(data).
func RawTensorFromShape(data []float32, shape []int64, layout Layout) (*RawTensor, error) {
	dims := shape
	for len(dims) > 2 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return nil, errors.Wrapf(ErrInvalidInput, "expected a 2-D detection output, got shape %v", shape)
	}
	if dims[0] < 0 || dims[1] < 0 {
		return nil, errors.Wrapf(ErrInvalidInput, "shape %v has dynamic dimensions", shape)
	}

	if n := dims[0] * dims[1]; n != int64(len(data)) {
		return nil, errors.Wrapf(ErrInvalidInput, "shape %v holds %d values, buffer has %d", shape, n, len(data))
	}

	stride := int(dims[1])
	if layout == LayoutChannelMajor {
		stride = int(dims[0])
	}

	return NewRawTensor(data, stride, layout)
}

// Rows returns the number of complete logical rows.
func (t *RawTensor) Rows() int { return t.rows }

// Stride returns the number of values per logical row.
func (t *RawTensor) Stride() int { return t.stride }

// Len returns the number of values held.
func (t *RawTensor) Len() int { return t.rows * t.stride }

// Layout returns the physical layout.
func (t *RawTensor) Layout() Layout { return t.layout }

// At returns the value at column col of logical row row.
func (t *RawTensor) At(row, col int) (float32, error) {
	if row < 0 || row >= t.rows || col < 0 || col >= t.stride {
		return 0, errors.Wrapf(ErrInvalidInput,
			"index (%d, %d) out of range for %d rows of stride %d", row, col, t.rows, t.stride)
	}

	v, err := t.dense.At(row, col)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidInput, "reading (%d, %d): %v", row, col, err)
	}

	return v.(float32), nil
}

// Row copies logical row row into dst and returns it. dst is grown when shorter than Stride,
// so a single buffer can be reused across rows.
func (t *RawTensor) Row(row int, dst []float32) ([]float32, error) {
	if row < 0 || row >= t.rows {
		return nil, errors.Wrapf(ErrInvalidInput, "row %d out of range for %d rows", row, t.rows)
	}
	if cap(dst) < t.stride {
		dst = make([]float32, t.stride)
	}
	dst = dst[:t.stride]

	copy(dst, t.dense.Float32s()[row*t.stride:(row+1)*t.stride])

	return dst, nil
}
