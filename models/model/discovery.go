package model

import (
	"image"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models/postprocess"
)

// TensorInfo names a model input or output and its declared shape. Dynamic dimensions are
// negative.
type TensorInfo struct {
	Name  string  `json:"name" yaml:"name"`
	Shape []int64 `json:"shape" yaml:"shape"`
}

// InferOutputLayout works out the row layout of a detection output from its shape.
//
// The shape, once the batch dimension is dropped, is two-dimensional and one of its
// dimensions is the row length (4 + classes). When numClasses is known it decides which
// dimension that is. Otherwise the smaller dimension is taken as the row length, since
// detectors emit far more rows than classes.
//
// Arguments:
//   - shape: The output shape, e.g. [1, 84, 8400].
//   - numClasses: The expected class count, or 0 when unknown.
//
// Returns:
//   - postprocess.Layout: The physical layout.
//   - int: The number of rows.
//   - int: The number of classes.
//   - error: An error if the shape cannot hold detection rows.
//
// @example
// layout, rows, classes, err := InferOutputLayout([]int64{1, 84, 8400}, 0)
// // layout == postprocess.LayoutChannelMajor, rows == 8400, classes == 80
func InferOutputLayout(shape []int64, numClasses int) (postprocess.Layout, int, int, error) {
	dims := shape
	for len(dims) > 2 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return 0, 0, 0, errors.Errorf("expected a 2-D detection output, got shape %v", shape)
	}
	first, second := int(dims[0]), int(dims[1])
	layout, rows, classes, err := inferDims(first, second, numClasses)
	if err != nil {
		return 0, 0, 0, errors.Wrapf(err, "shape %v", shape)
	}
	if rows < 0 {
		// Dynamic row count, known only once the model runs.
		rows = 0
	}
	return layout, rows, classes, nil
}

func inferDims(first, second, numClasses int) (postprocess.Layout, int, int, error) {
	if numClasses > 0 {
		rowLength := boxFields + numClasses
		switch {
		case first == rowLength:
			return postprocess.LayoutChannelMajor, second, numClasses, nil
		case second == rowLength:
			return postprocess.LayoutRowMajor, first, numClasses, nil
		default:
			return 0, 0, 0, errors.Errorf("no dimension of %d (4 + %d classes)", rowLength, numClasses)
		}
	}

	switch {
	case first > boxFields && (second <= 0 || first <= second):
		return postprocess.LayoutChannelMajor, second, first - boxFields, nil
	case second > boxFields:
		return postprocess.LayoutRowMajor, first, second - boxFields, nil
	default:
		return 0, 0, 0, errors.New("too small for detection rows")
	}
}

// ApplyIO fills in the tensor names, input size and output layout of c from the model's
// declared inputs and outputs. Values already set on c take precedence where the metadata is
// dynamic.
//
// Arguments:
//   - c: The configuration to complete.
//   - inputs: The model inputs; the first one is used.
//   - outputs: The model outputs; the first one is used.
//
// Returns:
//   - Config: The completed configuration.
//   - error: An error if the model has no inputs or outputs, or their shapes are unusable.
func ApplyIO(c Config, inputs, outputs []TensorInfo) (Config, error) {
	if len(inputs) == 0 || len(outputs) == 0 {
		return c, errors.Errorf("model has %d inputs and %d outputs, need at least one of each",
			len(inputs), len(outputs))
	}

	in := inputs[0]
	c.InputName = in.Name
	if len(in.Shape) != 4 {
		return c, errors.Errorf("input %q has shape %v, expected NCHW", in.Name, in.Shape)
	}
	if h, w := in.Shape[2], in.Shape[3]; h > 0 && w > 0 {
		c.InputSize = image.Pt(int(w), int(h))
	}

	out := outputs[0]
	c.OutputName = out.Name
	layout, rows, classes, err := InferOutputLayout(out.Shape, c.NumClasses)
	if err != nil {
		return c, errors.Wrapf(err, "output %q", out.Name)
	}
	c.Layout = layout
	c.NumClasses = classes
	if rows > 0 {
		c.Rows = rows
	}

	return c, nil
}
