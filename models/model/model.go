// Package model - Metadata describing a detection model's input and output tensors.
package model

import (
	"image"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model/preprocess"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Name is the unique identifier of a model.
type Name string

const (
	// ModelNameYOLO11n is the nano YOLO11 detector.
	ModelNameYOLO11n Name = "yolo11n"
	// ModelNameYOLOv8n is the nano YOLOv8 detector, which shares YOLO11's output format.
	ModelNameYOLOv8n Name = "yolov8n"
	// ModelNameCustom is any other model with the same row format.
	ModelNameCustom Name = "custom"
)

// boxFields is the number of box values that precede the class scores in every output row.
const boxFields = 4

// Config is everything known about a model before it runs: where it lives, what it takes in
// and how its output is laid out. It is read-only once built.
type Config struct {
	Name   Name               `json:"name" yaml:"name"`
	Family models.ModelFamily `json:"family" yaml:"family"`
	Path   string             `json:"path" yaml:"path"`
	// Names of the input and output tensors.
	InputName  string `json:"input_name" yaml:"input_name"`
	OutputName string `json:"output_name" yaml:"output_name"`
	// InputSize is the model input in pixels (width, height).
	InputSize image.Point `json:"input_size" yaml:"input_size"`
	// NumClasses is the number of class scores per output row.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// Layout is the physical arrangement of the output tensor.
	Layout postprocess.Layout `json:"layout" yaml:"layout"`
	// PixelCoords is set when boxes are reported in input pixels rather than normalized.
	PixelCoords bool `json:"pixel_coords" yaml:"pixel_coords"`
	// Rows is the number of output rows, or 0 when unknown until the first run.
	Rows int `json:"rows" yaml:"rows"`
}

// YOLO11n returns the configuration of an Ultralytics YOLO11n ONNX export: a [1, 3, 640, 640]
// input named "images" and a [1, 84, 8400] output named "output0" with boxes in input pixels.
//
// Arguments:
//   - path: Location of the .onnx file.
//
// Returns:
//   - Config: The model configuration.
//
// @example
// cfg := YOLO11n("models/yolo11n.onnx")
// fmt.Println(cfg.RowLength()) // 84
func YOLO11n(path string) Config {
	return Config{
		Name:        ModelNameYOLO11n,
		Family:      models.ModelFamilyYOLO,
		Path:        path,
		InputName:   "images",
		OutputName:  "output0",
		InputSize:   image.Pt(640, 640),
		NumClasses:  80,
		Layout:      postprocess.LayoutChannelMajor,
		PixelCoords: true,
		Rows:        8400,
	}
}

// RowLength returns the number of values in one output row.
func (c Config) RowLength() int {
	return boxFields + c.NumClasses
}

// InputShape returns the NCHW input tensor shape.
func (c Config) InputShape() []int64 {
	return []int64{1, 3, int64(c.InputSize.Y), int64(c.InputSize.X)}
}

// OutputShape returns the output tensor shape, or nil when the row count is unknown.
func (c Config) OutputShape() []int64 {
	if c.Rows <= 0 {
		return nil
	}
	if c.Layout == postprocess.LayoutChannelMajor {
		return []int64{1, int64(c.RowLength()), int64(c.Rows)}
	}
	return []int64{1, int64(c.Rows), int64(c.RowLength())}
}

// Preprocessing returns the preprocessing configuration for this model's input.
func (c Config) Preprocessing() *preprocess.Config {
	cfg := preprocess.YOLOConfig(c.InputSize.X, c.InputSize.Y)
	cfg.Name = string(c.Name)
	return cfg
}

// Postprocessing returns the decode configuration for a frame of the given size. Thresholds
// are left for the caller.
func (c Config) Postprocessing(frameWidth, frameHeight int) postprocess.Config {
	cfg := postprocess.Config{
		RowLength:   c.RowLength(),
		NumClasses:  c.NumClasses,
		FrameWidth:  frameWidth,
		FrameHeight: frameHeight,
	}
	if c.PixelCoords {
		cfg.InputSize = c.InputSize
	}
	return cfg
}

// Validate checks that the configuration describes a usable model.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("model path is empty")
	}
	if c.InputSize.X <= 0 || c.InputSize.Y <= 0 {
		return errors.Errorf("invalid input size %dx%d", c.InputSize.X, c.InputSize.Y)
	}
	if c.NumClasses < 1 {
		return errors.Errorf("model needs at least one class, got %d", c.NumClasses)
	}
	if c.Layout != postprocess.LayoutRowMajor && c.Layout != postprocess.LayoutChannelMajor {
		return errors.Errorf("unknown output layout %v", c.Layout)
	}
	return nil
}
