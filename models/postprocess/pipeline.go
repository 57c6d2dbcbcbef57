package postprocess

import (
	"image"

	"github.com/pkg/errors"
)

// Config holds everything Detect needs to turn one raw tensor into detections.
type Config struct {
	// Values per row (4 + NumClasses).
	RowLength int `json:"row_length" yaml:"row_length"`
	// Number of class scores per row.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// Dimensions of the frame the detections are reported in.
	FrameWidth  int `json:"frame_width" yaml:"frame_width"`
	FrameHeight int `json:"frame_height" yaml:"frame_height"`
	// Minimum confidence kept, inclusive.
	ConfThreshold float32 `json:"conf_threshold" yaml:"conf_threshold"`
	// IoU above which the weaker of two boxes is suppressed.
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold"`
	// Model input size when boxes are reported in input pixels; zero for normalized boxes.
	InputSize image.Point `json:"input_size" yaml:"input_size"`
	// Suppress across classes instead of within each class.
	ClassAgnostic bool `json:"class_agnostic" yaml:"class_agnostic"`
	// Restricts the result to these class ids; empty keeps all classes.
	RelevantClasses map[int]bool `json:"relevant_classes" yaml:"relevant_classes"`
	// Number of class groups suppressed concurrently.
	NMSWorkers int `json:"nms_workers" yaml:"nms_workers"`
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if !(c.ConfThreshold >= 0 && c.ConfThreshold <= 1) {
		return errors.Wrapf(ErrInvalidConfig, "confidence threshold %v must be in [0, 1]", c.ConfThreshold)
	}
	return ValidateNMSConfig(c.nmsConfig())
}

func (c Config) nmsConfig() NMSConfig {
	return NMSConfig{
		IoUThreshold: c.NMSThreshold,
		ClassAware:   !c.ClassAgnostic,
		NumWorkers:   c.NMSWorkers,
	}
}

// Detect runs the whole decode and suppression pipeline over one frame's output.
//
// Every complete row of raw is decoded, candidates under cfg.ConfThreshold are dropped, the
// relevant-class restriction is applied and the rest goes through NMS. Detect keeps no state
// and may be called concurrently on distinct tensors. No detections is a valid result.
//
// Arguments:
//   - raw: The model output for one frame.
//   - cfg: Layout, frame size and thresholds.
//
// Returns:
//   - []Detection: The final detections, ordered as ApplyNMS orders them.
//   - error: ErrInvalidConfig for bad thresholds, ErrInvalidInput for a bad tensor or frame.
//
// @example
//
//	detections, err := Detect(raw, Config{
//	    RowLength:     84,
//	    NumClasses:    80,
//	    FrameWidth:    1280,
//	    FrameHeight:   720,
//	    ConfThreshold: 0.25,
//	    NMSThreshold:  0.45,
//	})
func Detect(raw *RawTensor, cfg Config) ([]Detection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.Wrap(ErrInvalidInput, "raw tensor is nil")
	}

	candidates, err := Decode(raw, OutputLayout{
		RowCount:   raw.Rows(),
		RowLength:  cfg.RowLength,
		NumClasses: cfg.NumClasses,
		InputSize:  cfg.InputSize,
	}, cfg.FrameWidth, cfg.FrameHeight)
	if err != nil {
		return nil, err
	}

	candidates = FilterByConfidence(candidates, cfg.ConfThreshold)
	candidates = FilterByClass(candidates, cfg.RelevantClasses)

	return ApplyNMS(candidates, cfg.nmsConfig())
}
