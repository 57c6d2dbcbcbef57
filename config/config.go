// Package config - Loads and validates the detector configuration file.
package config

import (
	"bytes"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detect/controller"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/logging"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/tracking"
)

// InputType represents the type of input being processed.
type InputType int

const (
	// InputCamera reads frames from a capture device.
	InputCamera InputType = iota
	// InputVideo reads frames from a video file.
	InputVideo
	// InputImage reads a single still image.
	InputImage
	// InputDirectory reads the still images of a directory in frame order.
	InputDirectory
)

func (t InputType) String() string {
	switch t {
	case InputCamera:
		return "camera"
	case InputVideo:
		return "video"
	case InputImage:
		return "image"
	case InputDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Config is the complete configuration of a detection run.
type Config struct {
	Model     ModelConfig              `json:"model" yaml:"model"`
	Runtime   inference.SessionOptions `json:"runtime" yaml:"runtime"`
	Detection DetectionConfig          `json:"detection" yaml:"detection"`
	Input     InputConfig              `json:"input" yaml:"input"`
	Output    OutputConfig             `json:"output" yaml:"output"`
	Log       LogConfig                `json:"log" yaml:"log"`
	Tracking  TrackingConfig           `json:"tracking" yaml:"tracking"`
	Profiling ProfilingConfig          `json:"profiling" yaml:"profiling"`
}

// ModelConfig describes the model file and its output format.
type ModelConfig struct {
	// Path is the .onnx model file.
	Path string `json:"path" yaml:"path"`
	// Labels is a built-in label table ("yolo", "coco", "voc") or a label file path.
	Labels string `json:"labels" yaml:"labels"`
	// InputWidth and InputHeight are the model input size in pixels.
	InputWidth  int `json:"input_width" yaml:"input_width"`
	InputHeight int `json:"input_height" yaml:"input_height"`
	// RowLength is the number of values per output row. When set, NumClasses may be left 0.
	RowLength int `json:"row_length" yaml:"row_length"`
	// NumClasses is the number of class scores per output row.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// Layout is "row_major" or "channel_major".
	Layout string `json:"layout" yaml:"layout"`
	// PixelCoords is set when the model reports boxes in input pixels.
	PixelCoords bool `json:"pixel_coords" yaml:"pixel_coords"`
	// Rows is the number of output rows; 0 reads it from the model file.
	Rows int `json:"rows" yaml:"rows"`
}

// DetectionConfig holds the decode and suppression parameters.
type DetectionConfig struct {
	ConfidenceThreshold float32  `json:"confidence_threshold" yaml:"confidence_threshold"`
	NMSThreshold        float32  `json:"nms_threshold" yaml:"nms_threshold"`
	ClassAgnostic       bool     `json:"class_agnostic" yaml:"class_agnostic"`
	RelevantClasses     []string `json:"relevant_classes" yaml:"relevant_classes"`
	NMSWorkers          int      `json:"nms_workers" yaml:"nms_workers"`
	// SkipErrors logs failed frames and continues instead of ending the run.
	SkipErrors bool `json:"skip_errors" yaml:"skip_errors"`
}

// InputConfig selects the frame source. At most one of Video, Image and Directory is set; when
// none is, frames come from Device.
type InputConfig struct {
	Device     int    `json:"device" yaml:"device"`
	Video      string `json:"video" yaml:"video"`
	Image      string `json:"image" yaml:"image"`
	Directory  string `json:"directory" yaml:"directory"`
	DropFrames bool   `json:"drop_frames" yaml:"drop_frames"`
	MaxFrames  int    `json:"max_frames" yaml:"max_frames"`
}

// OutputConfig selects what happens to annotated frames.
type OutputConfig struct {
	ShowWindow bool   `json:"show_window" yaml:"show_window"`
	OutputDir  string `json:"output_dir" yaml:"output_dir"`
	SaveFrames bool   `json:"save_frames" yaml:"save_frames"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is a zap level name such as "debug" or "info".
	Level string `json:"level" yaml:"level"`
	// Format is "json" or "console".
	Format string `json:"format" yaml:"format"`
}

// TrackingConfig configures track ids across frames.
type TrackingConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	IoUThreshold  float32 `json:"iou_threshold" yaml:"iou_threshold"`
	MaxMissed     int     `json:"max_missed" yaml:"max_missed"`
	ClassAgnostic bool    `json:"class_agnostic" yaml:"class_agnostic"`
}

// ProfilingConfig configures periodic runtime reports.
type ProfilingConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval"`
}

// Default returns the configuration of a YOLO11n model on camera 0 with a confidence threshold
// of 0.25 and an NMS threshold of 0.45.
func Default() Config {
	yolo := model.YOLO11n("yolo11n.onnx")
	return Config{
		Model: ModelConfig{
			Path:        yolo.Path,
			Labels:      string(models.ModelFamilyYOLO),
			InputWidth:  yolo.InputSize.X,
			InputHeight: yolo.InputSize.Y,
			NumClasses:  yolo.NumClasses,
			Layout:      yolo.Layout.String(),
			PixelCoords: yolo.PixelCoords,
		},
		Detection: DetectionConfig{
			ConfidenceThreshold: 0.25,
			NMSThreshold:        0.45,
			NMSWorkers:          1,
		},
		Output: OutputConfig{
			OutputDir: "detections",
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatConsole,
		},
		Tracking: TrackingConfig{
			IoUThreshold: tracking.DefaultConfig().IoUThreshold,
			MaxMissed:    tracking.DefaultConfig().MaxMissed,
		},
		Profiling: ProfilingConfig{
			ReportInterval: 10 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep their default value.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - Config: The configuration. It is not validated.
//   - error: An error if the file cannot be read or parsed.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults. Unknown keys are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "failed to parse config")
	}
	return cfg, nil
}

// InputType returns the kind of frame source selected by the input section.
func (c InputConfig) InputType() InputType {
	switch {
	case c.Video != "":
		return InputVideo
	case c.Image != "":
		return InputImage
	case c.Directory != "":
		return InputDirectory
	default:
		return InputCamera
	}
}

// Validate checks thresholds, the model description and the input selection.
func (c Config) Validate() error {
	if _, err := c.ModelConfig(); err != nil {
		return err
	}
	if err := validateFile(c.Model.Path, []string{".onnx"}); err != nil {
		return errors.Wrap(err, "model validation error")
	}

	detection := postprocess.Config{
		ConfThreshold: c.Detection.ConfidenceThreshold,
		NMSThreshold:  c.Detection.NMSThreshold,
		NMSWorkers:    c.Detection.NMSWorkers,
	}
	if err := detection.Validate(); err != nil {
		return err
	}
	if c.Detection.NMSWorkers < 0 {
		return errors.Errorf("detection.nms_workers must not be negative, got %d", c.Detection.NMSWorkers)
	}

	if err := c.Input.Validate(); err != nil {
		return err
	}

	if c.Output.SaveFrames && c.Output.OutputDir == "" {
		return errors.New("output.save_frames requires output.output_dir")
	}

	if _, err := logging.NewLoggerConfig(c.Log.Level, c.Log.Format); err != nil {
		return errors.Wrap(err, "invalid log section")
	}

	if c.Tracking.Enabled {
		if err := c.TrackerConfig().Validate(); err != nil {
			return errors.Wrap(err, "invalid tracking section")
		}
	}

	if c.Profiling.Enabled && c.Profiling.ReportInterval <= 0 {
		return errors.Errorf("profiling.report_interval must be positive, got %s", c.Profiling.ReportInterval)
	}
	return nil
}

// Validate checks that at most one file input is selected and that it exists with a supported
// extension.
func (c InputConfig) Validate() error {
	selected := 0
	for _, v := range []string{c.Video, c.Image, c.Directory} {
		if v != "" {
			selected++
		}
	}
	if selected > 1 {
		return errors.New("only one of input.video, input.image and input.directory may be set")
	}
	if c.MaxFrames < 0 {
		return errors.Errorf("input.max_frames must not be negative, got %d", c.MaxFrames)
	}

	switch c.InputType() {
	case InputCamera:
		if c.Device < 0 {
			return errors.Errorf("invalid capture device %d", c.Device)
		}
	case InputVideo:
		if err := validateFile(c.Video, images.VideoExtensions); err != nil {
			return errors.Wrap(err, "video validation error")
		}
	case InputImage:
		if err := validateFile(c.Image, images.ImageExtensions); err != nil {
			return errors.Wrap(err, "image validation error")
		}
	case InputDirectory:
		info, err := os.Stat(c.Directory)
		if err != nil {
			return errors.Wrapf(err, "directory validation error")
		}
		if !info.IsDir() {
			return errors.Errorf("not a directory: %s", c.Directory)
		}
	}
	return nil
}

// ModelConfig builds the model description. Rows stays 0 unless configured, so the caller reads
// it from the model file.
func (c Config) ModelConfig() (model.Config, error) {
	m := c.Model

	layout, err := postprocess.ParseLayout(m.Layout)
	if err != nil {
		return model.Config{}, err
	}

	numClasses := m.NumClasses
	switch {
	case m.RowLength > 0 && numClasses == 0:
		numClasses = m.RowLength - 4
	case m.RowLength > 0 && m.RowLength != numClasses+4:
		return model.Config{}, errors.Errorf("model.row_length %d does not match %d classes", m.RowLength, numClasses)
	}

	cfg := model.YOLO11n(m.Path)
	if numClasses != cfg.NumClasses || m.Labels != string(models.ModelFamilyYOLO) {
		cfg.Name = model.ModelNameCustom
	}
	cfg.InputSize = image.Pt(m.InputWidth, m.InputHeight)
	cfg.NumClasses = numClasses
	cfg.Layout = layout
	cfg.PixelCoords = m.PixelCoords
	cfg.Rows = m.Rows

	if err := cfg.Validate(); err != nil {
		return model.Config{}, errors.Wrap(err, "invalid model section")
	}
	return cfg, nil
}

// DetectorConfig builds the detector configuration for a completed model description.
//
// Arguments:
//   - m: The model description, usually ModelConfig completed from the model file.
//   - classes: The label table used to resolve relevant class names.
//
// Returns:
//   - detector.Config: The detector configuration.
//   - error: An error if a relevant class is not in the label table.
func (c Config) DetectorConfig(m model.Config, classes models.OutputClassSet) (detector.Config, error) {
	var relevant map[int]bool
	if len(c.Detection.RelevantClasses) > 0 {
		ids, err := classes.ClassIDs(c.Detection.RelevantClasses)
		if err != nil {
			return detector.Config{}, errors.Wrap(err, "invalid detection.relevant_classes")
		}
		relevant = ids
	}

	return detector.Config{
		Model:               m,
		ConfidenceThreshold: c.Detection.ConfidenceThreshold,
		NMSThreshold:        c.Detection.NMSThreshold,
		ClassAgnostic:       c.Detection.ClassAgnostic,
		RelevantClasses:     relevant,
		NMSWorkers:          c.Detection.NMSWorkers,
	}, nil
}

// ControllerConfig builds the frame loop configuration.
func (c Config) ControllerConfig() controller.Config {
	policy := controller.ErrorPolicyStop
	if c.Detection.SkipErrors {
		policy = controller.ErrorPolicySkip
	}
	return controller.Config{
		DropFrames:  c.Input.DropFrames,
		ErrorPolicy: policy,
		MaxFrames:   c.Input.MaxFrames,
	}
}

// TrackerConfig builds the tracker configuration.
func (c Config) TrackerConfig() tracking.Config {
	return tracking.Config{
		IoUThreshold:  c.Tracking.IoUThreshold,
		MaxMissed:     c.Tracking.MaxMissed,
		ClassAgnostic: c.Tracking.ClassAgnostic,
	}
}

// validateFile checks if the file exists and has a supported extension.
func validateFile(filePath string, supportedExtensions []string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return errors.Wrapf(err, "file not found: %s", filePath)
	}
	if info.IsDir() {
		return errors.Errorf("%s is a directory", filePath)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	for _, supportedExt := range supportedExtensions {
		if ext == supportedExt {
			return nil
		}
	}

	return errors.Errorf("unsupported file extension: %s. Supported extensions: %v", ext, supportedExtensions)
}
