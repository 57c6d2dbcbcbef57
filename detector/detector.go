// Package detector - Runs one frame through preprocessing, inference and postprocessing.
package detector

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/model/preprocess"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
)

// Profiler operation names.
const (
	OperationPreprocess  = "preprocess"
	OperationInference   = "inference"
	OperationPostprocess = "postprocess"
)

// Config represents the configuration for the detector.
type Config struct {
	// Model describes the model's input and output tensors.
	Model model.Config
	// ConfidenceThreshold is the minimum confidence kept, inclusive.
	ConfidenceThreshold float32
	// NMSThreshold is the IoU above which the weaker of two boxes is suppressed.
	NMSThreshold float32
	// ClassAgnostic suppresses across classes instead of within each class.
	ClassAgnostic bool
	// RelevantClasses restricts results to these class ids; empty keeps all.
	RelevantClasses map[int]bool
	// NMSWorkers is the number of class groups suppressed concurrently.
	NMSWorkers int
}

// DefaultConfig returns a configuration for YOLO11n with a confidence threshold of 0.25 and an
// NMS threshold of 0.45.
func DefaultConfig(modelPath string) Config {
	return Config{
		Model:               model.YOLO11n(modelPath),
		ConfidenceThreshold: 0.25,
		NMSThreshold:        0.45,
		NMSWorkers:          1,
	}
}

// postprocessing returns the decode configuration for one frame.
func (c Config) postprocessing(frameWidth, frameHeight int) postprocess.Config {
	cfg := c.Model.Postprocessing(frameWidth, frameHeight)
	cfg.ConfThreshold = c.ConfidenceThreshold
	cfg.NMSThreshold = c.NMSThreshold
	cfg.ClassAgnostic = c.ClassAgnostic
	cfg.RelevantClasses = c.RelevantClasses
	cfg.NMSWorkers = c.NMSWorkers
	return cfg
}

// Timings records how long each stage of one detection took.
type Timings struct {
	Preprocess  time.Duration `json:"preprocess"`
	Inference   time.Duration `json:"inference"`
	Postprocess time.Duration `json:"postprocess"`
}

// Total returns the time spent across all stages.
func (t Timings) Total() time.Duration {
	return t.Preprocess + t.Inference + t.Postprocess
}

// Result is the outcome of detecting objects in one frame.
type Result struct {
	Detections  []postprocess.Detection `json:"detections"`
	FrameWidth  int                     `json:"frame_width"`
	FrameHeight int                     `json:"frame_height"`
	Timings     Timings                 `json:"timings"`
}

// Detector turns frames into detections with an inference engine.
//
// Detect may be called from several goroutines; concurrency is then bounded by the engine.
type Detector struct {
	config       Config
	engine       inference.Engine
	preprocessor *preprocess.Preprocessor
	profiler     *profiler.RuntimeProfiler
	logger       *zap.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithProfiler records stage timings and detection counts on p.
func WithProfiler(p *profiler.RuntimeProfiler) Option {
	return func(d *Detector) {
		d.profiler = p
	}
}

// WithLogger sets the logger used for per-frame debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a detector.
//
// Arguments:
//   - config: The model and thresholds.
//   - engine: The inference engine. The detector takes ownership and closes it in Close.
//   - opts: Optional profiler and logger.
//
// Returns:
//   - *Detector: The detector.
//   - error: An error if the configuration is invalid.
//
// @example
// session, err := inference.NewSession(cfg.Model, inference.SessionOptions{}, logger)
// d, err := detector.New(cfg, session, detector.WithLogger(logger))
// result, err := d.Detect(ctx, frame)
func New(config Config, engine inference.Engine, opts ...Option) (*Detector, error) {
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if err := config.Model.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid model config")
	}
	if err := config.postprocessing(1, 1).Validate(); err != nil {
		return nil, err
	}

	pre, err := preprocess.NewPreprocessor(config.Model.Preprocessing(), nil)
	if err != nil {
		return nil, err
	}

	d := &Detector{
		config:       config,
		engine:       engine,
		preprocessor: pre,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Detect runs the full pipeline on one frame.
//
// Arguments:
//   - ctx: Cancels the detection before inference starts.
//   - img: The frame.
//
// Returns:
//   - *Result: The detections in frame pixel coordinates, with stage timings.
//   - error: An error from any stage.
func (d *Detector) Detect(ctx context.Context, img image.Image) (*Result, error) {
	var timings Timings

	start := time.Now()
	input, err := d.preprocessor.Preprocess(img)
	if err != nil {
		return nil, errors.Wrap(err, "failed to preprocess frame")
	}
	timings.Preprocess = time.Since(start)
	d.profiler.RecordOperation(OperationPreprocess, timings.Preprocess)

	start = time.Now()
	raw, err := d.engine.Infer(ctx, input.Data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}
	timings.Inference = time.Since(start)
	d.profiler.RecordOperation(OperationInference, timings.Inference)

	start = time.Now()
	detections, err := postprocess.Detect(raw, d.config.postprocessing(input.OriginalWidth, input.OriginalHeight))
	if err != nil {
		return nil, errors.Wrap(err, "failed to postprocess model output")
	}
	timings.Postprocess = time.Since(start)
	d.profiler.RecordOperation(OperationPostprocess, timings.Postprocess)
	d.profiler.RecordMetric("detections", float64(len(detections)))

	d.logger.Debug("detected",
		zap.Int("detections", len(detections)),
		zap.Int("candidates", raw.Rows()),
		zap.Duration("preprocess", timings.Preprocess),
		zap.Duration("inference", timings.Inference),
		zap.Duration("postprocess", timings.Postprocess),
	)

	return &Result{
		Detections:  detections,
		FrameWidth:  input.OriginalWidth,
		FrameHeight: input.OriginalHeight,
		Timings:     timings,
	}, nil
}

// Close closes the engine.
func (d *Detector) Close() error {
	return d.engine.Close()
}
