// Package controller - Routes frames from a source through a detector to one or more sinks.
package controller

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
)

// OperationFrame is the profiler operation timing a frame from capture until every sink consumed it.
const OperationFrame = "frame"

// ErrStop is returned by a sink to end the run without an error, e.g. when a window is closed.
var ErrStop = errors.New("stop requested")

// Frame is a single frame of video.
type Frame struct {
	ID        int
	Image     image.Image
	Timestamp time.Time
	// TrackIDs holds the track id of each detection, aligned by index. It is set by the
	// controller before sinks run and stays nil without a tracker.
	TrackIDs []int
}

// FrameSource produces frames in order.
type FrameSource interface {
	// Next blocks until the next frame is available. It returns io.EOF after the last frame.
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// FrameDetector detects objects in one frame.
type FrameDetector interface {
	Detect(ctx context.Context, img image.Image) (*detector.Result, error)
}

// Sink consumes the detections of one frame.
type Sink interface {
	Consume(ctx context.Context, frame Frame, detections []postprocess.Detection) error
}

// Tracker assigns track ids to the detections of consecutive frames.
type Tracker interface {
	Update(detections []postprocess.Detection) []int
}

// ErrorPolicy decides what happens when detection fails for a frame.
type ErrorPolicy int

const (
	// ErrorPolicyStop ends the run with the detection error.
	ErrorPolicyStop ErrorPolicy = iota
	// ErrorPolicySkip logs the error and continues with the next frame.
	ErrorPolicySkip
)

// Config is a configuration for the controller.
type Config struct {
	// DropFrames skips captured frames while the detector is still busy with an earlier one.
	DropFrames bool `json:"drop_frames" yaml:"drop_frames"`
	// ErrorPolicy decides whether a failed detection ends the run.
	ErrorPolicy ErrorPolicy `json:"error_policy" yaml:"error_policy"`
	// MaxFrames stops the run after this many frames were captured. 0 means no limit.
	MaxFrames int `json:"max_frames" yaml:"max_frames"`
}

type detected struct {
	frame  Frame
	result *detector.Result
}

// Controller runs capture, detection and sinks as three stages.
//
// Each stage is a goroutine; stages are connected by channels holding at most one frame, so no
// more than one frame waits between two stages.
type Controller struct {
	config   Config
	source   FrameSource
	detector FrameDetector
	sinks    []Sink
	tracker  Tracker
	stats    *Stats
	profiler *profiler.RuntimeProfiler
	logger   *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithProfiler records frame latency on p and registers the controller stats as a metrics
// collector.
func WithProfiler(p *profiler.RuntimeProfiler) Option {
	return func(c *Controller) {
		c.profiler = p
	}
}

// WithTracker assigns track ids to every frame's detections before the sinks see them.
func WithTracker(t Tracker) Option {
	return func(c *Controller) {
		c.tracker = t
	}
}

// New creates a controller.
//
// Arguments:
//   - config: The frame loop configuration.
//   - source: The frame source. The controller does not close it.
//   - det: The detector.
//   - sinks: Consumers of every detected frame, called in order.
//
// Returns:
//   - *Controller: The controller.
//   - error: An error if source or det is nil.
func New(config Config, source FrameSource, det FrameDetector, sinks []Sink, opts ...Option) (*Controller, error) {
	if source == nil {
		return nil, errors.New("frame source is nil")
	}
	if det == nil {
		return nil, errors.New("detector is nil")
	}
	if config.MaxFrames < 0 {
		return nil, errors.Errorf("max frames must not be negative, got %d", config.MaxFrames)
	}

	c := &Controller{
		config:   config,
		source:   source,
		detector: det,
		sinks:    sinks,
		stats:    NewStats(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.profiler.AddMetricsCollector(c.stats)

	return c, nil
}

// Stats returns the live counters of the controller.
func (c *Controller) Stats() *Stats {
	return c.stats
}

// Run processes frames until the source is exhausted, a sink returns ErrStop, ctx is canceled or
// a stage fails.
//
// Returns:
//   - error: The first stage error. Exhausting the source, ErrStop and cancellation of ctx
//     are not errors.
func (c *Controller) Run(ctx context.Context) error {
	c.stats.start(time.Now())
	c.logger.Info("controller started",
		zap.Bool("drop_frames", c.config.DropFrames),
		zap.Bool("tracking", c.tracker != nil),
		zap.Int("sinks", len(c.sinks)),
	)

	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan Frame, 1)
	results := make(chan detected, 1)

	g.Go(func() error {
		defer close(frames)
		return c.capture(gctx, frames)
	})
	g.Go(func() error {
		defer close(results)
		return c.detect(gctx, frames, results)
	})
	g.Go(func() error {
		return c.render(gctx, results)
	})

	err := g.Wait()
	snapshot := c.stats.Snapshot()
	c.logger.Info("controller stopped",
		zap.Int64("captured", snapshot.Captured),
		zap.Int64("processed", snapshot.Processed),
		zap.Int64("dropped", snapshot.Dropped),
		zap.Int64("errors", snapshot.Errors),
		zap.Float64("fps", snapshot.FPS),
	)

	switch {
	case err == nil, errors.Is(err, ErrStop):
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return nil
	default:
		return err
	}
}

func (c *Controller) capture(ctx context.Context, frames chan<- Frame) error {
	for {
		if c.config.MaxFrames > 0 && c.stats.captured.Load() >= int64(c.config.MaxFrames) {
			return nil
		}

		frame, err := c.source.Next(ctx)
		if err == io.EOF {
			c.logger.Debug("frame source exhausted")
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to read frame")
		}
		c.stats.captured.Inc()

		if c.config.DropFrames {
			select {
			case frames <- frame:
			case <-ctx.Done():
				return ctx.Err()
			default:
				c.stats.dropped.Inc()
				c.logger.Debug("dropped frame", zap.Int("frame", frame.ID))
			}
			continue
		}

		select {
		case frames <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Controller) detect(ctx context.Context, frames <-chan Frame, results chan<- detected) error {
	for frame := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := c.detector.Detect(ctx, frame.Image)
		if err != nil {
			c.stats.errors.Inc()
			if c.config.ErrorPolicy == ErrorPolicySkip && ctx.Err() == nil {
				c.logger.Warn("skipping frame", zap.Int("frame", frame.ID), zap.Error(err))
				continue
			}
			return errors.Wrapf(err, "failed to detect objects in frame %d", frame.ID)
		}

		select {
		case results <- detected{frame: frame, result: result}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *Controller) render(ctx context.Context, results <-chan detected) error {
	for r := range results {
		if c.tracker != nil {
			r.frame.TrackIDs = c.tracker.Update(r.result.Detections)
		}
		for _, sink := range c.sinks {
			if err := sink.Consume(ctx, r.frame, r.result.Detections); err != nil {
				return err
			}
		}

		now := time.Now()
		c.stats.observe(now)
		if !r.frame.Timestamp.IsZero() {
			c.profiler.RecordOperation(OperationFrame, now.Sub(r.frame.Timestamp))
		}
	}
	return nil
}
