package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/controller"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/logging"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/tracking"
	"github.com/nvr-ai/go-detect/video"
	"github.com/nvr-ai/go-detect/video/stills"
)

// loadConfig reads the configuration file, when given, and applies the flags that were set.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	applyFlags(c, &cfg)
	return cfg, cfg.Validate()
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet(flagModel) {
		cfg.Model.Path = c.String(flagModel)
	}
	if c.IsSet(flagLabels) {
		cfg.Model.Labels = c.String(flagLabels)
	}
	if c.IsSet(flagLibraryPath) {
		cfg.Runtime.LibraryPath = c.String(flagLibraryPath)
	}

	// A file input given on the command line replaces the one from the file.
	if c.IsSet(flagDevice) || c.IsSet(flagVideo) || c.IsSet(flagImage) || c.IsSet(flagDir) {
		cfg.Input.Video, cfg.Input.Image, cfg.Input.Directory = "", "", ""
	}
	if c.IsSet(flagDevice) {
		cfg.Input.Device = c.Int(flagDevice)
	}
	if c.IsSet(flagVideo) {
		cfg.Input.Video = c.String(flagVideo)
	}
	if c.IsSet(flagImage) {
		cfg.Input.Image = c.String(flagImage)
	}
	if c.IsSet(flagDir) {
		cfg.Input.Directory = c.String(flagDir)
	}
	if c.IsSet(flagDropFrames) {
		cfg.Input.DropFrames = c.Bool(flagDropFrames)
	}
	if c.IsSet(flagMaxFrames) {
		cfg.Input.MaxFrames = c.Int(flagMaxFrames)
	}

	if c.IsSet(flagConfidence) {
		cfg.Detection.ConfidenceThreshold = float32(c.Float64(flagConfidence))
	}
	if c.IsSet(flagNMS) {
		cfg.Detection.NMSThreshold = float32(c.Float64(flagNMS))
	}
	if c.IsSet(flagClassAgnostic) {
		cfg.Detection.ClassAgnostic = c.Bool(flagClassAgnostic)
	}
	if c.IsSet(flagClasses) {
		cfg.Detection.RelevantClasses = c.StringSlice(flagClasses)
	}

	if c.IsSet(flagTrack) {
		cfg.Tracking.Enabled = c.Bool(flagTrack)
	}

	if c.IsSet(flagShowWindow) {
		cfg.Output.ShowWindow = c.Bool(flagShowWindow)
	}
	if c.IsSet(flagOutputDir) {
		cfg.Output.OutputDir = c.String(flagOutputDir)
	}
	if c.IsSet(flagSaveFrames) {
		cfg.Output.SaveFrames = c.Bool(flagSaveFrames)
	}

	if c.IsSet(flagLogLevel) {
		cfg.Log.Level = c.String(flagLogLevel)
	}
	if c.IsSet(flagProfile) {
		cfg.Profiling.Enabled = c.Bool(flagProfile)
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger)
}

// run wires the configured source, detector and sinks together and blocks until the run ends.
//
// Order of operations:
//  1. Labels and model description, completed from the model file when rows are unknown.
//  2. Inference session and detector.
//  3. Frame source, sinks and the optional tracker.
//  4. The controller loop.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (err error) {
	classes, err := models.ResolveClasses(cfg.Model.Labels)
	if err != nil {
		return errors.Wrap(err, "failed to load labels")
	}

	modelCfg, err := cfg.ModelConfig()
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Invoke(inference.ShutdownRuntime))
	if modelCfg.Rows == 0 {
		if modelCfg, err = inference.Discover(modelCfg, cfg.Runtime.LibraryPath); err != nil {
			return err
		}
	}

	if classes.Len() != modelCfg.NumClasses {
		logger.Warn("label count does not match the model",
			zap.Int("labels", classes.Len()),
			zap.Int("classes", modelCfg.NumClasses),
		)
	}

	detCfg, err := cfg.DetectorConfig(modelCfg, classes)
	if err != nil {
		return err
	}

	var prof *profiler.RuntimeProfiler
	if cfg.Profiling.Enabled {
		prof = profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
			ReportInterval: cfg.Profiling.ReportInterval,
			SampleInterval: 100 * time.Millisecond,
			MaxSamples:     600,
		}, logger.Named("profiler"))
		prof.Start()
		defer prof.Stop()
	}

	session, err := inference.NewSession(modelCfg, cfg.Runtime, logger)
	if err != nil {
		return err
	}
	det, err := detector.New(detCfg, session,
		detector.WithLogger(logger.Named("detector")),
		detector.WithProfiler(prof),
	)
	if err != nil {
		return multierr.Append(err, session.Close())
	}
	defer multierr.AppendInvoke(&err, multierr.Close(det))

	source, err := openSource(cfg.Input, logger)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(source))

	sinks := []controller.Sink{controller.NewLogSink(classes, logger.Named("detections"))}
	if cfg.Output.ShowWindow || cfg.Output.SaveFrames {
		renderer, rerr := video.NewRenderer(video.RendererConfig{
			ShowWindow: cfg.Output.ShowWindow,
			OutputDir:  cfg.Output.OutputDir,
			SaveFrames: cfg.Output.SaveFrames,
		}, classes, logger.Named("renderer"))
		if rerr != nil {
			return rerr
		}
		defer multierr.AppendInvoke(&err, multierr.Close(renderer))
		sinks = append(sinks, renderer)
	}

	opts := []controller.Option{
		controller.WithLogger(logger.Named("controller")),
		controller.WithProfiler(prof),
	}
	if cfg.Tracking.Enabled {
		tracker, terr := tracking.New(cfg.TrackerConfig(), logger.Named("tracker"))
		if terr != nil {
			return terr
		}
		prof.AddMetricsCollector(tracker)
		opts = append(opts, controller.WithTracker(tracker))
	}

	ctrl, err := controller.New(cfg.ControllerConfig(), source, det, sinks, opts...)
	if err != nil {
		return err
	}

	logger.Info("starting detection",
		zap.Stringer("input", cfg.Input.InputType()),
		zap.String("model", modelCfg.Path),
		zap.Float32("confidence_threshold", detCfg.ConfidenceThreshold),
		zap.Float32("nms_threshold", detCfg.NMSThreshold),
		zap.Bool("class_agnostic", detCfg.ClassAgnostic),
		zap.Bool("tracking", cfg.Tracking.Enabled),
	)
	return ctrl.Run(ctx)
}

func openSource(in config.InputConfig, logger *zap.Logger) (controller.FrameSource, error) {
	switch in.InputType() {
	case config.InputVideo:
		src, err := video.OpenFile(in.Video, logger.Named("capture"))
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.InputImage:
		src, err := stills.NewImageSource(in.Image)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.InputDirectory:
		src, err := stills.NewDirectorySource(in.Directory)
		if err != nil {
			return nil, err
		}
		logger.Info("reading images", zap.String("directory", in.Directory), zap.Int("frames", src.Len()))
		return src, nil
	default:
		src, err := video.OpenDevice(in.Device, logger.Named("capture"))
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}
