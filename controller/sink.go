package controller

import (
	"context"

	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// LogSink logs the detections of every frame.
type LogSink struct {
	classes models.OutputClassSet
	logger  *zap.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a sink that logs each detection at info level with its class name.
func NewLogSink(classes models.OutputClassSet, logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{classes: classes, logger: logger}
}

// Consume logs one line per detection and a debug line for frames without detections. Track
// ids are logged when the frame carries them.
func (s *LogSink) Consume(_ context.Context, frame Frame, detections []postprocess.Detection) error {
	if len(detections) == 0 {
		s.logger.Debug("no detections", zap.Int("frame", frame.ID))
		return nil
	}

	for i, d := range detections {
		fields := []zap.Field{
			zap.Int("frame", frame.ID),
			zap.String("label", d.Label(s.classes)),
			zap.Int("class_id", d.ClassID),
			zap.Float32("confidence", d.Confidence),
			zap.Stringer("box", d.Box),
		}
		if i < len(frame.TrackIDs) {
			fields = append(fields, zap.Int("track_id", frame.TrackIDs[i]))
		}
		s.logger.Info("detection", fields...)
	}
	return nil
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, frame Frame, detections []postprocess.Detection) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, frame Frame, detections []postprocess.Detection) error {
	return f(ctx, frame, detections)
}
