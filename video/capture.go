// Package video - OpenCV backed frame capture and rendering.
package video

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/controller"
)

// maxEmptyReads is the number of consecutive empty frames tolerated before a capture fails.
const maxEmptyReads = 100

// CaptureSource reads frames from a capture device or a video file.
type CaptureSource struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	name    string
	file    bool
	next    int
	closed  bool
	logger  *zap.Logger
}

var _ controller.FrameSource = (*CaptureSource)(nil)

// OpenDevice opens a video capture device such as a webcam.
//
// Arguments:
//   - deviceID: The device index, 0 for the default camera.
//   - logger: The logger; nil disables logging.
//
// Returns:
//   - *CaptureSource: The source.
//   - error: An error if the device cannot be opened.
func OpenDevice(deviceID int, logger *zap.Logger) (*CaptureSource, error) {
	capture, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening video capture device %d", deviceID)
	}
	return newCaptureSource(capture, fmt.Sprintf("device %d", deviceID), false, logger), nil
}

// OpenFile opens a video file. Next returns io.EOF after its last frame.
func OpenFile(path string, logger *zap.Logger) (*CaptureSource, error) {
	capture, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening video file %s", path)
	}
	return newCaptureSource(capture, path, true, logger), nil
}

func newCaptureSource(capture *gocv.VideoCapture, name string, file bool, logger *zap.Logger) *CaptureSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CaptureSource{
		capture: capture,
		mat:     gocv.NewMat(),
		name:    name,
		file:    file,
		logger:  logger,
	}
	logger.Info("opened capture",
		zap.String("source", name),
		zap.Float64("fps", s.FPS()),
		zap.Float64("width", capture.Get(gocv.VideoCaptureFrameWidth)),
		zap.Float64("height", capture.Get(gocv.VideoCaptureFrameHeight)),
	)
	return s
}

// FPS returns the frame rate reported by the capture backend, or 0 when unknown.
func (s *CaptureSource) FPS() float64 {
	return s.capture.Get(gocv.VideoCaptureFPS)
}

// Next reads the next non-empty frame.
//
// Returns:
//   - controller.Frame: The frame, converted to an image.Image that the caller owns.
//   - error: io.EOF at the end of a video file, or an error if the device stops delivering.
func (s *CaptureSource) Next(ctx context.Context) (controller.Frame, error) {
	for empty := 0; ; empty++ {
		if err := ctx.Err(); err != nil {
			return controller.Frame{}, err
		}

		if ok := s.capture.Read(&s.mat); !ok {
			if s.file {
				s.logger.Info("end of video file", zap.String("source", s.name))
				return controller.Frame{}, io.EOF
			}
			return controller.Frame{}, errors.Errorf("cannot read %s", s.name)
		}
		if s.mat.Empty() {
			if empty >= maxEmptyReads {
				return controller.Frame{}, errors.Errorf("%s delivered %d empty frames", s.name, empty)
			}
			continue
		}

		img, err := s.mat.ToImage()
		if err != nil {
			return controller.Frame{}, errors.Wrap(err, "failed to convert frame")
		}

		frame := controller.Frame{
			ID:        s.next,
			Image:     img,
			Timestamp: time.Now(),
		}
		s.next++
		return frame, nil
	}
}

// Close releases the capture. It is safe to call more than once.
func (s *CaptureSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return multierr.Combine(s.mat.Close(), s.capture.Close())
}
