package video

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/controller"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

const (
	fontFace  = gocv.FontHersheySimplex
	fontScale = 0.5
)

// RendererConfig is a configuration for the renderer.
type RendererConfig struct {
	// ShowWindow displays annotated frames in a window. Pressing q ends the run.
	ShowWindow bool `json:"show_window" yaml:"show_window"`
	// WindowName is the window title.
	WindowName string `json:"window_name" yaml:"window_name"`
	// OutputDir receives annotated frames when SaveFrames is set.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
	// SaveFrames writes every annotated frame that has detections to OutputDir.
	SaveFrames bool `json:"save_frames" yaml:"save_frames"`
	// Thickness is the line thickness of boxes and labels.
	Thickness int `json:"thickness" yaml:"thickness"`
}

// Renderer draws detections onto frames and shows or saves them.
type Renderer struct {
	config  RendererConfig
	classes models.OutputClassSet
	palette images.Palette
	window  *gocv.Window
	logger  *zap.Logger
}

var _ controller.Sink = (*Renderer)(nil)

// NewRenderer creates a renderer with one colour per class.
//
// Arguments:
//   - config: Display and snapshot options.
//   - classes: Names used in box captions.
//   - logger: The logger; nil disables logging.
//
// Returns:
//   - *Renderer: The renderer. Close it to release the window.
//   - error: An error if the output directory cannot be created.
func NewRenderer(config RendererConfig, classes models.OutputClassSet, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Thickness <= 0 {
		config.Thickness = 2
	}
	if config.WindowName == "" {
		config.WindowName = "Detections"
	}

	if config.SaveFrames {
		if config.OutputDir == "" {
			return nil, errors.New("saving frames requires an output directory")
		}
		if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create output directory %s", config.OutputDir)
		}
	}

	r := &Renderer{
		config:  config,
		classes: classes,
		palette: images.NewPalette(classes.Len()),
		logger:  logger,
	}
	if config.ShowWindow {
		r.window = gocv.NewWindow(config.WindowName)
	}
	return r, nil
}

// Consume annotates the frame, saves it when configured and shows it in the window.
//
// Returns:
//   - error: controller.ErrStop when q was pressed in the window, or an error if the frame cannot
//     be converted or saved.
func (r *Renderer) Consume(_ context.Context, frame controller.Frame, detections []postprocess.Detection) error {
	mat, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return errors.Wrapf(err, "failed to convert frame %d", frame.ID)
	}
	defer mat.Close()

	r.Draw(&mat, detections, frame.TrackIDs)

	if r.config.SaveFrames && len(detections) > 0 {
		path := filepath.Join(r.config.OutputDir, fmt.Sprintf("frame_%06d.jpg", frame.ID))
		if !gocv.IMWrite(path, mat) {
			return errors.Errorf("failed to save frame to %s", path)
		}
		r.logger.Debug("saved frame", zap.String("path", path), zap.Int("detections", len(detections)))
	}

	if r.window != nil {
		r.window.IMShow(mat)
		if key := r.window.WaitKey(1); key == 'q' || key == 'Q' {
			return controller.ErrStop
		}
	}
	return nil
}

// Draw draws a box and a "<name>: <confidence>" caption for every detection. When trackIDs is
// aligned with detections, each box also gets its "#<id>" in the bottom-left corner. Boxes are
// clipped to the frame; boxes entirely outside it are skipped.
func (r *Renderer) Draw(mat *gocv.Mat, detections []postprocess.Detection, trackIDs []int) {
	bounds := image.Rect(0, 0, mat.Cols(), mat.Rows())
	for i, d := range detections {
		rect := images.ClipRect(d.Box, bounds)
		if rect.Empty() {
			continue
		}

		c := r.palette.Color(d.ClassID)
		text := images.LabelText(d.Label(r.classes), d.Confidence)
		size := gocv.GetTextSize(text, fontFace, fontScale, r.config.Thickness)

		gocv.Rectangle(mat, rect, c, r.config.Thickness)
		gocv.PutText(mat, text, images.LabelOrigin(rect, size.Y), fontFace, fontScale, c, r.config.Thickness)

		if i < len(trackIDs) {
			gocv.PutText(mat, images.TrackText(trackIDs[i]), images.TrackOrigin(rect), fontFace, fontScale, c, r.config.Thickness)
		}
	}
}

// Close closes the window.
func (r *Renderer) Close() error {
	if r.window == nil {
		return nil
	}
	err := r.window.Close()
	r.window = nil
	return err
}
