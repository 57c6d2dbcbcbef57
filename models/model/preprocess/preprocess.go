// Package preprocess - Converts frames into model input tensors.
package preprocess

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeStandardize applies mean and std normalization.
	NormalizeStandardize
)

// ColorMode defines the channel order written into the tensor.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (common for OpenCV models).
	ColorModeBGR
)

// Config defines preprocessing configuration for a specific model.
type Config struct {
	// Name of the model for debugging purposes.
	Name string `json:"name" yaml:"name"`
	// InputWidth is the expected width of the model input.
	InputWidth int `json:"input_width" yaml:"input_width"`
	// InputHeight is the expected height of the model input.
	InputHeight int `json:"input_height" yaml:"input_height"`
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType `json:"normalization" yaml:"normalization"`
	// MeanValues for standardization (if NormalizationType is Standardize).
	MeanValues []float32 `json:"mean" yaml:"mean"`
	// StdValues for standardization (if NormalizationType is Standardize).
	StdValues []float32 `json:"std" yaml:"std"`
	// ColorMode defines the channel order of the tensor.
	ColorMode ColorMode `json:"color_mode" yaml:"color_mode"`
	// Interpolation used when resizing.
	Interpolation resize.InterpolationFunction `json:"-" yaml:"-"`
}

// YOLOConfig returns the configuration YOLOv8/YOLO11 exports expect: the frame is stretched
// to the input size, channels are RGB and values are scaled by 1/255 into a CHW tensor.
//
// Arguments:
//   - width: The model input width (typically 640).
//   - height: The model input height (typically 640).
//
// Returns:
//   - A configured Config for YOLO.
//
// @example
// preprocessor := NewPreprocessor(YOLOConfig(640, 640), logger)
func YOLOConfig(width, height int) *Config {
	return &Config{
		Name:              "yolo",
		InputWidth:        width,
		InputHeight:       height,
		NormalizationType: NormalizeZeroToOne,
		ColorMode:         ColorModeRGB,
		Interpolation:     resize.Bilinear,
	}
}

// Validate checks the input size and the standardization parameters.
func (c *Config) Validate() error {
	if c.InputWidth <= 0 || c.InputHeight <= 0 {
		return errors.Errorf("invalid input size: %dx%d", c.InputWidth, c.InputHeight)
	}
	if c.NormalizationType == NormalizeStandardize {
		if len(c.MeanValues) != channels || len(c.StdValues) != channels {
			return errors.Errorf("standardization needs %d mean and std values, got %d and %d",
				channels, len(c.MeanValues), len(c.StdValues))
		}
		for i, std := range c.StdValues {
			if std == 0 {
				return errors.Errorf("std value %d is zero", i)
			}
		}
	}
	return nil
}

// channels is the number of color channels written per pixel.
const channels = 3

// Result contains the preprocessed image data and metadata.
type Result struct {
	// Data is the preprocessed float32 tensor data in CHW order.
	Data []float32
	// Shape is the tensor shape [1, C, H, W].
	Shape []int64
	// OriginalWidth is the original image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the original image height before preprocessing.
	OriginalHeight int
	// ScaleX is the horizontal scaling factor applied.
	ScaleX float64
	// ScaleY is the vertical scaling factor applied.
	ScaleY float64
}

// Preprocessor handles image preprocessing for ONNX models.
type Preprocessor struct {
	config *Config
	logger *zap.Logger
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
//   - config: The model-specific preprocessing configuration.
//   - logger: Receives debug output; nil disables logging.
//
// Returns:
//   - A configured Preprocessor instance.
//   - error if the configuration is invalid.
func NewPreprocessor(config *Config, logger *zap.Logger) (*Preprocessor, error) {
	if config == nil {
		return nil, errors.New("config is nil")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid preprocessing config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Preprocessor{
		config: config,
		logger: logger,
	}, nil
}

// Config returns the preprocessing configuration.
func (p *Preprocessor) Config() Config {
	return *p.config
}

// Preprocess performs all necessary preprocessing steps on the input image.
//
// Arguments:
//   - img: The frame to preprocess.
//
// Returns:
//   - Result containing the tensor and the original frame size.
//   - error if the image is nil or empty.
//
// @example
// result, err := preprocessor.Preprocess(frame)
//
//	if err != nil {
//	    return err
//	}
//
// tensor := result.Data
func (p *Preprocessor) Preprocess(img image.Image) (*Result, error) {
	if err := validateInput(img); err != nil {
		return nil, errors.Wrap(err, "input validation failed")
	}

	originalWidth := img.Bounds().Dx()
	originalHeight := img.Bounds().Dy()

	resized := p.resizeImage(img)
	tensor := p.imageToTensor(resized)
	p.normalize(tensor)

	p.logger.Debug("preprocessed frame",
		zap.String("model", p.config.Name),
		zap.Int("width", originalWidth),
		zap.Int("height", originalHeight),
		zap.Int("input_width", p.config.InputWidth),
		zap.Int("input_height", p.config.InputHeight),
	)

	return &Result{
		Data:           tensor,
		Shape:          []int64{1, channels, int64(p.config.InputHeight), int64(p.config.InputWidth)},
		OriginalWidth:  originalWidth,
		OriginalHeight: originalHeight,
		ScaleX:         float64(p.config.InputWidth) / float64(originalWidth),
		ScaleY:         float64(p.config.InputHeight) / float64(originalHeight),
	}, nil
}

func validateInput(img image.Image) error {
	if img == nil {
		return errors.New("image is nil")
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return errors.Errorf("invalid image dimensions: %dx%d", b.Dx(), b.Dy())
	}
	return nil
}

// resizeImage stretches the image to the model's input dimensions without keeping the aspect
// ratio, so normalized model coordinates map straight back onto the original frame.
func (p *Preprocessor) resizeImage(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() == p.config.InputWidth && b.Dy() == p.config.InputHeight {
		return img
	}
	return resize.Resize(uint(p.config.InputWidth), uint(p.config.InputHeight), img, p.config.Interpolation)
}

// imageToTensor converts an image to a CHW float32 tensor of raw 0-255 values.
func (p *Preprocessor) imageToTensor(img image.Image) []float32 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	plane := width * height

	tensor := make([]float32, plane*channels)

	first, third := 0, 2*plane
	if p.config.ColorMode == ColorModeBGR {
		first, third = third, first
	}

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < height; y++ {
			row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+width*4]
			for x := 0; x < width; x++ {
				i := y*width + x
				tensor[first+i] = float32(row[x*4])
				tensor[plane+i] = float32(row[x*4+1])
				tensor[third+i] = float32(row[x*4+2])
			}
		}
		return tensor
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			i := y*width + x
			tensor[first+i] = float32(r >> 8)
			tensor[plane+i] = float32(g >> 8)
			tensor[third+i] = float32(b >> 8)
		}
	}

	return tensor
}

// normalize applies normalization to the tensor in place.
func (p *Preprocessor) normalize(tensor []float32) {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		for i := range tensor {
			tensor[i] /= 255.0
		}
	case NormalizeStandardize:
		plane := len(tensor) / channels
		for c := 0; c < channels; c++ {
			mean := p.config.MeanValues[c]
			std := p.config.StdValues[c]

			offset := c * plane
			for i := 0; i < plane; i++ {
				tensor[offset+i] = (tensor[offset+i] - mean) / std
			}
		}
	}
}

// BatchPreprocess processes multiple images in parallel.
//
// Arguments:
//   - images: Slice of images to preprocess.
//   - maxConcurrency: Maximum number of images to process concurrently.
//
// Returns:
//   - Slice of preprocessing results, in input order.
//   - error if any preprocessing fails.
func (p *Preprocessor) BatchPreprocess(images []image.Image, maxConcurrency int) ([]*Result, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([]*Result, len(images))

	var g errgroup.Group
	g.SetLimit(maxConcurrency)

	for i, img := range images {
		g.Go(func() error {
			result, err := p.Preprocess(img)
			if err != nil {
				return errors.Wrapf(err, "failed to preprocess image %d", i)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
