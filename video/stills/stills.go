// Package stills - Frame sources backed by still image files.
package stills

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/controller"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/util"
)

// Source yields decoded image files as frames, in order, then io.EOF.
//
// Images are decoded on demand with their EXIF orientation applied.
type Source struct {
	files []util.ImageFile
	next  int
}

var _ controller.FrameSource = (*Source)(nil)

// NewImageSource returns a source with a single frame read from path.
func NewImageSource(path string) (*Source, error) {
	format, err := images.FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	return &Source{files: []util.ImageFile{{Path: path, Format: format, Frame: 0}}}, nil
}

// NewDirectorySource returns a source over the image files of dir, ordered by frame number.
//
// Returns:
//   - *Source: The source.
//   - error: An error if dir cannot be read or holds no image files.
func NewDirectorySource(dir string) (*Source, error) {
	files, err := util.ListDirectoryImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no image files in %s", dir)
	}
	return &Source{files: files}, nil
}

// Len returns the number of frames the source yields in total.
func (s *Source) Len() int {
	return len(s.files)
}

// Next decodes the next image file.
func (s *Source) Next(ctx context.Context) (controller.Frame, error) {
	if err := ctx.Err(); err != nil {
		return controller.Frame{}, err
	}
	if s.next >= len(s.files) {
		return controller.Frame{}, io.EOF
	}

	file := s.files[s.next]
	img, err := Load(file.Path)
	if err != nil {
		return controller.Frame{}, err
	}

	frame := controller.Frame{
		ID:        s.next,
		Image:     img,
		Timestamp: time.Now(),
	}
	s.next++
	return frame, nil
}

// Close releases nothing; images are not kept open between frames.
func (s *Source) Close() error {
	return nil
}

// Load decodes a single image file with its EXIF orientation applied.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}
	return img, nil
}
