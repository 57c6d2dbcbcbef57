package images

import (
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ImageFormat represents supported still image formats.
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
)

// VideoExtensions are the file extensions accepted as video input.
var VideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}

// ImageExtensions are the file extensions accepted as still image input.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// FormatFromPath returns the still image format of path judged by its extension.
//
// Arguments:
//   - path: The file path; the extension is matched case-insensitively.
//
// Returns:
//   - ImageFormat: The format.
//   - error: An error if the extension is not a supported still image format.
func FormatFromPath(path string) (ImageFormat, error) {
	format, err := imaging.FormatFromFilename(path)
	if err != nil {
		return "", errors.Errorf("unsupported image extension %q, supported extensions: %v", filepath.Ext(path), ImageExtensions)
	}

	switch format {
	case imaging.JPEG:
		return FormatJPEG, nil
	case imaging.PNG:
		return FormatPNG, nil
	case imaging.BMP:
		return FormatBMP, nil
	default:
		return "", errors.Errorf("unsupported image format %s, supported extensions: %v", format, ImageExtensions)
	}
}

// IsVideoPath reports whether path has a supported video extension.
func IsVideoPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range VideoExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}
