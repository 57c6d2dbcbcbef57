// Package util - Helpers for locating input files on disk.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/images"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Format is the still image format judged by the extension.
	Format images.ImageFormat
	// Frame is the frame number parsed from names such as "frame-42.jpg", or -1.
	Frame int
}

// ListDirectoryImageFiles lists the image files of a directory in playback order.
//
// Files named like "frame-<n>.<ext>" (or "<n>.<ext>") are ordered by n and come first; the rest
// follow in name order. Subdirectories and files with other extensions are skipped.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: The image files, without their contents.
// - error: Error if the directory cannot be read.
func ListDirectoryImageFiles(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read directory %s", dir)
	}

	var list []ImageFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		format, err := images.FormatFromPath(file.Name())
		if err != nil {
			continue
		}

		list = append(list, ImageFile{
			Path:   filepath.Join(dir, file.Name()),
			Format: format,
			Frame:  frameNumber(file.Name()),
		})
	}

	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch {
		case a.Frame >= 0 && b.Frame >= 0 && a.Frame != b.Frame:
			return a.Frame < b.Frame
		case (a.Frame >= 0) != (b.Frame >= 0):
			return a.Frame >= 0
		default:
			return a.Path < b.Path
		}
	})

	return list, nil
}

func frameNumber(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.TrimPrefix(base, "frame-")
	n, err := strconv.Atoi(base)
	if err != nil || n < 0 {
		return -1
	}
	return n
}
