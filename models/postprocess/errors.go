package postprocess

import "github.com/pkg/errors"

var (
	// ErrInvalidInput is returned when a raw tensor does not match the declared layout or the
	// frame dimensions are unusable.
	ErrInvalidInput = errors.New("postprocess: invalid input")
	// ErrInvalidConfig is returned for thresholds outside their valid range.
	ErrInvalidConfig = errors.New("postprocess: invalid config")
)
