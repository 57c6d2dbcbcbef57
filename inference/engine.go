// Package inference - Runs detection models and hands back their raw output.
package inference

import (
	"context"

	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Engine runs a model's forward pass over one preprocessed input.
//
// Implementations return a tensor the caller owns exclusively; it is never reused or
// overwritten by later calls.
type Engine interface {
	// Infer runs the model on a CHW float32 input blob.
	Infer(ctx context.Context, input []float32) (*postprocess.RawTensor, error)
	// Close releases the engine's resources.
	Close() error
}
