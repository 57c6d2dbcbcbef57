package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// SessionOptions tune the onnxruntime session.
type SessionOptions struct {
	// LibraryPath is the onnxruntime shared library; empty selects SharedLibraryPath.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// IntraOpThreads parallelizes execution within graph nodes. 0 uses the default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// InterOpThreads parallelizes execution across graph nodes. 0 uses the default.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`
}

// Session is an Engine backed by an onnxruntime session with preallocated input and output
// tensors.
//
// Runs are serialized; the output is copied into a fresh RawTensor before the lock is
// released, so results never alias the session's buffers.
type Session struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	shape   []int64
	layout  postprocess.Layout
	logger  *zap.Logger
}

var _ Engine = (*Session)(nil)

// NewSession creates a session for the model described by cfg.
//
// Order of operations:
//  1. Runtime setup: loads the shared library once per process.
//  2. Tensor allocation: fixed-shape input and output buffers from cfg.
//  3. Session options: thread counts and graph optimization.
//  4. Session creation: loads the model and binds the buffers.
//
// Arguments:
//   - cfg: The model configuration. Its output row count must be known.
//   - opts: Runtime options.
//   - logger: The logger; nil disables logging.
//
// Returns:
//   - *Session: The session.
//   - error: An error if the configuration is incomplete or onnxruntime fails.
func NewSession(cfg model.Config, opts SessionOptions, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid model config")
	}
	outputShape := cfg.OutputShape()
	if outputShape == nil {
		return nil, errors.Errorf("output row count of %q is unknown", cfg.Path)
	}

	if err := InitializeRuntime(opts.LibraryPath); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(cfg.InputShape()...))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(outputShape...))
	if err != nil {
		return nil, multierr.Append(errors.Wrap(err, "error creating output tensor"), input.Destroy())
	}

	options, err := newSessionOptions(opts)
	if err != nil {
		return nil, multierr.Combine(err, input.Destroy(), output.Destroy())
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		cfg.Path,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		return nil, multierr.Combine(
			errors.Wrapf(err, "error creating session for %s", cfg.Path),
			input.Destroy(),
			output.Destroy(),
		)
	}

	logger.Info("loaded model",
		zap.String("path", cfg.Path),
		zap.String("name", string(cfg.Name)),
		zap.Int64s("input_shape", cfg.InputShape()),
		zap.Int64s("output_shape", outputShape),
		zap.Stringer("layout", cfg.Layout),
	)

	return &Session{
		session: session,
		input:   input,
		output:  output,
		shape:   outputShape,
		layout:  cfg.Layout,
		logger:  logger,
	}, nil
}

func newSessionOptions(opts SessionOptions) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating session options")
	}

	err = multierr.Combine(
		options.SetIntraOpNumThreads(opts.IntraOpThreads),
		options.SetInterOpNumThreads(opts.InterOpThreads),
		options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended),
	)
	if err != nil {
		return nil, multierr.Append(errors.Wrap(err, "error configuring session options"), options.Destroy())
	}

	return options, nil
}

// Infer copies input into the session, runs the model and returns a copy of its output.
//
// Arguments:
//   - ctx: Checked before the run starts; a run in progress is not interrupted.
//   - input: The CHW input blob, exactly as long as the model input.
//
// Returns:
//   - *postprocess.RawTensor: The model output, owned by the caller.
//   - error: An error if the input size is wrong, the session is closed or the run fails.
func (s *Session) Infer(ctx context.Context, input []float32) (*postprocess.RawTensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, errors.New("session is closed")
	}

	dst := s.input.GetData()
	if len(input) != len(dst) {
		return nil, errors.Errorf("input holds %d values, model expects %d", len(input), len(dst))
	}
	copy(dst, input)

	if err := s.session.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	raw, err := postprocess.RawTensorFromShape(s.output.GetData(), s.shape, s.layout)
	if err != nil {
		return nil, errors.Wrap(err, "unexpected model output")
	}
	return raw, nil
}

// Close releases the resources associated with the Session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.session != nil {
		err = multierr.Append(err, s.session.Destroy())
		s.session = nil
	}
	if s.input != nil {
		err = multierr.Append(err, s.input.Destroy())
		s.input = nil
	}
	if s.output != nil {
		err = multierr.Append(err, s.output.Destroy())
		s.output = nil
	}
	return errors.Wrap(err, "error destroying session")
}

// Inspect reads the declared inputs and outputs of an ONNX model without creating a session.
//
// Arguments:
//   - path: The model file.
//   - libraryPath: The onnxruntime shared library; empty selects SharedLibraryPath.
//
// Returns:
//   - []model.TensorInfo: The model inputs.
//   - []model.TensorInfo: The model outputs.
//   - error: An error if the runtime or the model cannot be loaded.
func Inspect(path, libraryPath string) ([]model.TensorInfo, []model.TensorInfo, error) {
	if err := InitializeRuntime(libraryPath); err != nil {
		return nil, nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "error reading inputs and outputs of %s", path)
	}

	return toTensorInfo(inputs), toTensorInfo(outputs), nil
}

func toTensorInfo(infos []ort.InputOutputInfo) []model.TensorInfo {
	out := make([]model.TensorInfo, len(infos))
	for i, info := range infos {
		out[i] = model.TensorInfo{
			Name:  info.Name,
			Shape: append([]int64(nil), info.Dimensions...),
		}
	}
	return out
}

// Discover completes cfg from the model file's metadata. See model.ApplyIO.
func Discover(cfg model.Config, libraryPath string) (model.Config, error) {
	inputs, outputs, err := Inspect(cfg.Path, libraryPath)
	if err != nil {
		return cfg, err
	}
	return model.ApplyIO(cfg, inputs, outputs)
}
