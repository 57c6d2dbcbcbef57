package inference

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// LibraryPathEnv overrides the onnxruntime shared library location.
const LibraryPathEnv = "ONNXRUNTIME_LIB"

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// SharedLibraryPath returns the path to the onnxruntime shared library for the current
// platform, unless LibraryPathEnv is set.
//
// Returns:
//   - string: The path to the shared library.
//   - error: An error if no library is known for this platform.
func SharedLibraryPath() (string, error) {
	if path := os.Getenv(LibraryPathEnv); path != "" {
		return path, nil
	}
	return sharedLibraryPathFor(runtime.GOOS, runtime.GOARCH)
}

func sharedLibraryPathFor(goos, goarch string) (string, error) {
	switch goos {
	case "windows":
		if goarch == "amd64" {
			return "./third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "./third_party/libonnxruntime.dylib", nil
	case "linux":
		if goarch == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", errors.Errorf("no onnxruntime library known for %s/%s", goos, goarch)
}

// InitializeRuntime loads the onnxruntime shared library and initializes its environment.
// Only the first call has any effect; later calls return the first call's result.
//
// Arguments:
//   - libraryPath: Path to the shared library; empty selects SharedLibraryPath.
//
// Returns:
//   - error: An error if the library is missing or fails to initialize.
func InitializeRuntime(libraryPath string) error {
	runtimeOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}

		if libraryPath == "" {
			if libraryPath, runtimeErr = SharedLibraryPath(); runtimeErr != nil {
				return
			}
		}
		if _, err := os.Stat(libraryPath); err != nil {
			runtimeErr = errors.Wrapf(err, "onnxruntime library not found at %s", libraryPath)
			return
		}

		ort.SetSharedLibraryPath(libraryPath)
		if err := ort.InitializeEnvironment(); err != nil {
			runtimeErr = errors.Wrap(err, "error initializing onnxruntime environment")
		}
	})
	return runtimeErr
}

// ShutdownRuntime releases the onnxruntime environment. Sessions must be closed first.
func ShutdownRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return errors.Wrap(ort.DestroyEnvironment(), "error destroying onnxruntime environment")
}
