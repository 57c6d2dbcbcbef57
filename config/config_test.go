package config

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/controller"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/tracking"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	return path
}

// validConfig returns the defaults pointed at a model file that exists.
func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := Default()
	cfg.Model.Path = touch(t, filepath.Join(t.TempDir(), "yolo11n.onnx"))
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, float32(0.25), cfg.Detection.ConfidenceThreshold)
	assert.Equal(t, float32(0.45), cfg.Detection.NMSThreshold)
	assert.Equal(t, 640, cfg.Model.InputWidth)
	assert.Equal(t, 640, cfg.Model.InputHeight)
	assert.Equal(t, 0, cfg.Input.Device)
	assert.Equal(t, InputCamera, cfg.Input.InputType())
	assert.Equal(t, "channel_major", cfg.Model.Layout)
}

func TestParse(t *testing.T) {
	data := []byte(`
model:
  path: models/custom.onnx
  labels: labels.txt
  input_width: 320
  input_height: 256
  row_length: 7
  num_classes: 3
  layout: row_major
  pixel_coords: false
detection:
  confidence_threshold: 0.5
  class_agnostic: true
  relevant_classes: [person, car]
input:
  video: clip.mp4
  drop_frames: true
log:
  level: debug
  format: json
profiling:
  enabled: true
  report_interval: 2s
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "models/custom.onnx", cfg.Model.Path)
	assert.Equal(t, 320, cfg.Model.InputWidth)
	assert.Equal(t, 7, cfg.Model.RowLength)
	assert.Equal(t, 3, cfg.Model.NumClasses)
	assert.False(t, cfg.Model.PixelCoords)
	assert.Equal(t, float32(0.5), cfg.Detection.ConfidenceThreshold)
	assert.Equal(t, float32(0.45), cfg.Detection.NMSThreshold, "missing keys keep their default")
	assert.True(t, cfg.Detection.ClassAgnostic)
	assert.Equal(t, []string{"person", "car"}, cfg.Detection.RelevantClasses)
	assert.Equal(t, InputVideo, cfg.Input.InputType())
	assert.True(t, cfg.Input.DropFrames)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 2*time.Second, cfg.Profiling.ReportInterval)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("detection:\n  confidence: 0.5\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = Parse([]byte("detection: [1, 2"))
	assert.Error(t, err)

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detect.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input:\n  device: 2\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Input.Device)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	video := touch(t, filepath.Join(dir, "clip.mp4"))
	still := touch(t, filepath.Join(dir, "frame-1.jpg"))
	text := touch(t, filepath.Join(dir, "notes.txt"))

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "video", modify: func(c *Config) { c.Input.Video = video }},
		{name: "image", modify: func(c *Config) { c.Input.Image = still }},
		{name: "directory", modify: func(c *Config) { c.Input.Directory = dir }},
		{name: "video and image", modify: func(c *Config) { c.Input.Video, c.Input.Image = video, still }, wantErr: true},
		{name: "missing video", modify: func(c *Config) { c.Input.Video = filepath.Join(dir, "gone.mp4") }, wantErr: true},
		{name: "unsupported video extension", modify: func(c *Config) { c.Input.Video = text }, wantErr: true},
		{name: "image given as video", modify: func(c *Config) { c.Input.Video = still }, wantErr: true},
		{name: "directory is a file", modify: func(c *Config) { c.Input.Directory = still }, wantErr: true},
		{name: "negative device", modify: func(c *Config) { c.Input.Device = -1 }, wantErr: true},
		{name: "missing model", modify: func(c *Config) { c.Model.Path = filepath.Join(dir, "gone.onnx") }, wantErr: true},
		{name: "model is not onnx", modify: func(c *Config) { c.Model.Path = text }, wantErr: true},
		{name: "confidence above one", modify: func(c *Config) { c.Detection.ConfidenceThreshold = 1.5 }, wantErr: true},
		{name: "zero nms threshold", modify: func(c *Config) { c.Detection.NMSThreshold = 0 }, wantErr: true},
		{name: "negative workers", modify: func(c *Config) { c.Detection.NMSWorkers = -1 }, wantErr: true},
		{name: "unknown layout", modify: func(c *Config) { c.Model.Layout = "diagonal" }, wantErr: true},
		{name: "row length mismatch", modify: func(c *Config) { c.Model.RowLength = 10 }, wantErr: true},
		{name: "save without directory", modify: func(c *Config) { c.Output.SaveFrames, c.Output.OutputDir = true, "" }, wantErr: true},
		{name: "unknown log format", modify: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
		{name: "unknown log level", modify: func(c *Config) { c.Log.Level = "loud" }, wantErr: true},
		{name: "tracking", modify: func(c *Config) { c.Tracking.Enabled = true }},
		{name: "tracking without threshold", modify: func(c *Config) { c.Tracking.Enabled, c.Tracking.IoUThreshold = true, 0 }, wantErr: true},
		{name: "disabled tracking is not checked", modify: func(c *Config) { c.Tracking.MaxMissed = -1 }},
		{name: "profiling without interval", modify: func(c *Config) { c.Profiling.Enabled, c.Profiling.ReportInterval = true, 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_ThresholdSentinel(t *testing.T) {
	cfg := validConfig(t)
	cfg.Detection.NMSThreshold = 2
	assert.ErrorIs(t, cfg.Validate(), postprocess.ErrInvalidConfig)
}

func TestModelConfig(t *testing.T) {
	cfg := Default()
	cfg.Model.Path = "yolo11n.onnx"

	m, err := cfg.ModelConfig()
	require.NoError(t, err)
	assert.Equal(t, model.ModelNameYOLO11n, m.Name)
	assert.Equal(t, image.Pt(640, 640), m.InputSize)
	assert.Equal(t, postprocess.LayoutChannelMajor, m.Layout)
	assert.Zero(t, m.Rows, "rows are read from the model file")

	cfg.Model.NumClasses = 0
	cfg.Model.RowLength = 7
	cfg.Model.Layout = "row_major"
	cfg.Model.Rows = 100

	m, err = cfg.ModelConfig()
	require.NoError(t, err)
	assert.Equal(t, model.ModelNameCustom, m.Name)
	assert.Equal(t, 3, m.NumClasses)
	assert.Equal(t, 7, m.RowLength())
	assert.Equal(t, postprocess.LayoutRowMajor, m.Layout)
	assert.Equal(t, 100, m.Rows)
}

func TestDetectorConfig(t *testing.T) {
	cfg := Default()
	cfg.Detection.RelevantClasses = []string{"person", "car"}
	cfg.Detection.ClassAgnostic = true

	m, err := cfg.ModelConfig()
	require.NoError(t, err)

	det, err := cfg.DetectorConfig(m, models.YOLOClasses)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{0: true, 2: true}, det.RelevantClasses)
	assert.True(t, det.ClassAgnostic)
	assert.Equal(t, float32(0.25), det.ConfidenceThreshold)
	assert.Equal(t, m, det.Model)

	cfg.Detection.RelevantClasses = []string{"unicorn"}
	_, err = cfg.DetectorConfig(m, models.YOLOClasses)
	assert.Error(t, err)

	cfg.Detection.RelevantClasses = nil
	det, err = cfg.DetectorConfig(m, models.YOLOClasses)
	require.NoError(t, err)
	assert.Nil(t, det.RelevantClasses)
}

func TestControllerConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, controller.Config{ErrorPolicy: controller.ErrorPolicyStop}, cfg.ControllerConfig())

	cfg.Input.DropFrames = true
	cfg.Input.MaxFrames = 10
	cfg.Detection.SkipErrors = true
	assert.Equal(t, controller.Config{
		DropFrames:  true,
		ErrorPolicy: controller.ErrorPolicySkip,
		MaxFrames:   10,
	}, cfg.ControllerConfig())
}

func TestTrackerConfig(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.Tracking.Enabled)
	assert.Equal(t, tracking.DefaultConfig(), cfg.TrackerConfig())

	cfg, err := Parse([]byte("tracking:\n  enabled: true\n  max_missed: 5\n  class_agnostic: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Tracking.Enabled)
	assert.Equal(t, tracking.Config{IoUThreshold: 0.3, MaxMissed: 5, ClassAgnostic: true}, cfg.TrackerConfig())
}

func TestInputType_String(t *testing.T) {
	assert.Equal(t, "camera", InputCamera.String())
	assert.Equal(t, "directory", InputDirectory.String())
	assert.Equal(t, "unknown", InputType(42).String())
}
