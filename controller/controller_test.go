package controller

import (
	"context"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/tracking"
)

// MockSource produces count frames, or frames forever when count is negative.
type MockSource struct {
	count     int
	next      int
	exhausted chan struct{}
	once      sync.Once
}

func newMockSource(count int) *MockSource {
	return &MockSource{count: count, exhausted: make(chan struct{})}
}

func (m *MockSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if m.count >= 0 && m.next >= m.count {
		m.once.Do(func() { close(m.exhausted) })
		return Frame{}, io.EOF
	}

	frame := Frame{
		ID:        m.next,
		Image:     image.NewRGBA(image.Rect(0, 0, 4, 4)),
		Timestamp: time.Now(),
	}
	m.next++
	return frame, nil
}

func (m *MockSource) Close() error { return nil }

// MockDetector returns one detection per frame and can fail on selected calls.
type MockDetector struct {
	mu      sync.Mutex
	calls   int
	failOn  map[int]bool
	release <-chan struct{}
}

func (m *MockDetector) Detect(ctx context.Context, _ image.Image) (*detector.Result, error) {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	call := m.calls
	m.calls++
	m.mu.Unlock()

	if m.failOn[call] {
		return nil, errors.New("mock detection error")
	}
	return &detector.Result{
		Detections: []postprocess.Detection{{
			Box:        images.BoundingBox{Left: 1, Top: 1, Width: 2, Height: 2},
			ClassID:    0,
			Confidence: 0.9,
		}},
		FrameWidth:  4,
		FrameHeight: 4,
	}, nil
}

// recordingSink remembers the frame ids it consumed.
type recordingSink struct {
	mu  sync.Mutex
	ids []int
}

func (s *recordingSink) Consume(_ context.Context, frame Frame, detections []postprocess.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, frame.ID)
	return nil
}

func (s *recordingSink) IDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.ids...)
}

func TestRun(t *testing.T) {
	sink := &recordingSink{}
	p := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{}, nil)

	c, err := New(Config{}, newMockSource(5), &MockDetector{}, []Sink{sink},
		WithLogger(zaptest.NewLogger(t)), WithProfiler(p))
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []int{0, 1, 2, 3, 4}, sink.IDs())
	stats := c.Stats().Snapshot()
	assert.Equal(t, int64(5), stats.Captured)
	assert.Equal(t, int64(5), stats.Processed)
	assert.Zero(t, stats.Dropped)
	assert.Zero(t, stats.Errors)
	assert.Equal(t, int64(5), p.Snapshot().Operations[OperationFrame].Count)
}

func TestRun_Tracking(t *testing.T) {
	tracker, err := tracking.New(tracking.DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	var trackIDs [][]int
	sink := SinkFunc(func(_ context.Context, frame Frame, detections []postprocess.Detection) error {
		assert.Len(t, frame.TrackIDs, len(detections))
		trackIDs = append(trackIDs, frame.TrackIDs)
		return nil
	})

	c, err := New(Config{}, newMockSource(3), &MockDetector{}, []Sink{sink},
		WithLogger(zaptest.NewLogger(t)), WithTracker(tracker))
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, [][]int{{1}, {1}, {1}}, trackIDs, "the still object keeps its track")
	require.Len(t, tracker.Tracks(), 1)
	assert.Equal(t, 3, tracker.Tracks()[0].Hits)
}

func TestRun_WithoutTracker(t *testing.T) {
	sink := SinkFunc(func(_ context.Context, frame Frame, _ []postprocess.Detection) error {
		assert.Nil(t, frame.TrackIDs)
		return nil
	})

	c, err := New(Config{}, newMockSource(2), &MockDetector{}, []Sink{sink})
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))
}

func TestRun_ErrorPolicy(t *testing.T) {
	tests := []struct {
		name      string
		policy    ErrorPolicy
		expectErr bool
		expectIDs []int
	}{
		{
			name:      "stop ends the run",
			policy:    ErrorPolicyStop,
			expectErr: true,
			expectIDs: []int{0, 1},
		},
		{
			name:      "skip drops the failed frame",
			policy:    ErrorPolicySkip,
			expectIDs: []int{0, 1, 3, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			det := &MockDetector{failOn: map[int]bool{2: true}}

			c, err := New(Config{ErrorPolicy: tt.policy}, newMockSource(5), det, []Sink{sink})
			require.NoError(t, err)

			err = c.Run(context.Background())
			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "frame 2")
				assert.Contains(t, err.Error(), "mock detection error")
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.expectIDs, sink.IDs())
			assert.Equal(t, int64(1), c.Stats().Snapshot().Errors)
		})
	}
}

func TestRun_SinkStops(t *testing.T) {
	var consumed int
	stopAfterTwo := SinkFunc(func(context.Context, Frame, []postprocess.Detection) error {
		consumed++
		if consumed == 2 {
			return ErrStop
		}
		return nil
	})

	c, err := New(Config{}, newMockSource(-1), &MockDetector{}, []Sink{stopAfterTwo})
	require.NoError(t, err)

	assert.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 2, consumed)
}

func TestRun_SinkError(t *testing.T) {
	failing := SinkFunc(func(context.Context, Frame, []postprocess.Detection) error {
		return errors.New("disk full")
	})
	sink := &recordingSink{}

	c, err := New(Config{}, newMockSource(3), &MockDetector{}, []Sink{failing, sink})
	require.NoError(t, err)

	err = c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, sink.IDs(), "later sinks are not called after a failure")
}

func TestRun_DropFrames(t *testing.T) {
	source := newMockSource(10)
	sink := &recordingSink{}
	det := &MockDetector{release: source.exhausted}

	c, err := New(Config{DropFrames: true}, source, det, []Sink{sink})
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))

	stats := c.Stats().Snapshot()
	assert.Equal(t, int64(10), stats.Captured)
	assert.Equal(t, int64(10), stats.Processed+stats.Dropped)
	assert.GreaterOrEqual(t, stats.Dropped, int64(8), "at most one frame waits while one is detected")

	ids := sink.IDs()
	require.NotEmpty(t, ids)
	assert.Equal(t, 0, ids[0])
	assert.IsIncreasing(t, ids)
}

func TestRun_MaxFrames(t *testing.T) {
	sink := &recordingSink{}

	c, err := New(Config{MaxFrames: 3}, newMockSource(-1), &MockDetector{}, []Sink{sink})
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []int{0, 1, 2}, sink.IDs())
}

func TestRun_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var consumed int
	cancelAfterTwo := SinkFunc(func(context.Context, Frame, []postprocess.Detection) error {
		consumed++
		if consumed == 2 {
			cancel()
		}
		return nil
	})

	c, err := New(Config{}, newMockSource(-1), &MockDetector{}, []Sink{cancelAfterTwo})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a clean shutdown")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.GreaterOrEqual(t, consumed, 2)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, nil, &MockDetector{}, nil)
	assert.Error(t, err)

	_, err = New(Config{}, newMockSource(1), nil, nil)
	assert.Error(t, err)

	_, err = New(Config{MaxFrames: -1}, newMockSource(1), &MockDetector{}, nil)
	assert.Error(t, err)
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	sink := NewLogSink(models.YOLOClasses, zap.New(core))

	detections := []postprocess.Detection{
		{Box: images.BoundingBox{Left: 1, Top: 2, Width: 3, Height: 4}, ClassID: 0, Confidence: 0.9},
		{Box: images.BoundingBox{Left: 5, Top: 6, Width: 7, Height: 8}, ClassID: 2, Confidence: 0.5},
	}
	require.NoError(t, sink.Consume(context.Background(), Frame{ID: 7}, detections))
	require.NoError(t, sink.Consume(context.Background(), Frame{ID: 8}, nil))

	entries := logs.FilterMessage("detection")
	require.Equal(t, 2, entries.Len())
	assert.Equal(t, 1, entries.FilterField(zap.String("label", "person")).Len())
	assert.Equal(t, 1, entries.FilterField(zap.String("label", "car")).Len())
	assert.Equal(t, 2, entries.FilterField(zap.Int("frame", 7)).Len())
	assert.Equal(t, 1, logs.FilterMessage("no detections").Len())
	assert.Zero(t, logs.FilterFieldKey("track_id").Len())

	require.NoError(t, sink.Consume(context.Background(), Frame{ID: 9, TrackIDs: []int{4, 11}}, detections))
	tracked := logs.FilterMessage("detection").FilterField(zap.Int("frame", 9))
	require.Equal(t, 2, tracked.Len())
	assert.Equal(t, 1, tracked.FilterField(zap.Int("track_id", 11)).FilterField(zap.String("label", "car")).Len())
}

func TestStats(t *testing.T) {
	s := NewStats()
	t0 := time.Now()
	s.start(t0)

	s.observe(t0.Add(250 * time.Millisecond))
	s.observe(t0.Add(500 * time.Millisecond))
	assert.Zero(t, s.FPS(), "no full second has passed")

	s.observe(t0.Add(time.Second))
	assert.InDelta(t, 3.0, s.FPS(), 1e-9)

	s.captured.Add(4)
	s.dropped.Inc()

	metrics := s.CollectMetrics()
	assert.Equal(t, 4.0, metrics["frames_captured"])
	assert.Equal(t, 3.0, metrics["frames_processed"])
	assert.Equal(t, 1.0, metrics["frames_dropped"])
	assert.InDelta(t, 3.0, metrics["fps"], 1e-9)
}
