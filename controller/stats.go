package controller

import (
	"time"

	"go.uber.org/atomic"
)

// Stats counts what happened to the frames of a run. It is safe for concurrent use.
type Stats struct {
	captured  atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64
	errors    atomic.Int64
	started   atomic.Time

	// fps is refreshed once per second by the sink stage.
	fps        atomic.Float64
	fpsFrames  int
	fpsWindowT time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Captured  int64         `json:"captured"`
	Processed int64         `json:"processed"`
	Dropped   int64         `json:"dropped"`
	Errors    int64         `json:"errors"`
	Uptime    time.Duration `json:"uptime"`
	FPS       float64       `json:"fps"`
}

// NewStats creates empty stats.
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) start(now time.Time) {
	s.started.Store(now)
	s.fpsWindowT = now
	s.fpsFrames = 0
}

// observe counts a frame that went through every sink. It must only be called from one goroutine.
func (s *Stats) observe(now time.Time) {
	s.processed.Inc()

	s.fpsFrames++
	elapsed := now.Sub(s.fpsWindowT).Seconds()
	if elapsed >= 1.0 {
		s.fps.Store(float64(s.fpsFrames) / elapsed)
		s.fpsFrames = 0
		s.fpsWindowT = now
	}
}

// FPS returns the frame rate measured over the last full second.
func (s *Stats) FPS() float64 {
	return s.fps.Load()
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	var uptime time.Duration
	if started := s.started.Load(); !started.IsZero() {
		uptime = time.Since(started)
	}

	return StatsSnapshot{
		Captured:  s.captured.Load(),
		Processed: s.processed.Load(),
		Dropped:   s.dropped.Load(),
		Errors:    s.errors.Load(),
		Uptime:    uptime,
		FPS:       s.fps.Load(),
	}
}

// CollectMetrics reports the counters to the profiler.
func (s *Stats) CollectMetrics() map[string]float64 {
	snapshot := s.Snapshot()
	return map[string]float64{
		"frames_captured":  float64(snapshot.Captured),
		"frames_processed": float64(snapshot.Processed),
		"frames_dropped":   float64(snapshot.Dropped),
		"frame_errors":     float64(snapshot.Errors),
		"fps":              snapshot.FPS,
	}
}
