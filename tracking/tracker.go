// Package tracking - Assigns persistent track ids to detections across frames.
package tracking

import (
	"sort"
	"sync"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Config is a configuration for the tracker.
type Config struct {
	// IoUThreshold is the minimum overlap between a track's last box and a detection for the
	// detection to continue the track.
	IoUThreshold float32 `json:"iou_threshold" yaml:"iou_threshold"`
	// MaxMissed is the number of consecutive frames a track survives without a match.
	MaxMissed int `json:"max_missed" yaml:"max_missed"`
	// ClassAgnostic lets a detection continue a track of another class.
	ClassAgnostic bool `json:"class_agnostic" yaml:"class_agnostic"`
}

// DefaultConfig returns the tracker defaults: IoU 0.3, tracks kept for 30 missed frames.
func DefaultConfig() Config {
	return Config{
		IoUThreshold: 0.3,
		MaxMissed:    30,
	}
}

// Validate checks the threshold and the miss budget.
func (c Config) Validate() error {
	if math32.IsNaN(c.IoUThreshold) || c.IoUThreshold <= 0 || c.IoUThreshold > 1 {
		return errors.Wrapf(postprocess.ErrInvalidConfig,
			"tracking IoU threshold must be in (0, 1], got %v", c.IoUThreshold)
	}
	if c.MaxMissed < 0 {
		return errors.Wrapf(postprocess.ErrInvalidConfig,
			"tracking max missed must not be negative, got %d", c.MaxMissed)
	}
	return nil
}

// Track is one object followed across frames.
type Track struct {
	ID         int
	ClassID    int
	Box        images.BoundingBox
	Confidence float32
	// Hits counts the frames the track was matched in, including the first.
	Hits int
	// Missed counts consecutive frames without a match.
	Missed int
}

// Tracker matches each frame's detections to the tracks of earlier frames.
//
// Matching is greedy on IoU: the best overlapping pair is matched first. Detections left over
// start new tracks; tracks left over age and are dropped after MaxMissed frames. Track ids start
// at 1 and are never reused.
//
// Update must be called from one goroutine at a time. Tracks and CollectMetrics may be called
// concurrently with it.
type Tracker struct {
	config Config
	logger *zap.Logger

	mu      sync.Mutex
	tracks  []*Track
	nextID  int
	started int
	lost    int
}

// New creates a tracker.
//
// Arguments:
//   - config: The matching configuration.
//   - logger: The logger; nil disables logging.
//
// Returns:
//   - *Tracker: The tracker, with no tracks.
//   - error: ErrInvalidConfig when the configuration is out of range.
//
// @example
// tracker, err := tracking.New(tracking.DefaultConfig(), logger)
//
//	if err != nil {
//	    return err
//	}
//
// ids := tracker.Update(detections)
func New(config Config, logger *zap.Logger) (*Tracker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{config: config, logger: logger, nextID: 1}, nil
}

type match struct {
	track     int
	detection int
	iou       float32
}

// Update matches detections to the current tracks.
//
// Arguments:
//   - detections: The detections of one frame.
//
// Returns:
//   - []int: The track id of each detection, aligned by index.
func (t *Tracker) Update(detections []postprocess.Detection) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var candidates []match
	for ti, tr := range t.tracks {
		for di, d := range detections {
			if !t.config.ClassAgnostic && tr.ClassID != d.ClassID {
				continue
			}
			if iou := images.CalculateIoU(tr.Box, d.Box); iou >= t.config.IoUThreshold {
				candidates = append(candidates, match{track: ti, detection: di, iou: iou})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.iou != b.iou {
			return a.iou > b.iou
		}
		if a.track != b.track {
			return t.tracks[a.track].ID < t.tracks[b.track].ID
		}
		return a.detection < b.detection
	})

	ids := make([]int, len(detections))
	trackMatched := make([]bool, len(t.tracks))
	for _, m := range candidates {
		if trackMatched[m.track] || ids[m.detection] != 0 {
			continue
		}
		trackMatched[m.track] = true

		tr, d := t.tracks[m.track], detections[m.detection]
		tr.ClassID, tr.Box, tr.Confidence = d.ClassID, d.Box, d.Confidence
		tr.Hits++
		tr.Missed = 0
		ids[m.detection] = tr.ID
	}

	kept := t.tracks[:0]
	for ti, tr := range t.tracks {
		if !trackMatched[ti] {
			tr.Missed++
			if tr.Missed > t.config.MaxMissed {
				t.lost++
				t.logger.Debug("track lost", zap.Int("track_id", tr.ID), zap.Int("hits", tr.Hits))
				continue
			}
		}
		kept = append(kept, tr)
	}
	for i := len(kept); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}
	t.tracks = kept

	for di, d := range detections {
		if ids[di] != 0 {
			continue
		}
		tr := &Track{ID: t.nextID, ClassID: d.ClassID, Box: d.Box, Confidence: d.Confidence, Hits: 1}
		t.nextID++
		t.started++
		t.tracks = append(t.tracks, tr)
		ids[di] = tr.ID
		t.logger.Debug("track started", zap.Int("track_id", tr.ID), zap.Int("class_id", tr.ClassID))
	}

	return ids
}

// Tracks returns a copy of the live tracks ordered by id.
func (t *Tracker) Tracks() []Track {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Track, len(t.tracks))
	for i, tr := range t.tracks {
		out[i] = *tr
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CollectMetrics reports live, started and lost track counts.
func (t *Tracker) CollectMetrics() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]float64{
		"tracks_active":  float64(len(t.tracks)),
		"tracks_started": float64(t.started),
		"tracks_lost":    float64(t.lost),
	}
}
