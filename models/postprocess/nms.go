package postprocess

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-detect/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 // Overlap above which the weaker box is suppressed.
	ClassAware   bool    // If true, suppress only within the same class.
	NumWorkers   int     // Number of class groups suppressed concurrently.
}

// DefaultNMSConfig returns per-class suppression at the given threshold on one worker.
func DefaultNMSConfig(iouThreshold float32) NMSConfig {
	return NMSConfig{
		IoUThreshold: iouThreshold,
		ClassAware:   true,
		NumWorkers:   1,
	}
}

// ValidateNMSConfig checks that the IoU threshold is in (0, 1].
func ValidateNMSConfig(config NMSConfig) error {
	// Written as a negation so NaN is rejected too.
	if !(config.IoUThreshold > 0 && config.IoUThreshold <= 1) {
		return errors.Wrapf(ErrInvalidConfig, "nms threshold %v must be in (0, 1]", config.IoUThreshold)
	}
	return nil
}

// ApplyNMS filters overlapping detections using Non-Maximum Suppression.
//
// With ClassAware set, candidates are grouped by class and each group is suppressed on its
// own, so boxes of different classes never suppress each other whatever their overlap. The
// result is ordered by class id ascending, then confidence descending. Without ClassAware a
// single group spans all classes and the result is ordered by confidence descending.
// Equal confidences keep their input order in both modes.
//
// Surviving boxes are returned unchanged and the count never grows. The input is not
// modified.
//
// Arguments:
//   - candidates: Candidates in any order.
//   - config: NMS configuration.
//
// Returns:
//   - []Detection: The surviving detections.
//   - error: ErrInvalidConfig when the threshold is out of range.
//
// @example
// detections, err := ApplyNMS(candidates, DefaultNMSConfig(0.45))
func ApplyNMS(candidates []Candidate, config NMSConfig) ([]Detection, error) {
	if err := ValidateNMSConfig(config); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []Detection{}, nil
	}

	groups := [][]Candidate{candidates}
	if config.ClassAware {
		groups = groupByClass(candidates)
	}

	kept := make([][]Candidate, len(groups))

	workers := config.NumWorkers
	if workers < 1 {
		workers = 1
	}

	if workers == 1 || len(groups) == 1 {
		for i, group := range groups {
			kept[i] = ApplyGreedyNMS(sortByConfidence(group), config.IoUThreshold)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(workers)
		for i, group := range groups {
			i, group := i, group
			g.Go(func() error {
				// Each goroutine owns slot i, so the output order does not depend on scheduling.
				kept[i] = ApplyGreedyNMS(sortByConfidence(group), config.IoUThreshold)
				return nil
			})
		}
		_ = g.Wait()
	}

	detections := make([]Detection, 0, len(candidates))
	for _, group := range kept {
		for _, c := range group {
			detections = append(detections, Detection(c))
		}
	}

	return detections, nil
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression on a single group.
//
// Arguments:
//   - sorted: Candidates sorted by descending confidence.
//   - iouThreshold: IoU above which overlapping boxes are suppressed.
//
// Returns:
//   - The surviving candidates, in input order.
func ApplyGreedyNMS(sorted []Candidate, iouThreshold float32) []Candidate {
	n := len(sorted)
	if n == 0 {
		return nil
	}

	filtered := make([]Candidate, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}

			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, sorted[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}

// groupByClass splits candidates by class id, ordered by ascending class id. Each group keeps
// the input order.
func groupByClass(candidates []Candidate) [][]Candidate {
	byClass := make(map[int][]Candidate)
	for _, c := range candidates {
		byClass[c.ClassID] = append(byClass[c.ClassID], c)
	}

	ids := make([]int, 0, len(byClass))
	for id := range byClass {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	groups := make([][]Candidate, len(ids))
	for i, id := range ids {
		groups[i] = byClass[id]
	}
	return groups
}

func sortByConfidence(candidates []Candidate) []Candidate {
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	return sorted
}
