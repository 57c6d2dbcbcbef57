package postprocess

// FilterByConfidence keeps the candidates whose confidence is at least threshold.
//
// Order is preserved and the input slice is never modified. A threshold of 0 keeps every
// candidate; a threshold above 1 keeps none.
//
// Arguments:
//   - candidates: The decoded candidates.
//   - threshold: The minimum confidence, inclusive.
//
// Returns:
//   - []Candidate: A new slice with the surviving candidates.
func FilterByConfidence(candidates []Candidate, threshold float32) []Candidate {
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence >= threshold {
			kept = append(kept, c)
		}
	}
	return kept
}

// FilterByClass keeps the candidates whose class is in allowed. A nil or empty set keeps all.
func FilterByClass(candidates []Candidate, allowed map[int]bool) []Candidate {
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if len(allowed) == 0 || allowed[c.ClassID] {
			kept = append(kept, c)
		}
	}
	return kept
}
