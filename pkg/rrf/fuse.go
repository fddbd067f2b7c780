// Package rrf implements reciprocal-rank fusion of multiple ranked id
// lists into a single fused score map.
package rrf

// Fuse combines rankings by summing, for each id, 1/(k+rank) across
// every ranking it appears in (rank is 1-based). k defaults to 60 when
// callers pass 0, matching the retrieval engine's default.
func Fuse(rankings [][]string, k int) map[string]float64 {
	if k <= 0 {
		k = 60
	}
	scores := make(map[string]float64)
	for _, ranking := range rankings {
		for i, id := range ranking {
			rank := i + 1
			scores[id] += 1.0 / float64(k+rank)
		}
	}
	return scores
}
