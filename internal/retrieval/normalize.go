package retrieval

// Transform converts a raw metric distance into a bounded similarity score.
// Implementations must be monotonically decreasing in distance so that
// "higher similarity = more relevant" holds for every metric family.
type Transform func(distance float64) float64

// CosineTransform maps cosine distance to similarity: sim = 1 - dist.
// Cosine distance is in [0,2], so the resulting similarity is in [-1,1].
func CosineTransform(distance float64) float64 {
	return 1 - distance
}

// Normalize converts raw candidate-source rows into scored candidates.
//
// Each row's similarity is derived with t (CosineTransform when t is nil).
// When minSimilarity is non-nil, rows whose similarity falls strictly below
// the threshold are dropped. The input order is preserved: equal distances
// keep their original relative position, so this is a stable filter, not a
// resort. The input may be in any order; nothing downstream assumes it is
// sorted.
func Normalize(rows []Row, t Transform, minSimilarity *float64) []Candidate {
	if t == nil {
		t = CosineTransform
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, r := range rows {
		sim := t(r.Distance)
		if minSimilarity != nil && sim < *minSimilarity {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:         r.ID,
			Group:      r.Group,
			Kind:       r.Kind,
			Name:       r.Name,
			Index:      r.Index,
			Text:       r.Text,
			Distance:   r.Distance,
			Similarity: sim,
		})
	}
	return candidates
}
