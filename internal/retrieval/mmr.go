package retrieval

// Select picks up to cfg.K candidates balancing relevance against redundancy
// using Maximal Marginal Relevance with a binary group-collision penalty:
//
//	score = lambda*similarity - (1-lambda)*redundancy
//
// where redundancy is 1.0 if the candidate's group is already represented in
// the selection and 0.0 otherwise. This is a deliberate simplification of
// classical MMR, which measures pairwise text similarity against every chosen
// item; the group collision term is cheaper and is what the per-group cap
// already keys on.
//
// The first pick is always the highest-similarity candidate. Ties are broken
// by higher raw similarity, then by earliest original position, so identical
// inputs always produce the identical ordered selection. Candidates whose
// group has reached cfg.PerGroupCap are skipped; if nothing eligible remains
// the selection terminates early and may be shorter than K.
//
// The returned order is the final presentation rank. Increasing K never
// reorders or removes earlier picks; new picks only append.
//
// Complexity is O(K*n), fine for pools in the low hundreds.
func Select(candidates []Candidate, cfg SelectionConfig) []Candidate {
	if len(candidates) == 0 || cfg.K <= 0 {
		return nil
	}

	chosen := make([]bool, len(candidates))
	usedPerGroup := make(map[string]int, len(candidates))
	selection := make([]Candidate, 0, min(cfg.K, len(candidates)))

	// Seed with the most similar candidate; earliest wins on ties.
	seed := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Similarity > candidates[seed].Similarity {
			seed = i
		}
	}
	chosen[seed] = true
	selection = append(selection, candidates[seed])
	usedPerGroup[candidates[seed].Group] = 1

	for len(selection) < cfg.K {
		best := -1
		var bestScore, bestSim float64

		for i, c := range candidates {
			if chosen[i] {
				continue
			}
			if cfg.PerGroupCap > 0 && usedPerGroup[c.Group] >= cfg.PerGroupCap {
				continue
			}

			redundancy := 0.0
			if usedPerGroup[c.Group] > 0 {
				redundancy = 1.0
			}
			score := cfg.Lambda*c.Similarity - (1-cfg.Lambda)*redundancy

			if best == -1 || score > bestScore ||
				(score == bestScore && c.Similarity > bestSim) {
				best = i
				bestScore = score
				bestSim = c.Similarity
			}
		}

		if best == -1 {
			// Everything left is at its group's cap.
			break
		}

		chosen[best] = true
		selection = append(selection, candidates[best])
		usedPerGroup[candidates[best].Group]++
	}

	return selection
}
