// Package vectorstore provides candidate sources: vector stores queried by
// embedding for nearest-neighbor text fragments.
package vectorstore

import (
	"context"

	"github.com/orbitalmind/satrag/internal/retrieval"
)

// Filters restricts which items a search may return.
type Filters struct {
	// Kinds limits results to items of these kinds (e.g. table, column,
	// key, info). Empty means all kinds.
	Kinds []string

	// Dataset, when set, limits info items to the given dataset
	// identifier. Items of other kinds are unaffected.
	Dataset string
}

// CandidateSource defines the interface for nearest-neighbor retrieval.
//
// Implementations return up to limit rows ordered by ascending distance to
// the query vector. Rows carry the raw metric distance; similarity conversion
// and thresholding happen downstream in the retrieval package, which does not
// assume the rows are sorted.
type CandidateSource interface {
	Search(ctx context.Context, vector []float32, filters Filters, limit int) ([]retrieval.Row, error)
}
