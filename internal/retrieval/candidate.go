// Package retrieval implements the reranking core of the RAG pipeline:
// similarity normalization, diversified (MMR) selection, and context assembly.
//
// The package performs no I/O. It consumes an already-fetched nearest-neighbor
// candidate list and produces an ordered, budget-limited selection plus a
// citation-tagged context document. Embedding, vector search, and generation
// are external collaborators (see the embedder, vectorstore, and llm packages).
package retrieval

import "fmt"

// Row is a raw nearest-neighbor row as returned by a candidate source.
// Distance is in the source's metric (cosine by default); it has not been
// converted to a similarity yet.
type Row struct {
	ID       string // chunk identifier
	Group    string // parent item identifier; the unit of the diversity cap
	Kind     string // parent item kind (e.g. "table", "column", "key", "info")
	Name     string // parent item name, used in citation tags
	Index    int    // chunk index within the parent item
	Text     string
	Distance float64
}

// Candidate is a retrieved text fragment scored against the query.
// Similarity is derived from Distance by a Transform and is never set
// independently; higher means more relevant.
type Candidate struct {
	ID         string
	Group      string
	Kind       string
	Name       string
	Index      int
	Text       string
	Distance   float64
	Similarity float64
}

// SelectionConfig holds the knobs for one selection pass.
type SelectionConfig struct {
	// K is the number of candidates to select. K <= 0 yields an empty
	// selection; it is not a configuration error.
	K int

	// Lambda is the MMR diversity weight in [0,1]. 1 means pure relevance
	// (top-K by similarity), 0 means pure redundancy avoidance after the
	// forced first pick.
	Lambda float64

	// PerGroupCap limits how many fragments of the same group may appear
	// in the selection. 0 means unlimited.
	PerGroupCap int
}

// Validate rejects parameter values the selection algorithm must never see.
func (c SelectionConfig) Validate() error {
	if c.Lambda < 0 || c.Lambda > 1 {
		return fmt.Errorf("mmr lambda must be in [0,1], got %g", c.Lambda)
	}
	if c.PerGroupCap < 0 {
		return fmt.Errorf("per-group cap must not be negative, got %d", c.PerGroupCap)
	}
	return nil
}
