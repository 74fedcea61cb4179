package retrieval

import (
	"fmt"
	"strings"
)

// Section markers in the assembled document.
const (
	contextMarker      = "--- Retrieved context ---"
	instructionsMarker = "--- Instructions ---"
)

// AssembleOptions configures context document rendering.
type AssembleOptions struct {
	// Header is emitted (trimmed) before the retrieved-context section
	// when non-empty.
	Header string

	// Footer is emitted (trimmed) after the fragments, preceded by the
	// instructions marker, when non-empty.
	Footer string

	// Cite prefixes each fragment with an inline [kind:name#index] tag.
	Cite bool
}

// Assemble renders an ordered selection into a single context document.
//
// The layout is: header (if any), the retrieved-context marker, one block per
// fragment in selection order, and the instructions marker plus footer (if
// any), with blocks separated by a blank line. Presentation order equals
// selection order; no reordering, truncation, or deduplication happens here.
// Assemble is a pure function with no side effects.
func Assemble(selection []Candidate, opts AssembleOptions) string {
	blocks := make([]string, 0, len(selection)+4)

	if h := strings.TrimSpace(opts.Header); h != "" {
		blocks = append(blocks, h)
	}
	blocks = append(blocks, contextMarker)

	for _, c := range selection {
		if opts.Cite {
			blocks = append(blocks, citationTag(c)+"\n"+c.Text)
		} else {
			blocks = append(blocks, c.Text)
		}
	}

	if f := strings.TrimSpace(opts.Footer); f != "" {
		blocks = append(blocks, instructionsMarker, f)
	}

	return strings.Join(blocks, "\n\n")
}

// citationTag formats the inline source tag for a fragment, e.g. [table:missions#0].
func citationTag(c Candidate) string {
	return fmt.Sprintf("[%s:%s#%d]", c.Kind, c.Name, c.Index)
}
