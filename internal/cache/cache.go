// Package cache provides a single-slot memoization of the most recent
// retrieval, keyed on exact query text.
//
// Within one interactive turn the same question is often retrieved twice
// (once to ground generation, once for diagnostics or a follow-up call).
// The slot avoids recomputing that retrieval. It is best-effort: a distinct
// query unconditionally overwrites the slot, there is no TTL, and callers
// must never assume it is populated or fresh.
package cache

import (
	"sync"

	"github.com/orbitalmind/satrag/internal/retrieval"
)

// Entry is a cached retrieval outcome.
type Entry struct {
	// Document is the assembled context document.
	Document string

	// Selection is the ordered selection the document was built from.
	Selection []retrieval.Candidate
}

// ContextSlot holds at most one cached retrieval. The zero value is an empty,
// ready-to-use slot. Safe for concurrent use.
type ContextSlot struct {
	mu    sync.RWMutex
	query string
	entry Entry
	full  bool
}

// NewContextSlot creates an empty slot.
func NewContextSlot() *ContextSlot {
	return &ContextSlot{}
}

// Get returns the cached entry if query exactly matches the stored one.
func (s *ContextSlot) Get(query string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.full || s.query != query {
		return Entry{}, false
	}
	return s.entry, true
}

// Put stores the entry for query, replacing whatever was cached before.
func (s *ContextSlot) Put(query string, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.query = query
	s.entry = entry
	s.full = true
}

// Clear empties the slot.
func (s *ContextSlot) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.query = ""
	s.entry = Entry{}
	s.full = false
}
