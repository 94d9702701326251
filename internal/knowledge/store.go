// Package knowledge provides the curated question/answer store with
// similarity-ranked lookup and atomic wholesale reloads.
package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dhvos/dhvos-go/internal/text"
)

// Entry is a single curated question/answer pair. Entries are immutable once
// loaded; a reload replaces the whole set.
type Entry struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Seq      int      `json:"seq"` // load order; higher means added later

	normalized string // precomputed at load time
}

// Match methods reported in ScoredEntry.Method.
const (
	MethodExact    = "exact"
	MethodContains = "contains"
	MethodFuzzy    = "fuzzy"
)

// ScoredEntry pairs an entry with its lookup score.
type ScoredEntry struct {
	Entry  *Entry
	Score  float64
	Method string
}

// snapshot is an immutable loaded entry set. Readers hold at most one
// snapshot at a time; Replace swaps the pointer atomically.
type snapshot struct {
	entries  []Entry
	source   string
	loadedAt time.Time
}

// Store holds the active knowledge snapshot.
type Store struct {
	snap atomic.Pointer[snapshot]
}

// NewStore creates an empty store.
func NewStore() *Store {
	s := &Store{}
	s.snap.Store(&snapshot{})
	return s
}

// Replace atomically swaps in a new entry set. In-flight lookups keep the
// snapshot they started with; they never observe a partial set.
func (s *Store) Replace(entries []Entry, source string) {
	snap := &snapshot{
		entries:  make([]Entry, len(entries)),
		source:   source,
		loadedAt: time.Now(),
	}
	copy(snap.entries, entries)
	for i := range snap.entries {
		snap.entries[i].Seq = i
		snap.entries[i].normalized = text.Normalize(snap.entries[i].Question)
	}
	s.snap.Store(snap)
}

// Lookup scores every entry against the query text and returns them ordered
// highest score first. Ordering is deterministic: equal scores are broken by
// recency (higher Seq wins).
func (s *Store) Lookup(query string) []ScoredEntry {
	nq := text.Normalize(query)
	if nq == "" {
		return nil
	}

	snap := s.snap.Load()
	results := make([]ScoredEntry, 0, len(snap.entries))
	for i := range snap.entries {
		e := &snap.entries[i]
		if e.normalized == "" {
			continue
		}
		results = append(results, score(nq, e))
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entry.Seq > results[j].Entry.Seq
	})
	return results
}

// score rates one entry against a normalized query.
func score(nq string, e *Entry) ScoredEntry {
	if nq == e.normalized {
		return ScoredEntry{Entry: e, Score: 1, Method: MethodExact}
	}
	if contains(nq, e.normalized) || contains(e.normalized, nq) {
		return ScoredEntry{Entry: e, Score: 0.95, Method: MethodContains}
	}
	return ScoredEntry{Entry: e, Score: text.Similarity(nq, e.normalized), Method: MethodFuzzy}
}

// contains reports whether needle appears whole inside haystack.
// Very short needles are excluded so "hi" doesn't swallow every question.
func contains(haystack, needle string) bool {
	if len(needle) < 4 {
		return false
	}
	return len(haystack) > len(needle) && strings.Contains(haystack, needle)
}

// Len returns the number of entries in the active snapshot.
func (s *Store) Len() int {
	return len(s.snap.Load().entries)
}

// LoadedAt returns when the active snapshot was loaded (zero if never).
func (s *Store) LoadedAt() time.Time {
	return s.snap.Load().loadedAt
}

// Source returns the origin of the active snapshot.
func (s *Store) Source() string {
	return s.snap.Load().source
}

// LoadError reports a malformed or unreachable knowledge source. The store
// keeps the previously loaded snapshot when a load fails.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("knowledge load from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
