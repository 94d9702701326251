// Package match decides whether a knowledge base entry answers a message.
package match

import (
	"github.com/dhvos/dhvos-go/internal/bus"
	"github.com/dhvos/dhvos-go/internal/knowledge"
)

// Store is the knowledge lookup surface the matcher consumes.
type Store interface {
	Lookup(text string) []knowledge.ScoredEntry
}

// Result is a confidence-scored match outcome. A nil Entry means no match;
// Score still carries the best score seen so callers can log near-misses.
type Result struct {
	Entry   *knowledge.Entry
	Score   float64
	Matcher string
}

// Matched reports whether a confident entry was found.
func (r Result) Matched() bool { return r.Entry != nil }

// Matcher applies a similarity threshold over knowledge lookups.
type Matcher struct {
	threshold float64
}

// New creates a matcher. threshold is the minimum score in [0,1] for a match;
// anything below returns no-match rather than a low-confidence guess.
func New(threshold float64) *Matcher {
	return &Matcher{threshold: threshold}
}

// Match queries the store and returns the best candidate, or no-match when
// the top score falls below the threshold. Ordering is deterministic: the
// store ranks by score and breaks ties toward the most recently added entry.
func (m *Matcher) Match(msg bus.InboundMessage, store Store) Result {
	results := store.Lookup(msg.Content)
	if len(results) == 0 {
		return Result{}
	}

	top := results[0]
	if top.Score < m.threshold {
		return Result{Score: top.Score}
	}
	return Result{Entry: top.Entry, Score: top.Score, Matcher: top.Method}
}
