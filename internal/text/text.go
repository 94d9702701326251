// Package text provides normalization and similarity scoring for message matching.
package text

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
)

var (
	punctRe = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Normalize prepares text for comparison: drops non-printable characters,
// lowercases, replaces punctuation with spaces, collapses whitespace.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	out := strings.ToLower(b.String())
	out = punctRe.ReplaceAllString(out, " ")
	out = spaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Similarity returns a [0,1] ratio between two strings using difflib's
// SequenceMatcher over runes (2*matches/total, same as Python's difflib).
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}
