package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"What are your hours?", "what are your hours"},
		{"  HELLO,   World!! ", "hello world"},
		{"", ""},
		{"???", ""},
		{"a​b", "ab"}, // zero-width space is non-printable and dropped
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Normalize(c.in), "input %q", c.in)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	s := Normalize("What ARE your   hours?!")
	assert.Equal(t, s, Normalize(s))
}

func TestSimilarity_Bounds(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("hello", "hello"))
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 0.0, Similarity("hello", ""))
	assert.Equal(t, 0.0, Similarity("", "hello"))
}

func TestSimilarity_Ordering(t *testing.T) {
	// Closer strings score higher.
	near := Similarity("what are your hours", "what are your hour")
	far := Similarity("what are your hours", "write me a poem")
	assert.Greater(t, near, 0.9)
	assert.Less(t, far, 0.5)
	assert.Greater(t, near, far)
}
