package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_AddAndHistory(t *testing.T) {
	m := NewManager(t.TempDir(), 0)
	s := m.GetOrCreate("telegram:1")

	s.Add("user", "hello")
	s.Add("assistant", "hi there")
	s.Add("user", "what are your hours")

	h := s.History(2)
	require.Len(t, h, 2)
	assert.Equal(t, "hi there", h[0].Content)
	assert.Equal(t, "what are your hours", h[1].Content)

	assert.Len(t, s.History(0), 3)
}

func TestSession_RetentionBound(t *testing.T) {
	m := NewManager(t.TempDir(), 4)
	s := m.GetOrCreate("c")

	for i := 0; i < 10; i++ {
		s.Add("user", "msg")
	}
	assert.Len(t, s.Messages, 4)
}

func TestManager_SaveAndReload(t *testing.T) {
	dir := t.TempDir()

	m := NewManager(dir, 0)
	s := m.GetOrCreate("telegram:42")
	s.Add("user", "question")
	s.Add("assistant", "answer")
	require.NoError(t, m.Save(s))

	// Fresh manager reads from disk.
	m2 := NewManager(dir, 0)
	s2 := m2.GetOrCreate("telegram:42")
	require.Len(t, s2.Messages, 2)
	assert.Equal(t, "question", s2.Messages[0].Content)
	assert.Equal(t, "assistant", s2.Messages[1].Role)
	assert.False(t, s2.CreatedAt.IsZero())
}

func TestManager_GetOrCreateCaches(t *testing.T) {
	m := NewManager(t.TempDir(), 0)
	a := m.GetOrCreate("k")
	b := m.GetOrCreate("k")
	assert.Same(t, a, b)

	m.Invalidate("k")
	c := m.GetOrCreate("k")
	assert.NotSame(t, a, c)
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "telegram_42", safeFilename("telegram:42"))
	assert.Equal(t, "web_a_b", safeFilename("web/a b"))
}
