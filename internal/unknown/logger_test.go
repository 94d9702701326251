package unknown

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_CreatesHeaderAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unknown.csv")

	l, err := NewLogger(path)
	require.NoError(t, err)
	require.NoError(t, l.Log("telegram:1", "u1", "what is the meaning of life", "fallback"))
	require.NoError(t, l.Log("telegram:2", "u2", "question, with commas", "fallback"))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "what is the meaning of life", rows[1][3])
	assert.Equal(t, "question, with commas", rows[2][3])
}

func TestLogger_ReopenDoesNotDuplicateHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unknown.csv")

	l, err := NewLogger(path)
	require.NoError(t, err)
	require.NoError(t, l.Log("c", "u", "q1", "fallback"))

	l2, err := NewLogger(path)
	require.NoError(t, err)
	require.NoError(t, l2.Log("c", "u", "q2", "fallback"))

	f, _ := os.Open(path)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3) // header + 2 entries
}

func TestLogger_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unknown.csv")
	l, err := NewLogger(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Log("c", "u", "concurrent question", "fallback"))
		}()
	}
	wg.Wait()

	f, _ := os.Open(path)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 21)
}
