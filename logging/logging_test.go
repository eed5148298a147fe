package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRotatingWriterRollsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.log")
	w, err := NewRotatingWriter(path, 10, 2)
	require.NoError(t, err)
	defer w.Close()

	for _, line := range []string{"first line\n", "second line\n", "third line\n"} {
		_, err := w.Write([]byte(line))
		require.NoError(t, err)
	}

	b1, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	require.Equal(t, "third line\n", string(b1))

	b2, err := os.ReadFile(path + ".2")
	require.NoError(t, err)
	require.Equal(t, "second line\n", string(b2))

	cur, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, cur)
}

func TestRotatingWriterRollsOversizedFileOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", 64)), 0644))

	w, err := NewRotatingWriter(path, 32, 1)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("fresh\n"))
	require.NoError(t, err)

	cur, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "fresh\n", string(cur))

	old, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	require.Len(t, old, 64)
}
