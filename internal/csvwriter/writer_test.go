package csvwriter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWriter_CommitReplacesTarget(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "out.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("old\n"), 0o644))

	w, err := NewWriter(target, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Write([]string{"a", "b"}))
	require.NoError(t, w.Write([]string{"1", "2"}))

	// Not visible before commit.
	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(content))

	require.NoError(t, w.Commit())

	content, err = os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(content))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be gone")

	assert.Error(t, w.Commit(), "second commit should fail")
}

func TestWriter_AbortKeepsTarget(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(target, []byte("keep\n"), 0o644))

	w, err := NewWriter(target, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Write([]string{"x"}))
	w.Abort()
	w.Abort()

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "keep\n", string(content))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
