package blob

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tp12121212/sit-builder/pkg/domain/shared"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	store, err := NewStore(filepath.Join(root, "uploads"), filepath.Join(root, "artifacts"))
	require.NoError(t, err)
	return store
}

func TestStageUpload(t *testing.T) {
	store := newTestStore(t)
	scanID := shared.NewID()

	path, err := store.StageUpload(scanID, "reports/2024/q1.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(path, scanID.String()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	t.Run("overwrite replaces content", func(t *testing.T) {
		again, err := store.StageUpload(scanID, "reports/2024/q1.txt", strings.NewReader("v2"))
		require.NoError(t, err)
		assert.Equal(t, path, again)

		data, err := os.ReadFile(again)
		require.NoError(t, err)
		assert.Equal(t, "v2", string(data))
	})
}

func TestArtifactRoundtrip(t *testing.T) {
	store := newTestStore(t)
	scanID := shared.NewID()
	text := strings.Repeat("Extracted body with SSN 123-45-6789 and trailing newline\n", 50)

	path, err := store.WriteArtifact(scanID, "payroll.pdf", text)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".txt.gz"))

	// The on-disk bytes must be compressed, not the raw text.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "123-45-6789")

	got, err := store.ReadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestReadArtifactErrors(t *testing.T) {
	store := newTestStore(t)

	_, err := store.ReadArtifact(filepath.Join(t.TempDir(), "missing.txt.gz"))
	assert.Error(t, err)

	plain := filepath.Join(t.TempDir(), "plain.txt.gz")
	require.NoError(t, os.WriteFile(plain, []byte("not gzip"), 0o640))
	_, err = store.ReadArtifact(plain)
	assert.Error(t, err)
}

func TestSafePathTraversal(t *testing.T) {
	store := newTestStore(t)
	scanID := shared.NewID()

	for _, name := range []string{
		"../outside.txt",
		"..",
		"a/../../outside.txt",
		"/etc/passwd",
		"",
		".",
	} {
		_, err := store.StageUpload(scanID, name, strings.NewReader("x"))
		require.Error(t, err, "name %q", name)
		assert.True(t, errors.Is(err, shared.ErrValidation), "name %q", name)
	}

	// Interior dot-dot segments that stay inside the scan directory are fine.
	_, err := store.StageUpload(scanID, "a/../b.txt", strings.NewReader("x"))
	assert.NoError(t, err)
}

func TestRemoveScan(t *testing.T) {
	store := newTestStore(t)
	keep := shared.NewID()
	drop := shared.NewID()

	_, err := store.StageUpload(keep, "keep.txt", strings.NewReader("k"))
	require.NoError(t, err)
	dropUpload, err := store.StageUpload(drop, "drop.txt", strings.NewReader("d"))
	require.NoError(t, err)
	dropArtifact, err := store.WriteArtifact(drop, "drop.txt", "d")
	require.NoError(t, err)

	require.NoError(t, store.RemoveScan(drop))

	_, err = os.Stat(dropUpload)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dropArtifact)
	assert.True(t, os.IsNotExist(err))

	// Other scans are untouched, and removing again is a no-op.
	_, err = store.StageUpload(keep, "keep2.txt", strings.NewReader("k2"))
	assert.NoError(t, err)
	assert.NoError(t, store.RemoveScan(drop))
}
