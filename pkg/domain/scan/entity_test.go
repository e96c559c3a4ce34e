package scan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tp12121212/sit-builder/pkg/domain/candidate"
)

func testRaw(value string) candidate.Raw {
	return candidate.Raw{
		Type:      candidate.TypePattern,
		Value:     value,
		Frequency: 1,
		FileName:  "doca.txt",
	}
}

func newTestScan(t *testing.T, files int) *Scan {
	t.Helper()
	src := make([]SourceFile, 0, files)
	for i := 0; i < files; i++ {
		src = append(src, SourceFile{
			Name:    "doc" + string(rune('a'+i)) + ".txt",
			Data:    []byte("content"),
			Size:    7,
			ModTime: time.Now(),
		})
	}
	s, err := New("test scan", BackendClassic, CategoryPII, src)
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	t.Run("creates pending scan with files", func(t *testing.T) {
		s := newTestScan(t, 3)
		assert.Equal(t, StatusPending, s.Status)
		assert.Equal(t, "pending", s.Progress.Phase)
		assert.Equal(t, 3, s.Progress.FilesTotal)
		assert.Len(t, s.Files, 3)
		assert.False(t, s.ID.IsZero())
	})

	t.Run("rejects invalid backend", func(t *testing.T) {
		_, err := New("x", Backend("turbo"), CategoryPII, []SourceFile{{Name: "a"}})
		assert.Error(t, err)
	})

	t.Run("rejects empty file set", func(t *testing.T) {
		_, err := New("x", BackendClassic, CategoryPII, nil)
		assert.Error(t, err)
	})

	t.Run("rejects empty category", func(t *testing.T) {
		_, err := New("x", BackendClassic, "   ", []SourceFile{{Name: "a"}})
		assert.Error(t, err)
	})

	t.Run("accepts custom category label", func(t *testing.T) {
		s, err := New("x", BackendClassic, "trade-secrets", []SourceFile{{Name: "a"}})
		require.NoError(t, err)
		assert.Equal(t, "trade-secrets", s.Category)
	})

	t.Run("fixed categories match case-insensitively", func(t *testing.T) {
		s, err := New("x", BackendClassic, "FiNaNcIaL", []SourceFile{{Name: "a"}})
		require.NoError(t, err)
		assert.Equal(t, CategoryFinancial, s.Category)
	})
}

func TestScanLifecycle(t *testing.T) {
	t.Run("happy path transitions", func(t *testing.T) {
		s := newTestScan(t, 1)
		require.NoError(t, s.StartExtracting())
		assert.Equal(t, StatusExtracting, s.Status)
		require.NoError(t, s.StartAnalyzing())
		assert.Equal(t, StatusAnalyzing, s.Status)
		require.NoError(t, s.Complete())
		assert.Equal(t, StatusCompleted, s.Status)
		assert.Equal(t, float64(100), s.Progress.Percent)
		require.NotNil(t, s.CompletedAt)
	})

	t.Run("transitions are idempotent", func(t *testing.T) {
		s := newTestScan(t, 1)
		require.NoError(t, s.StartExtracting())
		require.NoError(t, s.StartExtracting())
		require.NoError(t, s.StartAnalyzing())
		require.NoError(t, s.StartAnalyzing())
		require.NoError(t, s.Complete())
		require.NoError(t, s.Complete())
	})

	t.Run("rejects regressions", func(t *testing.T) {
		s := newTestScan(t, 1)
		require.NoError(t, s.StartExtracting())
		require.NoError(t, s.StartAnalyzing())
		assert.Error(t, s.StartExtracting())
	})

	t.Run("rejects skipping phases", func(t *testing.T) {
		s := newTestScan(t, 1)
		assert.Error(t, s.StartAnalyzing())
		assert.Error(t, s.Complete())
	})

	t.Run("fail reachable from processing states", func(t *testing.T) {
		s := newTestScan(t, 1)
		require.NoError(t, s.StartExtracting())
		require.NoError(t, s.Fail("backend unavailable"))
		assert.Equal(t, StatusFailed, s.Status)
		assert.Equal(t, "backend unavailable", s.ErrorMessage)
		require.NotNil(t, s.CompletedAt)
	})

	t.Run("fail is idempotent but rejected after completion", func(t *testing.T) {
		s := newTestScan(t, 1)
		require.NoError(t, s.StartExtracting())
		require.NoError(t, s.Fail("x"))
		require.NoError(t, s.Fail("y"))
		assert.Equal(t, "x", s.ErrorMessage)

		done := newTestScan(t, 1)
		require.NoError(t, done.StartExtracting())
		require.NoError(t, done.StartAnalyzing())
		require.NoError(t, done.Complete())
		assert.Error(t, done.Fail("too late"))
	})
}

func TestProgressTracking(t *testing.T) {
	t.Run("percent advances with completed files and never decreases", func(t *testing.T) {
		s := newTestScan(t, 4)
		require.NoError(t, s.StartExtracting())

		s.FinishFile(s.Files[0].ID, "")
		assert.InDelta(t, 25, s.Progress.Percent, 0.01)
		assert.Equal(t, 1, s.Progress.FilesCompleted)

		s.FinishFile(s.Files[1].ID, "unreadable")
		assert.InDelta(t, 50, s.Progress.Percent, 0.01)
		assert.Equal(t, 2, s.Progress.FilesCompleted)

		// Repeating a finished file changes nothing.
		s.FinishFile(s.Files[1].ID, "unreadable again")
		assert.Equal(t, 2, s.Progress.FilesCompleted)
		assert.InDelta(t, 50, s.Progress.Percent, 0.01)
	})

	t.Run("failed files are reported", func(t *testing.T) {
		s := newTestScan(t, 3)
		s.FinishFile(s.Files[1].ID, "no extractable text content")
		assert.Equal(t, []string{s.Files[1].Name}, s.FailedFiles())
	})

	t.Run("begin file records current file", func(t *testing.T) {
		s := newTestScan(t, 2)
		s.BeginFile(s.Files[1].Name)
		assert.Equal(t, s.Files[1].Name, s.Progress.CurrentFile)
	})
}

func TestAppendRaw(t *testing.T) {
	s := newTestScan(t, 1)
	assert.Equal(t, uint64(0), s.PoolVersion)

	s.AppendRaw() // no-op
	assert.Equal(t, uint64(0), s.PoolVersion)

	s.AppendRaw(testRaw("a@b.com"), testRaw("c@d.com"))
	assert.Equal(t, uint64(1), s.PoolVersion)
	assert.Len(t, s.RawPool, 2)

	s.AppendRaw(testRaw("e@f.com"))
	assert.Equal(t, uint64(2), s.PoolVersion)
	assert.Len(t, s.RawPool, 3)
}

func TestClone(t *testing.T) {
	s := newTestScan(t, 2)
	s.AppendRaw(testRaw("a@b.com"))
	s.Progress.Meta["k"] = "v"

	cp := s.Clone()
	cp.Files[0].Done = true
	cp.RawPool[0].Value = "mutated"
	cp.Progress.Meta["k"] = "changed"

	assert.False(t, s.Files[0].Done)
	assert.Equal(t, "a@b.com", s.RawPool[0].Value)
	assert.Equal(t, "v", s.Progress.Meta["k"])
}

func TestCompleteRecordsFileTypes(t *testing.T) {
	src := []SourceFile{
		{Name: "a/report.TXT"},
		{Name: "b/data.json"},
		{Name: "c/other.txt"},
	}
	s, err := New("x", BackendClassic, CategoryPII, src)
	require.NoError(t, err)
	require.NoError(t, s.StartExtracting())
	require.NoError(t, s.StartAnalyzing())
	require.NoError(t, s.Complete())
	assert.Equal(t, []string{"json", "txt"}, s.Progress.Meta["file_types"])
}
