package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tp12121212/sit-builder/pkg/domain/scan"
	"github.com/tp12121212/sit-builder/pkg/domain/shared"
)

func newStoredScan(t *testing.T, name string) *scan.Scan {
	t.Helper()
	s, err := scan.New(name, scan.BackendClassic, scan.CategoryPII, []scan.SourceFile{
		{Name: "doc.txt", Size: 10, ModTime: time.Now()},
	})
	require.NoError(t, err)
	return s
}

func TestScanRepositoryCreateGet(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository()
	s := newStoredScan(t, "first")

	require.NoError(t, repo.Create(ctx, s))
	assert.Equal(t, 1, repo.Len())

	err := repo.Create(ctx, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, "first", got.Name)

	// Mutating the returned copy must not leak into the stored scan.
	got.Name = "mutated"
	got.Files[0].Done = true
	again, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", again.Name)
	assert.False(t, again.Files[0].Done)

	_, err = repo.Get(ctx, shared.NewID())
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestScanRepositoryUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository()
	s := newStoredScan(t, "update-me")
	require.NoError(t, repo.Create(ctx, s))

	require.NoError(t, repo.Update(ctx, s.ID, func(cur *scan.Scan) error {
		return cur.StartExtracting()
	}))

	got, err := repo.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, scan.StatusExtracting, got.Status)

	t.Run("failing fn leaves scan untouched", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.Update(ctx, s.ID, func(cur *scan.Scan) error {
			cur.Name = "half applied"
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := repo.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "update-me", got.Name)
	})

	t.Run("unknown scan", func(t *testing.T) {
		err := repo.Update(ctx, shared.NewID(), func(*scan.Scan) error { return nil })
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		err := repo.Update(cancelled, s.ID, func(*scan.Scan) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestScanRepositoryList(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository()

	a := newStoredScan(t, "oldest")
	a.CreatedAt = time.Now().Add(-2 * time.Hour)
	b := newStoredScan(t, "middle")
	b.CreatedAt = time.Now().Add(-1 * time.Hour)
	b.Backend = scan.BackendBridged
	c := newStoredScan(t, "newest")

	for _, s := range []*scan.Scan{a, b, c} {
		require.NoError(t, repo.Create(ctx, s))
	}
	require.NoError(t, repo.Update(ctx, c.ID, func(cur *scan.Scan) error {
		return cur.StartExtracting()
	}))

	t.Run("no filter sorts newest first", func(t *testing.T) {
		out, err := repo.List(ctx, scan.Filter{})
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, "newest", out[0].Name)
		assert.Equal(t, "middle", out[1].Name)
		assert.Equal(t, "oldest", out[2].Name)
	})

	t.Run("status filter", func(t *testing.T) {
		st := scan.StatusExtracting
		out, err := repo.List(ctx, scan.Filter{Status: &st})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, c.ID, out[0].ID)
	})

	t.Run("backend filter", func(t *testing.T) {
		be := scan.BackendBridged
		out, err := repo.List(ctx, scan.Filter{Backend: &be})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, b.ID, out[0].ID)
	})
}

func TestScanRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository()
	s := newStoredScan(t, "doomed")
	require.NoError(t, repo.Create(ctx, s))

	require.NoError(t, repo.Delete(ctx, s.ID))
	assert.Equal(t, 0, repo.Len())

	err := repo.Delete(ctx, s.ID)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestScanRepositoryDeleteTerminalBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewScanRepository()

	finish := func(s *scan.Scan, at time.Time) {
		require.NoError(t, s.StartExtracting())
		require.NoError(t, s.StartAnalyzing())
		require.NoError(t, s.Complete())
		s.CompletedAt = &at
	}

	old := newStoredScan(t, "old-terminal")
	finish(old, time.Now().Add(-48*time.Hour))
	recent := newStoredScan(t, "recent-terminal")
	finish(recent, time.Now())
	running := newStoredScan(t, "still-running")
	require.NoError(t, running.StartExtracting())

	for _, s := range []*scan.Scan{old, recent, running} {
		require.NoError(t, repo.Create(ctx, s))
	}

	removed, err := repo.DeleteTerminalBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, old.ID, removed[0].ID)

	assert.Equal(t, 2, repo.Len())
	_, err = repo.Get(ctx, old.ID)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
