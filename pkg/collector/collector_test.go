package collector

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tp12121212/sit-builder/pkg/domain/scan"
)

// memFile is an in-memory file entry.
type memFile struct {
	name    string
	data    []byte
	modTime time.Time
	openErr error
}

func (f *memFile) Name() string       { return f.name }
func (f *memFile) Size() int64        { return int64(len(f.data)) }
func (f *memFile) ModTime() time.Time { return f.modTime }

func (f *memFile) Open(_ context.Context) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

// memDir is an in-memory directory entry whose lister hands children out in
// batches of two.
type memDir struct {
	name     string
	children []Entry
	listErr  error
}

func (d *memDir) Name() string { return d.name }

func (d *memDir) Reader() Lister {
	return &memLister{children: d.children, err: d.listErr}
}

type memLister struct {
	children []Entry
	err      error
}

func (l *memLister) Next(_ context.Context) ([]Entry, error) {
	if l.err != nil {
		err := l.err
		l.err = nil
		return nil, err
	}
	if len(l.children) == 0 {
		return nil, nil
	}
	n := 2
	if n > len(l.children) {
		n = len(l.children)
	}
	batch := l.children[:n]
	l.children = l.children[n:]
	return batch, nil
}

func TestCollect(t *testing.T) {
	ctx := context.Background()

	t.Run("nested folder plus flat file", func(t *testing.T) {
		entries := []Entry{
			&memFile{name: "a.txt", data: []byte("alpha")},
			&memDir{name: "reports", children: []Entry{
				&memFile{name: "b.txt", data: []byte("beta")},
				&memDir{name: "2024", children: []Entry{
					&memFile{name: "c.txt", data: []byte("gamma")},
				}},
			}},
		}

		files, partial := Collect(ctx, entries, nil)
		require.Nil(t, partial)
		require.Len(t, files, 3)

		names := []string{files[0].Name, files[1].Name, files[2].Name}
		assert.Contains(t, names, "a.txt")
		assert.Contains(t, names, "reports/b.txt")
		assert.Contains(t, names, "reports/2024/c.txt")

		for _, f := range files {
			assert.NotEmpty(t, f.Data)
			assert.Equal(t, int64(len(f.Data)), f.Size)
		}
	})

	t.Run("empty entries fall back to flat list", func(t *testing.T) {
		flat := []scan.SourceFile{{Name: "x.txt", Data: []byte("x")}}
		files, partial := Collect(ctx, nil, flat)
		require.Nil(t, partial)
		assert.Equal(t, flat, files)
	})

	t.Run("per-entry failures are recorded not fatal", func(t *testing.T) {
		entries := []Entry{
			&memFile{name: "good.txt", data: []byte("ok")},
			&memFile{name: "bad.txt", openErr: errors.New("permission denied")},
			&memDir{name: "broken", listErr: errors.New("io error")},
		}

		files, partial := Collect(ctx, entries, nil)
		require.NotNil(t, partial)
		assert.Equal(t, 1, partial.Collected)
		assert.Equal(t, 2, partial.Failed)
		require.Len(t, files, 1)
		assert.Equal(t, "good.txt", files[0].Name)

		paths := make([]string, 0, len(partial.Causes))
		for _, c := range partial.Causes {
			paths = append(paths, c.Path)
		}
		assert.Contains(t, paths, "bad.txt")
		assert.Contains(t, paths, "broken")
	})

	t.Run("deep nesting does not recurse", func(t *testing.T) {
		// 10k-deep chain; an explicit stack handles it, call recursion
		// would not.
		leaf := Entry(&memFile{name: "leaf.txt", data: []byte("deep")})
		for i := 0; i < 10000; i++ {
			leaf = &memDir{name: "d", children: []Entry{leaf}}
		}

		files, partial := Collect(ctx, []Entry{leaf}, nil)
		require.Nil(t, partial)
		require.Len(t, files, 1)
		assert.Equal(t, "deep", string(files[0].Data))
	})

	t.Run("cancelled context stops collection", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		_, partial := Collect(cancelled, []Entry{&memFile{name: "a", data: []byte("x")}}, nil)
		require.NotNil(t, partial)
		assert.NotZero(t, partial.Failed)
	})
}

func TestCollectFromFilesystem(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("alpha"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("beta"), 0o600))

	files, partial := Collect(context.Background(), []Entry{FromDir(root)}, nil)
	require.Nil(t, partial)
	require.Len(t, files, 2)

	base := filepath.Base(root)
	names := []string{files[0].Name, files[1].Name}
	assert.Contains(t, names, base+"/a.txt")
	assert.Contains(t, names, base+"/sub/b.txt")
}

func TestWorkingSet(t *testing.T) {
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("matching identity replaces", func(t *testing.T) {
		ws := NewWorkingSet()
		ws.Add(scan.SourceFile{Name: "a.txt", Size: 5, ModTime: ts, Data: []byte("old__")})
		replaced := ws.Add(scan.SourceFile{Name: "a.txt", Size: 5, ModTime: ts, Data: []byte("new__")})

		assert.Equal(t, 1, replaced)
		assert.Equal(t, 1, ws.Len())
		assert.Equal(t, "new__", string(ws.Files()[0].Data))
	})

	t.Run("differing identity appends", func(t *testing.T) {
		ws := NewWorkingSet()
		ws.Add(scan.SourceFile{Name: "a.txt", Size: 5, ModTime: ts})
		ws.Add(scan.SourceFile{Name: "a.txt", Size: 6, ModTime: ts})
		ws.Add(scan.SourceFile{Name: "a.txt", Size: 5, ModTime: ts.Add(time.Second)})
		ws.Add(scan.SourceFile{Name: "b.txt", Size: 5, ModTime: ts})
		assert.Equal(t, 4, ws.Len())
	})

	t.Run("order preserved by first add", func(t *testing.T) {
		ws := NewWorkingSet()
		ws.Add(
			scan.SourceFile{Name: "one.txt", Size: 1, ModTime: ts},
			scan.SourceFile{Name: "two.txt", Size: 2, ModTime: ts},
		)
		ws.Add(scan.SourceFile{Name: "one.txt", Size: 1, ModTime: ts, Data: []byte("!")})

		files := ws.Files()
		require.Len(t, files, 2)
		assert.Equal(t, "one.txt", files[0].Name)
		assert.Equal(t, "two.txt", files[1].Name)
	})
}
