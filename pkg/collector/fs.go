package collector

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"
)

// defaultBatchSize bounds how many children a filesystem lister returns per
// Next call.
const defaultBatchSize = 64

// FromDir returns a single directory entry rooted at the given path, suitable
// for passing to Collect. Collected files are named relative to the
// directory's own name, e.g. "root/sub/b.txt" for root := "/tmp/root".
func FromDir(dir string) Entry {
	return &fsDirEntry{name: filepath.Base(dir), path: dir, batchSize: defaultBatchSize}
}

// FromFile returns a file entry for a single on-disk file.
func FromFile(path string) Entry {
	return &fsFileEntry{name: filepath.Base(path), path: path}
}

type fsDirEntry struct {
	name      string
	path      string
	batchSize int
}

func (d *fsDirEntry) Name() string { return d.name }

func (d *fsDirEntry) Reader() Lister {
	return &fsLister{path: d.path, batchSize: d.batchSize}
}

// fsLister enumerates a directory in bounded batches. The full listing is
// read once on first use; Next then hands it out batch by batch, ending with
// an empty batch.
type fsLister struct {
	path      string
	batchSize int
	loaded    bool
	pending   []Entry
}

func (l *fsLister) Next(_ context.Context) ([]Entry, error) {
	if !l.loaded {
		l.loaded = true
		children, err := os.ReadDir(l.path)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			childPath := filepath.Join(l.path, child.Name())
			if child.IsDir() {
				l.pending = append(l.pending, &fsDirEntry{
					name:      child.Name(),
					path:      childPath,
					batchSize: l.batchSize,
				})
				continue
			}
			l.pending = append(l.pending, &fsFileEntry{name: child.Name(), path: childPath})
		}
	}

	if len(l.pending) == 0 {
		return nil, nil
	}

	n := l.batchSize
	if n <= 0 || n > len(l.pending) {
		n = len(l.pending)
	}
	batch := l.pending[:n]
	l.pending = l.pending[n:]
	return batch, nil
}

type fsFileEntry struct {
	name string
	path string
}

func (f *fsFileEntry) Name() string { return f.name }

func (f *fsFileEntry) Size() int64 {
	info, err := os.Stat(f.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func (f *fsFileEntry) ModTime() time.Time {
	info, err := os.Stat(f.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (f *fsFileEntry) Open(_ context.Context) (io.ReadCloser, error) {
	return os.Open(f.path)
}
