// Package collector turns an arbitrary, possibly hierarchical, selection of
// source files into a flat, deduplicated list of named byte payloads.
package collector

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/tp12121212/sit-builder/pkg/domain/scan"
)

// Entry is one node in a hierarchical selection: either a file or a
// directory that can be enumerated.
type Entry interface {
	Name() string
}

// FileEntry is a leaf carrying a byte payload.
type FileEntry interface {
	Entry
	Size() int64
	ModTime() time.Time
	Open(ctx context.Context) (io.ReadCloser, error)
}

// DirEntry is a directory whose children are enumerated through a Lister.
type DirEntry interface {
	Entry
	Reader() Lister
}

// Lister enumerates directory children in bounded batches. A directory is
// fully enumerated only once Next returns an empty batch; callers must keep
// requesting batches until then.
type Lister interface {
	Next(ctx context.Context) ([]Entry, error)
}

// EntryError records one entry that could not be enumerated or read.
type EntryError struct {
	Path string
	Err  error
}

// PartialError reports that some entries of a collection could not be
// enumerated. It is non-fatal: the collector proceeds with whatever it could
// gather, and the caller surfaces the count discrepancy to the operator
// instead of silently losing files.
type PartialError struct {
	Collected int
	Failed    int
	Causes    []EntryError
}

// Error implements the error interface.
func (e *PartialError) Error() string {
	return fmt.Sprintf("collection incomplete: %d collected, %d entries failed", e.Collected, e.Failed)
}

// Collect flattens the given entries into named payloads, visiting nested
// directories with an explicit stack so deeply nested folder structures
// cannot exhaust the call stack. Files from folders keep a path prefix
// ("sub/name.ext") so they stay distinguishable after flattening.
//
// If no structured entries are provided, the flat fallback list is used
// as-is. Per-entry failures are collected into the returned PartialError;
// they never abort the whole collection.
func Collect(ctx context.Context, entries []Entry, flat []scan.SourceFile) ([]scan.SourceFile, *PartialError) {
	if len(entries) == 0 {
		return append([]scan.SourceFile(nil), flat...), nil
	}

	type work struct {
		prefix string
		entry  Entry
		lister Lister
	}

	var (
		out    []scan.SourceFile
		causes []EntryError
	)

	stack := make([]work, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		stack = append(stack, work{entry: entries[i]})
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			causes = append(causes, EntryError{Path: "", Err: err})
			break
		}

		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if item.lister != nil {
			batch, err := item.lister.Next(ctx)
			if err != nil {
				causes = append(causes, EntryError{Path: item.prefix, Err: err})
				continue
			}
			if len(batch) == 0 {
				continue // directory exhausted
			}
			// Re-queue the lister for its next batch, then the children.
			stack = append(stack, work{prefix: item.prefix, lister: item.lister})
			for i := len(batch) - 1; i >= 0; i-- {
				stack = append(stack, work{prefix: item.prefix, entry: batch[i]})
			}
			continue
		}

		switch e := item.entry.(type) {
		case FileEntry:
			payload, err := readFile(ctx, e)
			if err != nil {
				causes = append(causes, EntryError{Path: joinPath(item.prefix, e.Name()), Err: err})
				continue
			}
			payload.Name = joinPath(item.prefix, e.Name())
			out = append(out, payload)
		case DirEntry:
			stack = append(stack, work{prefix: joinPath(item.prefix, e.Name()), lister: e.Reader()})
		default:
			causes = append(causes, EntryError{
				Path: joinPath(item.prefix, item.entry.Name()),
				Err:  fmt.Errorf("unsupported entry type %T", item.entry),
			})
		}
	}

	if len(out) == 0 && len(flat) > 0 {
		// Nothing enumerable from the structured input: fall back to the
		// flat file list as-is.
		out = append(out, flat...)
	}

	if len(causes) == 0 {
		return out, nil
	}
	return out, &PartialError{Collected: len(out), Failed: len(causes), Causes: causes}
}

func readFile(ctx context.Context, e FileEntry) (scan.SourceFile, error) {
	rc, err := e.Open(ctx)
	if err != nil {
		return scan.SourceFile{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return scan.SourceFile{}, err
	}

	size := e.Size()
	if size <= 0 {
		size = int64(len(data))
	}
	return scan.SourceFile{
		Data:    data,
		Size:    size,
		ModTime: e.ModTime(),
	}, nil
}

func joinPath(prefix, name string) string {
	name = strings.TrimPrefix(name, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
