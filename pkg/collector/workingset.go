package collector

import "github.com/tp12121212/sit-builder/pkg/domain/scan"

// WorkingSet accumulates source files across repeated drops or selections.
// Identity is (name, byte length, last-modified timestamp): a payload
// matching an existing identity replaces it (last-write-wins) instead of
// duplicating, so re-selections refine the set without duplicate uploads.
// A payload differing in any identity component is appended.
type WorkingSet struct {
	files []scan.SourceFile
	index map[scan.Identity]int
}

// NewWorkingSet creates an empty working set.
func NewWorkingSet() *WorkingSet {
	return &WorkingSet{index: make(map[scan.Identity]int)}
}

// Add merges payloads into the set and returns the number replaced.
func (w *WorkingSet) Add(files ...scan.SourceFile) int {
	replaced := 0
	for _, f := range files {
		id := f.Identity()
		if pos, ok := w.index[id]; ok {
			w.files[pos] = f
			replaced++
			continue
		}
		w.index[id] = len(w.files)
		w.files = append(w.files, f)
	}
	return replaced
}

// Len returns the number of files in the set.
func (w *WorkingSet) Len() int {
	return len(w.files)
}

// Files returns a copy of the current set in first-add order.
func (w *WorkingSet) Files() []scan.SourceFile {
	return append([]scan.SourceFile(nil), w.files...)
}
