// Package blob provides local file storage for admitted source files and
// gzip-compressed extraction artifacts.
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/tp12121212/sit-builder/pkg/domain/shared"
)

// Store writes scan inputs and outputs under two local roots: a staging area
// for admitted uploads and an artifact area for extracted text.
type Store struct {
	uploadDir   string
	artifactDir string
}

// NewStore creates a Store and ensures both roots exist.
func NewStore(uploadDir, artifactDir string) (*Store, error) {
	if err := os.MkdirAll(uploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.MkdirAll(artifactDir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{uploadDir: uploadDir, artifactDir: artifactDir}, nil
}

// StageUpload writes an admitted source file under the scan's staging
// directory and returns its path. The relative name may contain collector
// path separators; they become directories on disk.
func (s *Store) StageUpload(scanID shared.ID, name string, r io.Reader) (string, error) {
	path, err := s.safePath(s.uploadDir, scanID, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("stage upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	return path, nil
}

// WriteArtifact gzip-compresses extracted text and stores it under the scan's
// artifact directory, returning the artifact path.
func (s *Store) WriteArtifact(scanID shared.ID, name string, text string) (string, error) {
	path, err := s.safePath(s.artifactDir, scanID, name+".txt.gz")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write([]byte(text)); err != nil {
		zw.Close()
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// ReadArtifact decompresses a stored artifact.
func (s *Store) ReadArtifact(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	return string(data), nil
}

// RemoveScan deletes all staged uploads and artifacts belonging to a scan.
func (s *Store) RemoveScan(scanID shared.ID) error {
	var firstErr error
	for _, root := range []string{s.uploadDir, s.artifactDir} {
		dir := filepath.Join(root, scanID.String())
		if err := os.RemoveAll(dir); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// safePath joins root/scanID/name and rejects names that escape the scan
// directory via traversal segments.
func (s *Store) safePath(root string, scanID shared.ID, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == "." || cleaned == "" ||
		filepath.IsAbs(cleaned) ||
		cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", shared.NewDomainError("VALIDATION", "invalid file name: "+name, shared.ErrValidation)
	}
	return filepath.Join(root, scanID.String(), cleaned), nil
}
