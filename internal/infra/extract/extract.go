// Package extract provides the content extraction backends. The classic
// backend parses files locally with an OCR path for image-bearing content;
// the bridged backend shells out to external credentialed tools.
package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/tp12121212/sit-builder/pkg/domain/shared"
)

// Options carries per-scan extraction settings into a backend call.
type Options struct {
	// ForceOCR routes every file through the OCR engine. Only meaningful
	// for the classic backend.
	ForceOCR bool

	// Bridged call frame. The credential lives here and in the job payload
	// only; it is never persisted on the scan.
	Credential   string
	Principal    string
	Organization string
}

// Result is the outcome of extracting one file.
type Result struct {
	Text string

	// OCRPerformed reports whether the OCR path produced the text. Nil for
	// backends where OCR is not applicable.
	OCRPerformed *bool

	// Module identifies the extraction path that produced the text.
	Module string
}

// Backend extracts text from one admitted file.
type Backend interface {
	Extract(ctx context.Context, name string, data []byte, opts Options) (Result, error)
}

// FileError is a recoverable per-file extraction failure. The orchestrator
// records it against the file and moves on; the scan keeps running.
type FileError struct {
	FileName string
	Module   string
	Err      error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.FileName, e.Module, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// NewFileError creates a recoverable per-file extraction failure.
func NewFileError(fileName, module string, err error) *FileError {
	return &FileError{FileName: fileName, Module: module, Err: err}
}

// BackendUnavailableError reports that a backend's environment prerequisites
// are absent: the external tool is missing or the delegated credential was
// rejected. This is fatal for the whole scan, not just one file.
type BackendUnavailableError struct {
	Backend string
	Reason  string
	Err     error
}

func (e *BackendUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s backend unavailable: %s: %v", e.Backend, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s backend unavailable: %s", e.Backend, e.Reason)
}

func (e *BackendUnavailableError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return shared.ErrUnavailable
}

// IsBackendUnavailable reports whether err is a fatal backend availability
// failure.
func IsBackendUnavailable(err error) bool {
	var target *BackendUnavailableError
	return errors.As(err, &target)
}
