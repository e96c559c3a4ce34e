package scan

import (
	"strings"
	"time"

	"github.com/tp12121212/sit-builder/pkg/domain/shared"
)

// Backend selects the extraction/detection strategy for a scan.
type Backend string

const (
	// BackendClassic runs local parsing and pattern detection per file,
	// with an OCR path for image-bearing content.
	BackendClassic Backend = "classic"
	// BackendBridged delegates extraction and scoring to external,
	// credentialed tools outside this process.
	BackendBridged Backend = "bridged"
)

// IsValid checks if the backend is a known backend selector.
func (b Backend) IsValid() bool {
	return b == BackendClassic || b == BackendBridged
}

// String returns the string representation of the backend.
func (b Backend) String() string {
	return string(b)
}

// Fixed detection categories. A scan's category must resolve to one of these
// or be a non-empty custom label.
const (
	CategoryFinancial   = "financial"
	CategoryHealth      = "health"
	CategoryPII         = "pii"
	CategoryCredentials = "credentials"
	CategoryLegal       = "legal"
)

// FixedCategories returns the built-in category labels.
func FixedCategories() []string {
	return []string{CategoryFinancial, CategoryHealth, CategoryPII, CategoryCredentials, CategoryLegal}
}

// ResolveCategory normalizes a category label. Fixed categories are matched
// case-insensitively; anything else is accepted as a custom label as long as
// it is non-empty after trimming.
func ResolveCategory(label string) (string, error) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return "", shared.NewDomainError("VALIDATION", "category must not be empty", shared.ErrValidation)
	}
	lower := strings.ToLower(trimmed)
	for _, fixed := range FixedCategories() {
		if lower == fixed {
			return fixed, nil
		}
	}
	return trimmed, nil
}

// SourceFile is a named byte payload entering the pipeline. The name is
// path-qualified when the file originated from a nested folder structure.
type SourceFile struct {
	Name    string
	Data    []byte
	Size    int64
	ModTime time.Time
}

// Identity is the working-set identity of a source file. Two payloads with
// the same identity are treated as the same file: re-adding one replaces the
// existing entry rather than duplicating it. Content is deliberately not part
// of the identity; an edited file re-added with unchanged name, size and
// timestamp is silently treated as identical.
type Identity struct {
	Name    string
	Size    int64
	ModTime int64
}

// Identity returns the working-set identity of the file.
func (f SourceFile) Identity() Identity {
	return Identity{Name: f.Name, Size: f.Size, ModTime: f.ModTime.UnixNano()}
}

// File is one admitted file within a scan, carrying per-file processing state
// and extraction provenance.
type File struct {
	ID      shared.ID
	Name    string
	Size    int64
	ModTime time.Time

	// Staged payload location and, after extraction, the artifact holding
	// the extracted text.
	BlobPath     string
	ArtifactPath string

	// Extraction provenance.
	Module       string
	OCRPerformed *bool

	// Done marks that the per-file loop finished with this file, whether or
	// not extraction succeeded. FailureReason is set for recoverable
	// per-file failures.
	Done          bool
	FailureReason string
}
