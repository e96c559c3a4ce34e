// Package scan provides the Scan entity and its processing lifecycle.
package scan

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tp12121212/sit-builder/pkg/domain/candidate"
	"github.com/tp12121212/sit-builder/pkg/domain/shared"
)

// Status represents the scan lifecycle status. Transitions are monotonic and
// one-directional: a scan never revisits an earlier phase.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusExtracting Status = "EXTRACTING"
	StatusAnalyzing  Status = "ANALYZING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// statusRank orders statuses for the monotonicity guard.
var statusRank = map[Status]int{
	StatusPending:    0,
	StatusExtracting: 1,
	StatusAnalyzing:  2,
	StatusCompleted:  3,
	StatusFailed:     3,
}

// IsValid checks if the status is a valid status value.
func (s Status) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// IsTerminal returns true if the status is a terminal (final) state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsProcessing returns true while per-file or aggregation work is outstanding.
func (s Status) IsProcessing() bool {
	return s == StatusExtracting || s == StatusAnalyzing
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Progress is the point-in-time progress snapshot of a scan.
type Progress struct {
	Phase          string         `json:"phase"`
	Percent        float64        `json:"percent"`
	FilesCompleted int            `json:"files_completed"`
	FilesTotal     int            `json:"files_total"`
	CurrentFile    string         `json:"current_file,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// Scan is one unit of work over a fixed file set, progressing through a fixed
// lifecycle. It is created by admission in PENDING, mutated only by the
// orchestrator, and immutable once terminal.
type Scan struct {
	ID      shared.ID
	Name    string
	Backend Backend
	Status  Status

	Category     string
	PreserveCase bool
	ForceOCR     bool

	// Bridged-backend context. The delegated credential itself is never
	// stored on the entity; it travels only in the job payload and the
	// orchestrator's call frame.
	Principal    string
	Organization string

	Files    []File
	Progress Progress

	// Raw candidate pool. PoolVersion increments on every append so
	// aggregation results can be cached per pool state.
	RawPool     []candidate.Raw
	PoolVersion uint64

	ErrorMessage      string
	ExtractionSeconds float64
	AnalysisSeconds   float64

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// New creates a new scan in PENDING over the given admitted files.
func New(name string, backend Backend, category string, files []SourceFile) (*Scan, error) {
	if !backend.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid backend selector", shared.ErrValidation)
	}
	if len(files) == 0 {
		return nil, shared.NewDomainError("VALIDATION", "at least one file is required", shared.ErrValidation)
	}

	resolved, err := ResolveCategory(category)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Scan{
		ID:        shared.NewID(),
		Name:      name,
		Backend:   backend,
		Status:    StatusPending,
		Category:  resolved,
		CreatedAt: now,
		UpdatedAt: now,
		Progress: Progress{
			Phase:      "pending",
			FilesTotal: len(files),
			Meta:       make(map[string]any),
		},
	}
	for _, f := range files {
		s.Files = append(s.Files, File{
			ID:      shared.NewID(),
			Name:    f.Name,
			Size:    f.Size,
			ModTime: f.ModTime,
		})
	}
	return s, nil
}

// StartExtracting transitions PENDING -> EXTRACTING. Duplicate attempts are
// idempotent no-ops; any other state is rejected.
func (s *Scan) StartExtracting() error {
	if s.Status == StatusExtracting {
		return nil
	}
	if s.Status != StatusPending {
		return s.invalidTransition(StatusExtracting)
	}
	s.Status = StatusExtracting
	s.Progress.Phase = "extracting"
	s.UpdatedAt = time.Now()
	return nil
}

// StartAnalyzing transitions EXTRACTING -> ANALYZING once raw extraction for
// all files is complete.
func (s *Scan) StartAnalyzing() error {
	if s.Status == StatusAnalyzing {
		return nil
	}
	if s.Status != StatusExtracting {
		return s.invalidTransition(StatusAnalyzing)
	}
	s.Status = StatusAnalyzing
	s.Progress.Phase = "analyzing"
	s.Progress.CurrentFile = ""
	s.UpdatedAt = time.Now()
	return nil
}

// Complete transitions ANALYZING -> COMPLETED once aggregation has produced a
// stable result set.
func (s *Scan) Complete() error {
	if s.Status == StatusCompleted {
		return nil
	}
	if s.Status != StatusAnalyzing {
		return s.invalidTransition(StatusCompleted)
	}
	now := time.Now()
	s.Status = StatusCompleted
	s.Progress.Phase = "completed"
	s.Progress.Percent = 100
	s.CompletedAt = &now
	s.UpdatedAt = now
	s.Progress.Meta["file_types"] = s.fileTypes()
	return nil
}

// Fail transitions any non-completed state to FAILED with a human-readable
// reason. Idempotent when already failed.
func (s *Scan) Fail(reason string) error {
	if s.Status == StatusFailed {
		return nil
	}
	if s.Status == StatusCompleted {
		return s.invalidTransition(StatusFailed)
	}
	now := time.Now()
	s.Status = StatusFailed
	s.Progress.Phase = "failed"
	s.ErrorMessage = reason
	s.CompletedAt = &now
	s.UpdatedAt = now
	return nil
}

func (s *Scan) invalidTransition(target Status) error {
	return shared.NewDomainError("INVALID_STATE",
		"cannot transition "+s.Status.String()+" -> "+target.String(), shared.ErrConflict)
}

// BeginFile records the file currently being processed.
func (s *Scan) BeginFile(name string) {
	s.Progress.CurrentFile = name
	s.UpdatedAt = time.Now()
}

// FinishFile marks the file done and advances files-completed. It applies
// whether extraction succeeded or failed recoverably, so progress never stalls
// on a bad file.
func (s *Scan) FinishFile(fileID shared.ID, failureReason string) {
	for i := range s.Files {
		if !s.Files[i].ID.Equals(fileID) {
			continue
		}
		if s.Files[i].Done {
			return
		}
		s.Files[i].Done = true
		s.Files[i].FailureReason = failureReason
		break
	}

	completed := 0
	for i := range s.Files {
		if s.Files[i].Done {
			completed++
		}
	}
	if completed > s.Progress.FilesCompleted {
		s.Progress.FilesCompleted = completed
	}
	s.advancePercent()
	s.UpdatedAt = time.Now()
}

// SetFileResult records extraction provenance against a file.
func (s *Scan) SetFileResult(fileID shared.ID, module, artifactPath string, ocrPerformed *bool) {
	for i := range s.Files {
		if s.Files[i].ID.Equals(fileID) {
			s.Files[i].Module = module
			s.Files[i].ArtifactPath = artifactPath
			s.Files[i].OCRPerformed = ocrPerformed
			return
		}
	}
}

// AppendRaw appends raw candidates to the pool and bumps the pool version.
func (s *Scan) AppendRaw(raws ...candidate.Raw) {
	if len(raws) == 0 {
		return
	}
	s.RawPool = append(s.RawPool, raws...)
	s.PoolVersion++
	s.UpdatedAt = time.Now()
}

// advancePercent recomputes the processing percentage from file counts.
// The percentage is clamped to [0,100] and never decreases.
func (s *Scan) advancePercent() {
	if s.Progress.FilesTotal == 0 {
		return
	}
	pct := float64(s.Progress.FilesCompleted) / float64(s.Progress.FilesTotal) * 100
	if pct > 100 {
		pct = 100
	}
	if pct > s.Progress.Percent {
		s.Progress.Percent = pct
	}
}

// FailedFiles returns the names of files whose extraction failed recoverably.
func (s *Scan) FailedFiles() []string {
	var out []string
	for i := range s.Files {
		if s.Files[i].FailureReason != "" {
			out = append(out, s.Files[i].Name)
		}
	}
	return out
}

func (s *Scan) fileTypes() []string {
	set := make(map[string]struct{})
	for i := range s.Files {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(s.Files[i].Name)), ".")
		if ext != "" {
			set[ext] = struct{}{}
		}
	}
	types := make([]string, 0, len(set))
	for ext := range set {
		types = append(types, ext)
	}
	sort.Strings(types)
	return types
}

// Clone returns a deep copy suitable for handing to readers outside the
// registry lock. Raw candidates are immutable once emitted, so their inner
// evidence slices may be shared.
func (s *Scan) Clone() *Scan {
	cp := *s
	cp.Files = append([]File(nil), s.Files...)
	cp.RawPool = append([]candidate.Raw(nil), s.RawPool...)
	cp.Progress.Meta = make(map[string]any, len(s.Progress.Meta))
	for k, v := range s.Progress.Meta {
		cp.Progress.Meta[k] = v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
