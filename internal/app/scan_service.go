// Package app contains the application services that sit between the HTTP
// layer and the domain: scan admission, queries and the processing
// orchestrator.
package app

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/tp12121212/sit-builder/internal/infra/blob"
	"github.com/tp12121212/sit-builder/pkg/domain/candidate"
	"github.com/tp12121212/sit-builder/pkg/domain/scan"
	"github.com/tp12121212/sit-builder/pkg/domain/shared"
	"github.com/tp12121212/sit-builder/pkg/logger"
	"github.com/tp12121212/sit-builder/pkg/pagination"
)

// ScanTaskPayload is what admission hands to the task queue. The delegated
// credential lives here and nowhere else on the server side.
type ScanTaskPayload struct {
	ScanID       string `json:"scan_id"`
	Credential   string `json:"credential,omitempty"`
	Principal    string `json:"principal,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// TaskEnqueuer enqueues scan processing jobs.
type TaskEnqueuer interface {
	EnqueueScanProcess(ctx context.Context, payload ScanTaskPayload) error
}

// Canceller requests cancellation of an in-flight scan.
type Canceller interface {
	// Cancel signals the scan's processing context. It returns false when
	// no processing is currently registered for the scan.
	Cancel(id shared.ID) bool
}

// AdmitInput is one admission request after upload collection.
type AdmitInput struct {
	Name         string
	Backend      scan.Backend
	Category     string
	PreserveCase bool
	ForceOCR     bool

	Principal    string
	Credential   string
	Organization string

	Files []scan.SourceFile
}

// AdmitResult reports the admitted scan.
type AdmitResult struct {
	ScanID     shared.ID
	Status     scan.Status
	FilesCount int
}

// CandidateFilter narrows aggregated candidate queries.
type CandidateFilter struct {
	Type     *candidate.Type
	MinScore *float64
}

// ScanService implements admission and the read-side operations over the scan
// registry.
type ScanService struct {
	repo      scan.Repository
	store     *blob.Store
	enqueuer  TaskEnqueuer
	canceller Canceller
	log       *logger.Logger

	// Aggregation cache keyed by scan ID, valid for one pool version.
	aggMu    sync.Mutex
	aggCache map[shared.ID]aggCacheEntry
}

type aggCacheEntry struct {
	poolVersion uint64
	results     []candidate.Aggregated
}

// NewScanService creates the scan application service.
func NewScanService(repo scan.Repository, store *blob.Store, enqueuer TaskEnqueuer, log *logger.Logger) *ScanService {
	return &ScanService{
		repo:     repo,
		store:    store,
		enqueuer: enqueuer,
		log:      log.With("service", "scan"),
		aggCache: make(map[shared.ID]aggCacheEntry),
	}
}

// SetCanceller wires the processing canceller. Set after construction because
// the processor and the service reference each other at startup.
func (s *ScanService) SetCanceller(c Canceller) {
	s.canceller = c
}

// Admit validates an admission request, registers the scan in PENDING, stages
// the payloads and enqueues processing. It returns without waiting for any
// processing to happen.
func (s *ScanService) Admit(ctx context.Context, in AdmitInput) (*AdmitResult, error) {
	if len(in.Files) == 0 {
		return nil, shared.NewDomainError("VALIDATION", "at least one file is required", shared.ErrValidation)
	}
	if in.Backend == scan.BackendBridged {
		if in.Principal == "" || in.Credential == "" {
			return nil, shared.NewDomainError("VALIDATION",
				"bridged backend requires principal and credential", shared.ErrValidation)
		}
		// Forced OCR is meaningful only for the classic backend.
		in.ForceOCR = false
	}

	sc, err := scan.New(in.Name, in.Backend, in.Category, in.Files)
	if err != nil {
		return nil, err
	}
	sc.PreserveCase = in.PreserveCase
	sc.ForceOCR = in.ForceOCR
	sc.Principal = in.Principal
	sc.Organization = in.Organization

	// Stage payloads before registering so a failed write admits nothing.
	for i, f := range in.Files {
		path, err := s.store.StageUpload(sc.ID, f.Name, bytes.NewReader(f.Data))
		if err != nil {
			s.store.RemoveScan(sc.ID)
			return nil, fmt.Errorf("stage %s: %w", f.Name, err)
		}
		sc.Files[i].BlobPath = path
	}

	if err := s.repo.Create(ctx, sc); err != nil {
		s.store.RemoveScan(sc.ID)
		return nil, err
	}

	payload := ScanTaskPayload{
		ScanID:       sc.ID.String(),
		Credential:   in.Credential,
		Principal:    in.Principal,
		Organization: in.Organization,
	}
	if err := s.enqueuer.EnqueueScanProcess(ctx, payload); err != nil {
		s.repo.Delete(ctx, sc.ID)
		s.store.RemoveScan(sc.ID)
		return nil, fmt.Errorf("enqueue scan: %w", err)
	}

	s.log.Info("scan admitted",
		"scan_id", sc.ID,
		"backend", sc.Backend,
		"category", sc.Category,
		"files", len(sc.Files),
	)
	return &AdmitResult{ScanID: sc.ID, Status: sc.Status, FilesCount: len(sc.Files)}, nil
}

// Get returns a point-in-time copy of the scan.
func (s *ScanService) Get(ctx context.Context, id shared.ID) (*scan.Scan, error) {
	return s.repo.Get(ctx, id)
}

// List returns scans matching the filter, newest first, paginated.
func (s *ScanService) List(ctx context.Context, filter scan.Filter, p pagination.Pagination) (pagination.Result[*scan.Scan], error) {
	scans, err := s.repo.List(ctx, filter)
	if err != nil {
		return pagination.Result[*scan.Scan]{}, err
	}
	return pagination.Paginate(scans, p), nil
}

// ProgressView is the progress snapshot served to clients.
type ProgressView struct {
	ScanID            string         `json:"scan_id"`
	Status            scan.Status    `json:"status"`
	Phase             string         `json:"phase"`
	Percent           float64        `json:"percent"`
	FilesCompleted    int            `json:"files_completed"`
	FilesTotal        int            `json:"files_total"`
	CurrentFile       string         `json:"current_file,omitempty"`
	Error             string         `json:"error,omitempty"`
	AggregatedCount   *int           `json:"aggregated_count,omitempty"`
	ExtractionSeconds float64        `json:"extraction_seconds,omitempty"`
	AnalysisSeconds   float64        `json:"analysis_seconds,omitempty"`
	Meta              map[string]any `json:"meta,omitempty"`
}

// Progress returns the current progress snapshot. It is served from the
// registry copy and never blocks on in-flight processing; it is valid before
// processing starts and after the scan is terminal.
func (s *ScanService) Progress(ctx context.Context, id shared.ID) (*ProgressView, error) {
	sc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &ProgressView{
		ScanID:            sc.ID.String(),
		Status:            sc.Status,
		Phase:             sc.Progress.Phase,
		Percent:           sc.Progress.Percent,
		FilesCompleted:    sc.Progress.FilesCompleted,
		FilesTotal:        sc.Progress.FilesTotal,
		CurrentFile:       sc.Progress.CurrentFile,
		Error:             sc.ErrorMessage,
		ExtractionSeconds: sc.ExtractionSeconds,
		AnalysisSeconds:   sc.AnalysisSeconds,
		Meta:              sc.Progress.Meta,
	}
	if sc.Progress.FilesCompleted > 0 {
		n := len(s.aggregated(sc))
		view.AggregatedCount = &n
	}
	return view, nil
}

// Candidates returns the aggregated result set. Mid-flight it serves partial
// results over the pool so far; after FAILED it serves whatever was gathered
// before the failure.
func (s *ScanService) Candidates(ctx context.Context, id shared.ID, filter CandidateFilter, p pagination.Pagination) (pagination.Result[candidate.Aggregated], error) {
	sc, err := s.repo.Get(ctx, id)
	if err != nil {
		return pagination.Result[candidate.Aggregated]{}, err
	}

	results := s.aggregated(sc)
	if filter.Type != nil || filter.MinScore != nil {
		filtered := make([]candidate.Aggregated, 0, len(results))
		for _, a := range results {
			if filter.Type != nil && a.Key.Type != *filter.Type {
				continue
			}
			if filter.MinScore != nil && (a.Score == nil || *a.Score < *filter.MinScore) {
				continue
			}
			filtered = append(filtered, a)
		}
		results = filtered
	}
	return pagination.Paginate(results, p), nil
}

// aggregated returns the aggregation over the scan's current pool, reusing
// the cached result while the pool version is unchanged.
func (s *ScanService) aggregated(sc *scan.Scan) []candidate.Aggregated {
	s.aggMu.Lock()
	defer s.aggMu.Unlock()

	if entry, ok := s.aggCache[sc.ID]; ok && entry.poolVersion == sc.PoolVersion {
		return entry.results
	}

	results := candidate.Aggregate(sc.RawPool, candidate.AggregateOptions{
		BridgedBackend:  sc.Backend == scan.BackendBridged,
		DefaultCategory: sc.Category,
		PreserveCase:    sc.PreserveCase,
	})
	s.aggCache[sc.ID] = aggCacheEntry{poolVersion: sc.PoolVersion, results: results}
	return results
}

// Cancel requests cancellation of a scan. Cancelling an already-terminal scan
// is an idempotent no-op acknowledged to the caller.
func (s *ScanService) Cancel(ctx context.Context, id shared.ID) error {
	sc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if sc.Status.IsTerminal() {
		return nil
	}

	// Signal the in-flight processing context, if any. A PENDING scan may
	// not be registered yet; failing it here stops the worker from picking
	// it up.
	if s.canceller != nil && s.canceller.Cancel(id) {
		s.log.Info("scan cancellation signalled", "scan_id", id)
		return nil
	}

	return s.repo.Update(ctx, id, func(live *scan.Scan) error {
		if live.Status.IsTerminal() {
			return nil
		}
		return live.Fail("canceled by operator")
	})
}

// Delete cancels a running scan and removes it from the registry along with
// its staged payloads and artifacts.
func (s *ScanService) Delete(ctx context.Context, id shared.ID) error {
	if err := s.Cancel(ctx, id); err != nil && !shared.IsNotFound(err) {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.aggMu.Lock()
	delete(s.aggCache, id)
	s.aggMu.Unlock()

	if err := s.store.RemoveScan(id); err != nil {
		s.log.Warn("failed to remove scan blobs", "scan_id", id, "error", err)
	}
	s.log.Info("scan deleted", "scan_id", id)
	return nil
}

// DropCache releases cached aggregation for a scan. Used by the retention
// sweeper after bulk deletes.
func (s *ScanService) DropCache(ids ...shared.ID) {
	s.aggMu.Lock()
	defer s.aggMu.Unlock()
	for _, id := range ids {
		delete(s.aggCache, id)
	}
}
