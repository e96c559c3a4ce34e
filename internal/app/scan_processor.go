package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tp12121212/sit-builder/internal/infra/blob"
	"github.com/tp12121212/sit-builder/internal/infra/detect"
	"github.com/tp12121212/sit-builder/internal/infra/extract"
	"github.com/tp12121212/sit-builder/internal/metrics"
	"github.com/tp12121212/sit-builder/pkg/domain/candidate"
	"github.com/tp12121212/sit-builder/pkg/domain/scan"
	"github.com/tp12121212/sit-builder/pkg/domain/shared"
	"github.com/tp12121212/sit-builder/pkg/logger"
)

// BridgedGeneratorFactory builds a scoring generator bound to one scan's
// delegated credential.
type BridgedGeneratorFactory func(credential, principal, organization string) detect.Generator

// ScanProcessor drives one scan through extraction, detection and final
// aggregation. It is the only writer of scan state after admission.
type ScanProcessor struct {
	repo    scan.Repository
	store   *blob.Store
	classic extract.Backend
	bridged extract.Backend

	generator  detect.Generator
	bridgedGen BridgedGeneratorFactory

	concurrency int
	log         *logger.Logger

	mu      sync.Mutex
	running map[shared.ID]context.CancelFunc
}

// NewScanProcessor creates the processing orchestrator.
func NewScanProcessor(
	repo scan.Repository,
	store *blob.Store,
	classic extract.Backend,
	bridged extract.Backend,
	generator detect.Generator,
	bridgedGen BridgedGeneratorFactory,
	concurrency int,
	log *logger.Logger,
) *ScanProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ScanProcessor{
		repo:        repo,
		store:       store,
		classic:     classic,
		bridged:     bridged,
		generator:   generator,
		bridgedGen:  bridgedGen,
		concurrency: concurrency,
		log:         log.With("service", "scan_processor"),
	}
}

// Cancel signals the processing context of a running scan. Implements the
// service's Canceller.
func (p *ScanProcessor) Cancel(id shared.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cancel, ok := p.running[id]
	if ok {
		cancel()
	}
	return ok
}

func (p *ScanProcessor) register(id shared.ID, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running == nil {
		p.running = make(map[shared.ID]context.CancelFunc)
	}
	p.running[id] = cancel
}

func (p *ScanProcessor) unregister(id shared.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, id)
}

// ProcessScan runs one scan end to end. It is invoked by the task worker; the
// payload carries the delegated credential for bridged scans.
func (p *ScanProcessor) ProcessScan(ctx context.Context, payload ScanTaskPayload) error {
	id, err := shared.IDFromString(payload.ScanID)
	if err != nil {
		return fmt.Errorf("invalid scan_id: %w", err)
	}
	log := p.log.With("scan_id", id)

	sc, err := p.repo.Get(ctx, id)
	if err != nil {
		// Deleted between enqueue and pickup.
		if shared.IsNotFound(err) {
			log.Warn("scan vanished before processing")
			return nil
		}
		return err
	}
	if sc.Status.IsTerminal() {
		// Cancelled or failed while still queued.
		log.Info("skipping terminal scan", "status", sc.Status)
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.register(id, cancel)
	defer p.unregister(id)

	backendLabel := sc.Backend.String()
	metrics.ScansInProgress.WithLabelValues(backendLabel).Inc()
	defer metrics.ScansInProgress.WithLabelValues(backendLabel).Dec()
	started := time.Now()

	if err := p.repo.Update(runCtx, id, func(live *scan.Scan) error {
		return live.StartExtracting()
	}); err != nil {
		return err
	}

	runErr := p.extractFiles(runCtx, sc, payload, log)

	extractionSeconds := time.Since(started).Seconds()
	if updErr := p.repo.Update(context.WithoutCancel(runCtx), id, func(live *scan.Scan) error {
		live.ExtractionSeconds = extractionSeconds
		return nil
	}); updErr != nil && !shared.IsNotFound(updErr) {
		log.Warn("failed to record extraction duration", "error", updErr)
	}

	if runErr != nil {
		return p.failScan(ctx, id, runErr, backendLabel, started, log)
	}

	if err := p.finishScan(ctx, id, backendLabel, started, log); err != nil {
		return err
	}

	log.Info("scan completed",
		"backend", backendLabel,
		"duration_seconds", time.Since(started).Seconds(),
	)
	return nil
}

// extractFiles runs the per-file loop. Recoverable per-file failures are
// recorded and skipped; a fatal error (backend unavailable, cancellation)
// aborts the remaining files and is returned.
func (p *ScanProcessor) extractFiles(ctx context.Context, sc *scan.Scan, payload ScanTaskPayload, log *logger.Logger) error {
	backend := p.classic
	generator := p.generator
	limit := p.concurrency
	opts := extract.Options{ForceOCR: sc.ForceOCR}

	if sc.Backend == scan.BackendBridged {
		backend = p.bridged
		generator = p.bridgedGen(payload.Credential, payload.Principal, payload.Organization)
		// The external tool chain holds per-invocation state; files go
		// through it one at a time.
		limit = 1
		opts = extract.Options{
			Credential:   payload.Credential,
			Principal:    payload.Principal,
			Organization: payload.Organization,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range sc.Files {
		file := sc.Files[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return p.processFile(gctx, sc, file, backend, generator, opts, log)
		})
	}
	return g.Wait()
}

// processFile extracts, detects and records one file. Returns nil for
// recoverable failures after recording them against the file.
func (p *ScanProcessor) processFile(
	ctx context.Context,
	sc *scan.Scan,
	file scan.File,
	backend extract.Backend,
	generator detect.Generator,
	opts extract.Options,
	log *logger.Logger,
) error {
	backendLabel := sc.Backend.String()

	if err := p.repo.Update(ctx, sc.ID, func(live *scan.Scan) error {
		live.BeginFile(file.Name)
		return nil
	}); err != nil {
		return err
	}

	data, err := os.ReadFile(file.BlobPath)
	if err != nil {
		return p.recordFileFailure(ctx, sc.ID, file.ID, backendLabel,
			fmt.Errorf("read staged payload: %w", err), log.With("file", file.Name))
	}

	extractStart := time.Now()
	result, err := backend.Extract(ctx, file.Name, data, opts)
	if err != nil {
		var fileErr *extract.FileError
		if errors.As(err, &fileErr) {
			return p.recordFileFailure(ctx, sc.ID, file.ID, backendLabel, err, log.With("file", file.Name))
		}
		// Backend unavailable or context cancelled: fatal for the scan.
		return err
	}
	metrics.FileExtractionDuration.WithLabelValues(backendLabel, result.Module).
		Observe(time.Since(extractStart).Seconds())
	if result.OCRPerformed != nil && *result.OCRPerformed {
		metrics.OCRInvocationsTotal.WithLabelValues("success").Inc()
	}

	artifactPath, err := p.store.WriteArtifact(sc.ID, file.Name, result.Text)
	if err != nil {
		return p.recordFileFailure(ctx, sc.ID, file.ID, backendLabel,
			fmt.Errorf("persist artifact: %w", err), log.With("file", file.Name))
	}

	raws, err := generator.Generate(ctx, result.Text, file.Name)
	if err != nil {
		var fileErr *extract.FileError
		if errors.As(err, &fileErr) {
			return p.recordFileFailure(ctx, sc.ID, file.ID, backendLabel, err, log.With("file", file.Name))
		}
		return err
	}

	// Stamp provenance the generator does not know about.
	for i := range raws {
		if raws[i].Category == "" {
			raws[i].Category = sc.Category
		}
		raws[i].OCRPerformed = result.OCRPerformed
	}

	if err := p.repo.Update(ctx, sc.ID, func(live *scan.Scan) error {
		live.SetFileResult(file.ID, result.Module, artifactPath, result.OCRPerformed)
		live.AppendRaw(raws...)
		live.FinishFile(file.ID, "")
		return nil
	}); err != nil {
		return err
	}

	metrics.FilesProcessedTotal.WithLabelValues(backendLabel, "success").Inc()
	return nil
}

// recordFileFailure records a recoverable per-file failure and advances the
// progress counters so the scan keeps moving.
func (p *ScanProcessor) recordFileFailure(ctx context.Context, scanID, fileID shared.ID, backendLabel string, cause error, log *logger.Logger) error {
	log.Warn("file processing failed", "error", cause)
	metrics.FilesProcessedTotal.WithLabelValues(backendLabel, "failed").Inc()
	return p.repo.Update(ctx, scanID, func(live *scan.Scan) error {
		live.FinishFile(fileID, cause.Error())
		return nil
	})
}

// finishScan runs the analysis phase and transitions the scan to COMPLETED.
func (p *ScanProcessor) finishScan(ctx context.Context, id shared.ID, backendLabel string, started time.Time, log *logger.Logger) error {
	if err := p.repo.Update(ctx, id, func(live *scan.Scan) error {
		return live.StartAnalyzing()
	}); err != nil {
		return err
	}

	analysisStart := time.Now()
	err := p.repo.Update(ctx, id, func(live *scan.Scan) error {
		// Final aggregation over the complete pool. The result set itself
		// is served on demand; this pass validates the pool and seeds the
		// completion metadata.
		results := candidate.Aggregate(live.RawPool, candidate.AggregateOptions{
			BridgedBackend:  live.Backend == scan.BackendBridged,
			DefaultCategory: live.Category,
			PreserveCase:    live.PreserveCase,
		})
		live.AnalysisSeconds = time.Since(analysisStart).Seconds()
		live.Progress.Meta["aggregated_count"] = len(results)
		if failed := live.FailedFiles(); len(failed) > 0 {
			live.Progress.Meta["failed_files"] = failed
		}
		return live.Complete()
	})
	metrics.AggregationDuration.Observe(time.Since(analysisStart).Seconds())
	if err != nil {
		return p.failScan(ctx, id, err, backendLabel, started, log)
	}

	metrics.ScansTotal.WithLabelValues(backendLabel, string(scan.StatusCompleted)).Inc()
	metrics.ScanDuration.WithLabelValues(backendLabel).Observe(time.Since(started).Seconds())
	return nil
}

// failScan transitions the scan to FAILED with the cause. The raw pool is
// kept so partial results remain queryable.
func (p *ScanProcessor) failScan(ctx context.Context, id shared.ID, cause error, backendLabel string, started time.Time, log *logger.Logger) error {
	reason := cause.Error()
	cancelled := errors.Is(cause, context.Canceled)
	if cancelled {
		reason = "canceled by operator"
		metrics.ScansCancelled.Inc()
	}
	log.Warn("scan failed", "reason", reason)

	// The processing context may already be cancelled; state still has to
	// reach FAILED.
	updateCtx := context.WithoutCancel(ctx)
	if err := p.repo.Update(updateCtx, id, func(live *scan.Scan) error {
		return live.Fail(reason)
	}); err != nil && !shared.IsNotFound(err) {
		log.Error("failed to mark scan failed", "error", err)
	}

	metrics.ScansTotal.WithLabelValues(backendLabel, string(scan.StatusFailed)).Inc()
	metrics.ScanDuration.WithLabelValues(backendLabel).Observe(time.Since(started).Seconds())
	if cancelled {
		return nil
	}
	return cause
}
