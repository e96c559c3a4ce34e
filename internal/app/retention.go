package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tp12121212/sit-builder/internal/infra/blob"
	"github.com/tp12121212/sit-builder/internal/metrics"
	"github.com/tp12121212/sit-builder/pkg/domain/scan"
	"github.com/tp12121212/sit-builder/pkg/domain/shared"
	"github.com/tp12121212/sit-builder/pkg/logger"
)

// RetentionSweeper periodically purges terminal scans past their retention
// age, along with their staged payloads and artifacts.
type RetentionSweeper struct {
	repo  scan.Repository
	store *blob.Store
	svc   *ScanService
	age   time.Duration
	cron  *cron.Cron
	log   *logger.Logger
}

// NewRetentionSweeper creates a sweeper on the given cron schedule.
func NewRetentionSweeper(repo scan.Repository, store *blob.Store, svc *ScanService, age time.Duration, schedule string, log *logger.Logger) (*RetentionSweeper, error) {
	s := &RetentionSweeper{
		repo:  repo,
		store: store,
		svc:   svc,
		age:   age,
		cron:  cron.New(),
		log:   log.With("service", "retention"),
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.log.Error("retention sweep failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins the scheduled sweeps.
func (s *RetentionSweeper) Start() {
	s.log.Info("retention sweeper started", "age", s.age)
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *RetentionSweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("retention sweeper stopped")
}

// Sweep removes terminal scans older than the retention age.
func (s *RetentionSweeper) Sweep(ctx context.Context) error {
	metrics.RetentionSweepsTotal.Inc()

	cutoff := time.Now().Add(-s.age)
	removed, err := s.repo.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(removed) == 0 {
		return nil
	}

	ids := make([]shared.ID, 0, len(removed))
	for _, sc := range removed {
		ids = append(ids, sc.ID)
		if err := s.store.RemoveScan(sc.ID); err != nil {
			s.log.Warn("failed to remove blobs for purged scan", "scan_id", sc.ID, "error", err)
		}
	}
	if s.svc != nil {
		s.svc.DropCache(ids...)
	}

	metrics.RetentionScansDeleted.Add(float64(len(removed)))
	s.log.Info("retention sweep purged scans", "count", len(removed), "cutoff", cutoff)
	return nil
}
