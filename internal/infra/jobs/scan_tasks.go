package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tp12121212/sit-builder/internal/app"
	"github.com/tp12121212/sit-builder/pkg/logger"
)

// =============================================================================
// Task Types
// =============================================================================

const (
	// TypeScanProcess is the task type for processing an admitted scan.
	TypeScanProcess = "scan:process"

	// QueueScans is the queue scan jobs run on.
	QueueScans = "scans"
)

// =============================================================================
// Task Creators
// =============================================================================

// NewScanProcessTask creates a task for processing one scan. A scan is never
// retried automatically: partial re-runs would double-count candidates, so a
// failed scan surfaces as FAILED and the operator re-admits.
func NewScanProcessTask(payload app.ScanTaskPayload, timeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal scan payload: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Queue(QueueScans),
	}
	return asynq.NewTask(TypeScanProcess, data, opts...), nil
}

// =============================================================================
// Task Handler Interface
// =============================================================================

// ScanProcessor defines the interface for processing scan jobs.
// Implemented by app.ScanProcessor.
type ScanProcessor interface {
	ProcessScan(ctx context.Context, payload app.ScanTaskPayload) error
}

// =============================================================================
// Task Handler
// =============================================================================

// ScanTaskHandler handles scan processing tasks.
type ScanTaskHandler struct {
	processor ScanProcessor
	log       *logger.Logger
}

// NewScanTaskHandler creates a new scan task handler.
func NewScanTaskHandler(processor ScanProcessor, log *logger.Logger) *ScanTaskHandler {
	return &ScanTaskHandler{
		processor: processor,
		log:       log.With("component", "scan_task_handler"),
	}
}

// HandleScanProcess handles the scan processing task.
func (h *ScanTaskHandler) HandleScanProcess(ctx context.Context, t *asynq.Task) error {
	var payload app.ScanTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.Error("failed to unmarshal scan payload", "error", err)
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	h.log.Info("processing scan task", "scan_id", payload.ScanID)

	if err := h.processor.ProcessScan(ctx, payload); err != nil {
		h.log.Error("scan processing failed", "scan_id", payload.ScanID, "error", err)
		return err
	}

	h.log.Info("scan task completed", "scan_id", payload.ScanID)
	return nil
}

// RegisterHandlers registers scan task handlers with the asynq server mux.
func (h *ScanTaskHandler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeScanProcess, h.HandleScanProcess)
}
