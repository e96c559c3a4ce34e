package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan lifecycle metrics
var (
	// ScansTotal tracks finished scans by backend and terminal status
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sit_scans_total",
			Help: "Total number of scans by backend and terminal status",
		},
		[]string{"backend", "status"},
	)

	// ScansInProgress tracks currently processing scans
	ScansInProgress = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sit_scans_in_progress",
			Help: "Number of scans currently being processed",
		},
		[]string{"backend"},
	)

	// ScanDuration tracks end-to-end scan processing duration
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sit_scan_duration_seconds",
			Help:    "Scan processing duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"backend"},
	)

	// ScansCancelled tracks cancellation requests that took effect
	ScansCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sit_scans_cancelled_total",
			Help: "Total number of cancelled scans",
		},
	)
)

// File processing metrics
var (
	// FilesProcessedTotal tracks per-file outcomes during extraction
	FilesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sit_files_processed_total",
			Help: "Total number of files processed by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	// FileExtractionDuration tracks per-file extraction duration
	FileExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sit_file_extraction_duration_seconds",
			Help:    "Per-file content extraction duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"backend", "module"},
	)

	// OCRInvocationsTotal tracks OCR engine invocations by outcome
	OCRInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sit_ocr_invocations_total",
			Help: "Total number of OCR engine invocations by outcome",
		},
		[]string{"outcome"},
	)
)

// Candidate detection metrics
var (
	// CandidatesGeneratedTotal tracks raw candidates emitted by detection
	CandidatesGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sit_candidates_generated_total",
			Help: "Total number of raw candidates generated by type",
		},
		[]string{"type"},
	)

	// AggregationDuration tracks candidate pool aggregation duration
	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sit_aggregation_duration_seconds",
			Help:    "Candidate pool aggregation duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// BridgedToolErrors tracks bridged tool chain failures by stage
	BridgedToolErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sit_bridged_tool_errors_total",
			Help: "Total number of bridged tool chain failures by stage",
		},
		[]string{"stage"},
	)
)

// Retention metrics
var (
	// RetentionSweepsTotal tracks retention sweep runs
	RetentionSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sit_retention_sweeps_total",
			Help: "Total number of retention sweep runs",
		},
	)

	// RetentionScansDeleted tracks scans removed by retention sweeps
	RetentionScansDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sit_retention_scans_deleted_total",
			Help: "Total number of terminal scans removed by retention sweeps",
		},
	)
)
