package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tp12121212/sit-builder/internal/app"
	"github.com/tp12121212/sit-builder/pkg/logger"
)

// Client manages enqueueing background jobs using Asynq.
type Client struct {
	client      *asynq.Client
	scanTimeout time.Duration
	logger      *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ScanTimeout   time.Duration
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	return &Client{
		client:      asynq.NewClient(redisOpt),
		scanTimeout: cfg.ScanTimeout,
		logger:      log.With("component", "job_client"),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueScanProcess enqueues a scan processing job. Implements
// app.TaskEnqueuer. The payload carries the delegated credential; it is never
// logged here.
func (c *Client) EnqueueScanProcess(ctx context.Context, payload app.ScanTaskPayload) error {
	task, err := NewScanProcessTask(payload, c.scanTimeout)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		c.logger.Error("failed to enqueue scan",
			"scan_id", payload.ScanID,
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("scan queued",
		"task_id", info.ID,
		"scan_id", payload.ScanID,
		"queue", info.Queue,
	)
	return nil
}
