package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tp12121212/sit-builder/internal/app"
	"github.com/tp12121212/sit-builder/internal/config"
	"github.com/tp12121212/sit-builder/internal/infra/blob"
	"github.com/tp12121212/sit-builder/internal/infra/detect"
	"github.com/tp12121212/sit-builder/internal/infra/extract"
	"github.com/tp12121212/sit-builder/internal/infra/http"
	"github.com/tp12121212/sit-builder/internal/infra/http/handler"
	"github.com/tp12121212/sit-builder/internal/infra/http/routes"
	"github.com/tp12121212/sit-builder/internal/infra/jobs"
	"github.com/tp12121212/sit-builder/internal/infra/memory"
	"github.com/tp12121212/sit-builder/internal/infra/redis"
	"github.com/tp12121212/sit-builder/internal/infra/websocket"
	"github.com/tp12121212/sit-builder/pkg/logger"
	"github.com/tp12121212/sit-builder/pkg/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ==========================================================================
	// Configuration & Logger
	// ==========================================================================
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := initLogger(cfg)
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)
	log.Info("redis connected")

	store, err := blob.NewStore(cfg.Storage.UploadDir, cfg.Storage.ArtifactDir)
	if err != nil {
		log.Error("failed to initialize blob store", "error", err)
		return 1
	}

	repo := memory.NewScanRepository()
	log.Info("scan registry initialized")

	// ==========================================================================
	// Job Queue
	// ==========================================================================
	jobClient, err := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		ScanTimeout:   cfg.Worker.ScanTimeout,
	}, log)
	if err != nil {
		log.Error("failed to initialize job client", "error", err)
		return 1
	}
	defer closeWithLog(jobClient, "job client", log)

	// ==========================================================================
	// Services
	// ==========================================================================
	service := app.NewScanService(repo, store, jobClient, log)

	patterns, err := loadPatterns(cfg)
	if err != nil {
		log.Error("failed to load detection patterns", "error", err, "file", cfg.Detection.PatternsFile)
		return 1
	}
	generator := detect.NewPatternGenerator(patterns,
		cfg.Detection.KeywordMinFrequency, cfg.Detection.KeywordTopN, log)

	ocr := extract.NewTesseract(cfg.Extraction.OCRBinary, cfg.Extraction.OCRLanguages)
	classic := extract.NewClassic(ocr, log)
	bridged := extract.NewBridged(cfg.Extraction.BridgedExtractBin,
		cfg.Extraction.BridgedTokenEnv, cfg.Extraction.BridgedTimeout, log)

	bridgedGen := func(credential, principal, organization string) detect.Generator {
		return detect.NewBridgedGenerator(cfg.Extraction.BridgedDetectBin,
			cfg.Extraction.BridgedTokenEnv, cfg.Extraction.BridgedTimeout,
			credential, principal, organization, log)
	}

	processor := app.NewScanProcessor(repo, store, classic, bridged,
		generator, bridgedGen, cfg.Extraction.Concurrency, log)
	service.SetCanceller(processor)
	log.Info("services initialized")

	// ==========================================================================
	// Workers
	// ==========================================================================
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Worker.Concurrency,
	}, processor, log)
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		return 1
	}
	if err := worker.Start(); err != nil {
		log.Error("failed to start worker", "error", err)
		return 1
	}
	log.Info("worker started", "concurrency", cfg.Worker.Concurrency)

	var sweeper *app.RetentionSweeper
	if cfg.Worker.RetentionEnabled {
		sweeper, err = app.NewRetentionSweeper(repo, store, service,
			cfg.Worker.RetentionAge, cfg.Worker.RetentionSchedule, log)
		if err != nil {
			log.Error("failed to initialize retention sweeper", "error", err)
			return 1
		}
		sweeper.Start()
		log.Info("retention sweeper started",
			"age", cfg.Worker.RetentionAge, "schedule", cfg.Worker.RetentionSchedule)
	}

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	v := validator.New()
	server := http.NewServer(cfg, log, routes.Handlers{
		Health:    handler.NewHealthHandler(handler.WithRedis(redisClient)),
		Scan:      handler.NewScanHandler(service, v, &cfg.Storage, log),
		WebSocket: websocket.NewHandler(service, log),
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr())

	// ==========================================================================
	// Graceful Shutdown
	// ==========================================================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if sweeper != nil {
		sweeper.Stop()
	}
	worker.Stop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

// =============================================================================
// Helper Functions
// =============================================================================

func initLogger(cfg *config.Config) *logger.Logger {
	var log *logger.Logger
	if cfg.IsDevelopment() {
		log = logger.NewDevelopment()
	} else {
		log = logger.New(logger.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
		})
	}
	log.SetDefault()
	return log
}

func loadPatterns(cfg *config.Config) ([]detect.Pattern, error) {
	if cfg.Detection.PatternsFile == "" {
		return detect.DefaultPatterns(), nil
	}
	return detect.LoadPatterns(cfg.Detection.PatternsFile)
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
