package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Environment constants
const (
	EnvProduction = "production"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig
	Server     ServerConfig
	Redis      RedisConfig
	Log        LogConfig
	Worker     WorkerConfig
	Extraction ExtractionConfig
	Detection  DetectionConfig
	Storage    StorageConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string
	Env   string
	Debug bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration // Per-request handler timeout
	ShutdownTimeout time.Duration
	MaxBodySize     int64 // Multipart uploads can be large
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host          string
	Port          int
	Password      string
	DB            int
	PoolSize      int
	MinIdleConns  int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TLSEnabled    bool
	TLSSkipVerify bool
	MaxRetries    int
	MinRetryDelay time.Duration
	MaxRetryDelay time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string

	// HTTP logging configuration
	SkipHealthLogs     bool // Skip logging health check endpoints
	SlowRequestSeconds int  // Log requests slower than this as warnings
}

// WorkerConfig holds background worker configuration.
type WorkerConfig struct {
	// Concurrency is the number of concurrent scan tasks the worker runs.
	Concurrency int

	// Queue is the task queue name scan jobs are enqueued on.
	Queue string

	// ScanTimeout bounds the total processing time of a single scan.
	ScanTimeout time.Duration

	// RetentionEnabled controls the periodic cleanup of terminal scans.
	RetentionEnabled bool

	// RetentionAge is how long terminal scans are kept before cleanup.
	RetentionAge time.Duration

	// RetentionSchedule is the cron expression for the cleanup sweep.
	RetentionSchedule string
}

// ExtractionConfig holds content extraction configuration.
type ExtractionConfig struct {
	// Concurrency bounds the per-scan file extraction pool for the
	// classic backend. The bridged backend always runs files serially.
	Concurrency int

	// FileTimeout bounds extraction of a single file.
	FileTimeout time.Duration

	// OCRBinary is the OCR engine executable used for image files and
	// text-poor PDF pages. Empty disables OCR.
	OCRBinary string

	// OCRLanguages is the language hint passed to the OCR engine.
	OCRLanguages string

	// Bridged backend tool chain.
	BridgedExtractBin string
	BridgedDetectBin  string
	BridgedTimeout    time.Duration

	// BridgedTokenEnv is the environment variable name the credential
	// is exposed under when invoking the bridged tools.
	BridgedTokenEnv string
}

// DetectionConfig holds candidate detection configuration.
type DetectionConfig struct {
	// PatternsFile optionally overrides the built-in pattern set with a
	// YAML definition file.
	PatternsFile string

	// KeywordMinFrequency is the minimum occurrences before a token is
	// reported as a keyword candidate.
	KeywordMinFrequency int

	// KeywordTopN caps the number of keyword candidates per file.
	KeywordTopN int

	// PreserveCase keeps the original casing of values during
	// deduplication instead of folding to lower case.
	PreserveCase bool
}

// StorageConfig holds local blob storage configuration.
type StorageConfig struct {
	// UploadDir is the staging directory for admitted source files.
	UploadDir string

	// ArtifactDir is where gzip-compressed extraction artifacts live.
	ArtifactDir string

	// MaxFileSize caps a single admitted file.
	MaxFileSize int64

	// MaxFilesPerScan caps the working set of one scan.
	MaxFilesPerScan int
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled         bool
	RequestsPerSec  float64
	Burst           int
	CleanupInterval time.Duration
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:  getEnv("APP_NAME", "sit-builder"),
			Env:   getEnv("APP_ENV", "development"),
			Debug: getEnvBool("APP_DEBUG", false),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodySize:     getEnvInt64("SERVER_MAX_BODY_SIZE", 256<<20), // 256MB for multipart uploads
		},
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			TLSEnabled:    getEnvBool("REDIS_TLS_ENABLED", false),
			TLSSkipVerify: getEnvBool("REDIS_TLS_SKIP_VERIFY", false),
			MaxRetries:    getEnvInt("REDIS_MAX_RETRIES", 3),
			MinRetryDelay: getEnvDuration("REDIS_MIN_RETRY_DELAY", 100*time.Millisecond),
			MaxRetryDelay: getEnvDuration("REDIS_MAX_RETRY_DELAY", 3*time.Second),
		},
		Log: LogConfig{
			Level:              getEnv("LOG_LEVEL", "info"),
			Format:             getEnv("LOG_FORMAT", "json"),
			SkipHealthLogs:     getEnvBool("LOG_SKIP_HEALTH", true),
			SlowRequestSeconds: getEnvInt("LOG_SLOW_REQUEST_SECONDS", 5),
		},
		Worker: WorkerConfig{
			Concurrency:       getEnvInt("WORKER_CONCURRENCY", 4),
			Queue:             getEnv("WORKER_QUEUE", "scans"),
			ScanTimeout:       getEnvDuration("WORKER_SCAN_TIMEOUT", 30*time.Minute),
			RetentionEnabled:  getEnvBool("WORKER_RETENTION_ENABLED", true),
			RetentionAge:      getEnvDuration("WORKER_RETENTION_AGE", 7*24*time.Hour),
			RetentionSchedule: getEnv("WORKER_RETENTION_SCHEDULE", "0 * * * *"),
		},
		Extraction: ExtractionConfig{
			Concurrency:       getEnvInt("EXTRACT_CONCURRENCY", 4),
			FileTimeout:       getEnvDuration("EXTRACT_FILE_TIMEOUT", 2*time.Minute),
			OCRBinary:         getEnv("EXTRACT_OCR_BINARY", "tesseract"),
			OCRLanguages:      getEnv("EXTRACT_OCR_LANGUAGES", "eng"),
			BridgedExtractBin: getEnv("BRIDGED_EXTRACT_BIN", "exo-extract"),
			BridgedDetectBin:  getEnv("BRIDGED_DETECT_BIN", "exo-detect"),
			BridgedTimeout:    getEnvDuration("BRIDGED_TIMEOUT", 5*time.Minute),
			BridgedTokenEnv:   getEnv("BRIDGED_TOKEN_ENV", "EXO_ACCESS_TOKEN"),
		},
		Detection: DetectionConfig{
			PatternsFile:        getEnv("DETECT_PATTERNS_FILE", ""),
			KeywordMinFrequency: getEnvInt("DETECT_KEYWORD_MIN_FREQUENCY", 2),
			KeywordTopN:         getEnvInt("DETECT_KEYWORD_TOP_N", 40),
			PreserveCase:        getEnvBool("DETECT_PRESERVE_CASE", false),
		},
		Storage: StorageConfig{
			UploadDir:       getEnv("STORAGE_UPLOAD_DIR", "/var/lib/sit-builder/uploads"),
			ArtifactDir:     getEnv("STORAGE_ARTIFACT_DIR", "/var/lib/sit-builder/artifacts"),
			MaxFileSize:     getEnvInt64("STORAGE_MAX_FILE_SIZE", 64<<20), // 64MB per file
			MaxFilesPerScan: getEnvInt("STORAGE_MAX_FILES_PER_SCAN", 500),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"}),
			MaxAge:         getEnvInt("CORS_MAX_AGE", 86400),
		},
		RateLimit: RateLimitConfig{
			Enabled:         getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSec:  getEnvFloat("RATE_LIMIT_RPS", 100),
			Burst:           getEnvInt("RATE_LIMIT_BURST", 200),
			CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP", 1*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validateBasic(); err != nil {
		return err
	}
	if c.App.Env == EnvProduction {
		return c.validateProduction()
	}
	return nil
}

// validateBasic validates basic configuration regardless of environment.
func (c *Config) validateBasic() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if err := c.validateLog(); err != nil {
		return err
	}
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return nil
}

// validateLog validates logging configuration.
func (c *Config) validateLog() error {
	validLevels := map[string]bool{
		"debug": true, "DEBUG": true,
		"info": true, "INFO": true,
		"warn": true, "WARN": true,
		"error": true, "ERROR": true,
	}
	if c.Log.Level != "" && !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid LOG_LEVEL: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	validFormats := map[string]bool{
		"json": true, "JSON": true,
		"text": true, "TEXT": true,
		"": true, // Empty is allowed (defaults to json)
	}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be json or text)", c.Log.Format)
	}

	if c.Log.SlowRequestSeconds < 0 {
		return fmt.Errorf("LOG_SLOW_REQUEST_SECONDS must be non-negative, got %d", c.Log.SlowRequestSeconds)
	}

	return nil
}

// validateWorker validates worker and extraction configuration.
func (c *Config) validateWorker() error {
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.Queue == "" {
		return fmt.Errorf("WORKER_QUEUE is required")
	}
	if c.Worker.ScanTimeout < time.Minute {
		return fmt.Errorf("WORKER_SCAN_TIMEOUT too short: %v (min 1m)", c.Worker.ScanTimeout)
	}
	if c.Extraction.Concurrency < 1 {
		return fmt.Errorf("EXTRACT_CONCURRENCY must be at least 1, got %d", c.Extraction.Concurrency)
	}
	if c.Extraction.BridgedTokenEnv == "" {
		return fmt.Errorf("BRIDGED_TOKEN_ENV is required")
	}
	if c.Detection.KeywordMinFrequency < 1 {
		return fmt.Errorf("DETECT_KEYWORD_MIN_FREQUENCY must be at least 1, got %d", c.Detection.KeywordMinFrequency)
	}
	if c.Detection.KeywordTopN < 1 {
		return fmt.Errorf("DETECT_KEYWORD_TOP_N must be at least 1, got %d", c.Detection.KeywordTopN)
	}
	return nil
}

// validateStorage validates storage configuration.
func (c *Config) validateStorage() error {
	if c.Storage.UploadDir == "" {
		return fmt.Errorf("STORAGE_UPLOAD_DIR is required")
	}
	if c.Storage.ArtifactDir == "" {
		return fmt.Errorf("STORAGE_ARTIFACT_DIR is required")
	}
	if c.Storage.MaxFileSize < 1 {
		return fmt.Errorf("STORAGE_MAX_FILE_SIZE must be positive, got %d", c.Storage.MaxFileSize)
	}
	if c.Storage.MaxFilesPerScan < 1 {
		return fmt.Errorf("STORAGE_MAX_FILES_PER_SCAN must be positive, got %d", c.Storage.MaxFilesPerScan)
	}
	return nil
}

// validateProduction validates production-specific configuration.
func (c *Config) validateProduction() error {
	if slices.Contains(c.CORS.AllowedOrigins, "*") {
		return fmt.Errorf("CORS wildcard origin not allowed in production")
	}
	if !c.RateLimit.Enabled {
		return fmt.Errorf("rate limiting must be enabled in production")
	}
	if c.App.Debug {
		return fmt.Errorf("debug mode must be disabled in production")
	}
	if c.Log.Level == "debug" {
		return fmt.Errorf("log level should not be 'debug' in production")
	}
	if c.Redis.Password == "" {
		return fmt.Errorf("redis password must be set in production")
	}
	if !c.Redis.TLSEnabled {
		return fmt.Errorf("redis TLS must be enabled in production")
	}
	if c.Redis.TLSSkipVerify {
		return fmt.Errorf("redis TLS skip verify must be false in production")
	}
	return nil
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the HTTP server address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if the application is in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction returns true if the application is in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, p := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
