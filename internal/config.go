package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Report storage configuration
	ReportStorageMode    string // "inline", "filesystem" or "s3"
	ReportInlineMaxBytes int64  // inline payloads above this fall back to filesystem
	ReportEncryptionKey  string // 64-char hex or 32-byte raw; any other length means no key
	ReportDir            string // base directory for filesystem artifacts

	// Generation bounds
	ReportChunkSize int           // page size for source queries
	ReportMaxRows   int           // hard cap on dataset rows
	ReportTTL       time.Duration // download window after completion

	// Worker configuration
	WorkerEnabled         bool
	WorkerConcurrency     int
	WorkerPollInterval    time.Duration
	WorkerJobTimeout      time.Duration
	WorkerShutdownTimeout time.Duration
	WorkerStaleThreshold  time.Duration

	// Expired-artifact sweep
	SweepInterval time.Duration
	TenantSchemas []string // schemas the sweep visits; empty disables the sweep

	// S3-compatible object storage (required only when ReportStorageMode is "s3")
	S3Endpoint        string // optional custom endpoint (R2, MinIO); empty for AWS
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3BucketName      string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		ReportStorageMode:    getEnv("REPORT_STORAGE_MODE", "filesystem"),
		ReportInlineMaxBytes: int64(getEnvInt("REPORT_INLINE_MAX_BYTES", 1<<20)),
		ReportEncryptionKey:  getEnv("REPORT_ENCRYPTION_KEY", ""),
		ReportDir:            getEnv("REPORT_DIR", "./reports"),

		ReportChunkSize: getEnvInt("REPORT_CHUNK_SIZE", 1000),
		ReportMaxRows:   getEnvInt("REPORT_MAX_ROWS", 50000),
		ReportTTL:       getEnvDuration("REPORT_TTL", 24*time.Hour),

		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:     getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval:    getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerJobTimeout:      getEnvDuration("WORKER_JOB_TIMEOUT", 5*time.Minute),
		WorkerShutdownTimeout: getEnvDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),
		WorkerStaleThreshold:  getEnvDuration("WORKER_STALE_THRESHOLD", 10*time.Minute),

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Hour),
		TenantSchemas: getEnvList("TENANT_SCHEMAS"),

		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", "auto"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
		S3BucketName:      getEnv("S3_BUCKET_NAME", ""),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// Validate storage configuration
	switch cfg.ReportStorageMode {
	case "inline", "filesystem":
	case "s3":
		if cfg.S3AccessKeyID == "" {
			return nil, fmt.Errorf("S3_ACCESS_KEY_ID is required when REPORT_STORAGE_MODE is 's3'")
		}
		if cfg.S3SecretAccessKey == "" {
			return nil, fmt.Errorf("S3_SECRET_ACCESS_KEY is required when REPORT_STORAGE_MODE is 's3'")
		}
		if cfg.S3BucketName == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME is required when REPORT_STORAGE_MODE is 's3'")
		}
	default:
		return nil, fmt.Errorf("REPORT_STORAGE_MODE must be 'inline', 'filesystem' or 's3', got: %s", cfg.ReportStorageMode)
	}

	if cfg.ReportInlineMaxBytes <= 0 {
		return nil, fmt.Errorf("REPORT_INLINE_MAX_BYTES must be positive")
	}
	if cfg.ReportChunkSize <= 0 {
		return nil, fmt.Errorf("REPORT_CHUNK_SIZE must be positive")
	}
	if cfg.ReportMaxRows <= 0 {
		return nil, fmt.Errorf("REPORT_MAX_ROWS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
