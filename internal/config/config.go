// Package config provides configuration loading for costpilot.
//
// Configuration is read from an optional YAML file and overridden by
// environment variables prefixed with COSTPILOT_.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Merge policies accepted by ReconcileConfig.DedupPolicy.
const (
	DedupPolicyAppend      = "append"
	DedupPolicyMergeVendor = "merge_vendor"
)

// Config holds the complete costpilot configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Gemini       GeminiConfig       `koanf:"gemini"`
	Extraction   ExtractionConfig   `koanf:"extraction"`
	Analysis     AnalysisConfig     `koanf:"analysis"`
	Optimization OptimizationConfig `koanf:"optimization"`
	Reconcile    ReconcileConfig    `koanf:"reconcile"`
	Storage      StorageConfig      `koanf:"storage"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxUploadMB     int           `koanf:"max_upload_mb"`
}

// GeminiConfig holds the model client configuration. An empty APIKey lets
// the genai client fall back to GOOGLE_API_KEY / GEMINI_API_KEY.
type GeminiConfig struct {
	APIKey          string  `koanf:"api_key"`
	APIVersion      string  `koanf:"api_version"`
	ExtractionModel string  `koanf:"extraction_model"`
	AnalysisModel   string  `koanf:"analysis_model"`
	RequestsPerSec  float64 `koanf:"requests_per_sec"` // 0 disables client-side limiting
}

// ExtractionConfig controls the extraction worker pool.
type ExtractionConfig struct {
	Workers    int           `koanf:"workers"`
	QueueSize  int           `koanf:"queue_size"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
}

// AnalysisConfig controls pattern-analysis calls.
type AnalysisConfig struct {
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`

	// ManualRefresh disables recomputing recommendations on every expense
	// change; they are then refreshed only on request.
	ManualRefresh bool `koanf:"manual_refresh"`
}

// OptimizationConfig controls the task scheduler.
type OptimizationConfig struct {
	CompletionDelay time.Duration `koanf:"completion_delay"`
}

// ReconcileConfig controls the recurrence reconciler.
type ReconcileConfig struct {
	DedupPolicy string `koanf:"dedup_policy"`
	Schedule    string `koanf:"schedule"` // cron spec; empty disables periodic audits
}

// StorageConfig configures the Cloud Storage document source.
type StorageConfig struct {
	Bucket          string `koanf:"bucket"`
	CredentialsFile string `koanf:"credentials_file"`
	Endpoint        string `koanf:"endpoint"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}

	if cfg.Gemini.APIVersion == "" {
		cfg.Gemini.APIVersion = "v1beta"
	}
	if cfg.Gemini.ExtractionModel == "" {
		cfg.Gemini.ExtractionModel = "gemini-2.5-flash"
	}
	if cfg.Gemini.AnalysisModel == "" {
		cfg.Gemini.AnalysisModel = "gemini-2.5-flash"
	}

	if cfg.Extraction.Workers == 0 {
		cfg.Extraction.Workers = 5
	}
	if cfg.Extraction.QueueSize == 0 {
		cfg.Extraction.QueueSize = 100
	}
	if cfg.Extraction.Timeout == 0 {
		cfg.Extraction.Timeout = 2 * time.Minute
	}

	if cfg.Analysis.Timeout == 0 {
		cfg.Analysis.Timeout = 2 * time.Minute
	}

	if cfg.Optimization.CompletionDelay == 0 {
		cfg.Optimization.CompletionDelay = 4500 * time.Millisecond
	}

	if cfg.Reconcile.DedupPolicy == "" {
		cfg.Reconcile.DedupPolicy = DedupPolicyAppend
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("invalid max upload size: %d MB", c.Server.MaxUploadMB)
	}

	if c.Extraction.Workers < 1 {
		return fmt.Errorf("extraction workers must be at least 1, got %d", c.Extraction.Workers)
	}
	if c.Extraction.QueueSize < 1 {
		return fmt.Errorf("extraction queue size must be at least 1, got %d", c.Extraction.QueueSize)
	}
	if c.Extraction.Timeout <= 0 || c.Analysis.Timeout <= 0 {
		return errors.New("service call timeouts must be positive")
	}
	if c.Extraction.MaxRetries < 0 || c.Analysis.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if c.Gemini.RequestsPerSec < 0 {
		return fmt.Errorf("requests per second cannot be negative: %v", c.Gemini.RequestsPerSec)
	}

	if c.Optimization.CompletionDelay < 0 {
		return errors.New("completion delay cannot be negative")
	}

	switch c.Reconcile.DedupPolicy {
	case DedupPolicyAppend, DedupPolicyMergeVendor:
	default:
		return fmt.Errorf("unknown dedup policy %q (want %q or %q)",
			c.Reconcile.DedupPolicy, DedupPolicyAppend, DedupPolicyMergeVendor)
	}

	return nil
}
