// Package config provides configuration management for the screening server.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gh-risk-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir     string // Base directory for data files
	ArtifactDir string // Trained model bundle

	// Cache settings
	CacheMaxItems int           // Maximum items in memory cache
	CacheTTL      time.Duration // Default cache TTL

	// Assessment settings
	Policy         domain.TierPolicy
	PrioritySource domain.PrioritySource
	StorePolicy    domain.StorePolicy
	Margin         float64
	BMIMax         float64

	// Transport settings
	Transport string // Transport type: stdio

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".gh-risk")

	return &LiteConfig{
		DataDir:        dataDir,
		ArtifactDir:    filepath.Join(dataDir, "artifacts"),
		CacheMaxItems:  1000,
		CacheTTL:       10 * time.Minute,
		Policy:         domain.PolicyBinary,
		PrioritySource: domain.PriorityFromRules,
		StorePolicy:    domain.StoreKeepLatest,
		Margin:         0.10,
		BMIMax:         domain.DefaultBMIMax,
		Transport:      "stdio",
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set or invalid.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	// Data directories
	if v := os.Getenv("GH_RISK_DATA_DIR"); v != "" {
		cfg.DataDir = v
		cfg.ArtifactDir = filepath.Join(v, "artifacts")
	}
	if v := os.Getenv("GH_RISK_ARTIFACT_DIR"); v != "" {
		cfg.ArtifactDir = v
	}

	// Cache settings
	if v := os.Getenv("GH_RISK_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("GH_RISK_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	// Assessment
	if v := os.Getenv("GH_RISK_POLICY"); v != "" {
		if p, err := domain.ParseTierPolicy(v); err == nil {
			cfg.Policy = p
		}
	}
	if v := os.Getenv("GH_RISK_PRIORITY_SOURCE"); v != "" {
		if p, err := domain.ParsePrioritySource(v); err == nil {
			cfg.PrioritySource = p
		}
	}
	if v := os.Getenv("GH_RISK_STORE_POLICY"); v != "" {
		if p, err := domain.ParseStorePolicy(v); err == nil {
			cfg.StorePolicy = p
		}
	}
	if v := os.Getenv("GH_RISK_MARGIN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f < 0.5 {
			cfg.Margin = f
		}
	}
	if v := os.Getenv("GH_RISK_BMI_MAX"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 10 {
			cfg.BMIMax = f
		}
	}

	// Transport
	if v := os.Getenv("GH_RISK_TRANSPORT"); v != "" {
		cfg.Transport = v
	}

	// Logging
	if v := os.Getenv("GH_RISK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GH_RISK_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// PredictionDBPath returns the path to the predictions SQLite database.
func (c *LiteConfig) PredictionDBPath() string {
	return filepath.Join(c.DataDir, "predictions.db")
}

// AdviceDBPath returns the path to the clinician advice SQLite database.
func (c *LiteConfig) AdviceDBPath() string {
	return filepath.Join(c.DataDir, "advice.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// ArtifactsConfig returns the bundle layout used by the lite server. File names match the
// viper defaults of the full server.
func (c *LiteConfig) ArtifactsConfig() domain.ArtifactsConfig {
	return domain.ArtifactsConfig{
		Dir:             c.ArtifactDir,
		ModelCandidates: []string{"gh_model.json", "model.json"},
		CalibratorFile:  "calibrator.json",
		FeatureFile:     "feature_order.json",
		ThresholdFile:   "threshold.json",
		TrainingFile:    "X_train.csv",
		PostRulesFiles:  []string{"post_rules.yaml", "post_rules.json"},
	}
}

// AssessmentConfig returns the tiering settings.
func (c *LiteConfig) AssessmentConfig() domain.AssessmentConfig {
	return domain.AssessmentConfig{
		Policy:         c.Policy,
		PrioritySource: c.PrioritySource,
		Margin:         c.Margin,
		BMIMax:         c.BMIMax,
		BatchWorkers:   4,
	}
}

// StoreConfig returns the persistence settings.
func (c *LiteConfig) StoreConfig() domain.StoreConfig {
	return domain.StoreConfig{
		Policy:             c.StorePolicy,
		HistoryLimit:       50,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
	}
}
