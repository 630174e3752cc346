package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Artifacts   ArtifactsConfig  `mapstructure:"artifacts"`
	Assessment  AssessmentConfig `mapstructure:"assessment"`
	Store       StoreConfig      `mapstructure:"store"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	MCP         MCPConfig        `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLSEnabled   bool          `mapstructure:"tls_enabled"`
	CertFile     string        `mapstructure:"cert_file"`
	KeyFile      string        `mapstructure:"key_file"`
	AdminToken   string        `mapstructure:"admin_token"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	// MigrationsPath points at a directory of SQL files; empty uses the embedded schema.
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig represents cache configuration. An empty RedisURL selects the in-process cache.
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxItems    int           `mapstructure:"max_items"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ArtifactsConfig locates the trained model bundle.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir"`
	// ModelCandidates are tried in order, relative to Dir unless absolute.
	ModelCandidates []string `mapstructure:"model_candidates"`
	CalibratorFile  string   `mapstructure:"calibrator_file"`
	FeatureFile     string   `mapstructure:"feature_file"`
	ThresholdFile   string   `mapstructure:"threshold_file"`
	TrainingFile    string   `mapstructure:"training_file"`
	// PostRulesFiles are tried in order; the first that exists wins.
	PostRulesFiles []string `mapstructure:"post_rules_files"`
}

// AssessmentConfig selects the tiering behaviour of a deployment.
type AssessmentConfig struct {
	Policy         TierPolicy     `mapstructure:"policy"`
	PrioritySource PrioritySource `mapstructure:"priority_source"`
	Margin         float64        `mapstructure:"margin"`
	BMIMax         float64        `mapstructure:"bmi_max"`
	BatchWorkers   int            `mapstructure:"batch_workers"`
}

// StoreConfig selects the persistence policy.
type StoreConfig struct {
	Policy       StorePolicy `mapstructure:"policy"`
	HistoryLimit int         `mapstructure:"history_limit"`
	// Breaker settings guard writes to the prediction store.
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
}

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
	TransportType string `mapstructure:"transport_type"` // "stdio"
}
