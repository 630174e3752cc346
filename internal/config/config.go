package config

import (
	"fmt"
	"strings"

	"github.com/gh-risk-server/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	return NewManagerWithPaths(".", "./config", "/etc/gh-risk/")
}

// NewManagerWithPaths creates a manager that searches only the given directories for config.yaml.
func NewManagerWithPaths(paths ...string) (*Manager, error) {
	m := &Manager{v: viper.New()}
	m.v.SetConfigName("config")
	m.v.SetConfigType("yaml")
	for _, p := range paths {
		m.v.AddConfigPath(p)
	}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Set environment variable prefix and enable automatic env binding
	m.v.SetEnvPrefix("GH_RISK")
	m.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.v.AutomaticEnv()

	m.setDefaults()

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := m.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := m.v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	v := m.v

	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls_enabled", false)
	v.SetDefault("server.admin_token", "")

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "gh_risk")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.sqlite_path", "./data/gh-risk.db")
	v.SetDefault("database.migrations_path", "")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Cache defaults
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "10m")
	v.SetDefault("cache.max_items", 1000)
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Artifact bundle defaults
	v.SetDefault("artifacts.dir", "./artifacts")
	v.SetDefault("artifacts.model_candidates", []string{"gh_model.json", "model.json"})
	v.SetDefault("artifacts.calibrator_file", "calibrator.json")
	v.SetDefault("artifacts.feature_file", "feature_order.json")
	v.SetDefault("artifacts.threshold_file", "threshold.json")
	v.SetDefault("artifacts.training_file", "X_train.csv")
	v.SetDefault("artifacts.post_rules_files", []string{"post_rules.yaml", "post_rules.json"})

	// Assessment defaults
	v.SetDefault("assessment.policy", string(domain.PolicyBinary))
	v.SetDefault("assessment.priority_source", string(domain.PriorityFromRules))
	v.SetDefault("assessment.margin", 0.10)
	v.SetDefault("assessment.bmi_max", domain.DefaultBMIMax)
	v.SetDefault("assessment.batch_workers", 4)

	// Store defaults
	v.SetDefault("store.policy", string(domain.StoreKeepLatest))
	v.SetDefault("store.history_limit", 50)
	v.SetDefault("store.breaker_max_failures", 5)
	v.SetDefault("store.breaker_timeout", "30s")

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	// MCP defaults
	v.SetDefault("mcp.server_name", "gh-risk-server")
	v.SetDefault("mcp.server_version", "1.0.0")
	v.SetDefault("mcp.transport_type", "stdio")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetArtifactsConfig returns artifact bundle configuration
func (m *Manager) GetArtifactsConfig() *domain.ArtifactsConfig {
	return &m.config.Artifacts
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Database.Driver {
	case "postgres":
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	case "sqlite":
		if config.Database.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", config.Database.Driver)
	}

	if config.Artifacts.Dir == "" {
		return fmt.Errorf("artifact directory is required")
	}
	if !config.Assessment.Policy.IsValid() {
		return fmt.Errorf("invalid assessment policy: %q", config.Assessment.Policy)
	}
	if !config.Assessment.PrioritySource.IsValid() {
		return fmt.Errorf("invalid priority source: %q", config.Assessment.PrioritySource)
	}
	if config.Assessment.Policy == domain.PolicyMargin && config.Assessment.PrioritySource == domain.PriorityFromScore {
		return fmt.Errorf("priority source %q requires the %q policy", domain.PriorityFromScore, domain.PolicyBinary)
	}
	if config.Assessment.Margin < 0 || config.Assessment.Margin >= 0.5 {
		return fmt.Errorf("invalid margin: %v", config.Assessment.Margin)
	}
	if config.Assessment.BMIMax < 10 {
		return fmt.Errorf("invalid bmi_max: %v", config.Assessment.BMIMax)
	}
	if !config.Store.Policy.IsValid() {
		return fmt.Errorf("invalid store policy: %q", config.Store.Policy)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the database configuration as a postgres:// URL, the form
// golang-migrate expects.
func (m *Manager) GetDatabaseURL() string {
	db := m.config.Database
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.Username, db.Password, db.Host, db.Port, db.Database, db.SSLMode)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}

// Deployment-level threshold overrides, read from the environment without the GH_RISK prefix.
const (
	EnvScreenThreshold   = "GH_SCREEN_T"
	EnvPriorityThreshold = "GH_PRIORITY_T"
)

// ThresholdOverrides reads GH_SCREEN_T and GH_PRIORITY_T. Unset values are returned as
// nil; unparseable ones are logged and returned as nil. Range checks happen when the
// artifact bundle resolves its thresholds.
func ThresholdOverrides(logger *logrus.Logger) (screen, priority *float64) {
	v := viper.New()
	_ = v.BindEnv(EnvScreenThreshold)
	_ = v.BindEnv(EnvPriorityThreshold)
	return envFloat(v, EnvScreenThreshold, logger), envFloat(v, EnvPriorityThreshold, logger)
}

func envFloat(v *viper.Viper, key string, logger *logrus.Logger) *float64 {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return nil
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"env":   key,
			"value": raw,
		}).Warn("Ignoring unparseable threshold override")
		return nil
	}
	return &f
}
