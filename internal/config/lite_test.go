package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gh-risk-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "artifacts"), cfg.ArtifactDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, domain.PolicyBinary, cfg.Policy)
	assert.Equal(t, domain.PriorityFromRules, cfg.PrioritySource)
	assert.Equal(t, domain.StoreKeepLatest, cfg.StorePolicy)
	assert.Equal(t, 0.10, cfg.Margin)
	assert.Equal(t, 60.0, cfg.BMIMax)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, "stdio", cfg.Transport)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("GH_RISK_DATA_DIR", "/tmp/test-gh")
	t.Setenv("GH_RISK_CACHE_MAX_ITEMS", "500")
	t.Setenv("GH_RISK_CACHE_TTL", "12h")
	t.Setenv("GH_RISK_POLICY", "margin")
	t.Setenv("GH_RISK_STORE_POLICY", "history")
	t.Setenv("GH_RISK_MARGIN", "0.05")
	t.Setenv("GH_RISK_BMI_MAX", "80")
	t.Setenv("GH_RISK_LOG_LEVEL", "debug")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-gh", cfg.DataDir)
	assert.Equal(t, "/tmp/test-gh/artifacts", cfg.ArtifactDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, domain.PolicyMargin, cfg.Policy)
	assert.Equal(t, domain.StoreKeepHistory, cfg.StorePolicy)
	assert.Equal(t, 0.05, cfg.Margin)
	assert.Equal(t, 80.0, cfg.BMIMax)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadLiteConfig_ArtifactDirOverride(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("GH_RISK_DATA_DIR", "/tmp/test-gh")
	t.Setenv("GH_RISK_ARTIFACT_DIR", "/opt/models/gh")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/opt/models/gh", cfg.ArtifactDir)
}

func TestLoadLiteConfig_InvalidValues(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("GH_RISK_CACHE_MAX_ITEMS", "invalid")
	t.Setenv("GH_RISK_CACHE_TTL", "not-a-duration")
	t.Setenv("GH_RISK_POLICY", "three-way")
	t.Setenv("GH_RISK_MARGIN", "0.9")

	cfg := LoadLiteConfig()

	// Should fall back to defaults
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, domain.PolicyBinary, cfg.Policy)
	assert.Equal(t, 0.10, cfg.Margin)
}

func TestLiteConfig_DBPaths(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.gh-risk"}

	assert.Equal(t, "/home/user/.gh-risk/predictions.db", cfg.PredictionDBPath())
	assert.Equal(t, "/home/user/.gh-risk/advice.db", cfg.AdviceDBPath())
}

func TestLiteConfig_ComponentConfigs(t *testing.T) {
	cfg := DefaultLiteConfig()
	cfg.ArtifactDir = "/srv/gh/artifacts"
	cfg.StorePolicy = domain.StoreKeepHistory

	arts := cfg.ArtifactsConfig()
	assert.Equal(t, "/srv/gh/artifacts", arts.Dir)
	assert.Equal(t, []string{"gh_model.json", "model.json"}, arts.ModelCandidates)

	assert.Equal(t, domain.PolicyBinary, cfg.AssessmentConfig().Policy)
	assert.Equal(t, domain.StoreKeepHistory, cfg.StoreConfig().Policy)
	assert.Equal(t, uint32(5), cfg.StoreConfig().BreakerMaxFailures)
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := &LiteConfig{DataDir: filepath.Join(tmpDir, "gh")}

	err = cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"GH_RISK_DATA_DIR",
		"GH_RISK_ARTIFACT_DIR",
		"GH_RISK_CACHE_MAX_ITEMS",
		"GH_RISK_CACHE_TTL",
		"GH_RISK_POLICY",
		"GH_RISK_PRIORITY_SOURCE",
		"GH_RISK_STORE_POLICY",
		"GH_RISK_MARGIN",
		"GH_RISK_BMI_MAX",
		"GH_RISK_TRANSPORT",
		"GH_RISK_LOG_LEVEL",
		"GH_RISK_LOG_FORMAT",
	}
	for _, v := range vars {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}
