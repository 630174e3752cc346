package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gh-risk-server/internal/domain"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManagerWithPaths(t.TempDir())
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, domain.PolicyBinary, cfg.Assessment.Policy)
	assert.Equal(t, domain.PriorityFromRules, cfg.Assessment.PrioritySource)
	assert.Equal(t, domain.StoreKeepLatest, cfg.Store.Policy)
	assert.Equal(t, 0.10, cfg.Assessment.Margin)
	assert.Equal(t, 60.0, cfg.Assessment.BMIMax)
	assert.Equal(t, []string{"gh_model.json", "model.json"}, cfg.Artifacts.ModelCandidates)
	assert.Equal(t, 30*time.Second, cfg.Store.BreakerTimeout)
	assert.NoError(t, m.Validate())
	assert.True(t, m.IsDevelopment())
}

func TestNewManager_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  port: 9000
assessment:
  policy: margin
  margin: 0.15
store:
  policy: history
database:
  driver: sqlite
  sqlite_path: /tmp/gh.db
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0644))
	t.Setenv("GH_RISK_ASSESSMENT_BMI_MAX", "80")

	m, err := NewManagerWithPaths(dir)
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, domain.PolicyMargin, cfg.Assessment.Policy)
	assert.Equal(t, 0.15, cfg.Assessment.Margin)
	assert.Equal(t, 80.0, cfg.Assessment.BMIMax)
	assert.Equal(t, domain.StoreKeepHistory, cfg.Store.Policy)
	assert.NoError(t, m.Validate())
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *domain.Config)
		wantErr string
	}{
		{"bad port", func(c *domain.Config) { c.Server.Port = 0 }, "invalid server port"},
		{"unknown driver", func(c *domain.Config) { c.Database.Driver = "mysql" }, "unsupported database driver"},
		{"bad policy", func(c *domain.Config) { c.Assessment.Policy = "tri" }, "invalid assessment policy"},
		{"score priority under margin", func(c *domain.Config) {
			c.Assessment.Policy = domain.PolicyMargin
			c.Assessment.PrioritySource = domain.PriorityFromScore
		}, "requires the"},
		{"bad margin", func(c *domain.Config) { c.Assessment.Margin = 0.6 }, "invalid margin"},
		{"bad store policy", func(c *domain.Config) { c.Store.Policy = "forever" }, "invalid store policy"},
		{"bad log level", func(c *domain.Config) { c.Logging.Level = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManagerWithPaths(t.TempDir())
			require.NoError(t, err)
			tt.mutate(m.GetConfig())

			err = m.Validate()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestManager_ConnectionStrings(t *testing.T) {
	m, err := NewManagerWithPaths(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "host=localhost port=5432 user=postgres password= dbname=gh_risk sslmode=disable",
		m.GetDatabaseConnectionString())
	assert.Equal(t, "postgres://postgres:@localhost:5432/gh_risk?sslmode=disable", m.GetDatabaseURL())
	assert.Empty(t, m.GetRedisConnectionString())
}

func TestThresholdOverrides(t *testing.T) {
	t.Setenv(EnvScreenThreshold, " 0.04 ")
	t.Setenv(EnvPriorityThreshold, "not-a-number")
	logger, hook := logtest.NewNullLogger()

	screen, priority := ThresholdOverrides(logger)

	require.NotNil(t, screen)
	assert.Equal(t, 0.04, *screen)
	assert.Nil(t, priority)

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, EnvPriorityThreshold, entry.Data["env"])
	assert.Equal(t, "not-a-number", entry.Data["value"])
}

func TestThresholdOverrides_Unset(t *testing.T) {
	t.Setenv(EnvScreenThreshold, "")
	t.Setenv(EnvPriorityThreshold, "")
	logger, hook := logtest.NewNullLogger()

	screen, priority := ThresholdOverrides(logger)

	assert.Nil(t, screen)
	assert.Nil(t, priority)
	assert.Empty(t, hook.Entries)
}
