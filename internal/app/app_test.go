package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gh-risk-server/internal/config"
	"github.com/gh-risk-server/internal/domain"
	"github.com/gh-risk-server/internal/health"
)

const testFeatureOrder = `["Age", "BMI", "Systolic BP", "Diastolic BP", "Previous Complications",
	"Preexisting Diabetes", "Gestational Diabetes", "Mental Health", "Heart Rate"]`

const testModel = `{
	"type": "logistic",
	"name": "gh-logreg",
	"version": "2024.1",
	"coefficients": [0.02, 0.05, 0.04, 0.03, 1.2, 0.8, 0.6, 0.3, 0.01],
	"intercept": -10.0
}`

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// sqliteManager writes a config.yaml selecting SQLite and returns a manager reading it.
func sqliteManager(t *testing.T, withArtifacts bool) *config.Manager {
	t.Helper()
	t.Setenv("GH_SCREEN_T", "")
	t.Setenv("GH_PRIORITY_T", "")

	dir := t.TempDir()
	artifactDir := filepath.Join(dir, "artifacts")
	require.NoError(t, os.MkdirAll(artifactDir, 0755))
	if withArtifacts {
		require.NoError(t, os.WriteFile(filepath.Join(artifactDir, "gh_model.json"), []byte(testModel), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(artifactDir, "feature_order.json"), []byte(testFeatureOrder), 0644))
	}

	yaml := fmt.Sprintf(`
database:
  driver: sqlite
  sqlite_path: %s
artifacts:
  dir: %s
store:
  policy: history
`, filepath.Join(dir, "data", "gh.db"), artifactDir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	mgr, err := config.NewManagerWithPaths(dir)
	require.NoError(t, err)
	require.NoError(t, mgr.Validate())
	return mgr
}

func TestNew_SQLite(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, sqliteManager(t, true), quietLogger())
	require.NoError(t, err)
	defer a.Close()

	pid := int64(8)
	res, err := a.Assessments.Assess(ctx, domain.ClinicalInput{
		PatientID: &pid, Age: 30, BMI: 22, SystolicBP: 120, DiastolicBP: 75, HeartRate: 75,
	}, domain.SourceAPI)
	require.NoError(t, err)
	assert.NotNil(t, res.CreatedAt)

	latest, err := a.Assessments.Latest(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, res.ID, latest.ID)

	_, err = a.Advice.Add(ctx, pid, "Repeat BP at next visit", "")
	require.NoError(t, err)

	status := a.Health.Check(ctx)
	assert.Equal(t, health.HealthStateHealthy, status.Overall)
	assert.Contains(t, status.Components, "cache")
}

func TestNew_MissingArtifacts(t *testing.T) {
	_, err := New(context.Background(), sqliteManager(t, false), quietLogger())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrArtifactMissing)
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(domain.LoggingConfig{Level: "debug", Format: "text"})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	logger = NewLogger(domain.LoggingConfig{Level: "bogus"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}
