package artifact

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/gh-risk-server/internal/domain"
)

const testFeatureOrder = `["Age", "BMI", "Systolic BP", "Diastolic BP", "Previous Complications",
	"Preexisting Diabetes", "Gestational Diabetes", "Mental Health", "Heart Rate", "Parity"]`

const testLogisticModel = `{
	"type": "logistic",
	"name": "gh-logreg",
	"version": "2024.1",
	"classes": ["0", "1"],
	"coefficients": [0.02, 0.05, 0.04, 0.03, 1.2, 0.8, 0.6, 0.3, 0.01, 0.1],
	"intercept": -14.0
}`

const testCalibrator = `{
	"type": "isotonic",
	"x_thresholds": [0.0, 0.2, 0.6, 1.0],
	"y_thresholds": [0.0, 0.1, 0.7, 1.0]
}`

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testArtifactsConfig(dir string) domain.ArtifactsConfig {
	return domain.ArtifactsConfig{
		Dir:             dir,
		ModelCandidates: []string{"gh_model.json", "model.json"},
		CalibratorFile:  "calibrator.json",
		FeatureFile:     "feature_order.json",
		ThresholdFile:   "threshold.json",
		TrainingFile:    "X_train.csv",
		PostRulesFiles:  []string{"post_rules.yaml", "post_rules.json"},
	}
}

// writeBundle writes the given files into a fresh artifact directory.
func writeBundle(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func minimalBundleFiles() map[string]string {
	return map[string]string{
		"gh_model.json":      testLogisticModel,
		"feature_order.json": testFeatureOrder,
	}
}
