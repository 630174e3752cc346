package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gh-risk-server/internal/domain"
)

func TestLoader_Load_FullBundle(t *testing.T) {
	// Arrange
	files := minimalBundleFiles()
	files["calibrator.json"] = testCalibrator
	files["threshold.json"] = `{"threshold": 0.4, "screen_threshold": 0.08, "priority_threshold": 0.26}`
	files["X_train.csv"] = "Age,BMI,Parity\n20,22,0\n30,24,1\n40,30,2\n,NaN,3\n"
	files["post_rules.yaml"] = "sbp_high: 135\n"
	dir := writeBundle(t, files)

	// Act
	b, err := NewLoader(testArtifactsConfig(dir), 0.1, ThresholdOverrides{}, quietLogger()).Load()

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, filepath.Join(dir, "gh_model.json"), b.ModelPath)
	assert.Equal(t, "gh-logreg", b.Model.Name)
	assert.Equal(t, 10, b.Width())
	assert.True(t, b.HasCalibrator())
	assert.Equal(t, 0.4, b.Thresholds.Operating)
	assert.Equal(t, 0.08, b.Thresholds.Screen)
	assert.Equal(t, 0.26, b.Thresholds.Priority)
	assert.Equal(t, 0.1, b.Thresholds.Margin)
	assert.Equal(t, 30.0, b.Medians["Age"])
	assert.Equal(t, 1.5, b.Medians["Parity"])
	assert.Equal(t, 135.0, b.RuleCutoffs.SystolicHigh)

	idx, ok := b.FeatureIndex("Heart Rate")
	assert.True(t, ok)
	assert.Equal(t, 8, idx)

	s := b.Summarize()
	assert.True(t, s.Calibrated)
	assert.Equal(t, CalibratorIsotonic, s.CalibratorKind)
	assert.Equal(t, 3, s.MedianCount)
}

func TestLoader_Load_CandidateOrder(t *testing.T) {
	files := map[string]string{
		"model.json":         testLogisticModel,
		"feature_order.json": testFeatureOrder,
	}
	dir := writeBundle(t, files)

	b, err := NewLoader(testArtifactsConfig(dir), 0.1, ThresholdOverrides{}, quietLogger()).Load()

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model.json"), b.ModelPath)
}

func TestLoader_Load_MissingArtifacts(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr error
	}{
		{
			name:    "no classifier",
			files:   map[string]string{"feature_order.json": testFeatureOrder},
			wantErr: domain.ErrArtifactMissing,
		},
		{
			name:    "no feature order",
			files:   map[string]string{"gh_model.json": testLogisticModel},
			wantErr: domain.ErrArtifactMissing,
		},
		{
			name: "feature order lacks production feature",
			files: map[string]string{
				"gh_model.json":      testLogisticModel,
				"feature_order.json": `["Age","BMI","Systolic BP","Diastolic BP","Previous Complications","Preexisting Diabetes","Gestational Diabetes","Mental Health","Parity","Gravida"]`,
			},
			wantErr: domain.ErrArtifactInvalid,
		},
		{
			name: "duplicate feature names",
			files: map[string]string{
				"gh_model.json":      testLogisticModel,
				"feature_order.json": `["Age","Age","BMI","Systolic BP","Diastolic BP","Previous Complications","Preexisting Diabetes","Gestational Diabetes","Mental Health","Heart Rate"]`,
			},
			wantErr: domain.ErrArtifactInvalid,
		},
		{
			name: "width mismatch",
			files: map[string]string{
				"gh_model.json":      `{"type": "logistic", "coefficients": [1, 2, 3], "intercept": 0}`,
				"feature_order.json": testFeatureOrder,
			},
			wantErr: domain.ErrArtifactInvalid,
		},
		{
			name: "unknown model type",
			files: map[string]string{
				"gh_model.json":      `{"type": "tabnet"}`,
				"feature_order.json": testFeatureOrder,
			},
			wantErr: domain.ErrArtifactInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeBundle(t, tt.files)

			b, err := NewLoader(testArtifactsConfig(dir), 0.1, ThresholdOverrides{}, quietLogger()).Load()

			assert.Nil(t, b)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestLoader_Load_OptionalArtifacts(t *testing.T) {
	t.Run("defaults without optional files", func(t *testing.T) {
		dir := writeBundle(t, minimalBundleFiles())

		b, err := NewLoader(testArtifactsConfig(dir), 0.1, ThresholdOverrides{}, quietLogger()).Load()

		require.NoError(t, err)
		assert.False(t, b.HasCalibrator())
		assert.Equal(t, DefaultThreshold, b.Thresholds.Operating)
		assert.Equal(t, DefaultThreshold, b.Thresholds.Screen)
		assert.Equal(t, DefaultThreshold, b.Thresholds.Priority)
		assert.Empty(t, b.Medians)
		assert.Empty(t, b.RulesSource)
	})

	t.Run("corrupt calibrator is skipped", func(t *testing.T) {
		files := minimalBundleFiles()
		files["calibrator.json"] = `{"type": "isotonic", "x_thresholds": [0.5, 0.1], "y_thresholds": [0.2, 0.3]}`
		dir := writeBundle(t, files)

		b, err := NewLoader(testArtifactsConfig(dir), 0.1, ThresholdOverrides{}, quietLogger()).Load()

		require.NoError(t, err)
		assert.False(t, b.HasCalibrator())
	})

	t.Run("unreadable threshold json uses defaults", func(t *testing.T) {
		files := minimalBundleFiles()
		files["threshold.json"] = `{"threshold": "high"}`
		dir := writeBundle(t, files)

		b, err := NewLoader(testArtifactsConfig(dir), 0.1, ThresholdOverrides{}, quietLogger()).Load()

		require.NoError(t, err)
		assert.Equal(t, DefaultThreshold, b.Thresholds.Operating)
	})
}

func TestLoader_Load_ThresholdOverrides(t *testing.T) {
	files := minimalBundleFiles()
	files["threshold.json"] = `{"screen_threshold": 0.1, "priority_threshold": 0.3}`
	dir := writeBundle(t, files)
	screen, priority := 0.2, 1.5

	b, err := NewLoader(testArtifactsConfig(dir), 0.1, ThresholdOverrides{Screen: &screen, Priority: &priority}, quietLogger()).Load()

	require.NoError(t, err)
	assert.Equal(t, 0.2, b.Thresholds.Screen)
	// out-of-range override ignored, file value kept
	assert.Equal(t, 0.3, b.Thresholds.Priority)
}

func TestLoader_Load_AbsolutePaths(t *testing.T) {
	other := writeBundle(t, map[string]string{"shared_features.json": testFeatureOrder})
	dir := writeBundle(t, map[string]string{"gh_model.json": testLogisticModel})
	cfg := testArtifactsConfig(dir)
	cfg.FeatureFile = filepath.Join(other, "shared_features.json")

	b, err := NewLoader(cfg, 0.1, ThresholdOverrides{}, quietLogger()).Load()

	require.NoError(t, err)
	assert.Equal(t, 10, b.Width())
}

func TestLoadMedians(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "X_train.csv")
	require.NoError(t, os.WriteFile(path, []byte("Age,BMI\n25,20\n35,x\n30,30\n"), 0644))

	medians, err := loadMedians(path)

	require.NoError(t, err)
	assert.Equal(t, 30.0, medians["Age"])
	assert.Equal(t, 25.0, medians["BMI"])

	_, err = loadMedians(filepath.Join(dir, "absent.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
