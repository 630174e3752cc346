// Package inference runs the classifier over a feature vector and calibrates the result.
package inference

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/artifact"
	"github.com/gh-risk-server/internal/domain"
	"github.com/gh-risk-server/internal/features"
)

// Result carries the probabilities produced for one vector.
type Result struct {
	Raw         float64
	Probability float64
	Calibrated  bool
}

// Engine computes positive-class probabilities.
type Engine struct {
	logger *logrus.Logger
}

// NewEngine creates an inference engine.
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{logger: logger}
}

// Infer returns the calibrated positive-class probability in [0,1]. A classifier failure
// is wrapped in domain.ErrInferenceFailed and is not retried. A calibrator failure falls
// back to the raw probability and is logged.
func (e *Engine) Infer(vec features.Vector, bundle *artifact.Bundle) (Result, error) {
	if bundle == nil || bundle.Classifier == nil {
		return Result{}, fmt.Errorf("%w: no classifier loaded", domain.ErrInferenceFailed)
	}

	proba, err := bundle.Classifier.PredictProba(vec)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrInferenceFailed, err)
	}
	idx, err := positiveIndex(bundle.Classifier.Classes(), len(proba))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrInferenceFailed, err)
	}
	raw := proba[idx]
	if math.IsNaN(raw) {
		return Result{}, fmt.Errorf("%w: classifier returned NaN", domain.ErrInferenceFailed)
	}

	res := Result{Raw: clip(raw), Probability: clip(raw)}
	if bundle.Calibrator == nil {
		return res, nil
	}

	cal, err := bundle.Calibrator.Calibrate(res.Raw)
	if err != nil || math.IsNaN(cal) {
		if err == nil {
			err = fmt.Errorf("calibrator returned NaN")
		}
		e.logger.WithFields(logrus.Fields{
			"bundle_version": bundle.Version,
			"calibrator":     bundle.Calibrator.Kind(),
			"raw":            res.Raw,
		}).WithError(fmt.Errorf("%w: %v", domain.ErrCalibrationDegraded, err)).Warn("Calibration failed, using raw probability")
		return res, nil
	}

	res.Probability = clip(cal)
	res.Calibrated = true
	return res, nil
}

// positiveIndex selects the column of class "1" when labels are known, else the second column.
func positiveIndex(classes []string, n int) (int, error) {
	if len(classes) > 0 {
		for i, c := range classes {
			if c == "1" && i < n {
				return i, nil
			}
		}
	}
	if n < 2 {
		return 0, fmt.Errorf("classifier returned %d probabilities, need 2", n)
	}
	return 1, nil
}

func clip(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}
