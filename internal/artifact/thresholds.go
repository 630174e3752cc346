package artifact

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/gh-risk-server/internal/domain"
	"github.com/sirupsen/logrus"
)

// Threshold sanity band and fallback for the operating point.
const (
	DefaultThreshold = 0.5
	SanityMin        = 0.05
	SanityMax        = 0.95
)

// thresholdFile mirrors threshold.json. All keys are optional.
type thresholdFile struct {
	Threshold         *float64 `json:"threshold"`
	ScreenThreshold   *float64 `json:"screen_threshold"`
	PriorityThreshold *float64 `json:"priority_threshold"`
}

// ThresholdOverrides carries deployment-level replacements applied after the file is read.
type ThresholdOverrides struct {
	Screen   *float64
	Priority *float64
}

func parseThresholds(data []byte) (thresholdFile, error) {
	var tf thresholdFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return tf, fmt.Errorf("decoding thresholds: %w", err)
	}
	return tf, nil
}

// resolveThresholds turns the optional file values into the thresholds in effect.
//
// The operating point and the screen threshold (the binary policy's operating point) must
// fall inside [SanityMin, SanityMax]; anything else is replaced with DefaultThreshold. The
// screen and priority thresholds default to the operating point; the priority threshold
// must lie in [0, 1] and is never below the screen threshold. NaN and infinities are
// rejected everywhere.
func resolveThresholds(tf thresholdFile, margin float64, ov ThresholdOverrides, logger *logrus.Logger) domain.Thresholds {
	t := domain.Thresholds{Operating: DefaultThreshold, Margin: margin}

	if tf.Threshold != nil {
		t.Operating = sanityChecked("threshold", *tf.Threshold, logger)
	}

	t.Screen = pickUnit("screen_threshold", t.Operating, logger, tf.ScreenThreshold, ov.Screen)
	t.Screen = sanityChecked("screen_threshold", t.Screen, logger)
	t.Priority = pickUnit("priority_threshold", t.Operating, logger, tf.PriorityThreshold, ov.Priority)

	if t.Priority < t.Screen {
		logger.WithFields(logrus.Fields{
			"screen_threshold":   t.Screen,
			"priority_threshold": t.Priority,
		}).Warn("Priority threshold below screen threshold, raising it to the screen threshold")
		t.Priority = t.Screen
	}
	return t
}

// sanityChecked returns v when it lies in the sanity band, else DefaultThreshold with a warning.
func sanityChecked(name string, v float64, logger *logrus.Logger) float64 {
	if inRange(v, SanityMin, SanityMax) {
		return v
	}
	logger.WithFields(logrus.Fields{
		"name":    name,
		"value":   v,
		"default": DefaultThreshold,
	}).Warn("Threshold outside sanity band, clamping to default")
	return DefaultThreshold
}

// pickUnit returns the last valid candidate, or fallback when none is usable.
func pickUnit(name string, fallback float64, logger *logrus.Logger, candidates ...*float64) float64 {
	out := fallback
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if !inRange(*c, 0, 1) {
			logger.WithFields(logrus.Fields{
				"name":  name,
				"value": *c,
			}).Warn("Threshold outside [0,1], ignoring")
			continue
		}
		out = *c
	}
	return out
}

// inRange reports lo <= v <= hi; NaN is never in range.
func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}
