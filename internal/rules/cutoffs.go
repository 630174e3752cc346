package rules

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Cutoffs are the clinical thresholds the rules compare against.
type Cutoffs struct {
	SystolicHigh  float64 `yaml:"sbp_high" json:"sbp_high"`
	DiastolicHigh float64 `yaml:"dbp_high" json:"dbp_high"`
	CombinedSBP   float64 `yaml:"combined_sbp" json:"combined_sbp"`
	CombinedDBP   float64 `yaml:"combined_dbp" json:"combined_dbp"`
	BMIHigh       float64 `yaml:"bmi_high" json:"bmi_high"`
	AgeLow        float64 `yaml:"age_low" json:"age_low"`
	AgeHigh       float64 `yaml:"age_high" json:"age_high"`
}

// DefaultCutoffs returns the built-in clinical cut-offs.
func DefaultCutoffs() Cutoffs {
	return Cutoffs{
		SystolicHigh:  140,
		DiastolicHigh: 90,
		CombinedSBP:   130,
		CombinedDBP:   85,
		BMIHigh:       35,
		AgeLow:        18,
		AgeHigh:       40,
	}
}

// Validate checks that every cut-off is positive and the age band is ordered.
func (c Cutoffs) Validate() error {
	vals := map[string]float64{
		"sbp_high":     c.SystolicHigh,
		"dbp_high":     c.DiastolicHigh,
		"combined_sbp": c.CombinedSBP,
		"combined_dbp": c.CombinedDBP,
		"bmi_high":     c.BMIHigh,
		"age_low":      c.AgeLow,
		"age_high":     c.AgeHigh,
	}
	for name, v := range vals {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, v)
		}
	}
	if c.AgeLow >= c.AgeHigh {
		return fmt.Errorf("age_low %v must be below age_high %v", c.AgeLow, c.AgeHigh)
	}
	return nil
}

// LoadCutoffs reads the first existing post-rules file among paths. YAML and JSON are both
// accepted; keys that are absent keep their default. A missing or invalid file yields the
// defaults, and the returned source is empty.
func LoadCutoffs(paths []string, logger *logrus.Logger) (Cutoffs, string) {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			logger.WithError(err).WithField("path", p).Warn("Failed to read post rules, using defaults")
			return DefaultCutoffs(), ""
		}

		c := DefaultCutoffs()
		if err := yaml.Unmarshal(data, &c); err != nil {
			logger.WithError(err).WithField("path", p).Warn("Failed to parse post rules, using defaults")
			return DefaultCutoffs(), ""
		}
		if err := c.Validate(); err != nil {
			logger.WithError(err).WithField("path", p).Warn("Invalid post rules, using defaults")
			return DefaultCutoffs(), ""
		}

		logger.WithFields(logrus.Fields{
			"path":    p,
			"cutoffs": c,
		}).Info("Loaded post rules")
		return c, p
	}
	return DefaultCutoffs(), ""
}
