// Package artifact loads and serves the trained model bundle used for screening: the
// classifier, an optional probability calibrator, the canonical feature order, operating
// thresholds, training medians for imputation and the post-rule cut-offs.
//
// A Bundle is immutable once built. The Registry publishes one bundle at a time and swaps
// in a new version atomically on reload, so request handlers read it without locking.
package artifact

import (
	"time"

	"github.com/gh-risk-server/internal/domain"
	"github.com/gh-risk-server/internal/rules"
)

// Bundle is one loaded, validated artifact set.
type Bundle struct {
	ID       string
	Version  int64
	LoadedAt time.Time
	Dir      string

	Classifier Classifier
	Model      ModelInfo
	ModelPath  string

	// Calibrator is nil when no calibration is applied.
	Calibrator     Calibrator
	CalibratorPath string

	FeatureOrder []string
	Thresholds   domain.Thresholds
	Medians      map[string]float64
	RuleCutoffs  rules.Cutoffs
	RulesSource  string

	index map[string]int
}

// HasCalibrator reports whether a calibrator was loaded.
func (b *Bundle) HasCalibrator() bool {
	return b.Calibrator != nil
}

// Width is the length of every feature vector built for this bundle.
func (b *Bundle) Width() int {
	return len(b.FeatureOrder)
}

// FeatureIndex returns the vector position of a feature.
func (b *Bundle) FeatureIndex(name string) (int, bool) {
	i, ok := b.index[name]
	return i, ok
}

// Median returns the training median of a feature and whether one is known.
func (b *Bundle) Median(name string) (float64, bool) {
	m, ok := b.Medians[name]
	return m, ok
}

// Summary describes a bundle for operators.
type Summary struct {
	ID             string            `json:"id"`
	Version        int64             `json:"version"`
	LoadedAt       time.Time         `json:"loaded_at"`
	Dir            string            `json:"dir"`
	Model          ModelInfo         `json:"model"`
	ModelPath      string            `json:"model_path"`
	Calibrated     bool              `json:"calibrated"`
	CalibratorKind string            `json:"calibrator_kind,omitempty"`
	FeatureOrder   []string          `json:"feature_order"`
	Thresholds     domain.Thresholds `json:"thresholds"`
	MedianCount    int               `json:"median_count"`
	RuleCutoffs    rules.Cutoffs     `json:"rule_cutoffs"`
	RulesSource    string            `json:"rules_source,omitempty"`
}

// Summarize returns the operator view of the bundle.
func (b *Bundle) Summarize() Summary {
	s := Summary{
		ID:           b.ID,
		Version:      b.Version,
		LoadedAt:     b.LoadedAt,
		Dir:          b.Dir,
		Model:        b.Model,
		ModelPath:    b.ModelPath,
		Calibrated:   b.HasCalibrator(),
		FeatureOrder: append([]string(nil), b.FeatureOrder...),
		Thresholds:   b.Thresholds,
		MedianCount:  len(b.Medians),
		RuleCutoffs:  b.RuleCutoffs,
		RulesSource:  b.RulesSource,
	}
	if b.Calibrator != nil {
		s.CalibratorKind = b.Calibrator.Kind()
	}
	return s
}

// NewBundle assembles a bundle from already-constructed parts. It is used by tests and by
// callers that build models in memory; Loader.Load is the path from disk.
func NewBundle(c Classifier, cal Calibrator, featureOrder []string, th domain.Thresholds, medians map[string]float64) *Bundle {
	b := &Bundle{
		Classifier:   c,
		Calibrator:   cal,
		FeatureOrder: append([]string(nil), featureOrder...),
		Thresholds:   th,
		Medians:      medians,
		RuleCutoffs:  rules.DefaultCutoffs(),
		LoadedAt:     time.Now().UTC(),
	}
	if b.Medians == nil {
		b.Medians = map[string]float64{}
	}
	b.buildIndex()
	return b
}

func (b *Bundle) buildIndex() {
	b.index = make(map[string]int, len(b.FeatureOrder))
	for i, name := range b.FeatureOrder {
		b.index[name] = i
	}
}
