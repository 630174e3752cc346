package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/domain"
	"github.com/gh-risk-server/internal/rules"
)

// Loader reads a bundle from an artifact directory.
type Loader struct {
	cfg       domain.ArtifactsConfig
	margin    float64
	overrides ThresholdOverrides
	logger    *logrus.Logger
}

// NewLoader creates a loader for the configured artifact directory. margin is the band
// half-width used by the margin tier policy.
func NewLoader(cfg domain.ArtifactsConfig, margin float64, overrides ThresholdOverrides, logger *logrus.Logger) *Loader {
	return &Loader{
		cfg:       cfg,
		margin:    margin,
		overrides: overrides,
		logger:    logger,
	}
}

// Load reads and validates every artifact. The classifier and feature order are required
// and their absence returns domain.ErrArtifactMissing; everything else degrades to a
// documented fallback.
func (l *Loader) Load() (*Bundle, error) {
	b := &Bundle{
		ID:       uuid.New().String(),
		Dir:      l.cfg.Dir,
		LoadedAt: time.Now().UTC(),
	}

	if err := l.loadClassifier(b); err != nil {
		return nil, err
	}
	if err := l.loadFeatureOrder(b); err != nil {
		return nil, err
	}
	if b.Classifier.Width() != len(b.FeatureOrder) {
		return nil, fmt.Errorf("%w: classifier expects %d features, feature order has %d",
			domain.ErrArtifactInvalid, b.Classifier.Width(), len(b.FeatureOrder))
	}

	l.loadCalibrator(b)
	l.loadThresholds(b)
	l.loadMedians(b)

	b.RuleCutoffs, b.RulesSource = rules.LoadCutoffs(l.paths(l.cfg.PostRulesFiles), l.logger)

	l.logger.WithFields(logrus.Fields{
		"bundle_id":          b.ID,
		"model":              b.Model.Name,
		"model_version":      b.Model.Version,
		"model_path":         b.ModelPath,
		"features":           len(b.FeatureOrder),
		"calibrated":         b.HasCalibrator(),
		"threshold":          b.Thresholds.Operating,
		"screen_threshold":   b.Thresholds.Screen,
		"priority_threshold": b.Thresholds.Priority,
	}).Info("Artifact bundle loaded")

	return b, nil
}

func (l *Loader) loadClassifier(b *Bundle) error {
	candidates := l.paths(l.cfg.ModelCandidates)
	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading classifier %s: %w", p, err)
		}
		if err := validateDocument(schemaModel, data); err != nil {
			return fmt.Errorf("%w: classifier %s: %v", domain.ErrArtifactInvalid, p, err)
		}
		c, info, err := parseClassifier(data)
		if err != nil {
			return fmt.Errorf("%w: classifier %s: %v", domain.ErrArtifactInvalid, p, err)
		}
		b.Classifier, b.Model, b.ModelPath = c, info, p
		return nil
	}
	return fmt.Errorf("%w: classifier not found in %v", domain.ErrArtifactMissing, candidates)
}

func (l *Loader) loadFeatureOrder(b *Bundle) error {
	p := l.path(l.cfg.FeatureFile)
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: feature order %s", domain.ErrArtifactMissing, p)
	}
	if err != nil {
		return fmt.Errorf("reading feature order %s: %w", p, err)
	}
	if err := validateDocument(schemaFeatureOrder, data); err != nil {
		return fmt.Errorf("%w: feature order %s: %v", domain.ErrArtifactInvalid, p, err)
	}

	var order []string
	if err := json.Unmarshal(data, &order); err != nil {
		return fmt.Errorf("%w: feature order %s: %v", domain.ErrArtifactInvalid, p, err)
	}
	b.FeatureOrder = order
	b.buildIndex()

	var missing []string
	for _, name := range domain.ProductionFeatures {
		if _, ok := b.index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: feature order missing production features %v", domain.ErrArtifactInvalid, missing)
	}
	return nil
}

func (l *Loader) loadCalibrator(b *Bundle) {
	if l.cfg.CalibratorFile == "" {
		return
	}
	p := l.path(l.cfg.CalibratorFile)
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.WithField("path", p).Info("No calibrator found, using raw probabilities")
		return
	}
	if err == nil {
		err = validateDocument(schemaCalibrator, data)
	}
	var cal Calibrator
	if err == nil {
		cal, err = parseCalibrator(data)
	}
	if err != nil {
		l.logger.WithError(err).WithField("path", p).Warn("Calibrator unusable, using raw probabilities")
		return
	}
	b.Calibrator, b.CalibratorPath = cal, p
}

func (l *Loader) loadThresholds(b *Bundle) {
	var tf thresholdFile
	if l.cfg.ThresholdFile != "" {
		p := l.path(l.cfg.ThresholdFile)
		data, err := os.ReadFile(p)
		switch {
		case errors.Is(err, os.ErrNotExist):
			l.logger.WithField("path", p).Info("No threshold file found, using defaults")
		case err != nil:
			l.logger.WithError(err).WithField("path", p).Warn("Failed to read thresholds, using defaults")
		default:
			if err := validateDocument(schemaThresholds, data); err != nil {
				l.logger.WithError(err).WithField("path", p).Warn("Invalid threshold file, using defaults")
				break
			}
			parsed, err := parseThresholds(data)
			if err != nil {
				l.logger.WithError(err).WithField("path", p).Warn("Invalid threshold file, using defaults")
				break
			}
			tf = parsed
		}
	}
	b.Thresholds = resolveThresholds(tf, l.margin, l.overrides, l.logger)
}

func (l *Loader) loadMedians(b *Bundle) {
	b.Medians = map[string]float64{}
	if l.cfg.TrainingFile == "" {
		return
	}
	p := l.path(l.cfg.TrainingFile)
	medians, err := loadMedians(p)
	if err != nil {
		entry := l.logger.WithField("path", p)
		if !errors.Is(err, os.ErrNotExist) {
			entry = entry.WithError(err)
		}
		entry.Info("Training medians unavailable, imputing zero")
		return
	}
	b.Medians = medians
}

func (l *Loader) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(l.cfg.Dir, name)
}

func (l *Loader) paths(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, l.path(n))
	}
	return out
}
