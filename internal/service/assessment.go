// Package service orchestrates a screening: validate, build the feature vector, infer,
// tier, evaluate priority rules and persist.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/gh-risk-server/internal/artifact"
	"github.com/gh-risk-server/internal/domain"
	"github.com/gh-risk-server/internal/features"
	"github.com/gh-risk-server/internal/inference"
	"github.com/gh-risk-server/internal/rules"
	"github.com/gh-risk-server/internal/tier"
)

// ScoreDecimals is the precision of risk_score and raw_score in responses and storage.
const ScoreDecimals = 4

const maxHistoryLimit = 500

// cacheStripes bounds the per-patient write generations used to discard stale cache fills.
const cacheStripes = 64

// AssessmentService produces and retrieves GH risk assessments.
type AssessmentService struct {
	logger       *logrus.Logger
	registry     *artifact.Registry
	builder      *features.Builder
	inference    *inference.Engine
	policy       tier.Policy
	ruleEngine   *rules.Engine
	store        *ResilientStore
	cache        domain.LatestCache
	cfg          domain.AssessmentConfig
	historyLimit int

	// writes[pid%cacheStripes] advances after every committed save for that stripe.
	writes [cacheStripes]atomic.Uint64
}

// NewAssessmentService wires the pipeline. store and cache may be nil: without a store
// nothing is persisted and Latest always reports no assessment.
func NewAssessmentService(
	logger *logrus.Logger,
	registry *artifact.Registry,
	store domain.PredictionStore,
	cache domain.LatestCache,
	cfg domain.AssessmentConfig,
	storeCfg domain.StoreConfig,
) (*AssessmentService, error) {
	if registry == nil || registry.Current() == nil {
		return nil, fmt.Errorf("%w: no artifact bundle loaded", domain.ErrArtifactMissing)
	}
	policy, err := tier.New(cfg.Policy)
	if err != nil {
		return nil, err
	}
	if cfg.PrioritySource == "" {
		cfg.PrioritySource = domain.PriorityFromRules
	}
	if cfg.PrioritySource == domain.PriorityFromScore && policy.Name() == domain.PolicyMargin {
		return nil, fmt.Errorf("%w: priority source %q requires the binary policy", domain.ErrInvalidPolicy, cfg.PrioritySource)
	}
	if cfg.BMIMax <= 0 {
		cfg.BMIMax = domain.DefaultBMIMax
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 4
	}

	s := &AssessmentService{
		logger:       logger,
		registry:     registry,
		builder:      features.NewBuilder(logger),
		inference:    inference.NewEngine(logger),
		policy:       policy,
		ruleEngine:   rules.NewEngine(logger),
		cache:        cache,
		cfg:          cfg,
		historyLimit: storeCfg.HistoryLimit,
	}
	if store != nil {
		s.store = NewResilientStore(store, storeCfg, logger)
	}
	if s.historyLimit <= 0 {
		s.historyLimit = 50
	}

	logger.WithFields(logrus.Fields{
		"policy":          policy.Name(),
		"priority_source": cfg.PrioritySource,
		"bmi_max":         cfg.BMIMax,
		"persistence":     store != nil,
	}).Info("Assessment service configured")

	return s, nil
}

// Assess validates a screening request and scores it. Validation errors wrap
// domain.ErrInvalidInput and classifier failures wrap domain.ErrInferenceFailed. A failed
// save never fails the call; the result then has a nil CreatedAt.
func (s *AssessmentService) Assess(ctx context.Context, in domain.ClinicalInput, source domain.AssessmentSource) (*domain.Assessment, error) {
	if err := in.Validate(s.cfg.BMIMax); err != nil {
		return nil, err
	}
	bundle := s.registry.Current()
	vec, imputed := s.builder.Build(in, bundle)
	return s.score(ctx, bundle, vec, in, imputed, source)
}

// ScoreForm scores a loosely-typed form payload. Missing or unparseable values are
// replaced by defaults and reported in the result's Imputations instead of being rejected.
func (s *AssessmentService) ScoreForm(ctx context.Context, form map[string]any) (*domain.Assessment, error) {
	bundle := s.registry.Current()
	vec, in, imputed := s.builder.BuildLoose(form, bundle)
	return s.score(ctx, bundle, vec, in, imputed, domain.SourceForm)
}

func (s *AssessmentService) score(
	ctx context.Context,
	bundle *artifact.Bundle,
	vec features.Vector,
	in domain.ClinicalInput,
	imputed []domain.Imputation,
	source domain.AssessmentSource,
) (*domain.Assessment, error) {
	startTime := time.Now()

	res, err := s.inference.Infer(vec, bundle)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"patient_id":     in.PatientID,
			"bundle_version": bundle.Version,
		}).WithError(err).Error("Inference failed")
		return nil, err
	}

	decision := s.policy.Classify(res.Probability, bundle.Thresholds)
	ruleRes := s.ruleEngine.Evaluate(in, bundle.RuleCutoffs)

	priority := ruleRes.Priority
	if s.cfg.PrioritySource == domain.PriorityFromScore && decision.ScorePriority != nil {
		priority = *decision.ScorePriority
	}

	a := &domain.Assessment{
		PatientID:       in.PatientID,
		RiskClass:       decision.Tier,
		RiskScore:       domain.Round(res.Probability, ScoreDecimals),
		RawScore:        domain.Round(res.Raw, ScoreDecimals),
		Priority:        priority,
		PriorityByRules: ruleRes.Priority,
		PriorityByScore: decision.ScorePriority,
		PrioritySource:  s.cfg.PrioritySource,
		Reasons:         ruleRes.Reasons,
		Thresholds:      bundle.Thresholds.Named(s.policy.Name()),
		Policy:          s.policy.Name(),
		Calibrated:      res.Calibrated,
		ModelName:       bundle.Model.Name,
		ModelVersion:    bundle.Model.Version,
		Source:          source,
		Input:           in,
		Imputations:     imputed,
	}

	if a.HasPatientID() {
		s.persist(ctx, a)
	}

	s.logger.WithFields(logrus.Fields{
		"patient_id":      in.PatientID,
		"risk_class":      a.RiskClass,
		"risk_score":      a.RiskScore,
		"priority":        a.Priority,
		"reasons":         len(a.Reasons),
		"imputed":         len(imputed),
		"bundle_version":  bundle.Version,
		"source":          source,
		"persisted":       a.CreatedAt != nil,
		"processing_time": time.Since(startTime),
	}).Info("GH risk assessment completed")

	return a, nil
}

// persist saves a and drops the cached latest entry. Failures are logged and leave CreatedAt
// nil. The cache is refilled from the store on the next read, so overlapping saves for one
// patient can never leave the slower request's record cached.
func (s *AssessmentService) persist(ctx context.Context, a *domain.Assessment) {
	if s.store == nil {
		return
	}
	pid := *a.PatientID

	err := s.store.Save(ctx, a)
	if err != nil {
		a.ID = 0
		a.CreatedAt = nil
		s.logger.WithFields(logrus.Fields{
			"patient_id":    pid,
			"breaker_state": s.store.State(),
		}).WithError(err).Error("Failed to persist GH risk assessment")
	} else {
		s.writeStripe(pid).Add(1)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, pid); err != nil {
			s.logger.WithField("patient_id", pid).WithError(err).Warn("Failed to invalidate cached assessment")
		}
	}
}

func (s *AssessmentService) writeStripe(patientID int64) *atomic.Uint64 {
	return &s.writes[uint64(patientID)%cacheStripes]
}

// Latest returns the most recent stored assessment, or an error wrapping domain.ErrNotFound.
func (s *AssessmentService) Latest(ctx context.Context, patientID int64) (*domain.Assessment, error) {
	if patientID <= 0 {
		return nil, domain.NewValidationError("patient_id", "must be a positive integer", patientID)
	}
	if s.store == nil {
		return nil, fmt.Errorf("no assessment for patient %d: %w", patientID, domain.ErrNotFound)
	}

	if s.cache != nil {
		if a, err := s.cache.Get(ctx, patientID); err == nil {
			return a, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WithField("patient_id", patientID).WithError(err).Warn("Cache read failed, falling back to store")
		}
	}

	gen := s.writeStripe(patientID).Load()
	a, err := s.store.Latest(ctx, patientID)
	if err != nil {
		return nil, err
	}
	// A save that committed while we read may be newer than a; leave the slot empty.
	if s.cache != nil && s.writeStripe(patientID).Load() == gen {
		if err := s.cache.Set(ctx, a); err != nil {
			s.logger.WithField("patient_id", patientID).WithError(err).Warn("Failed to cache assessment")
		}
	}
	return a, nil
}

// Summary returns the patient-facing risk summary. A patient with no stored assessment gets
// HasAssessment=false rather than an error.
func (s *AssessmentService) Summary(ctx context.Context, patientID int64) (*domain.RiskSummary, error) {
	a, err := s.Latest(ctx, patientID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Summarize(nil), nil
	}
	if err != nil {
		return nil, err
	}
	return domain.Summarize(a), nil
}

// History lists stored assessments newest first. Keep-latest deployments return at most one.
func (s *AssessmentService) History(ctx context.Context, patientID int64, limit int) ([]*domain.Assessment, error) {
	if patientID <= 0 {
		return nil, domain.NewValidationError("patient_id", "must be a positive integer", patientID)
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = s.historyLimit
	}
	if s.store == nil {
		return []*domain.Assessment{}, nil
	}
	out, err := s.store.History(ctx, patientID, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*domain.Assessment{}
	}
	return out, nil
}

// BatchResult is the outcome for one input of a batch, at its original index.
type BatchResult struct {
	Index      int                `json:"index"`
	Assessment *domain.Assessment `json:"assessment,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// AssessBatch scores inputs concurrently with at most BatchWorkers in flight. A failing
// input is reported in its result; only context cancellation aborts the batch.
func (s *AssessmentService) AssessBatch(ctx context.Context, inputs []domain.ClinicalInput, source domain.AssessmentSource) ([]BatchResult, error) {
	results := make([]BatchResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.BatchWorkers)

	for i := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i].Index = i
			a, err := s.Assess(gctx, inputs[i], source)
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Assessment = a
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("batch scoring aborted: %w", err)
	}
	return results, nil
}

// Stats reports pipeline counters for operators.
type Stats struct {
	ImputedTotal   int64                 `json:"imputed_total"`
	Policy         domain.TierPolicy     `json:"policy"`
	PrioritySource domain.PrioritySource `json:"priority_source"`
	StorePolicy    domain.StorePolicy    `json:"store_policy,omitempty"`
	BreakerState   string                `json:"breaker_state,omitempty"`
}

// Stats returns the current counters.
func (s *AssessmentService) Stats() Stats {
	st := Stats{
		ImputedTotal:   s.builder.ImputedTotal(),
		Policy:         s.policy.Name(),
		PrioritySource: s.cfg.PrioritySource,
	}
	if s.store != nil {
		st.StorePolicy = s.store.Policy()
		st.BreakerState = s.store.State()
	}
	return st
}

// Registry exposes the artifact registry for reloads and inspection.
func (s *AssessmentService) Registry() *artifact.Registry {
	return s.registry
}
