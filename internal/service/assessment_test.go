package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gh-risk-server/internal/artifact"
	"github.com/gh-risk-server/internal/cache"
	"github.com/gh-risk-server/internal/domain"
	"github.com/gh-risk-server/internal/repository"
)

func TestAssess_ScenarioA_NoRiskFactors(t *testing.T) {
	// Arrange
	svc := newService(t, nil, nil, defaultConfig())

	// Act
	a, err := svc.Assess(context.Background(), scenarioA(nil), domain.SourceAPI)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{}, a.Reasons)
	assert.False(t, a.Priority)
	assert.False(t, a.PriorityByRules)
	assert.Equal(t, domain.TierLow, a.RiskClass)
	assert.Equal(t, 0.4, a.RiskScore)
	assert.Nil(t, a.CreatedAt, "anonymous requests are not persisted")
	assert.Equal(t, map[string]float64{"screen": 0.45, "priority": 0.48}, a.Thresholds)
	assert.Equal(t, "gh-test", a.ModelName)
}

func TestAssess_ScenarioB_AllVitalRules(t *testing.T) {
	svc := newService(t, nil, nil, defaultConfig())

	a, err := svc.Assess(context.Background(), scenarioB(nil), domain.SourceAPI)

	require.NoError(t, err)
	assert.Equal(t, []string{
		"SBP ≥ 140 (145)",
		"DBP ≥ 90 (92)",
		"SBP ≥ 130 & DBP ≥ 85 (145/92)",
		"BMI ≥ 35 (36)",
		"Age high-risk (42)",
		"Previous complications",
	}, a.Reasons)
	assert.True(t, a.Priority)
	assert.Equal(t, domain.TierHigh, a.RiskClass)
	assert.Equal(t, 0.4833, a.RiskScore)
	require.NotNil(t, a.PriorityByScore)
	assert.True(t, *a.PriorityByScore)
	assert.Equal(t, domain.PriorityFromRules, a.PrioritySource)
}

func TestAssess_ScenarioC_UnknownPatientSummary(t *testing.T) {
	svc := newService(t, newMemStore(), nil, defaultConfig())

	summary, err := svc.Summary(context.Background(), 12345)

	require.NoError(t, err)
	assert.False(t, summary.HasAssessment)
	assert.Nil(t, summary.RiskClass)
	assert.Equal(t, []string{}, summary.Reasons)
}

func TestAssess_ValidationError(t *testing.T) {
	svc := newService(t, nil, nil, defaultConfig())
	in := scenarioA(nil)
	in.Age = 5
	in.MentalHealth = 2

	_, err := svc.Assess(context.Background(), in, domain.SourceAPI)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	var verrs domain.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)
}

func TestAssess_InferenceFailure(t *testing.T) {
	b := testBundle()
	b.Classifier = &sbpClassifier{err: errors.New("shape mismatch")}
	registry := artifact.NewStaticRegistry(b, quietLogger())
	svc, err := NewAssessmentService(quietLogger(), registry, nil, nil, defaultConfig(), domain.StoreConfig{})
	require.NoError(t, err)

	_, err = svc.Assess(context.Background(), scenarioA(nil), domain.SourceAPI)

	assert.True(t, errors.Is(err, domain.ErrInferenceFailed))
}

func TestAssess_Deterministic(t *testing.T) {
	svc := newService(t, nil, nil, defaultConfig())

	first, err := svc.Assess(context.Background(), scenarioB(nil), domain.SourceAPI)
	require.NoError(t, err)
	second, err := svc.Assess(context.Background(), scenarioB(nil), domain.SourceAPI)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAssess_PersistenceDegradation(t *testing.T) {
	ctx := context.Background()
	healthy := newMemStore()
	broken := newMemStore()
	broken.setFail(true)

	ok, err := newService(t, healthy, nil, defaultConfig()).Assess(ctx, scenarioB(int64Ptr(7)), domain.SourceAPI)
	require.NoError(t, err)
	degraded, err := newService(t, broken, nil, defaultConfig()).Assess(ctx, scenarioB(int64Ptr(7)), domain.SourceAPI)
	require.NoError(t, err, "a failed save never fails the request")

	require.NotNil(t, ok.CreatedAt)
	assert.Nil(t, degraded.CreatedAt)
	assert.Zero(t, degraded.ID)

	ok.ID, ok.CreatedAt = 0, nil
	assert.Equal(t, ok, degraded, "all other fields are unaffected")
}

func TestAssess_BreakerStopsCallingFailingStore(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.setFail(true)
	svc := newService(t, store, nil, defaultConfig())

	for i := 0; i < 5; i++ {
		_, err := svc.Assess(ctx, scenarioA(int64Ptr(1)), domain.SourceAPI)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, store.saveCount(), "breaker opens after three consecutive failures")
	assert.Equal(t, "open", svc.Stats().BreakerState)
}

func TestAssess_PrioritySourceScore(t *testing.T) {
	cfg := defaultConfig()
	cfg.PrioritySource = domain.PriorityFromScore
	svc := newService(t, nil, nil, cfg)
	in := scenarioA(nil)
	in.SystolicBP = 146 // p = 0.4867, over the priority threshold
	in.DiastolicBP = 70

	a, err := svc.Assess(context.Background(), in, domain.SourceAPI)

	require.NoError(t, err)
	assert.True(t, a.Priority)
	assert.True(t, a.PriorityByRules, "SBP ≥ 140 still fires")
	assert.Equal(t, domain.PriorityFromScore, a.PrioritySource)

	in.SystolicBP = 138 // p = 0.46: screened High but not score priority
	a, err = svc.Assess(context.Background(), in, domain.SourceAPI)
	require.NoError(t, err)
	assert.Equal(t, domain.TierHigh, a.RiskClass)
	assert.False(t, a.Priority)
	assert.False(t, a.PriorityByRules)
}

func TestAssess_MarginPolicy(t *testing.T) {
	cfg := defaultConfig()
	cfg.Policy = domain.PolicyMargin
	svc := newService(t, nil, nil, cfg)

	tests := []struct {
		sbp  float64
		want domain.RiskTier
	}{
		{90, domain.TierLow},
		{135, domain.TierModerate},
		{160, domain.TierHigh},
	}

	for _, tt := range tests {
		in := scenarioA(nil)
		in.SystolicBP = tt.sbp

		a, err := svc.Assess(context.Background(), in, domain.SourceAPI)

		require.NoError(t, err)
		assert.Equal(t, tt.want, a.RiskClass, "sbp=%v", tt.sbp)
		assert.Nil(t, a.PriorityByScore)
		assert.Equal(t, map[string]float64{"threshold": 0.45, "margin": 0.05}, a.Thresholds)
	}
}

func TestNewAssessmentService_RejectsScorePriorityUnderMargin(t *testing.T) {
	cfg := defaultConfig()
	cfg.Policy = domain.PolicyMargin
	cfg.PrioritySource = domain.PriorityFromScore
	registry := artifact.NewStaticRegistry(testBundle(), quietLogger())

	_, err := NewAssessmentService(quietLogger(), registry, nil, nil, cfg, domain.StoreConfig{})

	assert.True(t, errors.Is(err, domain.ErrInvalidPolicy))
}

func TestLatestAndHistory(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	lru := cache.NewMemoryCache(16, 0, quietLogger())
	svc := newService(t, store, lru, defaultConfig())

	_, err := svc.Latest(ctx, 3)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = svc.Assess(ctx, scenarioA(int64Ptr(3)), domain.SourceAPI)
	require.NoError(t, err)
	saved, err := svc.Assess(ctx, scenarioB(int64Ptr(3)), domain.SourceMCP)
	require.NoError(t, err)

	latest, err := svc.Latest(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, latest.ID)
	assert.Equal(t, domain.SourceMCP, latest.Source)

	history, err := svc.History(ctx, 3, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.TierHigh, history[0].RiskClass)

	summary, err := svc.Summary(ctx, 3)
	require.NoError(t, err)
	assert.True(t, summary.HasAssessment)
	assert.Equal(t, 0.483, *summary.RiskScore)

	_, err = svc.Latest(ctx, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestScoreForm(t *testing.T) {
	svc := newService(t, newMemStore(), nil, defaultConfig())
	form := map[string]any{
		"patient_id":             "8",
		"age":                    "42",
		"bmi":                    "",
		"systolic_bp":            "145",
		"diastolic_bp":           92,
		"previous_complications": "yes",
		"mental_health":          "no",
	}

	a, err := svc.ScoreForm(context.Background(), form)

	require.NoError(t, err)
	require.NotNil(t, a.PatientID)
	assert.Equal(t, int64(8), *a.PatientID)
	assert.Equal(t, domain.SourceForm, a.Source)
	assert.Equal(t, 26.0, a.Input.BMI, "blank BMI takes the conservative default")
	assert.Equal(t, 1, a.Input.PreviousComplications)
	assert.Equal(t, 0, a.Input.MentalHealth)
	assert.NotEmpty(t, a.Imputations)
	assert.NotNil(t, a.CreatedAt)
}

func TestAssessBatch(t *testing.T) {
	svc := newService(t, nil, nil, defaultConfig())
	bad := scenarioA(nil)
	bad.SystolicBP = 20
	inputs := []domain.ClinicalInput{scenarioA(nil), bad, scenarioB(nil)}

	results, err := svc.AssessBatch(context.Background(), inputs, domain.SourceBatch)

	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	assert.Equal(t, domain.TierLow, results[0].Assessment.RiskClass)
	assert.Nil(t, results[1].Assessment)
	assert.Contains(t, results[1].Error, "systolic_bp")
	assert.Equal(t, domain.TierHigh, results[2].Assessment.RiskClass)
	assert.Equal(t, domain.SourceBatch, results[2].Assessment.Source)
}

func TestAssessBatch_Cancelled(t *testing.T) {
	svc := newService(t, nil, nil, defaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.AssessBatch(ctx, []domain.ClinicalInput{scenarioA(nil)}, domain.SourceBatch)

	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAssessBatch_PersistsEveryInputToSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "predictions.db"), domain.StoreKeepHistory, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := defaultConfig()
	cfg.BatchWorkers = 8
	svc := newService(t, store, cache.NewMemoryCache(64, 0, quietLogger()), cfg)

	const total, patients = 400, 20
	inputs := make([]domain.ClinicalInput, total)
	for i := range inputs {
		inputs[i] = scenarioA(int64Ptr(int64(i%patients + 1)))
	}

	results, err := svc.AssessBatch(ctx, inputs, domain.SourceBatch)
	require.NoError(t, err)

	unsaved := 0
	for _, r := range results {
		require.Empty(t, r.Error)
		if r.Assessment.CreatedAt == nil {
			unsaved++
		}
	}
	assert.Zero(t, unsaved)
	assert.Equal(t, "closed", svc.store.State())

	history, err := svc.History(ctx, 1, maxHistoryLimit)
	require.NoError(t, err)
	assert.Len(t, history, total/patients)
}

// slowAckStore commits its first save immediately but holds the acknowledgement until released.
type slowAckStore struct {
	*memStore
	held      atomic.Bool
	committed chan struct{}
	release   chan struct{}
}

func (s *slowAckStore) Save(ctx context.Context, a *domain.Assessment) error {
	err := s.memStore.Save(ctx, a)
	if s.held.CompareAndSwap(false, true) {
		close(s.committed)
		<-s.release
	}
	return err
}

func TestLatest_OverlappingSavesServeNewestRecord(t *testing.T) {
	ctx := context.Background()
	store := &slowAckStore{memStore: newMemStore(), committed: make(chan struct{}), release: make(chan struct{})}
	svc := newService(t, store, cache.NewMemoryCache(16, 0, quietLogger()), defaultConfig())

	first := make(chan *domain.Assessment)
	go func() {
		a, err := svc.Assess(ctx, scenarioA(int64Ptr(9)), domain.SourceAPI)
		assert.NoError(t, err)
		first <- a
	}()
	<-store.committed

	second, err := svc.Assess(ctx, scenarioB(int64Ptr(9)), domain.SourceAPI)
	require.NoError(t, err)
	warm, err := svc.Latest(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, second.ID, warm.ID)

	close(store.release)
	older := <-first
	require.Less(t, older.ID, second.ID)

	latest, err := svc.Latest(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Len(t, latest.Reasons, 6)
}

// racingReadStore runs onLatest after reading, simulating a save that commits mid-read.
type racingReadStore struct {
	*memStore
	onLatest func()
}

func (s *racingReadStore) Latest(ctx context.Context, patientID int64) (*domain.Assessment, error) {
	a, err := s.memStore.Latest(ctx, patientID)
	if hook := s.onLatest; hook != nil {
		s.onLatest = nil
		hook()
	}
	return a, err
}

func TestLatest_DoesNotCacheReadOverlappingSave(t *testing.T) {
	ctx := context.Background()
	store := &racingReadStore{memStore: newMemStore()}
	lru := cache.NewMemoryCache(16, 0, quietLogger())
	svc := newService(t, store, lru, defaultConfig())

	old, err := svc.Assess(ctx, scenarioA(int64Ptr(4)), domain.SourceAPI)
	require.NoError(t, err)

	var newer *domain.Assessment
	store.onLatest = func() {
		newer, err = svc.Assess(ctx, scenarioB(int64Ptr(4)), domain.SourceAPI)
		require.NoError(t, err)
	}

	stale, err := svc.Latest(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, old.ID, stale.ID)

	_, err = lru.Get(ctx, 4)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "stale read must not be cached")

	latest, err := svc.Latest(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
}
