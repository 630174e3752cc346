package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/gh-risk-server/internal/artifact"
	"github.com/gh-risk-server/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// sbpClassifier scores a vector by its systolic pressure: p = SBP / 300.
type sbpClassifier struct {
	sbpIndex int
	err      error
}

func (c *sbpClassifier) PredictProba(x []float64) ([]float64, error) {
	if c.err != nil {
		return nil, c.err
	}
	p := x[c.sbpIndex] / 300
	return []float64{1 - p, p}, nil
}

func (c *sbpClassifier) Classes() []string { return []string{"0", "1"} }
func (c *sbpClassifier) Width() int        { return len(domain.ProductionFeatures) }

func testBundle() *artifact.Bundle {
	th := domain.Thresholds{Operating: 0.45, Screen: 0.45, Priority: 0.48, Margin: 0.05}
	b := artifact.NewBundle(&sbpClassifier{sbpIndex: 2}, nil, domain.ProductionFeatures, th, nil)
	b.Model = artifact.ModelInfo{Type: "logistic", Name: "gh-test", Version: "1"}
	return b
}

func defaultConfig() domain.AssessmentConfig {
	return domain.AssessmentConfig{
		Policy:         domain.PolicyBinary,
		PrioritySource: domain.PriorityFromRules,
		BMIMax:         60,
		BatchWorkers:   2,
	}
}

func newService(t *testing.T, store domain.PredictionStore, cache domain.LatestCache, cfg domain.AssessmentConfig) *AssessmentService {
	t.Helper()
	registry := artifact.NewStaticRegistry(testBundle(), quietLogger())
	svc, err := NewAssessmentService(quietLogger(), registry, store, cache, cfg, domain.StoreConfig{
		Policy:             domain.StoreKeepHistory,
		HistoryLimit:       10,
		BreakerMaxFailures: 3,
		BreakerTimeout:     time.Minute,
	})
	require.NoError(t, err)
	return svc
}

func int64Ptr(v int64) *int64 { return &v }

// scenarioA has no risk factors.
func scenarioA(patientID *int64) domain.ClinicalInput {
	return domain.ClinicalInput{PatientID: patientID, Age: 30, BMI: 22, SystolicBP: 120, DiastolicBP: 75, HeartRate: 75}
}

// scenarioB trips every vital rule plus previous complications.
func scenarioB(patientID *int64) domain.ClinicalInput {
	return domain.ClinicalInput{
		PatientID: patientID, Age: 42, BMI: 36, SystolicBP: 145, DiastolicBP: 92, HeartRate: 80,
		PreviousComplications: 1,
	}
}

// memStore is an in-memory PredictionStore with switchable failure.
type memStore struct {
	mu     sync.Mutex
	rows   []*domain.Assessment
	nextID int64
	fail   bool
	saves  int
	policy domain.StorePolicy
}

func newMemStore() *memStore {
	return &memStore{policy: domain.StoreKeepHistory}
}

func (m *memStore) setFail(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = v
}

func (m *memStore) Save(_ context.Context, a *domain.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.fail {
		return errors.New("connection refused")
	}
	m.nextID++
	a.ID = m.nextID
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(m.nextID) * time.Second)
	a.CreatedAt = &now
	cp := *a
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memStore) Latest(ctx context.Context, patientID int64) (*domain.Assessment, error) {
	rows, _ := m.History(ctx, patientID, 1)
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0], nil
}

func (m *memStore) History(_ context.Context, patientID int64, limit int) ([]*domain.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Assessment
	for _, r := range m.rows {
		if *r.PatientID == patientID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Policy() domain.StorePolicy { return m.policy }
func (m *memStore) Close() error               { return nil }

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
