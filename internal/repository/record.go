// Package repository persists screening outcomes. Each backend implements both storage
// policies: keep-latest upserts one row per patient into patient_risk, keep-history appends
// to gh_predictions.
package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gh-risk-server/internal/domain"
)

// DefaultHistoryLimit caps History when the caller passes a non-positive limit.
const DefaultHistoryLimit = 50

const (
	latestTable  = "patient_risk"
	historyTable = "gh_predictions"
)

const selectColumns = `id, patient_id, risk_class, risk_score, raw_score, priority,
	priority_by_rules, priority_by_score, priority_source, reasons, thresholds, policy,
	calibrated, model_name, model_version, source, input, created_at`

const insertColumns = `patient_id, risk_class, risk_score, raw_score, priority,
	priority_by_rules, priority_by_score, priority_source, reasons, thresholds, policy,
	calibrated, model_name, model_version, source, input`

// tableFor returns the table backing a storage policy.
func tableFor(policy domain.StorePolicy) (string, error) {
	switch policy {
	case domain.StoreKeepLatest:
		return latestTable, nil
	case domain.StoreKeepHistory:
		return historyTable, nil
	default:
		return "", fmt.Errorf("%w: store policy %q", domain.ErrInvalidPolicy, policy)
	}
}

// record is the row shape shared by both backends. Reasons, thresholds and the input
// snapshot are JSON text (JSONB in PostgreSQL).
type record struct {
	ID              int64
	PatientID       int64
	RiskClass       string
	RiskScore       float64
	RawScore        float64
	Priority        bool
	PriorityByRules bool
	PriorityByScore *bool
	PrioritySource  string
	Reasons         string
	Thresholds      string
	Policy          string
	Calibrated      bool
	ModelName       string
	ModelVersion    string
	Source          string
	Input           string
	CreatedAt       time.Time
}

func toRecord(a *domain.Assessment) (*record, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil assessment", domain.ErrInvalidInput)
	}
	if !a.HasPatientID() {
		return nil, fmt.Errorf("%w: assessment has no patient id", domain.ErrInvalidInput)
	}

	reasons := a.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	reasonsJSON, err := json.Marshal(reasons)
	if err != nil {
		return nil, fmt.Errorf("encoding reasons: %w", err)
	}
	thresholdsJSON, err := json.Marshal(a.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("encoding thresholds: %w", err)
	}
	inputJSON, err := json.Marshal(a.Input)
	if err != nil {
		return nil, fmt.Errorf("encoding input snapshot: %w", err)
	}

	return &record{
		PatientID:       *a.PatientID,
		RiskClass:       string(a.RiskClass),
		RiskScore:       a.RiskScore,
		RawScore:        a.RawScore,
		Priority:        a.Priority,
		PriorityByRules: a.PriorityByRules,
		PriorityByScore: a.PriorityByScore,
		PrioritySource:  string(a.PrioritySource),
		Reasons:         string(reasonsJSON),
		Thresholds:      string(thresholdsJSON),
		Policy:          string(a.Policy),
		Calibrated:      a.Calibrated,
		ModelName:       a.ModelName,
		ModelVersion:    a.ModelVersion,
		Source:          string(a.Source),
		Input:           string(inputJSON),
	}, nil
}

// args returns the values for insertColumns, in order.
func (r *record) args() []any {
	return []any{
		r.PatientID, r.RiskClass, r.RiskScore, r.RawScore, r.Priority,
		r.PriorityByRules, r.PriorityByScore, r.PrioritySource, r.Reasons, r.Thresholds, r.Policy,
		r.Calibrated, r.ModelName, r.ModelVersion, r.Source, r.Input,
	}
}

func (r *record) assessment() (*domain.Assessment, error) {
	a := &domain.Assessment{
		ID:              r.ID,
		RiskClass:       domain.RiskTier(r.RiskClass),
		RiskScore:       r.RiskScore,
		RawScore:        r.RawScore,
		Priority:        r.Priority,
		PriorityByRules: r.PriorityByRules,
		PriorityByScore: r.PriorityByScore,
		PrioritySource:  domain.PrioritySource(r.PrioritySource),
		Policy:          domain.TierPolicy(r.Policy),
		Calibrated:      r.Calibrated,
		ModelName:       r.ModelName,
		ModelVersion:    r.ModelVersion,
		Source:          domain.AssessmentSource(r.Source),
	}
	pid := r.PatientID
	a.PatientID = &pid
	created := r.CreatedAt
	a.CreatedAt = &created

	if err := json.Unmarshal([]byte(r.Reasons), &a.Reasons); err != nil {
		return nil, fmt.Errorf("decoding reasons: %w", err)
	}
	if a.Reasons == nil {
		a.Reasons = []string{}
	}
	if len(r.Thresholds) > 0 {
		if err := json.Unmarshal([]byte(r.Thresholds), &a.Thresholds); err != nil {
			return nil, fmt.Errorf("decoding thresholds: %w", err)
		}
	}
	if len(r.Input) > 0 {
		if err := json.Unmarshal([]byte(r.Input), &a.Input); err != nil {
			return nil, fmt.Errorf("decoding input snapshot: %w", err)
		}
	}
	return a, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
