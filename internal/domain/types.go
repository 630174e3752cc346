// Package domain contains the core entities and types for gestational hypertension (GH)
// risk screening during antenatal care.
//
// A screening combines a calibrated classifier probability, mapped to a risk tier through
// operating-point thresholds, with deterministic clinical rules that explain why a patient
// should be triaged ahead of routine follow-up.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// RiskTier is the discrete screening outcome derived from a calibrated probability.
type RiskTier string

const (
	TierLow      RiskTier = "Low"
	TierModerate RiskTier = "Moderate"
	TierHigh     RiskTier = "High"
)

// TierPolicy selects how a probability is mapped to a RiskTier.
// A deployment runs exactly one policy.
type TierPolicy string

const (
	// PolicyBinary maps to High/Low with a screen threshold and derives a score-based
	// priority from a second, priority threshold.
	PolicyBinary TierPolicy = "binary"
	// PolicyMargin maps to High/Moderate/Low around a single threshold with a margin band.
	PolicyMargin TierPolicy = "margin"
)

// PrioritySource names the single source of truth for the top-level priority flag.
type PrioritySource string

const (
	PriorityFromRules PrioritySource = "rules"
	PriorityFromScore PrioritySource = "score"
)

// StorePolicy selects how predictions are persisted per patient.
type StorePolicy string

const (
	// StoreKeepLatest keeps one row per patient, replaced on every save.
	StoreKeepLatest StorePolicy = "latest"
	// StoreKeepHistory appends every prediction.
	StoreKeepHistory StorePolicy = "history"
)

// AssessmentSource records which surface produced a prediction.
type AssessmentSource string

const (
	SourceAPI   AssessmentSource = "api"
	SourceForm  AssessmentSource = "form"
	SourceMCP   AssessmentSource = "mcp"
	SourceBatch AssessmentSource = "batch"
)

// Sentinel errors for the screening pipeline. Callers match them with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrArtifactMissing     = errors.New("artifact missing")
	ErrArtifactInvalid     = errors.New("artifact invalid")
	ErrInferenceFailed     = errors.New("inference failed")
	ErrCalibrationDegraded = errors.New("calibration degraded")
	ErrPersistenceDegraded = errors.New("persistence degraded")
	ErrInvalidRiskTier     = errors.New("invalid risk tier")
	ErrInvalidPolicy       = errors.New("invalid policy")
)

// IsValid reports whether the tier is one of the three known tiers.
func (t RiskTier) IsValid() bool {
	switch t {
	case TierLow, TierModerate, TierHigh:
		return true
	default:
		return false
	}
}

// String returns the string representation of the tier.
func (t RiskTier) String() string {
	return string(t)
}

// ParseRiskTier parses a tier label case-insensitively.
func ParseRiskTier(s string) (RiskTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return TierLow, nil
	case "moderate":
		return TierModerate, nil
	case "high":
		return TierHigh, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRiskTier, s)
	}
}

// IsValid reports whether the policy is supported.
func (p TierPolicy) IsValid() bool {
	return p == PolicyBinary || p == PolicyMargin
}

// IsValid reports whether the priority source is supported.
func (p PrioritySource) IsValid() bool {
	return p == PriorityFromRules || p == PriorityFromScore
}

// IsValid reports whether the store policy is supported.
func (p StorePolicy) IsValid() bool {
	return p == StoreKeepLatest || p == StoreKeepHistory
}

// ParseTierPolicy parses a tier policy name.
func ParseTierPolicy(s string) (TierPolicy, error) {
	p := TierPolicy(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: tier policy %q", ErrInvalidPolicy, s)
	}
	return p, nil
}

// ParseStorePolicy parses a persistence policy name.
func ParseStorePolicy(s string) (StorePolicy, error) {
	p := StorePolicy(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: store policy %q", ErrInvalidPolicy, s)
	}
	return p, nil
}

// ParsePrioritySource parses a priority source name.
func ParsePrioritySource(s string) (PrioritySource, error) {
	p := PrioritySource(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: priority source %q", ErrInvalidPolicy, s)
	}
	return p, nil
}
