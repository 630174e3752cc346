// Package tier maps a calibrated probability onto a risk tier. A deployment runs exactly
// one Policy; the two are never mixed.
package tier

import (
	"fmt"

	"github.com/gh-risk-server/internal/domain"
)

// Decision is the outcome of tiering one probability.
type Decision struct {
	Tier domain.RiskTier
	// ScorePriority is set only by policies that derive priority from the score.
	ScorePriority *bool
}

// Policy assigns a tier. All comparisons are inclusive at the threshold.
type Policy interface {
	Name() domain.TierPolicy
	Classify(p float64, th domain.Thresholds) Decision
}

// New returns the policy with the given name.
func New(name domain.TierPolicy) (Policy, error) {
	switch name {
	case domain.PolicyBinary:
		return Binary{}, nil
	case domain.PolicyMargin:
		return Margin{}, nil
	default:
		return nil, fmt.Errorf("%w: tier policy %q", domain.ErrInvalidPolicy, name)
	}
}

// Binary is High when p ≥ screen threshold, else Low. Score priority is p ≥ priority threshold.
type Binary struct{}

// Name returns the policy name.
func (Binary) Name() domain.TierPolicy { return domain.PolicyBinary }

// Classify assigns High or Low.
func (Binary) Classify(p float64, th domain.Thresholds) Decision {
	t := domain.TierLow
	if p >= th.Screen {
		t = domain.TierHigh
	}
	priority := p >= th.Priority
	return Decision{Tier: t, ScorePriority: &priority}
}

// Margin is High when p ≥ T+m, Low when p ≤ T−m and Moderate in between. Priority is left
// to the rule engine.
type Margin struct{}

// Name returns the policy name.
func (Margin) Name() domain.TierPolicy { return domain.PolicyMargin }

// Classify assigns High, Moderate or Low.
func (Margin) Classify(p float64, th domain.Thresholds) Decision {
	switch {
	case p >= th.Operating+th.Margin:
		return Decision{Tier: domain.TierHigh}
	case p <= th.Operating-th.Margin:
		return Decision{Tier: domain.TierLow}
	default:
		return Decision{Tier: domain.TierModerate}
	}
}
