// Package rules evaluates deterministic clinical priority rules over raw screening input.
// The rules run independently of the classifier and always in the same order.
package rules

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/domain"
)

// Rule is one clinical criterion. Evaluator returns the reason text when the rule fires.
type Rule struct {
	Code        string
	Name        string
	Description string
	Evaluator   func(in domain.ClinicalInput, c Cutoffs) (string, bool)
}

// Result is the outcome of evaluating every rule.
type Result struct {
	Priority  bool     `json:"priority"`
	Reasons   []string `json:"reasons"`
	Triggered []string `json:"triggered"`
}

// Engine evaluates the ordered rule set.
type Engine struct {
	logger *logrus.Logger
	rules  []Rule
}

// NewEngine creates a rule engine with the standard rule order.
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{
		logger: logger,
		rules:  standardRules(),
	}
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate applies every rule in order. Priority is true iff at least one rule fired.
func (e *Engine) Evaluate(in domain.ClinicalInput, c Cutoffs) Result {
	res := Result{Reasons: []string{}, Triggered: []string{}}
	for _, r := range e.rules {
		if reason, ok := r.Evaluator(in, c); ok {
			res.Reasons = append(res.Reasons, reason)
			res.Triggered = append(res.Triggered, r.Code)
		}
	}
	res.Priority = len(res.Reasons) > 0

	e.logger.WithFields(logrus.Fields{
		"priority":  res.Priority,
		"triggered": res.Triggered,
	}).Debug("Completed priority rule evaluation")

	return res
}

func standardRules() []Rule {
	return []Rule{
		{
			Code:        "SBP_HIGH",
			Name:        "Systolic hypertension",
			Description: "Systolic blood pressure at or above the high cut-off",
			Evaluator: func(in domain.ClinicalInput, c Cutoffs) (string, bool) {
				if in.SystolicBP >= c.SystolicHigh {
					return fmt.Sprintf("SBP ≥ %s (%s)", num(c.SystolicHigh), num(in.SystolicBP)), true
				}
				return "", false
			},
		},
		{
			Code:        "DBP_HIGH",
			Name:        "Diastolic hypertension",
			Description: "Diastolic blood pressure at or above the high cut-off",
			Evaluator: func(in domain.ClinicalInput, c Cutoffs) (string, bool) {
				if in.DiastolicBP >= c.DiastolicHigh {
					return fmt.Sprintf("DBP ≥ %s (%s)", num(c.DiastolicHigh), num(in.DiastolicBP)), true
				}
				return "", false
			},
		},
		{
			Code:        "BP_COMBINED",
			Name:        "Combined elevated pressure",
			Description: "Both systolic and diastolic pressures at or above the elevated cut-offs",
			Evaluator: func(in domain.ClinicalInput, c Cutoffs) (string, bool) {
				if in.SystolicBP >= c.CombinedSBP && in.DiastolicBP >= c.CombinedDBP {
					return fmt.Sprintf("SBP ≥ %s & DBP ≥ %s (%s/%s)",
						num(c.CombinedSBP), num(c.CombinedDBP), num(in.SystolicBP), num(in.DiastolicBP)), true
				}
				return "", false
			},
		},
		{
			Code:        "BMI_HIGH",
			Name:        "Obesity",
			Description: "Body mass index at or above the obesity cut-off",
			Evaluator: func(in domain.ClinicalInput, c Cutoffs) (string, bool) {
				if in.BMI >= c.BMIHigh {
					return fmt.Sprintf("BMI ≥ %s (%s)", num(c.BMIHigh), num(in.BMI)), true
				}
				return "", false
			},
		},
		{
			Code:        "AGE_RISK",
			Name:        "Maternal age",
			Description: "Maternal age strictly outside the low-risk band",
			Evaluator: func(in domain.ClinicalInput, c Cutoffs) (string, bool) {
				if in.Age < c.AgeLow || in.Age > c.AgeHigh {
					return fmt.Sprintf("Age high-risk (%s)", num(in.Age)), true
				}
				return "", false
			},
		},
		flagRule("PREV_COMPLICATIONS", "Previous complications", func(in domain.ClinicalInput) int { return in.PreviousComplications }),
		flagRule("PREEXISTING_DIABETES", "Pre-existing diabetes", func(in domain.ClinicalInput) int { return in.PreexistingDiabetes }),
		flagRule("GESTATIONAL_DIABETES", "Gestational diabetes", func(in domain.ClinicalInput) int { return in.GestationalDiabetes }),
		flagRule("MENTAL_HEALTH", "Diagnosed mental health condition", func(in domain.ClinicalInput) int { return in.MentalHealth }),
	}
}

func flagRule(code, reason string, get func(domain.ClinicalInput) int) Rule {
	return Rule{
		Code:        code,
		Name:        reason,
		Description: "Comorbidity flag set",
		Evaluator: func(in domain.ClinicalInput, _ Cutoffs) (string, bool) {
			if get(in) == 1 {
				return reason, true
			}
			return "", false
		},
	}
}

// num formats a measurement without trailing zeros, so 36 prints as "36" and 36.5 as "36.5".
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
