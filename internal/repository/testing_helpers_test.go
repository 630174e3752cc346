package repository

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testAssessment(patientID int64, tier domain.RiskTier, score float64) *domain.Assessment {
	byScore := score >= 0.26
	return &domain.Assessment{
		PatientID:       &patientID,
		RiskClass:       tier,
		RiskScore:       score,
		RawScore:        score,
		Priority:        true,
		PriorityByRules: true,
		PriorityByScore: &byScore,
		PrioritySource:  domain.PriorityFromRules,
		Reasons:         []string{"SBP ≥ 140 (145)", "Previous complications"},
		Thresholds:      map[string]float64{"screen": 0.03, "priority": 0.26},
		Policy:          domain.PolicyBinary,
		Calibrated:      true,
		ModelName:       "gh-logreg",
		ModelVersion:    "2024.1",
		Source:          domain.SourceAPI,
		Input: domain.ClinicalInput{
			Age: 42, BMI: 36, SystolicBP: 145, DiastolicBP: 92, HeartRate: 80,
			PreviousComplications: 1,
		},
	}
}

// tick returns a clock that advances one millisecond per call.
func tick(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}
