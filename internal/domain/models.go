package domain

import (
	"math"
	"time"
)

// Input field names accepted at the API boundary. They are the keys of ClinicalInput.Fields.
const (
	FieldAge                   = "age"
	FieldBMI                   = "bmi"
	FieldSystolicBP            = "systolic_bp"
	FieldDiastolicBP           = "diastolic_bp"
	FieldHeartRate             = "heart_rate"
	FieldPreviousComplications = "previous_complications"
	FieldPreexistingDiabetes   = "preexisting_diabetes"
	FieldGestationalDiabetes   = "gestational_diabetes"
	FieldMentalHealth          = "mental_health"
)

// ClinicalInput is one screening request after boundary validation.
// Comorbidity flags are 0 or 1.
type ClinicalInput struct {
	PatientID             *int64  `json:"patient_id,omitempty"`
	Age                   float64 `json:"age"`
	BMI                   float64 `json:"bmi"`
	SystolicBP            float64 `json:"systolic_bp"`
	DiastolicBP           float64 `json:"diastolic_bp"`
	HeartRate             float64 `json:"heart_rate"`
	PreviousComplications int     `json:"previous_complications"`
	PreexistingDiabetes   int     `json:"preexisting_diabetes"`
	GestationalDiabetes   int     `json:"gestational_diabetes"`
	MentalHealth          int     `json:"mental_health"`
}

// Fields returns the nine production fields keyed by their input names.
func (c ClinicalInput) Fields() map[string]any {
	return map[string]any{
		FieldAge:                   c.Age,
		FieldBMI:                   c.BMI,
		FieldSystolicBP:            c.SystolicBP,
		FieldDiastolicBP:           c.DiastolicBP,
		FieldHeartRate:             c.HeartRate,
		FieldPreviousComplications: c.PreviousComplications,
		FieldPreexistingDiabetes:   c.PreexistingDiabetes,
		FieldGestationalDiabetes:   c.GestationalDiabetes,
		FieldMentalHealth:          c.MentalHealth,
	}
}

// HasPatient reports whether the input carries a patient identifier.
func (c ClinicalInput) HasPatient() bool {
	return c.PatientID != nil && *c.PatientID > 0
}

// Thresholds holds the operating points in effect for a prediction.
type Thresholds struct {
	// Operating is the single operating point T; the margin band is centred on it.
	Operating float64 `json:"threshold"`
	Screen    float64 `json:"screen_threshold"`
	Priority  float64 `json:"priority_threshold"`
	Margin    float64 `json:"margin"`
}

// Named returns the thresholds the given policy actually consults, keyed the way they are
// reported to callers.
func (t Thresholds) Named(policy TierPolicy) map[string]float64 {
	if policy == PolicyMargin {
		return map[string]float64{
			"threshold": t.Operating,
			"margin":    t.Margin,
		}
	}
	return map[string]float64{
		"screen":   t.Screen,
		"priority": t.Priority,
	}
}

// Imputation records a feature value that was not taken from the caller's input.
type Imputation struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
	Reason  string  `json:"reason"`
}

// Assessment is a completed screening, and the persisted prediction record.
type Assessment struct {
	ID              int64              `json:"id,omitempty"`
	PatientID       *int64             `json:"patient_id,omitempty"`
	RiskClass       RiskTier           `json:"risk_class"`
	RiskScore       float64            `json:"risk_score"`
	RawScore        float64            `json:"raw_score"`
	Priority        bool               `json:"priority"`
	PriorityByRules bool               `json:"priority_by_rules"`
	PriorityByScore *bool              `json:"priority_by_score"`
	PrioritySource  PrioritySource     `json:"priority_source"`
	Reasons         []string           `json:"reasons"`
	Thresholds      map[string]float64 `json:"thresholds"`
	Policy          TierPolicy         `json:"policy"`
	Calibrated      bool               `json:"calibrated"`
	ModelName       string             `json:"model_name,omitempty"`
	ModelVersion    string             `json:"model_version,omitempty"`
	Source          AssessmentSource   `json:"source,omitempty"`
	Input           ClinicalInput      `json:"input"`
	Imputations     []Imputation       `json:"imputations,omitempty"`
	CreatedAt       *time.Time         `json:"created_at"`
}

// HasPatientID reports whether the assessment can be persisted against a patient.
func (a *Assessment) HasPatientID() bool {
	return a.PatientID != nil && *a.PatientID > 0
}

// RiskSummary is the patient-facing view of the latest assessment.
// HasAssessment is false when the patient has never been screened.
type RiskSummary struct {
	HasAssessment bool      `json:"has_assessment"`
	RiskClass     *RiskTier `json:"risk_class,omitempty"`
	RiskScore     *float64  `json:"risk_score,omitempty"`
	Priority      *bool     `json:"priority,omitempty"`
	Reasons       []string  `json:"reasons"`
}

// Summarize converts an assessment into a RiskSummary. A nil assessment yields the
// explicit "no assessment yet" summary.
func Summarize(a *Assessment) *RiskSummary {
	if a == nil {
		return &RiskSummary{HasAssessment: false, Reasons: []string{}}
	}
	tier := a.RiskClass
	score := Round(a.RiskScore, 3)
	priority := a.Priority
	reasons := a.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return &RiskSummary{
		HasAssessment: true,
		RiskClass:     &tier,
		RiskScore:     &score,
		Priority:      &priority,
		Reasons:       reasons,
	}
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
