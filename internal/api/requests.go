package api

import (
	"github.com/gh-risk-server/internal/domain"
)

// predictRequest mirrors domain.ClinicalInput with pointers so absent vitals can be told
// apart from zero. Comorbidity flags default to 0.
type predictRequest struct {
	PatientID             *int64   `json:"patient_id"`
	Age                   *float64 `json:"age"`
	BMI                   *float64 `json:"bmi"`
	SystolicBP            *float64 `json:"systolic_bp"`
	DiastolicBP           *float64 `json:"diastolic_bp"`
	HeartRate             *float64 `json:"heart_rate"`
	PreviousComplications int      `json:"previous_complications"`
	PreexistingDiabetes   int      `json:"preexisting_diabetes"`
	GestationalDiabetes   int      `json:"gestational_diabetes"`
	MentalHealth          int      `json:"mental_health"`
}

func (r predictRequest) toInput() (domain.ClinicalInput, error) {
	var errs domain.ValidationErrors
	required := func(field string, v *float64) float64 {
		if v == nil {
			errs = append(errs, domain.NewValidationError(field, "is required", nil))
			return 0
		}
		return *v
	}

	in := domain.ClinicalInput{
		PatientID:             r.PatientID,
		Age:                   required(domain.FieldAge, r.Age),
		BMI:                   required(domain.FieldBMI, r.BMI),
		SystolicBP:            required(domain.FieldSystolicBP, r.SystolicBP),
		DiastolicBP:           required(domain.FieldDiastolicBP, r.DiastolicBP),
		HeartRate:             required(domain.FieldHeartRate, r.HeartRate),
		PreviousComplications: r.PreviousComplications,
		PreexistingDiabetes:   r.PreexistingDiabetes,
		GestationalDiabetes:   r.GestationalDiabetes,
		MentalHealth:          r.MentalHealth,
	}
	if len(errs) > 0 {
		return in, errs
	}
	return in, nil
}

type adviceRequest struct {
	AdviceText string `json:"advice_text"`
	Author     string `json:"author"`
}
