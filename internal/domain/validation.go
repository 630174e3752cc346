package domain

import (
	"fmt"
	"math"
)

// Default BMI ceiling; deployments may raise it through assessment.bmi_max.
const DefaultBMIMax = 60.0

type fieldRange struct {
	field    string
	min, max float64
}

// Validate checks every field of the input against its clinical range and returns all
// violations as ValidationErrors. A non-positive bmiMax selects DefaultBMIMax.
func (c ClinicalInput) Validate(bmiMax float64) error {
	if bmiMax <= 0 {
		bmiMax = DefaultBMIMax
	}

	var errs ValidationErrors

	if c.PatientID != nil && *c.PatientID <= 0 {
		errs = append(errs, NewValidationError("patient_id", "must be a positive integer", *c.PatientID))
	}

	ranges := []struct {
		fieldRange
		value float64
	}{
		{fieldRange{FieldAge, 10, 60}, c.Age},
		{fieldRange{FieldBMI, 10, bmiMax}, c.BMI},
		{fieldRange{FieldSystolicBP, 60, 250}, c.SystolicBP},
		{fieldRange{FieldDiastolicBP, 40, 150}, c.DiastolicBP},
		{fieldRange{FieldHeartRate, 40, 220}, c.HeartRate},
	}
	for _, r := range ranges {
		if math.IsNaN(r.value) || r.value < r.min || r.value > r.max {
			errs = append(errs, NewValidationError(r.field,
				fmt.Sprintf("must be between %g and %g", r.min, r.max), r.value))
		}
	}

	flags := []struct {
		field string
		value int
	}{
		{FieldPreviousComplications, c.PreviousComplications},
		{FieldPreexistingDiabetes, c.PreexistingDiabetes},
		{FieldGestationalDiabetes, c.GestationalDiabetes},
		{FieldMentalHealth, c.MentalHealth},
	}
	for _, f := range flags {
		if f.value != 0 && f.value != 1 {
			errs = append(errs, NewValidationError(f.field, "must be 0 or 1", f.value))
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
