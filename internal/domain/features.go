package domain

// Canonical training feature names for the nine production inputs.
const (
	FeatureAge                   = "Age"
	FeatureBMI                   = "BMI"
	FeatureSystolicBP            = "Systolic BP"
	FeatureDiastolicBP           = "Diastolic BP"
	FeatureHeartRate             = "Heart Rate"
	FeaturePreviousComplications = "Previous Complications"
	FeaturePreexistingDiabetes   = "Preexisting Diabetes"
	FeatureGestationalDiabetes   = "Gestational Diabetes"
	FeatureMentalHealth          = "Mental Health"
)

// ProductionFeatures lists the feature names every artifact bundle must contain.
var ProductionFeatures = []string{
	FeatureAge,
	FeatureBMI,
	FeatureSystolicBP,
	FeatureDiastolicBP,
	FeaturePreviousComplications,
	FeaturePreexistingDiabetes,
	FeatureGestationalDiabetes,
	FeatureMentalHealth,
	FeatureHeartRate,
}

// FieldForFeature maps a training feature name to its input field name.
var FieldForFeature = map[string]string{
	FeatureAge:                   FieldAge,
	FeatureBMI:                   FieldBMI,
	FeatureSystolicBP:            FieldSystolicBP,
	FeatureDiastolicBP:           FieldDiastolicBP,
	FeatureHeartRate:             FieldHeartRate,
	FeaturePreviousComplications: FieldPreviousComplications,
	FeaturePreexistingDiabetes:   FieldPreexistingDiabetes,
	FeatureGestationalDiabetes:   FieldGestationalDiabetes,
	FeatureMentalHealth:          FieldMentalHealth,
}

// IsBinaryFeature reports whether the feature is a 0/1 comorbidity flag.
func IsBinaryFeature(name string) bool {
	switch name {
	case FeaturePreviousComplications, FeaturePreexistingDiabetes, FeatureGestationalDiabetes, FeatureMentalHealth:
		return true
	default:
		return false
	}
}
