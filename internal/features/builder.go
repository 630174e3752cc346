// Package features turns clinical input into the fixed-order numeric vector the classifier
// was trained on.
package features

import (
	"math"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/gh-risk-server/internal/artifact"
	"github.com/gh-risk-server/internal/domain"
)

// Imputation reasons.
const (
	ReasonMedian       = "training_median"
	ReasonZero         = "zero"
	ReasonConservative = "conservative_default"
	ReasonMissingFlag  = "missing_flag"
)

// ConservativeDefaults replace numeric form fields that are missing or unparseable.
var ConservativeDefaults = map[string]float64{
	domain.FieldAge:         28,
	domain.FieldBMI:         26,
	domain.FieldSystolicBP:  120,
	domain.FieldDiastolicBP: 80,
	domain.FieldHeartRate:   80,
}

var truthy = map[string]bool{"1": true, "true": true, "t": true, "yes": true, "y": true}

// Vector is a feature vector; Vector[i] corresponds to Bundle.FeatureOrder[i].
type Vector []float64

// Builder builds feature vectors and counts imputed values.
type Builder struct {
	logger  *logrus.Logger
	imputed atomic.Int64
}

// NewBuilder creates a feature vector builder.
func NewBuilder(logger *logrus.Logger) *Builder {
	return &Builder{logger: logger}
}

// ImputedTotal returns the number of feature values imputed since start.
func (b *Builder) ImputedTotal() int64 {
	return b.imputed.Load()
}

// Build maps a validated input onto the bundle's feature order.
func (b *Builder) Build(in domain.ClinicalInput, bundle *artifact.Bundle) (Vector, []domain.Imputation) {
	vec, imputed := b.assemble(featureValues(in), bundle)
	b.report(in.PatientID, imputed)
	return vec, imputed
}

// BuildLoose coerces a loosely-typed form payload and builds its vector. It never fails:
// flags become 1 only for a recognised truthy value, and numeric fields that are missing or
// unparseable take their conservative default. The coerced input is returned for rule
// evaluation and persistence.
func (b *Builder) BuildLoose(form map[string]any, bundle *artifact.Bundle) (Vector, domain.ClinicalInput, []domain.Imputation) {
	var (
		in      domain.ClinicalInput
		imputed []domain.Imputation
	)

	if raw, ok := lookup(form, "patient_id", ""); ok {
		if id, err := cast.ToInt64E(raw); err == nil && id > 0 {
			in.PatientID = &id
		}
	}

	num := func(field, feature string) float64 {
		raw, ok := lookup(form, field, feature)
		if ok {
			if v, ok := toFloat(raw); ok {
				return v
			}
		}
		def := ConservativeDefaults[field]
		imputed = append(imputed, domain.Imputation{Feature: feature, Value: def, Reason: ReasonConservative})
		return def
	}
	flag := func(field, feature string) int {
		raw, ok := lookup(form, field, feature)
		if !ok {
			imputed = append(imputed, domain.Imputation{Feature: feature, Value: 0, Reason: ReasonMissingFlag})
			return 0
		}
		if CoerceBool(raw) {
			return 1
		}
		return 0
	}

	in.Age = num(domain.FieldAge, domain.FeatureAge)
	in.BMI = num(domain.FieldBMI, domain.FeatureBMI)
	in.SystolicBP = num(domain.FieldSystolicBP, domain.FeatureSystolicBP)
	in.DiastolicBP = num(domain.FieldDiastolicBP, domain.FeatureDiastolicBP)
	in.HeartRate = num(domain.FieldHeartRate, domain.FeatureHeartRate)
	in.PreviousComplications = flag(domain.FieldPreviousComplications, domain.FeaturePreviousComplications)
	in.PreexistingDiabetes = flag(domain.FieldPreexistingDiabetes, domain.FeaturePreexistingDiabetes)
	in.GestationalDiabetes = flag(domain.FieldGestationalDiabetes, domain.FeatureGestationalDiabetes)
	in.MentalHealth = flag(domain.FieldMentalHealth, domain.FeatureMentalHealth)

	vec, fill := b.assemble(featureValues(in), bundle)
	imputed = append(imputed, fill...)
	b.report(in.PatientID, imputed)
	return vec, in, imputed
}

// CoerceBool reports whether v is a recognised truthy value: boolean true, numeric 1, or one
// of "1", "true", "t", "yes", "y" in any case.
func CoerceBool(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return truthy[strings.ToLower(strings.TrimSpace(t))]
	}
	f, err := cast.ToFloat64E(v)
	return err == nil && f == 1
}

func featureValues(in domain.ClinicalInput) map[string]float64 {
	return map[string]float64{
		domain.FeatureAge:                   in.Age,
		domain.FeatureBMI:                   in.BMI,
		domain.FeatureSystolicBP:            in.SystolicBP,
		domain.FeatureDiastolicBP:           in.DiastolicBP,
		domain.FeatureHeartRate:             in.HeartRate,
		domain.FeaturePreviousComplications: float64(in.PreviousComplications),
		domain.FeaturePreexistingDiabetes:   float64(in.PreexistingDiabetes),
		domain.FeatureGestationalDiabetes:   float64(in.GestationalDiabetes),
		domain.FeatureMentalHealth:          float64(in.MentalHealth),
	}
}

func (b *Builder) assemble(values map[string]float64, bundle *artifact.Bundle) (Vector, []domain.Imputation) {
	vec := make(Vector, bundle.Width())
	var imputed []domain.Imputation
	for i, name := range bundle.FeatureOrder {
		if v, ok := values[name]; ok {
			vec[i] = v
			continue
		}
		if m, ok := bundle.Median(name); ok {
			vec[i] = m
			imputed = append(imputed, domain.Imputation{Feature: name, Value: m, Reason: ReasonMedian})
			continue
		}
		imputed = append(imputed, domain.Imputation{Feature: name, Value: 0, Reason: ReasonZero})
	}
	return vec, imputed
}

func (b *Builder) report(patientID *int64, imputed []domain.Imputation) {
	if len(imputed) == 0 {
		return
	}
	b.imputed.Add(int64(len(imputed)))

	names := make([]string, 0, len(imputed))
	for _, im := range imputed {
		names = append(names, im.Feature+"="+im.Reason)
	}
	fields := logrus.Fields{
		"imputed_count": len(imputed),
		"imputed":       names,
	}
	if patientID != nil {
		fields["patient_id"] = *patientID
	}
	b.logger.WithFields(fields).Warn("Imputed feature values")
}

// lookup finds a form value by input field name, then by training feature name.
// Empty strings count as absent.
func lookup(form map[string]any, field, feature string) (any, bool) {
	for _, k := range []string{field, feature} {
		if k == "" {
			continue
		}
		v, ok := form[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
