package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"

	"github.com/gh-risk-server/internal/domain"
)

// inputFormat picks the batch format from an explicit flag or the file extension.
func inputFormat(flag, path string) (string, error) {
	if flag != "" && flag != "auto" {
		switch flag {
		case "csv", "json":
			return flag, nil
		}
		return "", fmt.Errorf("unsupported format %q (want csv or json)", flag)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json", nil
	case ".csv", "":
		return "csv", nil
	}
	return "", fmt.Errorf("cannot infer format from %q; pass --format", path)
}

// readInputs decodes a batch of screening inputs. JSON must be an array of request
// objects. CSV needs a header row naming the input fields; patient_id is optional and
// a blank cell leaves it unset.
func readInputs(r io.Reader, format string) ([]domain.ClinicalInput, error) {
	if format == "json" {
		var inputs []domain.ClinicalInput
		if err := json.NewDecoder(r).Decode(&inputs); err != nil {
			return nil, fmt.Errorf("decoding JSON batch: %w", err)
		}
		return inputs, nil
	}
	return readCSV(r)
}

func readCSV(r io.Reader) ([]domain.ClinicalInput, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty CSV batch")
		}
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, f := range []string{domain.FieldAge, domain.FieldBMI, domain.FieldSystolicBP, domain.FieldDiastolicBP, domain.FieldHeartRate} {
		if _, ok := cols[f]; !ok {
			return nil, fmt.Errorf("CSV header is missing column %q", f)
		}
	}

	var inputs []domain.ClinicalInput
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		in, err := parseRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func parseRecord(rec []string, cols map[string]int) (domain.ClinicalInput, error) {
	var in domain.ClinicalInput
	cell := func(name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		v := strings.TrimSpace(rec[i])
		return v, v != ""
	}
	num := func(name string, dst *float64) error {
		v, ok := cell(name)
		if !ok {
			return fmt.Errorf("%s is required", name)
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", name, v)
		}
		*dst = f
		return nil
	}
	flag := func(name string, dst *int) error {
		v, ok := cell(name)
		if !ok {
			return nil
		}
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not an integer", name, v)
		}
		*dst = n
		return nil
	}

	if v, ok := cell("patient_id"); ok {
		id, err := cast.ToInt64E(v)
		if err != nil {
			return in, fmt.Errorf("patient_id: %q is not an integer", v)
		}
		in.PatientID = &id
	}
	vitals := []struct {
		name string
		dst  *float64
	}{
		{domain.FieldAge, &in.Age},
		{domain.FieldBMI, &in.BMI},
		{domain.FieldSystolicBP, &in.SystolicBP},
		{domain.FieldDiastolicBP, &in.DiastolicBP},
		{domain.FieldHeartRate, &in.HeartRate},
	}
	for _, v := range vitals {
		if err := num(v.name, v.dst); err != nil {
			return in, err
		}
	}

	flags := []struct {
		name string
		dst  *int
	}{
		{domain.FieldPreviousComplications, &in.PreviousComplications},
		{domain.FieldPreexistingDiabetes, &in.PreexistingDiabetes},
		{domain.FieldGestationalDiabetes, &in.GestationalDiabetes},
		{domain.FieldMentalHealth, &in.MentalHealth},
	}
	for _, f := range flags {
		if err := flag(f.name, f.dst); err != nil {
			return in, err
		}
	}
	return in, nil
}
