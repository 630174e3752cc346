package domain

import (
	"errors"
	"testing"
)

func TestRiskTierConstants(t *testing.T) {
	tests := []struct {
		name     string
		value    RiskTier
		expected string
	}{
		{"Low", TierLow, "Low"},
		{"Moderate", TierModerate, "Moderate"},
		{"High", TierHigh, "High"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value.String() != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, tt.value.String())
			}
			if !tt.value.IsValid() {
				t.Errorf("Expected %s to be valid", tt.value)
			}
		})
	}

	if RiskTier("Severe").IsValid() {
		t.Errorf("Expected unknown tier to be invalid")
	}
}

func TestParseRiskTier(t *testing.T) {
	tests := []struct {
		input    string
		expected RiskTier
		wantErr  bool
	}{
		{"high", TierHigh, false},
		{" Moderate ", TierModerate, false},
		{"LOW", TierLow, false},
		{"critical", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseRiskTier(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRiskTier) {
					t.Errorf("Expected ErrInvalidRiskTier, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestParsePolicies(t *testing.T) {
	if p, err := ParseTierPolicy("Margin"); err != nil || p != PolicyMargin {
		t.Errorf("Expected margin policy, got %q (%v)", p, err)
	}
	if _, err := ParseTierPolicy("three-way"); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("Expected ErrInvalidPolicy, got %v", err)
	}

	if p, err := ParseStorePolicy("history"); err != nil || p != StoreKeepHistory {
		t.Errorf("Expected history policy, got %q (%v)", p, err)
	}
	if _, err := ParseStorePolicy("append"); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("Expected ErrInvalidPolicy, got %v", err)
	}

	if p, err := ParsePrioritySource("score"); err != nil || p != PriorityFromScore {
		t.Errorf("Expected score source, got %q (%v)", p, err)
	}
	if _, err := ParsePrioritySource("model"); !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("Expected ErrInvalidPolicy, got %v", err)
	}
}
