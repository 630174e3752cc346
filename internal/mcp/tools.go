package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/domain"
)

// AssessParams are the assess_gh_risk arguments. Flags are 0 or 1.
type AssessParams struct {
	PatientID             *int64  `json:"patient_id,omitempty"`
	Age                   float64 `json:"age"`
	BMI                   float64 `json:"bmi"`
	SystolicBP            float64 `json:"systolic_bp"`
	DiastolicBP           float64 `json:"diastolic_bp"`
	HeartRate             float64 `json:"heart_rate"`
	PreviousComplications int     `json:"previous_complications,omitempty"`
	PreexistingDiabetes   int     `json:"preexisting_diabetes,omitempty"`
	GestationalDiabetes   int     `json:"gestational_diabetes,omitempty"`
	MentalHealth          int     `json:"mental_health,omitempty"`
}

func (p AssessParams) input() domain.ClinicalInput {
	return domain.ClinicalInput{
		PatientID:             p.PatientID,
		Age:                   p.Age,
		BMI:                   p.BMI,
		SystolicBP:            p.SystolicBP,
		DiastolicBP:           p.DiastolicBP,
		HeartRate:             p.HeartRate,
		PreviousComplications: p.PreviousComplications,
		PreexistingDiabetes:   p.PreexistingDiabetes,
		GestationalDiabetes:   p.GestationalDiabetes,
		MentalHealth:          p.MentalHealth,
	}
}

// PatientParams identify a patient.
type PatientParams struct {
	PatientID int64 `json:"patient_id"`
	Limit     int   `json:"limit,omitempty"`
}

// AdviceParams are the add_patient_advice arguments.
type AdviceParams struct {
	PatientID  int64  `json:"patient_id"`
	AdviceText string `json:"advice_text"`
	Author     string `json:"author,omitempty"`
}

// LatestResult pairs the patient-facing summary with the stored assessment, if any.
type LatestResult struct {
	Summary    *domain.RiskSummary `json:"summary"`
	Assessment *domain.Assessment  `json:"assessment,omitempty"`
}

// ArtifactsParams takes no arguments.
type ArtifactsParams struct{}

func (s *Server) handleAssess(ctx context.Context, req *mcp.CallToolRequest, params AssessParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolAssess).Info("Tool invoked")

	a, err := s.assessments.Assess(ctx, params.input(), domain.SourceMCP)
	if err != nil {
		return s.createErrorResult(assessFailure(err), err), nil, nil
	}

	headline := fmt.Sprintf("GH risk %s (score %.3f), priority %t", a.RiskClass, a.RiskScore, a.Priority)
	return s.jsonResult(headline, a), nil, nil
}

func (s *Server) handleLatest(ctx context.Context, req *mcp.CallToolRequest, params PatientParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": ToolLatest, "patient_id": params.PatientID}).Info("Tool invoked")

	a, err := s.assessments.Latest(ctx, params.PatientID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return s.jsonResult("No assessment yet", LatestResult{Summary: domain.Summarize(nil)}), nil, nil
	case err != nil:
		return s.createErrorResult("Failed to read latest assessment", err), nil, nil
	}

	res := LatestResult{Summary: domain.Summarize(a), Assessment: a}
	return s.jsonResult(fmt.Sprintf("Latest GH risk %s", a.RiskClass), res), nil, nil
}

func (s *Server) handleHistory(ctx context.Context, req *mcp.CallToolRequest, params PatientParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": ToolHistory, "patient_id": params.PatientID}).Info("Tool invoked")

	rows, err := s.assessments.History(ctx, params.PatientID, params.Limit)
	if err != nil {
		return s.createErrorResult("Failed to list assessments", err), nil, nil
	}
	return s.jsonResult(fmt.Sprintf("%d assessment(s)", len(rows)), rows), nil, nil
}

func (s *Server) handleArtifacts(ctx context.Context, req *mcp.CallToolRequest, params ArtifactsParams) (*mcp.CallToolResult, any, error) {
	b := s.assessments.Registry().Current()
	info := map[string]any{
		"bundle": b.Summarize(),
		"stats":  s.assessments.Stats(),
	}
	return s.jsonResult(fmt.Sprintf("Artifact bundle version %d", b.Version), info), nil, nil
}

func (s *Server) handleAddAdvice(ctx context.Context, req *mcp.CallToolRequest, params AdviceParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{"tool": ToolAddAdvice, "patient_id": params.PatientID}).Info("Tool invoked")

	a, err := s.advice.Add(ctx, params.PatientID, params.AdviceText, params.Author)
	if err != nil {
		return s.createErrorResult("Failed to record advice", err), nil, nil
	}
	return s.jsonResult(fmt.Sprintf("Advice %d recorded", a.ID), a), nil, nil
}

func (s *Server) handleListAdvice(ctx context.Context, req *mcp.CallToolRequest, params PatientParams) (*mcp.CallToolResult, any, error) {
	items, err := s.advice.List(ctx, params.PatientID, params.Limit)
	if err != nil {
		return s.createErrorResult("Failed to list advice", err), nil, nil
	}
	return s.jsonResult(fmt.Sprintf("%d advice entries", len(items)), items), nil, nil
}

func assessFailure(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return "Invalid input"
	case errors.Is(err, domain.ErrInferenceFailed):
		return "Prediction failed"
	default:
		return "Assessment failed"
	}
}

// jsonResult returns a one-line headline followed by the payload as indented JSON.
func (s *Server) jsonResult(headline string, payload any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return s.createErrorResult("Failed to encode result", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: headline},
			&mcp.TextContent{Text: string(data)},
		},
	}
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
