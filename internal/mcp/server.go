// Package mcp exposes GH risk screening as Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/gh-risk-server/internal/advice"
	"github.com/gh-risk-server/internal/service"
)

// Tool names.
const (
	ToolAssess      = "assess_gh_risk"
	ToolLatest      = "get_latest_gh_risk"
	ToolHistory     = "list_gh_risk_history"
	ToolAddAdvice   = "add_patient_advice"
	ToolListAdvice  = "list_patient_advice"
	ToolArtifactInf = "describe_gh_artifacts"
)

// Info names the server to MCP clients.
type Info struct {
	Name    string
	Version string
}

// Server is an MCP server backed by the assessment service.
type Server struct {
	mcpServer   *mcp.Server
	assessments *service.AssessmentService
	advice      *advice.Service
	logger      *logrus.Logger
	tools       []string
	closers     []io.Closer
}

// NewServer registers the screening tools. adviceSvc may be nil, in which case the advice
// tools are not offered.
func NewServer(info Info, assessments *service.AssessmentService, adviceSvc *advice.Service, logger *logrus.Logger) *Server {
	if info.Name == "" {
		info.Name = "gh-risk-server"
	}
	if info.Version == "" {
		info.Version = "v1.0.0"
	}

	s := &Server{
		mcpServer:   mcp.NewServer(&mcp.Implementation{Name: info.Name, Version: info.Version}, nil),
		assessments: assessments,
		advice:      adviceSvc,
		logger:      logger,
	}
	s.registerTools()

	logger.WithFields(logrus.Fields{
		"server_name": info.Name,
		"tool_count":  len(s.tools),
	}).Info("MCP tools registered")
	return s
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolAssess,
		Description: "Screen a pregnant patient for gestational hypertension risk from age, BMI, " +
			"blood pressure, heart rate and comorbidity flags. Returns the risk tier, calibrated score, " +
			"priority flag and the clinical rules that fired. Persisted when patient_id is given.",
	}, s.handleAssess)
	s.tools = append(s.tools, ToolAssess)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolLatest,
		Description: "Get the latest stored GH risk assessment for a patient. Unscreened patients report has_assessment=false.",
	}, s.handleLatest)
	s.tools = append(s.tools, ToolLatest)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolHistory,
		Description: "List stored GH risk assessments for a patient, newest first.",
	}, s.handleHistory)
	s.tools = append(s.tools, ToolHistory)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolArtifactInf,
		Description: "Describe the loaded model bundle: version, feature order, thresholds, calibration and tier policy.",
	}, s.handleArtifacts)
	s.tools = append(s.tools, ToolArtifactInf)

	if s.advice == nil {
		return
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolAddAdvice,
		Description: "Record clinician advice for a patient (1 to 5000 characters).",
	}, s.handleAddAdvice)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListAdvice,
		Description: "List clinician advice for a patient, newest first.",
	}, s.handleListAdvice)
	s.tools = append(s.tools, ToolAddAdvice, ToolListAdvice)
}

// ToolNames returns the registered tool names, sorted.
func (s *Server) ToolNames() []string {
	out := append([]string(nil), s.tools...)
	sort.Strings(out)
	return out
}

// Run serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting GH risk MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close releases the stores the server owns.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.WithError(err).Error("Failed to close MCP server resources")
		return err
	}
	return nil
}
