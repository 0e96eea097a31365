package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medical-report-analyzer/internal/domain"
	"github.com/medical-report-analyzer/internal/history"
	"github.com/medical-report-analyzer/internal/service"
)

// AnalyzeReportParams defines parameters for the analyze_report tool
type AnalyzeReportParams struct {
	Text   string `json:"text" jsonschema:"the free-form medical report text to analyze"`
	Source string `json:"source,omitempty" jsonschema:"optional label for where the report came from"`
}

// GetAnalysisParams defines parameters for the get_analysis tool
type GetAnalysisParams struct {
	ID string `json:"id" jsonschema:"the analysis ID returned by analyze_report"`
}

// ListAnalysesParams defines parameters for the list_analyses tool
type ListAnalysesParams struct {
	Limit  int `json:"limit,omitempty" jsonschema:"maximum number of analyses to return (default 20, max 200)"`
	Offset int `json:"offset,omitempty" jsonschema:"number of analyses to skip"`
}

// ListRulesParams is the empty parameter set of the list_rules tool
type ListRulesParams struct{}

// AnalyzeReportResult is the analyze_report tool output
type AnalyzeReportResult struct {
	AnalysisID       string                 `json:"analysis_id"`
	ReportHash       string                 `json:"report_hash"`
	Result           *domain.AnalysisResult `json:"result"`
	ProcessingTimeMs int64                  `json:"processing_time_ms"`
}

// ListAnalysesResult is the list_analyses tool output
type ListAnalysesResult struct {
	Analyses []*history.AnalysisRecord `json:"analyses"`
	Total    int64                     `json:"total"`
}

// toolHandlers binds the MCP tools to the analyzer service.
type toolHandlers struct {
	analyzer *service.AnalyzerService
	logger   *logrus.Logger
}

// registerTools adds every tool to server. History tools are only listed when
// the analyzer persists results.
func registerTools(server *mcp.Server, h *toolHandlers) []string {
	mcp.AddTool(server, &mcp.Tool{
		Name: "analyze_report",
		Description: "Analyze a medical report. Extracts blood pressure, glucose, cholesterol, hemoglobin and BMI, " +
			"classifies them against clinical thresholds, detects mentioned conditions and returns a structured summary " +
			"with key findings, critical and normal values, diseases and recommendations.",
	}, h.handleAnalyzeReport)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_rules",
		Description: "List the measurement thresholds and condition vocabulary used by analyze_report.",
	}, h.handleListRules)

	names := []string{"analyze_report", "list_rules"}
	if !h.analyzer.HistoryEnabled() {
		return names
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_analysis",
		Description: "Retrieve a stored analysis by ID.",
	}, h.handleGetAnalysis)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_analyses",
		Description: "List stored analyses, newest first.",
	}, h.handleListAnalyses)

	return append(names, "get_analysis", "list_analyses")
}

func (h *toolHandlers) handleAnalyzeReport(ctx context.Context, req *mcp.CallToolRequest, params AnalyzeReportParams) (*mcp.CallToolResult, any, error) {
	h.logger.WithField("tool", "analyze_report").Info("Tool invoked")

	source := params.Source
	if source == "" {
		source = "mcp"
	}
	record, err := h.analyzer.AnalyzeReport(ctx, &service.AnalyzeRequest{Text: params.Text, Source: source})
	if err != nil {
		return h.createErrorResult("Analysis failed", err), nil, nil
	}

	return jsonResult(AnalyzeReportResult{
		AnalysisID:       record.ID,
		ReportHash:       record.ReportHash,
		Result:           record.Result,
		ProcessingTimeMs: record.ProcessingTimeMs,
	})
}

func (h *toolHandlers) handleGetAnalysis(ctx context.Context, req *mcp.CallToolRequest, params GetAnalysisParams) (*mcp.CallToolResult, any, error) {
	h.logger.WithFields(logrus.Fields{"tool": "get_analysis", "analysis_id": params.ID}).Info("Tool invoked")

	if strings.TrimSpace(params.ID) == "" {
		return h.createErrorResult("Invalid parameters", domain.NewValidationError("id", "id is required", params.ID)), nil, nil
	}
	record, err := h.analyzer.GetAnalysis(ctx, params.ID)
	if err != nil {
		return h.createErrorResult("Lookup failed", err), nil, nil
	}
	return jsonResult(record)
}

func (h *toolHandlers) handleListAnalyses(ctx context.Context, req *mcp.CallToolRequest, params ListAnalysesParams) (*mcp.CallToolResult, any, error) {
	h.logger.WithField("tool", "list_analyses").Info("Tool invoked")

	records, total, err := h.analyzer.ListAnalyses(ctx, params.Limit, params.Offset)
	if err != nil {
		return h.createErrorResult("Listing failed", err), nil, nil
	}
	if records == nil {
		records = []*history.AnalysisRecord{}
	}
	return jsonResult(ListAnalysesResult{Analyses: records, Total: total})
}

func (h *toolHandlers) handleListRules(ctx context.Context, req *mcp.CallToolRequest, params ListRulesParams) (*mcp.CallToolResult, any, error) {
	h.logger.WithField("tool", "list_rules").Debug("Tool invoked")
	return jsonResult(service.DescribeRules(h.analyzer.Rules()))
}

// createErrorResult builds a tool-level error the client can show to the model.
func (h *toolHandlers) createErrorResult(message string, err error) *mcp.CallToolResult {
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) && !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, service.ErrHistoryDisabled) {
		h.logger.WithError(err).Error(message)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %v", message, err)},
		},
		IsError: true,
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}
