package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/medical-report-analyzer/internal/service"
)

// RulesResourceURI identifies the rule catalog resource.
const RulesResourceURI = "medical-report://rules"

const interpretPromptName = "interpret_report"

// registerResources exposes the rule catalog as a readable resource and the
// interpret_report prompt.
func registerResources(server *mcp.Server, h *toolHandlers) {
	server.AddResource(&mcp.Resource{
		URI:         RulesResourceURI,
		Name:        "rules",
		Description: "Measurement thresholds and condition vocabulary used for analysis",
		MIMEType:    "application/json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return h.readRules()
	})

	server.AddPrompt(&mcp.Prompt{
		Name:        interpretPromptName,
		Description: "Analyze a medical report and ask for a plain-language explanation of the findings",
		Arguments: []*mcp.PromptArgument{
			{Name: "text", Description: "The medical report text", Required: true},
		},
	}, func(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		var text string
		if req != nil && req.Params != nil {
			text = req.Params.Arguments["text"]
		}
		return h.interpretPrompt(ctx, text)
	})
}

func (h *toolHandlers) readRules() (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(service.DescribeRules(h.analyzer.Rules()), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule catalog: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: RulesResourceURI, MIMEType: "application/json", Text: string(data)},
		},
	}, nil
}

// interpretPrompt runs the analysis and embeds its result in the prompt so the
// model explains the same findings the tools report.
func (h *toolHandlers) interpretPrompt(ctx context.Context, text string) (*mcp.GetPromptResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("argument %q is required", "text")
	}

	record, err := h.analyzer.AnalyzeReport(ctx, &service.AnalyzeRequest{Text: text, Source: "prompt"})
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}
	result := record.Result

	var b strings.Builder
	b.WriteString("Explain the following medical report analysis to the patient in plain language.\n")
	b.WriteString("Do not add diagnoses that are not listed.\n\n")
	fmt.Fprintf(&b, "Summary: %s\n", result.Summary)
	writeSection(&b, "Key findings", result.KeyFindings)
	writeSection(&b, "Critical values", result.CriticalValues)
	writeSection(&b, "Normal values", result.NormalValues)
	writeSection(&b, "Conditions", result.Diseases)
	writeSection(&b, "Recommendations", result.Recommendations)
	b.WriteString("\nOriginal report:\n")
	b.WriteString(text)

	return &mcp.GetPromptResult{
		Description: "Plain-language explanation of analysis " + record.ID,
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: b.String()}},
		},
	}, nil
}

func writeSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}
