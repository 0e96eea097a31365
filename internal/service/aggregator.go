package service

import (
	"fmt"
	"strings"

	"github.com/medical-report-analyzer/internal/domain"
)

const (
	summaryPreamble  = "Medical report analysis completed using AI-powered extraction. "
	summaryNoFinding = "No significant abnormalities detected in the provided report."
	summaryReview    = "Please review the identified conditions and follow medical recommendations."

	fallbackFinding = "No significant abnormalities detected"
)

var fallbackRecommendations = []string{
	"Continue regular health monitoring and preventive care",
	"Maintain current healthy lifestyle habits",
}

// Summarize builds the summary text. When no key finding was recorded it also
// appends the fallback finding and recommendations to the result.
func Summarize(result *domain.AnalysisResult) {
	var b strings.Builder
	b.WriteString(summaryPreamble)

	if len(result.Diseases) > 0 {
		fmt.Fprintf(&b, "Identified conditions: %s. ", strings.Join(result.Diseases, ", "))
	}
	if len(result.CriticalValues) > 0 {
		fmt.Fprintf(&b, "%d critical value(s) requiring immediate attention. ", len(result.CriticalValues))
	}
	if len(result.NormalValues) > 0 {
		fmt.Fprintf(&b, "%d parameter(s) within normal range. ", len(result.NormalValues))
	}

	if len(result.KeyFindings) == 0 {
		b.WriteString(summaryNoFinding)
		result.KeyFindings = append(result.KeyFindings, fallbackFinding)
		result.Recommendations = append(result.Recommendations, fallbackRecommendations...)
	} else {
		b.WriteString(summaryReview)
	}

	result.Summary = b.String()
}
