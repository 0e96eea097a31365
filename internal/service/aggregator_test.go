package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medical-report-analyzer/internal/domain"
)

func TestSummarize_Fallback(t *testing.T) {
	result := domain.NewAnalysisResult()
	Summarize(result)

	assert.Equal(t, "Medical report analysis completed using AI-powered extraction. "+
		"No significant abnormalities detected in the provided report.", result.Summary)
	assert.Equal(t, []string{"No significant abnormalities detected"}, result.KeyFindings)
	assert.Equal(t, []string{
		"Continue regular health monitoring and preventive care",
		"Maintain current healthy lifestyle habits",
	}, result.Recommendations)
}

func TestSummarize_NormalValuesOnlyStillFallsBack(t *testing.T) {
	result := domain.NewAnalysisResult()
	result.NormalValues = []string{"Fasting Glucose: 90 mg/dL (Normal)", "BMI: 22 kg/m² (Normal Weight)"}
	Summarize(result)

	assert.Equal(t, "Medical report analysis completed using AI-powered extraction. "+
		"2 parameter(s) within normal range. "+
		"No significant abnormalities detected in the provided report.", result.Summary)
	assert.Len(t, result.KeyFindings, 1)
	assert.Len(t, result.Recommendations, 2)
}

func TestSummarize_Ordering(t *testing.T) {
	result := domain.NewAnalysisResult()
	result.Diseases = []string{"Hypertension (High Blood Pressure)", "Pneumonia"}
	result.CriticalValues = []string{"Blood Pressure: 150/95 mmHg (Stage 2 Hypertension)"}
	result.NormalValues = []string{"Fasting Glucose: 90 mg/dL (Normal)"}
	result.KeyFindings = []string{"Hypertension: 150/95 mmHg", "Diagnosed: Pneumonia"}
	result.Recommendations = []string{"a", "b"}

	Summarize(result)

	assert.Equal(t, "Medical report analysis completed using AI-powered extraction. "+
		"Identified conditions: Hypertension (High Blood Pressure), Pneumonia. "+
		"1 critical value(s) requiring immediate attention. "+
		"1 parameter(s) within normal range. "+
		"Please review the identified conditions and follow medical recommendations.", result.Summary)
	assert.Len(t, result.KeyFindings, 2, "no fallback finding when findings exist")
	assert.Equal(t, []string{"a", "b"}, result.Recommendations)
}
