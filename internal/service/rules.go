package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/medical-report-analyzer/internal/domain"
)

// RuleSetOption customizes the rule set built by DefaultRuleSet.
type RuleSetOption func(*domain.RuleSet)

// WithRecommendationDedup drops repeated recommendation strings, keeping first occurrences.
func WithRecommendationDedup(enabled bool) RuleSetOption {
	return func(rs *domain.RuleSet) {
		rs.DedupeRecommendations = enabled
	}
}

// DefaultRuleSet builds the extraction patterns, threshold tables and condition
// vocabulary. Callers build it once at startup and share the pointer.
func DefaultRuleSet(opts ...RuleSetOption) *domain.RuleSet {
	rs := &domain.RuleSet{
		Patterns: defaultPatterns(),
		ClassificationOrder: []domain.MeasurementKind{
			domain.BLOOD_PRESSURE,
			domain.GLUCOSE,
			domain.CHOLESTEROL,
			domain.HEMOGLOBIN,
			domain.BMI,
		},
		Rules: map[domain.MeasurementKind][]domain.ClassificationRule{
			domain.BLOOD_PRESSURE: bloodPressureRules(),
			domain.GLUCOSE:        glucoseRules(),
			domain.CHOLESTEROL:    cholesterolRules(),
			domain.HEMOGLOBIN:     hemoglobinRules(),
			domain.BMI:            bmiRules(),
		},
		Mentions: defaultMentions(),
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs
}

func defaultPatterns() []domain.ExtractionPattern {
	return []domain.ExtractionPattern{
		// The unit is required up to "mmh" so that dates such as 01/15/1978 are not read as pressures.
		{Kind: domain.BLOOD_PRESSURE, Pattern: regexp.MustCompile(`(?i)(\d{2,3})/(\d{2,3})\s*mmhg?`)},
		{Kind: domain.GLUCOSE, Pattern: regexp.MustCompile(`(?i)glucose[^\d]*(\d+)\s*mg/dl`)},
		{Kind: domain.CHOLESTEROL, Pattern: regexp.MustCompile(`(?i)cholesterol[^\d]*(\d+)\s*mg/dl`)},
		{Kind: domain.HEMOGLOBIN, Pattern: regexp.MustCompile(`(?i)hemoglobin[^\d]*(\d+\.?\d*)\s*g/dl`)},
		{Kind: domain.BMI, Pattern: regexp.MustCompile(`(?i)bmi[^\d]*(\d+\.?\d*)`)},
		{Kind: domain.TEMPERATURE, Pattern: regexp.MustCompile(`(?i)temperature[^\d]*(\d+\.?\d*)\s*°?f?`)},
		{Kind: domain.HEART_RATE, Pattern: regexp.MustCompile(`(?i)heart rate[^\d]*(\d+)\s*bpm`)},
	}
}

// formatNumber renders values in their shortest form: 12, 13.2, 28.5.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func pressure(m domain.Measurement) string {
	return fmt.Sprintf("%s/%s mmHg", formatNumber(m.Value), formatNumber(m.Secondary))
}

func bloodPressureRules() []domain.ClassificationRule {
	return []domain.ClassificationRule{
		{
			Name:     "Hypertensive Crisis",
			Severity: domain.CRITICAL,
			Criteria: "systolic >= 180 or diastolic >= 110",
			Match: func(m domain.Measurement) bool {
				return m.Value >= 180 || m.Secondary >= 110
			},
			Finding: func(m domain.Measurement) string {
				return "Hypertensive Crisis: " + pressure(m)
			},
			ValueText: func(m domain.Measurement) string {
				return "Blood Pressure: " + pressure(m) + " (Hypertensive Crisis)"
			},
			Condition: "Hypertensive Crisis",
			Recommendations: []string{
				"Seek immediate medical attention - Emergency care required",
				"Monitor blood pressure continuously",
			},
		},
		{
			Name:     "Hypertension",
			Severity: domain.CRITICAL,
			Criteria: "systolic >= 140 or diastolic >= 90",
			Match: func(m domain.Measurement) bool {
				return m.Value >= 140 || m.Secondary >= 90
			},
			Finding: func(m domain.Measurement) string {
				return "Hypertension: " + pressure(m)
			},
			ValueText: func(m domain.Measurement) string {
				return "Blood Pressure: " + pressure(m) + " (Stage 2 Hypertension)"
			},
			Condition: "Hypertension (High Blood Pressure)",
			Recommendations: []string{
				"Consult cardiologist for hypertension management",
				"Consider antihypertensive medication and lifestyle modifications",
			},
		},
		{
			Name:     "Stage 1 Hypertension",
			Severity: domain.FINDING,
			Criteria: "systolic >= 130 or diastolic >= 80",
			Match: func(m domain.Measurement) bool {
				return m.Value >= 130 || m.Secondary >= 80
			},
			Finding: func(m domain.Measurement) string {
				return "Stage 1 Hypertension: " + pressure(m)
			},
			Condition: "Stage 1 Hypertension",
			Recommendations: []string{
				"Lifestyle modifications and regular blood pressure monitoring",
			},
		},
		{
			Name:     "Elevated",
			Severity: domain.FINDING,
			Criteria: "systolic >= 120",
			Match: func(m domain.Measurement) bool {
				return m.Value >= 120
			},
			Finding: func(m domain.Measurement) string {
				return "Elevated Blood Pressure: " + pressure(m)
			},
			Recommendations: []string{
				"Monitor blood pressure regularly and maintain healthy lifestyle",
			},
		},
		{
			Name:     "Normal",
			Severity: domain.NORMAL,
			Criteria: "otherwise",
			Match:    always,
			ValueText: func(m domain.Measurement) string {
				return "Blood Pressure: " + pressure(m) + " (Normal)"
			},
		},
	}
}

func glucoseRules() []domain.ClassificationRule {
	return []domain.ClassificationRule{
		{
			Name:     "Diabetes Mellitus",
			Severity: domain.CRITICAL,
			Criteria: ">= 126 mg/dL",
			Match:    atLeast(126),
			Finding: func(m domain.Measurement) string {
				return fmt.Sprintf("Diabetes Mellitus: Fasting Glucose %s mg/dL", formatNumber(m.Value))
			},
			ValueText: func(m domain.Measurement) string {
				return fmt.Sprintf("Glucose: %s mg/dL (Diabetic Range)", formatNumber(m.Value))
			},
			Condition: "Diabetes Mellitus Type 2",
			Recommendations: []string{
				"Consult endocrinologist for diabetes management and HbA1c testing",
				"Implement diabetic diet plan and glucose monitoring",
			},
		},
		{
			Name:     "Prediabetes",
			Severity: domain.FINDING,
			Criteria: ">= 100 mg/dL",
			Match:    atLeast(100),
			Finding: func(m domain.Measurement) string {
				return fmt.Sprintf("Prediabetes: Fasting Glucose %s mg/dL", formatNumber(m.Value))
			},
			Condition: "Prediabetes (Impaired Fasting Glucose)",
			Recommendations: []string{
				"Lifestyle intervention to prevent progression to diabetes",
				"Regular glucose monitoring and dietary counseling",
			},
		},
		{
			Name:     "Normal",
			Severity: domain.NORMAL,
			Criteria: "otherwise",
			Match:    always,
			ValueText: func(m domain.Measurement) string {
				return fmt.Sprintf("Fasting Glucose: %s mg/dL (Normal)", formatNumber(m.Value))
			},
		},
	}
}

func cholesterolRules() []domain.ClassificationRule {
	return []domain.ClassificationRule{
		{
			Name:     "Hypercholesterolemia",
			Severity: domain.CRITICAL,
			Criteria: ">= 240 mg/dL",
			Match:    atLeast(240),
			Finding: func(m domain.Measurement) string {
				return fmt.Sprintf("Hypercholesterolemia: Total Cholesterol %s mg/dL", formatNumber(m.Value))
			},
			ValueText: func(m domain.Measurement) string {
				return fmt.Sprintf("Total Cholesterol: %s mg/dL (High Risk)", formatNumber(m.Value))
			},
			Condition: "Hypercholesterolemia (High Cholesterol)",
			Recommendations: []string{
				"Cardiology consultation for cardiovascular risk assessment",
				"Consider statin therapy and cardiac diet",
			},
		},
		{
			Name:     "Borderline High",
			Severity: domain.FINDING,
			Criteria: ">= 200 mg/dL",
			Match:    atLeast(200),
			Finding: func(m domain.Measurement) string {
				return fmt.Sprintf("Borderline Dyslipidemia: Total Cholesterol %s mg/dL", formatNumber(m.Value))
			},
			Condition: "Borderline High Cholesterol",
			Recommendations: []string{
				"Lipid profile monitoring and heart-healthy diet",
			},
		},
		{
			Name:     "Desirable",
			Severity: domain.NORMAL,
			Criteria: "otherwise",
			Match:    always,
			ValueText: func(m domain.Measurement) string {
				return fmt.Sprintf("Total Cholesterol: %s mg/dL (Desirable)", formatNumber(m.Value))
			},
		},
	}
}

func hemoglobinRules() []domain.ClassificationRule {
	return []domain.ClassificationRule{
		{
			Name:     "Iron Deficiency Anemia",
			Severity: domain.CRITICAL,
			Criteria: "< 12 g/dL",
			Match: func(m domain.Measurement) bool {
				return m.Value < 12
			},
			Finding: func(m domain.Measurement) string {
				return fmt.Sprintf("Iron Deficiency Anemia: Hemoglobin %s g/dL", formatNumber(m.Value))
			},
			ValueText: func(m domain.Measurement) string {
				return fmt.Sprintf("Hemoglobin: %s g/dL (Anemic)", formatNumber(m.Value))
			},
			Condition: "Iron Deficiency Anemia",
			Recommendations: []string{
				"Hematology consultation and iron studies",
				"Iron supplementation and evaluation for bleeding sources",
			},
		},
		{
			Name:     "Polycythemia",
			Severity: domain.CRITICAL,
			Criteria: "> 17 g/dL",
			Match: func(m domain.Measurement) bool {
				return m.Value > 17
			},
			Finding: func(m domain.Measurement) string {
				return fmt.Sprintf("Polycythemia: Hemoglobin %s g/dL", formatNumber(m.Value))
			},
			ValueText: func(m domain.Measurement) string {
				return fmt.Sprintf("Hemoglobin: %s g/dL (Elevated)", formatNumber(m.Value))
			},
			Condition: "Polycythemia",
			Recommendations: []string{
				"Hematology evaluation for secondary causes",
			},
		},
		{
			Name:     "Normal",
			Severity: domain.NORMAL,
			Criteria: "otherwise",
			Match:    always,
			ValueText: func(m domain.Measurement) string {
				return fmt.Sprintf("Hemoglobin: %s g/dL (Normal)", formatNumber(m.Value))
			},
		},
	}
}

// BMI tiers never add to criticalValues.
func bmiRules() []domain.ClassificationRule {
	return []domain.ClassificationRule{
		{
			Name:     "Obesity",
			Severity: domain.FINDING,
			Criteria: ">= 30 kg/m²",
			Match:    atLeast(30),
			Finding: func(m domain.Measurement) string {
				return fmt.Sprintf("Obesity: BMI %s kg/m²", formatNumber(m.Value))
			},
			Condition: "Obesity",
			Recommendations: []string{
				"Weight management program and nutritionist consultation",
				"Screening for obesity-related complications (diabetes, sleep apnea)",
			},
		},
		{
			Name:     "Overweight",
			Severity: domain.FINDING,
			Criteria: ">= 25 kg/m²",
			Match:    atLeast(25),
			Finding: func(m domain.Measurement) string {
				return fmt.Sprintf("Overweight: BMI %s kg/m²", formatNumber(m.Value))
			},
			Condition: "Overweight",
			Recommendations: []string{
				"Weight reduction through diet and exercise",
			},
		},
		{
			Name:     "Underweight",
			Severity: domain.FINDING,
			Criteria: "< 18.5 kg/m²",
			Match: func(m domain.Measurement) bool {
				return m.Value < 18.5
			},
			Finding: func(m domain.Measurement) string {
				return fmt.Sprintf("Underweight: BMI %s kg/m²", formatNumber(m.Value))
			},
			Condition: "Underweight",
			Recommendations: []string{
				"Nutritional assessment and weight gain counseling",
			},
		},
		{
			Name:     "Normal Weight",
			Severity: domain.NORMAL,
			Criteria: "otherwise",
			Match:    always,
			ValueText: func(m domain.Measurement) string {
				return fmt.Sprintf("BMI: %s kg/m² (Normal Weight)", formatNumber(m.Value))
			},
		},
	}
}

func atLeast(threshold float64) func(domain.Measurement) bool {
	return func(m domain.Measurement) bool {
		return m.Value >= threshold
	}
}

func always(domain.Measurement) bool {
	return true
}

func defaultMentions() []domain.ConditionMention {
	return []domain.ConditionMention{
		NewConditionMention("Myocardial Infarction (Heart Attack)", "Immediate cardiology follow-up and cardiac rehabilitation",
			"myocardial infarction", "heart attack", "mi"),
		NewConditionMention("Cerebrovascular Accident (Stroke)", "Neurology consultation and stroke prevention measures",
			"stroke", "cerebrovascular accident", "cva"),
		NewConditionMention("Pneumonia", "Complete antibiotic course and follow-up chest imaging",
			"pneumonia"),
		NewConditionMention("Urinary Tract Infection", "Complete antibiotic treatment and adequate hydration",
			"urinary tract infection", "uti"),
		NewConditionMention("Bronchitis", "Bronchodilators and cough suppressants as needed",
			"bronchitis"),
		NewConditionMention("Gastroenteritis", "Fluid replacement and symptomatic treatment",
			"gastroenteritis"),
		NewConditionMention("Appendicitis", "Surgical consultation for appendectomy evaluation",
			"appendicitis"),
		NewConditionMention("Nephrolithiasis (Kidney Stones)", "Urology consultation and increased fluid intake",
			"kidney stones", "nephrolithiasis"),
		NewConditionMention("Migraine Headache", "Neurological evaluation and preventive medications",
			"migraine"),
		NewConditionMention("Arthritis", "Rheumatology consultation and joint protection strategies",
			"arthritis"),
		NewConditionMention("Diabetes Mellitus Type 2", "Consult endocrinologist for diabetes management and HbA1c testing",
			"diabetes mellitus type 2", "type 2 diabetes"),
	}
}

// NewConditionMention builds a vocabulary entry. Phrases are lower-cased and
// match anywhere in the text, short ones ("mi", "uti") included.
func NewConditionMention(condition, recommendation string, phrases ...string) domain.ConditionMention {
	mention := domain.ConditionMention{
		Condition:      condition,
		Recommendation: recommendation,
	}
	for _, phrase := range phrases {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase != "" {
			mention.Phrases = append(mention.Phrases, phrase)
		}
	}
	return mention
}
