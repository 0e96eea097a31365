package service

import (
	"github.com/medical-report-analyzer/internal/domain"
)

// ClassifyMeasurement returns the first rule whose predicate matches, or false when
// no rule in the kind's table applies.
func ClassifyMeasurement(m domain.Measurement, rules []domain.ClassificationRule) (domain.ClassificationRule, bool) {
	for _, rule := range rules {
		if rule.Match != nil && rule.Match(m) {
			return rule, true
		}
	}
	return domain.ClassificationRule{}, false
}

// applyRule records the effects of a matched tier on the result.
func applyRule(result *domain.AnalysisResult, rule domain.ClassificationRule, m domain.Measurement, dedupe bool) {
	if rule.Finding != nil {
		result.KeyFindings = append(result.KeyFindings, rule.Finding(m))
	}
	if rule.ValueText != nil {
		switch rule.Severity {
		case domain.CRITICAL:
			result.CriticalValues = append(result.CriticalValues, rule.ValueText(m))
		case domain.NORMAL:
			result.NormalValues = append(result.NormalValues, rule.ValueText(m))
		}
	}
	result.AddDisease(rule.Condition)
	for _, rec := range rule.Recommendations {
		addRecommendation(result, rec, dedupe)
	}
}

// Classify runs the threshold tables in classification order against the extracted measurements.
func Classify(measurements Measurements, rules *domain.RuleSet, result *domain.AnalysisResult) {
	if rules == nil {
		return
	}
	for _, kind := range rules.ClassificationOrder {
		m, ok := measurements[kind]
		if !ok {
			continue
		}
		rule, ok := ClassifyMeasurement(m, rules.RulesFor(kind))
		if !ok {
			continue
		}
		applyRule(result, rule, m, rules.DedupeRecommendations)
	}
}

func addRecommendation(result *domain.AnalysisResult, rec string, dedupe bool) {
	if dedupe {
		for _, existing := range result.Recommendations {
			if existing == rec {
				return
			}
		}
	}
	result.Recommendations = append(result.Recommendations, rec)
}
