// Package domain contains the core entities for rule-based medical report analysis:
// measurement kinds, severity tiers, classification rule tables, the condition mention
// vocabulary and the structured AnalysisResult produced for every report.
package domain

import (
	"errors"
	"regexp"
)

// MeasurementKind identifies a clinical measurement the extractor can recognize.
type MeasurementKind string

const (
	BLOOD_PRESSURE MeasurementKind = "blood_pressure"
	GLUCOSE        MeasurementKind = "glucose"
	CHOLESTEROL    MeasurementKind = "cholesterol"
	HEMOGLOBIN     MeasurementKind = "hemoglobin"
	BMI            MeasurementKind = "bmi"
	TEMPERATURE    MeasurementKind = "temperature"
	HEART_RATE     MeasurementKind = "heart_rate"
)

// Severity is the tier flag attached to a classification rule.
type Severity string

const (
	// NORMAL tiers add their value text to normalValues.
	NORMAL Severity = "normal"
	// FINDING tiers are abnormal but not flagged for immediate attention.
	FINDING Severity = "finding"
	// CRITICAL tiers add their value text to criticalValues.
	CRITICAL Severity = "critical"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidSeverity     = errors.New("invalid severity")
	ErrUnknownMeasurement  = errors.New("unknown measurement kind")
	ErrEmptyRuleTable      = errors.New("rule table has no rules")
	ErrInvalidMentionTable = errors.New("invalid condition mention")
)

// AllMeasurementKinds lists every kind in extraction order.
func AllMeasurementKinds() []MeasurementKind {
	return []MeasurementKind{BLOOD_PRESSURE, GLUCOSE, CHOLESTEROL, HEMOGLOBIN, BMI, TEMPERATURE, HEART_RATE}
}

// IsValid reports whether k is a recognized measurement kind.
func (k MeasurementKind) IsValid() bool {
	switch k {
	case BLOOD_PRESSURE, GLUCOSE, CHOLESTEROL, HEMOGLOBIN, BMI, TEMPERATURE, HEART_RATE:
		return true
	default:
		return false
	}
}

func (k MeasurementKind) String() string {
	return string(k)
}

// IsValid reports whether s is a recognized severity tier.
func (s Severity) IsValid() bool {
	switch s {
	case NORMAL, FINDING, CRITICAL:
		return true
	default:
		return false
	}
}

func (s Severity) String() string {
	return string(s)
}

// Measurement is a value found in report text. Secondary is only set for blood
// pressure, where Value is systolic and Secondary is diastolic.
type Measurement struct {
	Kind      MeasurementKind `json:"kind"`
	Value     float64         `json:"value"`
	Secondary float64         `json:"secondary,omitempty"`
	Raw       string          `json:"raw"`
}

// ExtractionPattern binds a measurement kind to the pattern that finds it.
// Group 1 captures the primary value; for blood pressure group 2 captures the diastolic value.
type ExtractionPattern struct {
	Kind    MeasurementKind
	Pattern *regexp.Regexp
}

// ClassificationRule is one tier of a measurement kind. Rules for a kind are
// evaluated in order and the first rule whose Match returns true wins.
type ClassificationRule struct {
	Name            string
	Severity        Severity
	Criteria        string
	Match           func(m Measurement) bool
	Finding         func(m Measurement) string
	ValueText       func(m Measurement) string
	Condition       string
	Recommendations []string
}

// ConditionMention maps literal phrases found in the text to a condition.
// Phrases are lower-case substrings of the lower-cased report text.
type ConditionMention struct {
	Phrases        []string
	Condition      string
	Recommendation string
}

// RuleSet bundles the immutable tables the analysis engine reads. It is built
// once and shared read-only across analyses.
type RuleSet struct {
	Patterns              []ExtractionPattern
	ClassificationOrder   []MeasurementKind
	Rules                 map[MeasurementKind][]ClassificationRule
	Mentions              []ConditionMention
	DedupeRecommendations bool
}

// RulesFor returns the ordered rule list for a kind, or nil when the kind is not classified.
func (rs *RuleSet) RulesFor(kind MeasurementKind) []ClassificationRule {
	if rs == nil {
		return nil
	}
	return rs.Rules[kind]
}

// Validate checks the structural integrity of the tables.
func (rs *RuleSet) Validate() error {
	for _, kind := range rs.ClassificationOrder {
		if !kind.IsValid() {
			return ErrUnknownMeasurement
		}
		rules := rs.Rules[kind]
		if len(rules) == 0 {
			return ErrEmptyRuleTable
		}
		for _, rule := range rules {
			if !rule.Severity.IsValid() {
				return ErrInvalidSeverity
			}
		}
	}
	for _, mention := range rs.Mentions {
		if mention.Condition == "" || len(mention.Phrases) == 0 {
			return ErrInvalidMentionTable
		}
	}
	return nil
}

// AnalysisResult is the structured diagnostic summary for one report.
type AnalysisResult struct {
	Summary         string   `json:"summary"`
	KeyFindings     []string `json:"keyFindings"`
	Recommendations []string `json:"recommendations"`
	CriticalValues  []string `json:"criticalValues"`
	NormalValues    []string `json:"normalValues"`
	Diseases        []string `json:"diseases"`
}

// NewAnalysisResult returns a result with empty, non-nil sequences.
func NewAnalysisResult() *AnalysisResult {
	return &AnalysisResult{
		KeyFindings:     []string{},
		Recommendations: []string{},
		CriticalValues:  []string{},
		NormalValues:    []string{},
		Diseases:        []string{},
	}
}

// Clone returns a deep copy of the result.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	return &AnalysisResult{
		Summary:         r.Summary,
		KeyFindings:     append([]string{}, r.KeyFindings...),
		Recommendations: append([]string{}, r.Recommendations...),
		CriticalValues:  append([]string{}, r.CriticalValues...),
		NormalValues:    append([]string{}, r.NormalValues...),
		Diseases:        append([]string{}, r.Diseases...),
	}
}

// HasDisease reports whether label is already recorded.
func (r *AnalysisResult) HasDisease(label string) bool {
	for _, d := range r.Diseases {
		if d == label {
			return true
		}
	}
	return false
}

// AddDisease appends label unless it is already present. It returns true when added.
func (r *AnalysisResult) AddDisease(label string) bool {
	if label == "" || r.HasDisease(label) {
		return false
	}
	r.Diseases = append(r.Diseases, label)
	return true
}

// LogFields returns structured logging fields summarizing the result.
func (r *AnalysisResult) LogFields() map[string]any {
	return map[string]any{
		"diseases":        len(r.Diseases),
		"key_findings":    len(r.KeyFindings),
		"critical_values": len(r.CriticalValues),
		"normal_values":   len(r.NormalValues),
		"recommendations": len(r.Recommendations),
	}
}
