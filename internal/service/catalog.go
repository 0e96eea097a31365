package service

import (
	"github.com/medical-report-analyzer/internal/domain"
)

// TierDescription is the serializable form of one classification tier.
type TierDescription struct {
	Name            string          `json:"name"`
	Severity        domain.Severity `json:"severity"`
	Criteria        string          `json:"criteria"`
	Condition       string          `json:"condition,omitempty"`
	Recommendations []string        `json:"recommendations,omitempty"`
}

// KindDescription lists the tiers of one measurement kind in evaluation order.
type KindDescription struct {
	Kind    domain.MeasurementKind `json:"kind"`
	Pattern string                 `json:"pattern"`
	Tiers   []TierDescription      `json:"tiers"`
}

// MentionDescription is the serializable form of one vocabulary entry.
type MentionDescription struct {
	Phrases        []string `json:"phrases"`
	Condition      string   `json:"condition"`
	Recommendation string   `json:"recommendation"`
}

// RuleCatalog describes a rule set for clients.
type RuleCatalog struct {
	Measurements          []KindDescription    `json:"measurements"`
	ExtractedOnly         []string             `json:"extracted_only"`
	Mentions              []MentionDescription `json:"mentions"`
	DedupeRecommendations bool                 `json:"dedupe_recommendations"`
}

// DescribeRules converts a rule set into its catalog form.
func DescribeRules(rules *domain.RuleSet) RuleCatalog {
	catalog := RuleCatalog{
		Measurements:  []KindDescription{},
		ExtractedOnly: []string{},
		Mentions:      []MentionDescription{},
	}
	if rules == nil {
		return catalog
	}
	catalog.DedupeRecommendations = rules.DedupeRecommendations

	patterns := make(map[domain.MeasurementKind]string, len(rules.Patterns))
	for _, p := range rules.Patterns {
		if p.Pattern != nil {
			patterns[p.Kind] = p.Pattern.String()
		}
	}

	classified := make(map[domain.MeasurementKind]bool)
	for _, kind := range rules.ClassificationOrder {
		classified[kind] = true
		desc := KindDescription{Kind: kind, Pattern: patterns[kind], Tiers: []TierDescription{}}
		for _, rule := range rules.RulesFor(kind) {
			desc.Tiers = append(desc.Tiers, TierDescription{
				Name:            rule.Name,
				Severity:        rule.Severity,
				Criteria:        rule.Criteria,
				Condition:       rule.Condition,
				Recommendations: rule.Recommendations,
			})
		}
		catalog.Measurements = append(catalog.Measurements, desc)
	}

	for _, p := range rules.Patterns {
		if !classified[p.Kind] {
			catalog.ExtractedOnly = append(catalog.ExtractedOnly, p.Kind.String())
		}
	}

	for _, m := range rules.Mentions {
		catalog.Mentions = append(catalog.Mentions, MentionDescription{
			Phrases:        m.Phrases,
			Condition:      m.Condition,
			Recommendation: m.Recommendation,
		})
	}
	return catalog
}
