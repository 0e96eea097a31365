package service

import (
	"strings"

	"github.com/medical-report-analyzer/internal/domain"
)

// MentionHit is a condition found by literal mention.
type MentionHit struct {
	Condition      string
	Recommendation string
}

// ScanMentions returns the vocabulary entries mentioned in text, in table order.
func ScanMentions(text string, mentions []domain.ConditionMention) []MentionHit {
	lower := strings.ToLower(text)
	var hits []MentionHit
	for _, mention := range mentions {
		if mentioned(lower, mention) {
			hits = append(hits, MentionHit{Condition: mention.Condition, Recommendation: mention.Recommendation})
		}
	}
	return hits
}

func mentioned(lower string, mention domain.ConditionMention) bool {
	for _, phrase := range mention.Phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// applyMentions adds each mentioned condition not already present, with a
// "Diagnosed:" finding and its recommendation.
func applyMentions(result *domain.AnalysisResult, hits []MentionHit, dedupe bool) {
	for _, hit := range hits {
		if !result.AddDisease(hit.Condition) {
			continue
		}
		result.KeyFindings = append(result.KeyFindings, "Diagnosed: "+hit.Condition)
		addRecommendation(result, hit.Recommendation, dedupe)
	}
}
