package service

import (
	"strconv"

	"github.com/medical-report-analyzer/internal/domain"
)

// Measurements holds the first value found per measurement kind.
type Measurements map[domain.MeasurementKind]domain.Measurement

// Extract scans text with every pattern in the rule set and keeps the first match
// per kind. A capture that does not parse as a number leaves its kind unmatched.
func Extract(text string, rules *domain.RuleSet) Measurements {
	found := make(Measurements)
	if rules == nil || text == "" {
		return found
	}

	for _, p := range rules.Patterns {
		if p.Pattern == nil {
			continue
		}
		match := p.Pattern.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}

		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		m := domain.Measurement{Kind: p.Kind, Value: value, Raw: match[0]}

		if p.Kind == domain.BLOOD_PRESSURE {
			if len(match) < 3 {
				continue
			}
			diastolic, err := strconv.ParseFloat(match[2], 64)
			if err != nil {
				continue
			}
			m.Secondary = diastolic
		}
		found[p.Kind] = m
	}
	return found
}
