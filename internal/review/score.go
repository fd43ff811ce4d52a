// Package review computes parse-confidence scores and review flags for
// transactions extracted from notification emails.
package review

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultThreshold is the review threshold applied when none is configured.
const DefaultThreshold = 0.6

// suspiciously large for a single card purchase in major currency units
var implausibleAmount = decimal.NewFromInt(5_000_000)

// ParseSignals captures the candidate fields a parse produced, used to score
// how trustworthy the extraction is.
type ParseSignals struct {
	Amount       decimal.Decimal
	MerchantName string
	ReferenceID  string
	RawBody      string
	HasDate      bool
	CardDetected bool
}

// Score returns a heuristic parse confidence in [0.05, 0.99]. It starts at
// 0.95 and applies independent penalties for each missing or implausible
// field.
func Score(s ParseSignals) float64 {
	score := 0.95

	if s.Amount.LessThanOrEqual(decimal.Zero) {
		score -= 0.35
	}
	if len(strings.TrimSpace(s.MerchantName)) < 4 {
		score -= 0.20
	}
	if s.ReferenceID == "" {
		score -= 0.20
	}
	if !s.HasDate {
		score -= 0.10
	}
	if !s.CardDetected {
		score -= 0.05
	}
	if len(strings.TrimSpace(s.RawBody)) < 80 {
		score -= 0.05
	}
	if s.Amount.GreaterThanOrEqual(implausibleAmount) {
		score -= 0.05
	}

	if score < 0.05 {
		score = 0.05
	}
	if score > 0.99 {
		score = 0.99
	}
	return score
}

// ShouldFlag decides whether a transaction needs human review: the parse
// confidence is missing or below the threshold, or a category confidence is
// present and below it.
func ShouldFlag(parseConfidence, categoryConfidence *float64, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if parseConfidence == nil || *parseConfidence < threshold {
		return true
	}
	return categoryConfidence != nil && *categoryConfidence < threshold
}
