// Package rules implements deterministic, priority-ordered categorization
// rules: first-match evaluation, promotion of corrected transactions into
// rules, rule suggestions, and default seeding.
package rules

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/service"
)

// EngineConfidence is the fixed confidence attached to rule-engine matches.
const EngineConfidence = 0.9

// Engine evaluates category rules against transactions.
type Engine struct {
	store service.RuleStore
}

// NewEngine creates a rule engine backed by the given rule store.
func NewEngine(store service.RuleStore) *Engine {
	return &Engine{store: store}
}

// Evaluate tests the transaction against all active rules in priority order
// and returns the first match, or nil when no rule matches.
func (e *Engine) Evaluate(ctx context.Context, txn *model.Transaction) (*model.CategorizationResult, error) {
	rules, err := e.store.ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	for i := range rules {
		rule := &rules[i]
		if matchesRule(rule, txn) {
			return &model.CategorizationResult{
				CategoryID:    rule.CategoryID,
				SubcategoryID: rule.SubcategoryID,
				Confidence:    EngineConfidence,
				Source:        "rule:" + strconv.FormatInt(rule.ID, 10),
				RuleID:        &rule.ID,
			}, nil
		}
	}
	return nil, nil
}

func matchesRule(rule *model.CategoryRule, txn *model.Transaction) bool {
	if rule.CardLast4 != "" && txn.CardLast4 != "" && rule.CardLast4 != txn.CardLast4 {
		return false
	}

	if rule.MatchType == model.MatchAlways {
		return true
	}

	value := resolveField(rule.MatchField, txn)
	if value == "" {
		return false
	}

	matchValue := strings.ToLower(rule.MatchValue)
	if matchValue == "" {
		return false
	}
	comparison := strings.ToLower(value)

	switch rule.MatchType {
	case model.MatchContains:
		return strings.Contains(comparison, matchValue)
	case model.MatchStartsWith:
		return strings.HasPrefix(comparison, matchValue)
	case model.MatchEndsWith:
		return strings.HasSuffix(comparison, matchValue)
	case model.MatchExact:
		return comparison == matchValue
	case model.MatchRegex:
		// A malformed pattern is a non-match, never an error: one bad rule
		// must not abort evaluation of the rest.
		re, err := regexp.Compile("(?i)" + rule.MatchValue)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	}
	return false
}

func resolveField(field model.MatchField, txn *model.Transaction) string {
	switch field {
	case model.MatchFieldMerchant:
		return txn.MerchantName
	case model.MatchFieldDescription:
		return txn.Description
	case model.MatchFieldCardLast4:
		return txn.CardLast4
	case model.MatchFieldAnyText:
		return strings.TrimSpace(strings.Join(nonEmpty(txn.MerchantName, txn.Description), " "))
	}
	return ""
}

func nonEmpty(values ...string) []string {
	kept := values[:0:0]
	for _, v := range values {
		if v != "" {
			kept = append(kept, v)
		}
	}
	return kept
}
