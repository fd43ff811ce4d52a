package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpvargas/gastotrack/internal/model"
)

type stubRuleStore struct {
	rules []model.CategoryRule
}

func (s *stubRuleStore) ListActiveRules(ctx context.Context) ([]model.CategoryRule, error) {
	return s.rules, nil
}

func (s *stubRuleStore) CreateRule(ctx context.Context, rule *model.CategoryRule) error {
	rule.ID = int64(len(s.rules) + 1)
	s.rules = append(s.rules, *rule)
	return nil
}

func (s *stubRuleStore) GetOrCreateRule(ctx context.Context, rule *model.CategoryRule) (bool, error) {
	for _, existing := range s.rules {
		if existing.CategoryID == rule.CategoryID &&
			existing.MatchField == rule.MatchField &&
			existing.MatchType == rule.MatchType &&
			existing.MatchValue == rule.MatchValue &&
			existing.CardLast4 == rule.CardLast4 {
			rule.ID = existing.ID
			return false, nil
		}
	}
	return true, s.CreateRule(ctx, rule)
}

func (s *stubRuleStore) CountRules(ctx context.Context) (int, error) {
	return len(s.rules), nil
}

func txnWith(merchant, description, card string) *model.Transaction {
	return &model.Transaction{MerchantName: merchant, Description: description, CardLast4: card}
}

func TestEvaluate_FirstMatchWins(t *testing.T) {
	store := &stubRuleStore{rules: []model.CategoryRule{
		{ID: 1, CategoryID: 10, MatchField: model.MatchFieldMerchant, MatchType: model.MatchContains, MatchValue: "UBER", Priority: 50, IsActive: true},
		{ID: 2, CategoryID: 20, MatchField: model.MatchFieldMerchant, MatchType: model.MatchContains, MatchValue: "UBER EATS", Priority: 90, IsActive: true},
	}}

	result, err := NewEngine(store).Evaluate(context.Background(), txnWith("UBER EATS SJ", "", ""))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, int64(10), result.CategoryID, "lower priority value evaluates first")
	assert.Equal(t, "rule:1", result.Source)
	assert.Equal(t, EngineConfidence, result.Confidence)
	require.NotNil(t, result.RuleID)
	assert.Equal(t, int64(1), *result.RuleID)
}

func TestEvaluate_NoMatch(t *testing.T) {
	store := &stubRuleStore{rules: []model.CategoryRule{
		{ID: 1, CategoryID: 10, MatchField: model.MatchFieldMerchant, MatchType: model.MatchContains, MatchValue: "WALMART", IsActive: true},
	}}

	result, err := NewEngine(store).Evaluate(context.Background(), txnWith("FARMACIA SUCRE", "", ""))
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestMatchesRule_MatchTypes(t *testing.T) {
	tests := []struct {
		name string
		rule model.CategoryRule
		txn  *model.Transaction
		want bool
	}{
		{
			name: "contains is case insensitive",
			rule: model.CategoryRule{MatchField: model.MatchFieldMerchant, MatchType: model.MatchContains, MatchValue: "uber"},
			txn:  txnWith("UBER TRIP", "", ""),
			want: true,
		},
		{
			name: "starts_with",
			rule: model.CategoryRule{MatchField: model.MatchFieldMerchant, MatchType: model.MatchStartsWith, MatchValue: "WAL"},
			txn:  txnWith("WALMART ESCAZU", "", ""),
			want: true,
		},
		{
			name: "starts_with rejects interior match",
			rule: model.CategoryRule{MatchField: model.MatchFieldMerchant, MatchType: model.MatchStartsWith, MatchValue: "MART"},
			txn:  txnWith("WALMART ESCAZU", "", ""),
			want: false,
		},
		{
			name: "ends_with",
			rule: model.CategoryRule{MatchField: model.MatchFieldMerchant, MatchType: model.MatchEndsWith, MatchValue: "S.A."},
			txn:  txnWith("CNFL S.A.", "", ""),
			want: true,
		},
		{
			name: "exact",
			rule: model.CategoryRule{MatchField: model.MatchFieldMerchant, MatchType: model.MatchExact, MatchValue: "uber"},
			txn:  txnWith("UBER", "", ""),
			want: true,
		},
		{
			name: "exact rejects superstring",
			rule: model.CategoryRule{MatchField: model.MatchFieldMerchant, MatchType: model.MatchExact, MatchValue: "UBER"},
			txn:  txnWith("UBER TRIP", "", ""),
			want: false,
		},
		{
			name: "regex",
			rule: model.CategoryRule{MatchField: model.MatchFieldMerchant, MatchType: model.MatchRegex, MatchValue: `^farmacia\s`},
			txn:  txnWith("FARMACIA LA BUENA", "", ""),
			want: true,
		},
		{
			name: "malformed regex is a non-match",
			rule: model.CategoryRule{MatchField: model.MatchFieldMerchant, MatchType: model.MatchRegex, MatchValue: "[unclosed"},
			txn:  txnWith("FARMACIA LA BUENA", "", ""),
			want: false,
		},
		{
			name: "always matches anything",
			rule: model.CategoryRule{MatchField: model.MatchFieldAnyText, MatchType: model.MatchAlways},
			txn:  txnWith("", "", ""),
			want: true,
		},
		{
			name: "empty resolved field never matches",
			rule: model.CategoryRule{MatchField: model.MatchFieldDescription, MatchType: model.MatchContains, MatchValue: "UBER"},
			txn:  txnWith("UBER TRIP", "", ""),
			want: false,
		},
		{
			name: "empty match value never matches",
			rule: model.CategoryRule{MatchField: model.MatchFieldMerchant, MatchType: model.MatchContains, MatchValue: ""},
			txn:  txnWith("UBER TRIP", "", ""),
			want: false,
		},
		{
			name: "any_text searches description too",
			rule: model.CategoryRule{MatchField: model.MatchFieldAnyText, MatchType: model.MatchContains, MatchValue: "peaje"},
			txn:  txnWith("QUICKPASS", "Cobro de peaje ruta 27", ""),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesRule(&tt.rule, tt.txn))
		})
	}
}

func TestMatchesRule_CardRestriction(t *testing.T) {
	rule := model.CategoryRule{
		MatchField: model.MatchFieldMerchant,
		MatchType:  model.MatchContains,
		MatchValue: "UBER",
		CardLast4:  "1234",
	}

	assert.True(t, matchesRule(&rule, txnWith("UBER TRIP", "", "1234")))
	assert.False(t, matchesRule(&rule, txnWith("UBER TRIP", "", "9999")))
	// A transaction without card info is not excluded by a card restriction.
	assert.True(t, matchesRule(&rule, txnWith("UBER TRIP", "", "")))
}

func TestPromoteTransaction(t *testing.T) {
	store := &stubRuleStore{}
	categoryID := int64(7)
	txn := &model.Transaction{
		ID:           42,
		MerchantName: "  AUTOMERCADO GUACHIPELIN ",
		CardLast4:    "1234",
		CategoryID:   &categoryID,
	}

	result, err := PromoteTransaction(context.Background(), store, txn, true, "")
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, "AUTOMERCADO GUACHIPELIN", result.Rule.MatchValue)
	assert.Equal(t, "1234", result.Rule.CardLast4)
	assert.Equal(t, model.OriginPromoted, result.Rule.Origin)
	assert.Equal(t, promotedPriority, result.Rule.Priority)

	again, err := PromoteTransaction(context.Background(), store, txn, true, "")
	require.NoError(t, err)
	assert.False(t, again.Created, "promoting twice reuses the rule")
	assert.Equal(t, result.Rule.ID, again.Rule.ID)
}

func TestPromoteTransaction_RequiresMerchantAndCategory(t *testing.T) {
	store := &stubRuleStore{}
	categoryID := int64(7)

	_, err := PromoteTransaction(context.Background(), store, &model.Transaction{ID: 1, CategoryID: &categoryID}, false, "")
	require.Error(t, err)

	_, err = PromoteTransaction(context.Background(), store, &model.Transaction{ID: 2, MerchantName: "UBER"}, false, "")
	require.Error(t, err)
}
