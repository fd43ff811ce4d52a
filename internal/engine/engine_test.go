package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/rules"
)

type stubRuleStore struct {
	rules []model.CategoryRule
}

func (s *stubRuleStore) ListActiveRules(_ context.Context) ([]model.CategoryRule, error) {
	return s.rules, nil
}

func (s *stubRuleStore) CreateRule(_ context.Context, _ *model.CategoryRule) error { return nil }

func (s *stubRuleStore) GetOrCreateRule(_ context.Context, _ *model.CategoryRule) (bool, error) {
	return false, nil
}

func (s *stubRuleStore) CountRules(_ context.Context) (int, error) { return len(s.rules), nil }

type stubTxnStore struct {
	applied []model.Transaction
	pending []model.Transaction
}

func (s *stubTxnStore) UpsertTransaction(_ context.Context, _ *model.Transaction) error { return nil }

func (s *stubTxnStore) ReplaceTransactionParse(_ context.Context, _ *model.Transaction) error {
	return nil
}

func (s *stubTxnStore) GetTransaction(_ context.Context, _ int64) (*model.Transaction, error) {
	return nil, common.ErrNotFound
}

func (s *stubTxnStore) GetTransactionsByEmail(_ context.Context, _ int64) ([]model.Transaction, error) {
	return nil, nil
}

func (s *stubTxnStore) GetUncategorizedTransactions(_ context.Context, _ int) ([]model.Transaction, error) {
	return s.pending, nil
}

func (s *stubTxnStore) ApplyCategorization(_ context.Context, txn *model.Transaction) error {
	s.applied = append(s.applied, *txn)
	return nil
}

type stubCategorizer struct {
	result *model.CategorizationResult
	err    error
	calls  int
}

func (s *stubCategorizer) Categorize(_ context.Context, _ *model.Transaction) (*model.CategorizationResult, error) {
	s.calls++
	return s.result, s.err
}

func parsedTxn(merchant string) *model.Transaction {
	conf := 0.95
	return &model.Transaction{
		ID:              1,
		MerchantName:    merchant,
		Amount:          decimal.NewFromInt(5000),
		Currency:        "CRC",
		ParseStatus:     model.ParseParsed,
		ParseConfidence: &conf,
	}
}

func TestCategorizeTransaction_RuleMatchSkipsLLM(t *testing.T) {
	ruleStore := &stubRuleStore{rules: []model.CategoryRule{{
		ID: 3, CategoryID: 7,
		MatchField: model.MatchFieldMerchant,
		MatchType:  model.MatchContains,
		MatchValue: "UBER",
		IsActive:   true,
	}}}
	txnStore := &stubTxnStore{}
	fallback := &stubCategorizer{}
	orchestrator := New(rules.NewEngine(ruleStore), fallback, txnStore, Config{LLMEnabled: true}, nil)

	txn := parsedTxn("UBER TRIP")
	result, err := orchestrator.CategorizeTransaction(context.Background(), txn)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "rule:3", result.Source)
	assert.Zero(t, fallback.calls, "matched rule must short-circuit the LLM")
	require.Len(t, txnStore.applied, 1)

	applied := txnStore.applied[0]
	require.NotNil(t, applied.CategoryID)
	assert.Equal(t, int64(7), *applied.CategoryID)
	assert.Equal(t, int64(3), applied.Metadata["rule_id"])
	assert.False(t, applied.NeedsReview)
}

func TestCategorizeTransaction_FallsBackToLLM(t *testing.T) {
	txnStore := &stubTxnStore{}
	fallback := &stubCategorizer{result: &model.CategorizationResult{
		CategoryID: 2,
		Confidence: 0.85,
		Source:     "llm:test-model",
	}}
	orchestrator := New(rules.NewEngine(&stubRuleStore{}), fallback, txnStore, Config{LLMEnabled: true}, nil)

	result, err := orchestrator.CategorizeTransaction(context.Background(), parsedTxn("COMERCIO RARO"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "llm:test-model", result.Source)
	assert.Equal(t, 1, fallback.calls)
}

func TestCategorizeTransaction_LLMDisabled(t *testing.T) {
	txnStore := &stubTxnStore{}
	fallback := &stubCategorizer{result: &model.CategorizationResult{CategoryID: 2, Confidence: 0.9}}
	orchestrator := New(rules.NewEngine(&stubRuleStore{}), fallback, txnStore, Config{LLMEnabled: false}, nil)

	result, err := orchestrator.CategorizeTransaction(context.Background(), parsedTxn("COMERCIO RARO"))
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Zero(t, fallback.calls)
}

func TestCategorizeTransaction_BudgetExhaustedIsNotFatal(t *testing.T) {
	txnStore := &stubTxnStore{}
	fallback := &stubCategorizer{err: common.ErrBudgetExhausted}
	orchestrator := New(rules.NewEngine(&stubRuleStore{}), fallback, txnStore, Config{LLMEnabled: true}, nil)

	result, err := orchestrator.CategorizeTransaction(context.Background(), parsedTxn("COMERCIO RARO"))
	require.NoError(t, err, "an exhausted budget leaves the transaction uncategorized")
	assert.Nil(t, result)
}

func TestCategorizeTransaction_LowConfidenceFlagsReview(t *testing.T) {
	txnStore := &stubTxnStore{}
	fallback := &stubCategorizer{result: &model.CategorizationResult{
		CategoryID: 2,
		Confidence: 0.4,
		Source:     "llm:test-model",
	}}
	orchestrator := New(rules.NewEngine(&stubRuleStore{}), fallback, txnStore, Config{LLMEnabled: true}, nil)

	_, err := orchestrator.CategorizeTransaction(context.Background(), parsedTxn("COMERCIO RARO"))
	require.NoError(t, err)
	require.Len(t, txnStore.applied, 1)
	assert.True(t, txnStore.applied[0].NeedsReview)
}

func TestCategorizeTransaction_UncategorizedLowParseConfidenceFlagsReview(t *testing.T) {
	txnStore := &stubTxnStore{}
	orchestrator := New(rules.NewEngine(&stubRuleStore{}), nil, txnStore, Config{}, nil)

	lowConf := 0.3
	txn := parsedTxn("COMERCIO RARO")
	txn.ParseConfidence = &lowConf

	result, err := orchestrator.CategorizeTransaction(context.Background(), txn)
	require.NoError(t, err)
	assert.Nil(t, result)
	require.Len(t, txnStore.applied, 1)
	assert.True(t, txnStore.applied[0].NeedsReview)
}

func TestCategorizePending_IsolatesFailures(t *testing.T) {
	txnStore := &stubTxnStore{pending: []model.Transaction{
		*parsedTxn("UBER TRIP"),
		*parsedTxn("COMERCIO RARO"),
	}}
	ruleStore := &stubRuleStore{rules: []model.CategoryRule{{
		ID: 1, CategoryID: 7,
		MatchField: model.MatchFieldMerchant,
		MatchType:  model.MatchContains,
		MatchValue: "UBER",
		IsActive:   true,
	}}}
	fallback := &stubCategorizer{err: errors.New("provider down")}
	orchestrator := New(rules.NewEngine(ruleStore), fallback, txnStore, Config{LLMEnabled: true}, nil)

	categorized, failed, err := orchestrator.CategorizePending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, categorized)
	assert.Equal(t, 1, failed, "one provider failure must not abort the batch")
}
