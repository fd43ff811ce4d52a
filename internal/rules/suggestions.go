package rules

import (
	"context"
	"fmt"

	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/service"
)

// SuggestFromCorrection records a pending rule suggestion for a manually
// corrected transaction. It returns nil without error when the transaction
// lacks a merchant or category, since no useful rule can be derived.
func SuggestFromCorrection(ctx context.Context, store service.SuggestionStore, correction *model.TransactionCorrection, txn *model.Transaction) (*model.RuleSuggestion, error) {
	if txn == nil || txn.CategoryID == nil || txn.MerchantName == "" {
		return nil, nil
	}

	suggestion := &model.RuleSuggestion{
		TransactionID: &txn.ID,
		CorrectionID:  &correction.ID,
		MerchantName:  txn.MerchantName,
		CardLast4:     txn.CardLast4,
		CategoryID:    *txn.CategoryID,
		Status:        model.SuggestionPending,
	}

	if _, err := store.GetOrCreatePendingSuggestion(ctx, suggestion); err != nil {
		return nil, fmt.Errorf("failed to record rule suggestion: %w", err)
	}
	return suggestion, nil
}

// AcceptSuggestion converts a pending suggestion into a category rule and
// marks the suggestion accepted.
func AcceptSuggestion(ctx context.Context, rulesStore service.RuleStore, suggestions service.SuggestionStore, suggestion *model.RuleSuggestion) (*model.CategoryRule, error) {
	if suggestion.Status != model.SuggestionPending {
		return nil, fmt.Errorf("suggestion %d was already resolved", suggestion.ID)
	}

	rule := &model.CategoryRule{
		CategoryID: suggestion.CategoryID,
		MatchField: model.MatchFieldMerchant,
		MatchType:  model.MatchContains,
		MatchValue: suggestion.MerchantName,
		CardLast4:  suggestion.CardLast4,
		Priority:   promotedPriority,
		Origin:     model.OriginSuggested,
		IsActive:   true,
	}
	if _, err := rulesStore.GetOrCreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule from suggestion %d: %w", suggestion.ID, err)
	}

	reason := fmt.Sprintf("Regla %d", rule.ID)
	if err := suggestions.UpdateSuggestionStatus(ctx, suggestion.ID, model.SuggestionAccepted, reason); err != nil {
		return nil, fmt.Errorf("failed to mark suggestion %d accepted: %w", suggestion.ID, err)
	}
	return rule, nil
}

// RejectSuggestion marks a pending suggestion rejected.
func RejectSuggestion(ctx context.Context, store service.SuggestionStore, suggestion *model.RuleSuggestion, reason string) error {
	if suggestion.Status != model.SuggestionPending {
		return fmt.Errorf("suggestion %d was already resolved", suggestion.ID)
	}
	if len(reason) > 250 {
		reason = reason[:250]
	}
	return store.UpdateSuggestionStatus(ctx, suggestion.ID, model.SuggestionRejected, reason)
}
