package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/service"
)

// Promotion priorities: promoted rules outrank seeded defaults (120) but
// stay behind manually tuned rules.
const (
	promotedPriority = 80
	seededPriority   = 120
)

// PromotionResult reports the rule a transaction was promoted into.
type PromotionResult struct {
	Rule    *model.CategoryRule
	Created bool
}

// PromoteTransaction turns a categorized transaction into a contains-rule on
// its merchant name, optionally restricted to the transaction's card.
// Promoting the same transaction twice reuses the existing rule.
func PromoteTransaction(ctx context.Context, store service.RuleStore, txn *model.Transaction, includeCard bool, origin model.RuleOrigin) (*PromotionResult, error) {
	merchant := strings.TrimSpace(txn.MerchantName)
	if merchant == "" {
		return nil, fmt.Errorf("transaction %d has no merchant name", txn.ID)
	}
	if txn.CategoryID == nil {
		return nil, fmt.Errorf("transaction %d has no category assigned", txn.ID)
	}
	if origin == "" {
		origin = model.OriginPromoted
	}

	rule := &model.CategoryRule{
		CategoryID: *txn.CategoryID,
		MatchField: model.MatchFieldMerchant,
		MatchType:  model.MatchContains,
		MatchValue: merchant,
		Priority:   promotedPriority,
		Origin:     origin,
		Notes:      fmt.Sprintf("Creada desde transacción %d", txn.ID),
		IsActive:   true,
	}
	if includeCard && txn.CardLast4 != "" {
		rule.CardLast4 = txn.CardLast4
	}

	created, err := store.GetOrCreateRule(ctx, rule)
	if err != nil {
		return nil, fmt.Errorf("failed to promote transaction %d: %w", txn.ID, err)
	}

	return &PromotionResult{Rule: rule, Created: created}, nil
}
