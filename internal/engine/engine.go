// Package engine orchestrates transaction categorization: deterministic
// rules first, the LLM fallback second, and review flagging on the result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/review"
	"github.com/jpvargas/gastotrack/internal/rules"
	"github.com/jpvargas/gastotrack/internal/service"
)

// Categorizer produces a category for a transaction the rule engine passed
// over. A nil result with nil error means no category could be settled on.
type Categorizer interface {
	Categorize(ctx context.Context, txn *model.Transaction) (*model.CategorizationResult, error)
}

// Config tunes the orchestrator.
type Config struct {
	// ReviewThreshold flags transactions whose confidence falls below it.
	// Zero means the default threshold.
	ReviewThreshold float64
	// LLMEnabled gates the fallback categorizer.
	LLMEnabled bool
}

// Orchestrator runs the two-stage categorization flow.
type Orchestrator struct {
	rules    *rules.Engine
	fallback Categorizer
	store    service.TransactionStore
	logger   *slog.Logger
	cfg      Config
}

// New creates a categorization orchestrator. The fallback may be nil when no
// LLM is configured.
func New(ruleEngine *rules.Engine, fallback Categorizer, store service.TransactionStore, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		rules:    ruleEngine,
		fallback: fallback,
		store:    store,
		logger:   logger,
		cfg:      cfg,
	}
}

// CategorizeTransaction resolves and persists a category for one transaction.
// It returns the applied result, or nil when no stage produced one; a
// transaction left uncategorized is not an error.
func (o *Orchestrator) CategorizeTransaction(ctx context.Context, txn *model.Transaction) (*model.CategorizationResult, error) {
	result, err := o.rules.Evaluate(ctx, txn)
	if err != nil {
		return nil, fmt.Errorf("rule evaluation failed: %w", err)
	}

	if result == nil && o.cfg.LLMEnabled && o.fallback != nil {
		result, err = o.fallback.Categorize(ctx, txn)
		if err != nil {
			if errors.Is(err, common.ErrBudgetExhausted) {
				o.logger.Warn("LLM call budget exhausted, leaving transaction uncategorized",
					"transaction_id", txn.ID)
				return nil, nil
			}
			return nil, fmt.Errorf("fallback categorization failed: %w", err)
		}
	}

	if result == nil {
		o.updateReviewFlag(ctx, txn)
		return nil, nil
	}

	if err := o.applyResult(ctx, txn, result); err != nil {
		return nil, err
	}
	return result, nil
}

// CategorizePending categorizes up to limit uncategorized transactions. A
// failure on one transaction is logged and counted, never aborting the batch.
func (o *Orchestrator) CategorizePending(ctx context.Context, limit int) (categorized, failed int, err error) {
	pending, err := o.store.GetUncategorizedTransactions(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load uncategorized transactions: %w", err)
	}

	for i := range pending {
		txn := &pending[i]
		result, txnErr := o.CategorizeTransaction(ctx, txn)
		if txnErr != nil {
			o.logger.Error("failed to categorize transaction",
				"transaction_id", txn.ID, "error", txnErr)
			failed++
			continue
		}
		if result != nil {
			categorized++
		}
	}
	return categorized, failed, nil
}

// applyResult writes the categorization onto the transaction and persists it.
func (o *Orchestrator) applyResult(ctx context.Context, txn *model.Transaction, result *model.CategorizationResult) error {
	confidence := result.Confidence
	txn.CategoryID = &result.CategoryID
	txn.SubcategoryID = result.SubcategoryID
	txn.CategoryConfidence = &confidence
	txn.CategorySource = result.Source
	txn.NeedsReview = review.ShouldFlag(txn.ParseConfidence, txn.CategoryConfidence, o.cfg.ReviewThreshold)

	if result.RuleID != nil {
		if txn.Metadata == nil {
			txn.Metadata = make(map[string]any)
		}
		txn.Metadata["rule_id"] = *result.RuleID
	}

	if err := o.store.ApplyCategorization(ctx, txn); err != nil {
		return fmt.Errorf("failed to persist categorization: %w", err)
	}

	o.logger.Info("transaction categorized",
		"transaction_id", txn.ID,
		"category_id", result.CategoryID,
		"source", result.Source,
		"confidence", confidence,
		"needs_review", txn.NeedsReview)
	return nil
}

// updateReviewFlag re-evaluates the review flag of a transaction that stayed
// uncategorized, so low parse confidence still surfaces it.
func (o *Orchestrator) updateReviewFlag(ctx context.Context, txn *model.Transaction) {
	needsReview := review.ShouldFlag(txn.ParseConfidence, nil, o.cfg.ReviewThreshold)
	if needsReview == txn.NeedsReview {
		return
	}
	txn.NeedsReview = needsReview
	if err := o.store.ApplyCategorization(ctx, txn); err != nil {
		o.logger.Warn("failed to update review flag",
			"transaction_id", txn.ID, "error", err)
	}
}
