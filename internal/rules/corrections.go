package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/service"
)

// ApplyCorrection re-categorizes a transaction by hand. It snapshots the
// change as a TransactionCorrection, marks the transaction manually
// categorized at full confidence, and files a rule suggestion for the
// merchant so repeated fixes can become deterministic rules. Returns nil
// without error when the correction changes nothing.
func ApplyCorrection(ctx context.Context, txns service.TransactionStore, suggestions service.SuggestionStore, txn *model.Transaction, categoryID int64, subcategoryID *int64) (*model.TransactionCorrection, error) {
	var changed []string
	if txn.CategoryID == nil || *txn.CategoryID != categoryID {
		changed = append(changed, "category_id")
	}
	if !sameID(txn.SubcategoryID, subcategoryID) {
		changed = append(changed, "subcategory_id")
	}
	if len(changed) == 0 {
		return nil, nil
	}

	correction := &model.TransactionCorrection{
		TransactionID:         txn.ID,
		PreviousCategoryID:    txn.CategoryID,
		NewCategoryID:         &categoryID,
		PreviousSubcategoryID: txn.SubcategoryID,
		NewSubcategoryID:      subcategoryID,
		PreviousMerchantName:  txn.MerchantName,
		NewMerchantName:       txn.MerchantName,
		ChangedFields:         changed,
	}
	if err := suggestions.SaveCorrection(ctx, correction); err != nil {
		return nil, fmt.Errorf("failed to record correction: %w", err)
	}

	confidence := 1.0
	txn.CategoryID = &categoryID
	txn.SubcategoryID = subcategoryID
	txn.CategoryConfidence = &confidence
	txn.CategorySource = "manual"
	if txn.Metadata == nil {
		txn.Metadata = map[string]any{}
	}
	txn.Metadata["manual_override"] = map[string]any{
		"correction_id": correction.ID,
		"at":            time.Now().UTC().Format(time.RFC3339),
		"fields":        changed,
	}
	if err := txns.ApplyCategorization(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to apply correction: %w", err)
	}

	if _, err := SuggestFromCorrection(ctx, suggestions, correction, txn); err != nil {
		return nil, err
	}
	return correction, nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
