package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
)

const suggestionColumns = `
	id, transaction_id, correction_id, merchant_name, card_last4, category_id,
	status, reason, created_at, updated_at`

// GetOrCreatePendingSuggestion dedupes on (merchant, category, card, pending
// status) and reports whether a new suggestion was created.
func (s *SQLiteStorage) GetOrCreatePendingSuggestion(ctx context.Context, suggestion *model.RuleSuggestion) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if suggestion == nil {
		return false, fmt.Errorf("%w: suggestion", ErrNilParameter)
	}
	if err := validateString(suggestion.MerchantName, "merchantName"); err != nil {
		return false, err
	}

	var existingID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM rule_suggestions
		WHERE merchant_name = ? AND category_id = ? AND card_last4 = ? AND status = ?`,
		suggestion.MerchantName, suggestion.CategoryID, suggestion.CardLast4,
		string(model.SuggestionPending),
	).Scan(&existingID)

	switch {
	case err == nil:
		suggestion.ID = existingID
		suggestion.Status = model.SuggestionPending
		return false, nil

	case errors.Is(err, sql.ErrNoRows):
		result, insertErr := s.db.ExecContext(ctx, `
			INSERT INTO rule_suggestions (
				transaction_id, correction_id, merchant_name, card_last4, category_id, status, reason
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			suggestion.TransactionID, suggestion.CorrectionID, suggestion.MerchantName,
			suggestion.CardLast4, suggestion.CategoryID, string(model.SuggestionPending),
			suggestion.Reason,
		)
		if insertErr != nil {
			return false, fmt.Errorf("failed to create suggestion for %q: %w", suggestion.MerchantName, insertErr)
		}
		suggestion.ID, insertErr = result.LastInsertId()
		if insertErr != nil {
			return false, fmt.Errorf("failed to get suggestion id: %w", insertErr)
		}
		suggestion.Status = model.SuggestionPending
		return true, nil

	default:
		return false, fmt.Errorf("failed to look up suggestion for %q: %w", suggestion.MerchantName, err)
	}
}

// GetSuggestion retrieves a single suggestion by id.
func (s *SQLiteStorage) GetSuggestion(ctx context.Context, id int64) (*model.RuleSuggestion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+suggestionColumns+` FROM rule_suggestions WHERE id = ?`, id)

	suggestion, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("suggestion %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get suggestion %d: %w", id, err)
	}
	return suggestion, nil
}

// ListSuggestions returns suggestions with the given status, newest first.
func (s *SQLiteStorage) ListSuggestions(ctx context.Context, status model.SuggestionStatus) ([]model.RuleSuggestion, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+suggestionColumns+`
		FROM rule_suggestions WHERE status = ? ORDER BY created_at DESC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query suggestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var suggestions []model.RuleSuggestion
	for rows.Next() {
		suggestion, scanErr := scanSuggestion(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", scanErr)
		}
		suggestions = append(suggestions, *suggestion)
	}
	return suggestions, rows.Err()
}

// UpdateSuggestionStatus transitions a suggestion to a new status.
func (s *SQLiteStorage) UpdateSuggestionStatus(ctx context.Context, id int64, status model.SuggestionStatus, reason string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE rule_suggestions
		SET status = ?, reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, string(status), reason, id)
	if err != nil {
		return fmt.Errorf("failed to update suggestion %d: %w", id, err)
	}
	return requireRowAffected(result, "suggestion", id)
}

// SaveCorrection records a manual edit to a transaction.
func (s *SQLiteStorage) SaveCorrection(ctx context.Context, c *model.TransactionCorrection) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: correction", ErrNilParameter)
	}
	if c.TransactionID == 0 {
		return fmt.Errorf("%w: missing transaction ID", ErrInvalidRecord)
	}

	changedJSON := ""
	if len(c.ChangedFields) > 0 {
		data, err := json.Marshal(c.ChangedFields)
		if err != nil {
			return fmt.Errorf("failed to marshal changed fields: %w", err)
		}
		changedJSON = string(data)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_corrections (
			transaction_id, previous_category_id, new_category_id,
			previous_subcategory_id, new_subcategory_id,
			previous_merchant_name, new_merchant_name, changed_fields
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.TransactionID, c.PreviousCategoryID, c.NewCategoryID,
		c.PreviousSubcategoryID, c.NewSubcategoryID,
		c.PreviousMerchantName, c.NewMerchantName, changedJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save correction for transaction %d: %w", c.TransactionID, err)
	}

	c.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get correction id: %w", err)
	}
	return nil
}

func scanSuggestion(row rowScanner) (*model.RuleSuggestion, error) {
	var suggestion model.RuleSuggestion
	var status string
	var reason sql.NullString
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(&suggestion.ID, &suggestion.TransactionID, &suggestion.CorrectionID,
		&suggestion.MerchantName, &suggestion.CardLast4, &suggestion.CategoryID,
		&status, &reason, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	suggestion.Status = model.SuggestionStatus(status)
	suggestion.Reason = reason.String
	suggestion.CreatedAt = createdAt.Time
	suggestion.UpdatedAt = updatedAt.Time
	return &suggestion, nil
}
