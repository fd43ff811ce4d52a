package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jpvargas/gastotrack/internal/model"
)

const ruleColumns = `
	id, category_id, subcategory_id, match_field, match_type, match_value,
	card_last4, priority, origin, notes, is_active, created_at, updated_at`

// ListActiveRules returns active rules ordered by ascending priority, ties
// broken by match value.
func (s *SQLiteStorage) ListActiveRules(ctx context.Context) ([]model.CategoryRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM category_rules
		WHERE is_active = 1
		ORDER BY priority ASC, match_value ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.CategoryRule
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", scanErr)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// CreateRule inserts a new rule.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.CategoryRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.Origin == "" {
		rule.Origin = model.OriginManual
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO category_rules (
			category_id, subcategory_id, match_field, match_type, match_value,
			card_last4, priority, origin, notes, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.CategoryID, rule.SubcategoryID, string(rule.MatchField),
		string(rule.MatchType), rule.MatchValue, rule.CardLast4, rule.Priority,
		string(rule.Origin), rule.Notes, rule.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create rule %q: %w", rule.MatchValue, err)
	}

	rule.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule id: %w", err)
	}
	return nil
}

// GetOrCreateRule finds a rule with the same category, match field, match
// type, match value and card restriction, creating it when absent. It reports
// whether a new rule was created.
func (s *SQLiteStorage) GetOrCreateRule(ctx context.Context, rule *model.CategoryRule) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateRule(rule); err != nil {
		return false, err
	}

	var existingID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM category_rules
		WHERE category_id = ? AND match_field = ? AND match_type = ?
		  AND match_value = ? AND card_last4 = ?`,
		rule.CategoryID, string(rule.MatchField), string(rule.MatchType),
		rule.MatchValue, rule.CardLast4,
	).Scan(&existingID)

	switch {
	case err == nil:
		rule.ID = existingID
		return false, nil
	case errors.Is(err, sql.ErrNoRows):
		if createErr := s.CreateRule(ctx, rule); createErr != nil {
			return false, createErr
		}
		return true, nil
	default:
		return false, fmt.Errorf("failed to look up rule %q: %w", rule.MatchValue, err)
	}
}

// CountRules returns the total number of rules, active or not.
func (s *SQLiteStorage) CountRules(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM category_rules`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rules: %w", err)
	}
	return count, nil
}

func scanRule(row rowScanner) (*model.CategoryRule, error) {
	var rule model.CategoryRule
	var matchField, matchType, origin string
	var notes sql.NullString
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(&rule.ID, &rule.CategoryID, &rule.SubcategoryID, &matchField,
		&matchType, &rule.MatchValue, &rule.CardLast4, &rule.Priority, &origin,
		&notes, &rule.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rule.MatchField = model.MatchField(matchField)
	rule.MatchType = model.MatchType(matchType)
	rule.Origin = model.RuleOrigin(origin)
	rule.Notes = notes.String
	rule.CreatedAt = createdAt.Time
	rule.UpdatedAt = updatedAt.Time
	return &rule, nil
}
