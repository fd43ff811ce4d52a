package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
)

// SaveDecision appends an immutable LLM decision record.
func (s *SQLiteStorage) SaveDecision(ctx context.Context, d *model.DecisionLog) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateDecision(d); err != nil {
		return err
	}

	metadataJSON, err := marshalMetadata(d.Metadata)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_logs (
			decision_type, model_name, cache_key, prompt, response,
			email_id, transaction_id, tokens_prompt, tokens_completion, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(d.DecisionType), d.ModelName, d.CacheKey, d.Prompt, d.Response,
		d.EmailID, d.TransactionID, d.TokensPrompt, d.TokensCompletion, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save decision: %w", err)
	}

	d.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get decision id: %w", err)
	}
	return nil
}

// GetDecisionByCacheKey returns the most recent decision of the given type
// carrying the cache key.
func (s *SQLiteStorage) GetDecisionByCacheKey(ctx context.Context, dt model.DecisionType, cacheKey string) (*model.DecisionLog, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(cacheKey, "cacheKey"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, decision_type, model_name, cache_key, prompt, response,
		       email_id, transaction_id, tokens_prompt, tokens_completion,
		       metadata, created_at
		FROM decision_logs
		WHERE decision_type = ? AND cache_key = ?
		ORDER BY id DESC LIMIT 1`,
		string(dt), cacheKey)

	decision, err := scanDecision(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("decision %s: %w", cacheKey, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get decision by cache key: %w", err)
	}
	return decision, nil
}

// CountDecisionsSince counts decisions of the given type created at or after
// the cutoff. The LLM budget check relies on this.
func (s *SQLiteStorage) CountDecisionsSince(ctx context.Context, dt model.DecisionType, since time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	// created_at is stamped by SQLite in UTC; compare in the same zone.
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM decision_logs
		WHERE decision_type = ? AND created_at >= ?`,
		string(dt), since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count decisions: %w", err)
	}
	return count, nil
}

func scanDecision(row rowScanner) (*model.DecisionLog, error) {
	var decision model.DecisionLog
	var decisionType string
	var prompt, response, metadataJSON sql.NullString
	var createdAt sql.NullTime

	err := row.Scan(&decision.ID, &decisionType, &decision.ModelName,
		&decision.CacheKey, &prompt, &response, &decision.EmailID,
		&decision.TransactionID, &decision.TokensPrompt,
		&decision.TokensCompletion, &metadataJSON, &createdAt)
	if err != nil {
		return nil, err
	}

	decision.DecisionType = model.DecisionType(decisionType)
	decision.Prompt = prompt.String
	decision.Response = response.String
	decision.CreatedAt = createdAt.Time

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &decision.Metadata); err != nil {
			return nil, fmt.Errorf("invalid stored metadata: %w", err)
		}
	}
	return &decision, nil
}
