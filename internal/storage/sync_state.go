package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jpvargas/gastotrack/internal/model"
)

// GetOrCreateSyncState loads the checkpoint for a (provider, label) mailbox,
// creating an empty one on first sync.
func (s *SQLiteStorage) GetOrCreateSyncState(ctx context.Context, provider model.EmailProvider, label string) (*model.MailSyncState, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if provider == "" {
		return nil, fmt.Errorf("%w: provider", ErrEmptyString)
	}

	state, err := s.getSyncState(ctx, provider, label)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load sync state for %s/%s: %w", provider, label, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mail_sync_state (provider, label) VALUES (?, ?)`,
		string(provider), label)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync state for %s/%s: %w", provider, label, err)
	}

	state, err = s.getSyncState(ctx, provider, label)
	if err != nil {
		return nil, fmt.Errorf("failed to reload sync state for %s/%s: %w", provider, label, err)
	}
	return state, nil
}

// UpdateSyncState persists the checkpoint fields of an existing state row.
func (s *SQLiteStorage) UpdateSyncState(ctx context.Context, state *model.MailSyncState) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("%w: state", ErrNilParameter)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE mail_sync_state
		SET history_id = ?, query = ?, retry_count = ?, last_synced_at = ?
		WHERE id = ?`,
		state.HistoryID, state.Query, state.RetryCount, state.LastSyncedAt, state.ID)
	if err != nil {
		return fmt.Errorf("failed to update sync state %d: %w", state.ID, err)
	}
	return requireRowAffected(result, "sync state", state.ID)
}

// IncrementFetched bumps the fetched-message counter atomically in place.
func (s *SQLiteStorage) IncrementFetched(ctx context.Context, id int64, n int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE mail_sync_state SET fetched_messages = fetched_messages + ? WHERE id = ?`,
		n, id)
	if err != nil {
		return fmt.Errorf("failed to increment fetched counter for sync state %d: %w", id, err)
	}
	return requireRowAffected(result, "sync state", id)
}

func (s *SQLiteStorage) getSyncState(ctx context.Context, provider model.EmailProvider, label string) (*model.MailSyncState, error) {
	var state model.MailSyncState
	var providerStr string
	var historyID, query sql.NullString
	var lastSyncedAt, createdAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, provider, label, history_id, query, fetched_messages,
		       retry_count, last_synced_at, created_at
		FROM mail_sync_state WHERE provider = ? AND label = ?`,
		string(provider), label,
	).Scan(&state.ID, &providerStr, &state.Label, &historyID, &query,
		&state.FetchedMessages, &state.RetryCount, &lastSyncedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	state.Provider = model.EmailProvider(providerStr)
	state.HistoryID = historyID.String
	state.Query = query.String
	state.CreatedAt = createdAt.Time
	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		state.LastSyncedAt = &t
	}
	return &state, nil
}
