package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
)

// GetCardByLast4 retrieves a card by its last four digits.
func (s *SQLiteStorage) GetCardByLast4(ctx context.Context, last4 string) (*model.Card, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(last4, "last4"); err != nil {
		return nil, err
	}

	var card model.Card
	var label, bankName, network sql.NullString
	var createdAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, last4, label, bank_name, network, is_active, created_at
		FROM cards WHERE last4 = ?`, last4,
	).Scan(&card.ID, &card.Last4, &label, &bankName, &network, &card.IsActive, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("card %s: %w", last4, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get card %s: %w", last4, err)
	}

	card.Label = label.String
	card.BankName = bankName.String
	card.Network = network.String
	card.CreatedAt = createdAt.Time
	return &card, nil
}

// CreateCard inserts a new card.
func (s *SQLiteStorage) CreateCard(ctx context.Context, card *model.Card) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if card == nil {
		return fmt.Errorf("%w: card", ErrNilParameter)
	}
	if err := validateString(card.Last4, "last4"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (last4, label, bank_name, network, is_active)
		VALUES (?, ?, ?, ?, ?)`,
		card.Last4, card.Label, card.BankName, card.Network, card.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to create card %s: %w", card.Last4, err)
	}

	card.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get card id: %w", err)
	}
	return nil
}
