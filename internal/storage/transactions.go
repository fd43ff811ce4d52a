package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
)

const transactionColumns = `
	id, email_id, reference_id, date, amount, currency, merchant_name, description,
	card_last4, card_id, parse_status, parse_confidence, category_id, subcategory_id,
	category_confidence, category_source, needs_review, metadata, created_at, updated_at`

// UpsertTransaction creates the transaction or updates the existing row
// holding the same (email_id, reference_id) pair.
func (s *SQLiteStorage) UpsertTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	metadataJSON, err := marshalMetadata(txn.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			email_id, reference_id, date, amount, currency, merchant_name, description,
			card_last4, card_id, parse_status, parse_confidence, category_id,
			subcategory_id, category_confidence, category_source, needs_review, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email_id, reference_id) DO UPDATE SET
			date = excluded.date,
			amount = excluded.amount,
			currency = excluded.currency,
			merchant_name = excluded.merchant_name,
			description = excluded.description,
			card_last4 = excluded.card_last4,
			card_id = excluded.card_id,
			parse_status = excluded.parse_status,
			parse_confidence = excluded.parse_confidence,
			needs_review = excluded.needs_review,
			updated_at = CURRENT_TIMESTAMP`,
		txn.EmailID, txn.ReferenceID, txn.Date, txn.Amount.String(), txn.Currency,
		txn.MerchantName, txn.Description, txn.CardLast4, txn.CardID,
		string(txn.ParseStatus), txn.ParseConfidence, txn.CategoryID,
		txn.SubcategoryID, txn.CategoryConfidence, txn.CategorySource,
		txn.NeedsReview, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction for email %d: %w", txn.EmailID, err)
	}

	if txn.ID == 0 {
		// LastInsertId is unreliable after an upsert that updated; resolve the
		// row id by its natural key instead.
		row := s.db.QueryRowContext(ctx,
			`SELECT id FROM transactions WHERE email_id = ? AND reference_id = ?`,
			txn.EmailID, txn.ReferenceID)
		if scanErr := row.Scan(&txn.ID); scanErr != nil {
			return fmt.Errorf("failed to resolve transaction id: %w", scanErr)
		}
	}
	return nil
}

// ReplaceTransactionParse overwrites the parse-derived fields of an existing
// transaction and, in the same database transaction, removes any other row on
// the same email already holding the new reference id. The delete must happen
// first or the unique (email_id, reference_id) constraint rejects the update.
func (s *SQLiteStorage) ReplaceTransactionParse(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}
	if txn.ID == 0 {
		return fmt.Errorf("%w: transaction ID", ErrInvalidTxn)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM transactions WHERE email_id = ? AND reference_id = ? AND id != ?`,
			txn.EmailID, txn.ReferenceID, txn.ID)
		if err != nil {
			return fmt.Errorf("failed to remove stale duplicate: %w", err)
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE transactions
			SET reference_id = ?, date = ?, amount = ?, currency = ?, merchant_name = ?,
			    description = ?, card_last4 = ?, card_id = ?, parse_status = ?,
			    parse_confidence = ?, needs_review = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			txn.ReferenceID, txn.Date, txn.Amount.String(), txn.Currency,
			txn.MerchantName, txn.Description, txn.CardLast4, txn.CardID,
			string(txn.ParseStatus), txn.ParseConfidence, txn.NeedsReview, txn.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to replace transaction %d parse: %w", txn.ID, err)
		}
		return requireRowAffected(result, "transaction", txn.ID)
	})
}

// GetTransaction retrieves a single transaction by id.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id int64) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)

	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("transaction %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction %d: %w", id, err)
	}
	return txn, nil
}

// GetTransactionsByEmail returns all transactions extracted from one email.
func (s *SQLiteStorage) GetTransactionsByEmail(ctx context.Context, emailID int64) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE email_id = ? ORDER BY id`, emailID)
}

// GetUncategorizedTransactions returns parsed transactions without a category,
// oldest first.
func (s *SQLiteStorage) GetUncategorizedTransactions(ctx context.Context, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE category_id IS NULL AND parse_status = ?
		ORDER BY date ASC
		LIMIT ?`, string(model.ParseParsed), limit)
}

// ApplyCategorization persists the category fields, metadata and review flag
// of the transaction; parse-derived fields are left untouched.
func (s *SQLiteStorage) ApplyCategorization(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == 0 {
		return fmt.Errorf("%w: transaction ID", ErrInvalidTxn)
	}

	metadataJSON, err := marshalMetadata(txn.Metadata)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category_id = ?, subcategory_id = ?, category_confidence = ?,
		    category_source = ?, needs_review = ?, metadata = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		txn.CategoryID, txn.SubcategoryID, txn.CategoryConfidence,
		txn.CategorySource, txn.NeedsReview, metadataJSON, txn.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to categorize transaction %d: %w", txn.ID, err)
	}
	return requireRowAffected(result, "transaction", txn.ID)
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txns []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", scanErr)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var txn model.Transaction
	var amount string
	var merchant, description, cardLast4, parseStatus, categorySource, metadataJSON sql.NullString
	var createdAt, updatedAt sql.NullTime

	err := row.Scan(&txn.ID, &txn.EmailID, &txn.ReferenceID, &txn.Date, &amount,
		&txn.Currency, &merchant, &description, &cardLast4, &txn.CardID,
		&parseStatus, &txn.ParseConfidence, &txn.CategoryID, &txn.SubcategoryID,
		&txn.CategoryConfidence, &categorySource, &txn.NeedsReview,
		&metadataJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	txn.MerchantName = merchant.String
	txn.Description = description.String
	txn.CardLast4 = cardLast4.String
	txn.ParseStatus = model.ParseStatus(parseStatus.String)
	txn.CategorySource = categorySource.String
	txn.CreatedAt = createdAt.Time
	txn.UpdatedAt = updatedAt.Time

	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &txn.Metadata); err != nil {
			return nil, fmt.Errorf("invalid stored metadata: %w", err)
		}
	}
	return &txn, nil
}

func marshalMetadata(metadata map[string]any) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(data), nil
}
