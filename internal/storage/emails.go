package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
)

// SaveEmail inserts the email or refreshes the existing row with the same
// (provider, message_id). It reports whether a new row was created.
func (s *SQLiteStorage) SaveEmail(ctx context.Context, email *model.RawEmail) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateEmail(email); err != nil {
		return false, err
	}

	var existingID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM raw_emails WHERE provider = ? AND message_id = ?`,
		string(email.Provider), email.MessageID,
	).Scan(&existingID)

	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx, `
			UPDATE raw_emails
			SET thread_id = ?, subject = ?, sender = ?, snippet = ?, body = ?, internal_date = ?
			WHERE id = ?`,
			email.ThreadID, email.Subject, email.Sender, email.Snippet, email.Body,
			email.InternalDate, existingID,
		)
		if err != nil {
			return false, fmt.Errorf("failed to update email %s: %w", email.MessageID, err)
		}
		email.ID = existingID
		return false, nil

	case errors.Is(err, sql.ErrNoRows):
		result, insertErr := s.db.ExecContext(ctx, `
			INSERT INTO raw_emails (provider, message_id, thread_id, subject, sender, snippet, body, internal_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			string(email.Provider), email.MessageID, email.ThreadID, email.Subject,
			email.Sender, email.Snippet, email.Body, email.InternalDate,
		)
		if insertErr != nil {
			return false, fmt.Errorf("failed to insert email %s: %w", email.MessageID, insertErr)
		}
		id, idErr := result.LastInsertId()
		if idErr != nil {
			return false, fmt.Errorf("failed to get email id: %w", idErr)
		}
		email.ID = id
		return true, nil

	default:
		return false, fmt.Errorf("failed to look up email %s: %w", email.MessageID, err)
	}
}

// GetEmail retrieves a single email by id.
func (s *SQLiteStorage) GetEmail(ctx context.Context, id int64) (*model.RawEmail, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider, message_id, thread_id, subject, sender, snippet, body,
		       internal_date, processed_at, parse_attempts, created_at
		FROM raw_emails WHERE id = ?`, id)

	email, err := scanEmail(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("email %d: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get email %d: %w", id, err)
	}
	return email, nil
}

// GetUnprocessedEmails returns emails without a processed_at timestamp,
// newest first.
func (s *SQLiteStorage) GetUnprocessedEmails(ctx context.Context, limit int) ([]model.RawEmail, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider, message_id, thread_id, subject, sender, snippet, body,
		       internal_date, processed_at, parse_attempts, created_at
		FROM raw_emails
		WHERE processed_at IS NULL
		ORDER BY internal_date DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed emails: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var emails []model.RawEmail
	for rows.Next() {
		email, scanErr := scanEmail(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan email: %w", scanErr)
		}
		emails = append(emails, *email)
	}
	return emails, rows.Err()
}

// MarkEmailProcessed sets processed_at and increments the parse-attempt
// counter in one statement.
func (s *SQLiteStorage) MarkEmailProcessed(ctx context.Context, id int64, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE raw_emails
		SET processed_at = ?, parse_attempts = parse_attempts + 1
		WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark email %d processed: %w", id, err)
	}
	return requireRowAffected(result, "email", id)
}

// IncrementParseAttempts records a failed parse attempt without marking the
// email processed, leaving it available for reparse.
func (s *SQLiteStorage) IncrementParseAttempts(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE raw_emails SET parse_attempts = parse_attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment parse attempts for email %d: %w", id, err)
	}
	return requireRowAffected(result, "email", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(row rowScanner) (*model.RawEmail, error) {
	var email model.RawEmail
	var provider string
	var threadID, subject, sender, snippet, body sql.NullString
	var internalDate, processedAt, createdAt sql.NullTime

	err := row.Scan(&email.ID, &provider, &email.MessageID, &threadID, &subject,
		&sender, &snippet, &body, &internalDate, &processedAt,
		&email.ParseAttempts, &createdAt)
	if err != nil {
		return nil, err
	}

	email.Provider = model.EmailProvider(provider)
	email.ThreadID = threadID.String
	email.Subject = subject.String
	email.Sender = sender.String
	email.Snippet = snippet.String
	email.Body = body.String
	email.InternalDate = internalDate.Time
	email.CreatedAt = createdAt.Time
	if processedAt.Valid {
		t := processedAt.Time
		email.ProcessedAt = &t
	}
	return &email, nil
}

func requireRowAffected(result sql.Result, kind string, id any) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", kind, id, common.ErrNotFound)
	}
	return nil
}
