package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 4

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema: emails, cards, categories, transactions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS raw_emails (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					provider TEXT NOT NULL,
					message_id TEXT NOT NULL,
					thread_id TEXT,
					subject TEXT,
					sender TEXT,
					snippet TEXT,
					body TEXT,
					internal_date DATETIME,
					processed_at DATETIME,
					parse_attempts INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(provider, message_id)
				)`,
				`CREATE INDEX idx_raw_emails_unprocessed ON raw_emails(processed_at) WHERE processed_at IS NULL`,

				`CREATE TABLE IF NOT EXISTS cards (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					last4 TEXT NOT NULL UNIQUE,
					label TEXT,
					bank_name TEXT,
					network TEXT,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					code TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL,
					description TEXT,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS subcategories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					category_id INTEGER NOT NULL,
					name TEXT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(category_id, name),
					FOREIGN KEY (category_id) REFERENCES categories(id)
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					email_id INTEGER NOT NULL,
					reference_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					amount TEXT NOT NULL,
					currency TEXT NOT NULL,
					merchant_name TEXT,
					description TEXT,
					card_last4 TEXT,
					card_id INTEGER,
					parse_status TEXT NOT NULL DEFAULT 'pending',
					parse_confidence REAL,
					category_id INTEGER,
					subcategory_id INTEGER,
					category_confidence REAL,
					category_source TEXT,
					needs_review BOOLEAN NOT NULL DEFAULT 0,
					metadata TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(email_id, reference_id),
					FOREIGN KEY (email_id) REFERENCES raw_emails(id),
					FOREIGN KEY (card_id) REFERENCES cards(id),
					FOREIGN KEY (category_id) REFERENCES categories(id),
					FOREIGN KEY (subcategory_id) REFERENCES subcategories(id)
				)`,
				`CREATE INDEX idx_transactions_date ON transactions(date)`,
				`CREATE INDEX idx_transactions_merchant ON transactions(merchant_name)`,
				`CREATE INDEX idx_transactions_uncategorized ON transactions(category_id) WHERE category_id IS NULL`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Category rules",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS category_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					category_id INTEGER NOT NULL,
					subcategory_id INTEGER,
					match_field TEXT NOT NULL,
					match_type TEXT NOT NULL,
					match_value TEXT NOT NULL DEFAULT '',
					card_last4 TEXT NOT NULL DEFAULT '',
					priority INTEGER NOT NULL DEFAULT 100,
					origin TEXT NOT NULL DEFAULT 'manual',
					notes TEXT,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (category_id) REFERENCES categories(id),
					FOREIGN KEY (subcategory_id) REFERENCES subcategories(id)
				)`,
				`CREATE INDEX idx_category_rules_active ON category_rules(is_active, priority)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Decision logs for LLM auditing and caching",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS decision_logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					decision_type TEXT NOT NULL,
					model_name TEXT NOT NULL,
					cache_key TEXT NOT NULL DEFAULT '',
					prompt TEXT,
					response TEXT,
					email_id INTEGER,
					transaction_id INTEGER,
					tokens_prompt INTEGER,
					tokens_completion INTEGER,
					metadata TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_decision_logs_cache ON decision_logs(decision_type, cache_key)`,
				`CREATE INDEX idx_decision_logs_created ON decision_logs(decision_type, created_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     4,
		Description: "Import jobs, sync state, corrections and rule suggestions",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS import_jobs (
					id TEXT PRIMARY KEY,
					provider TEXT NOT NULL,
					query TEXT,
					status TEXT NOT NULL DEFAULT 'pending',
					error TEXT,
					max_messages INTEGER NOT NULL DEFAULT 0,
					total_emails INTEGER NOT NULL DEFAULT 0,
					processed_count INTEGER NOT NULL DEFAULT 0,
					created_count INTEGER NOT NULL DEFAULT 0,
					error_count INTEGER NOT NULL DEFAULT 0,
					started_at DATETIME,
					finished_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS mail_sync_state (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					provider TEXT NOT NULL,
					label TEXT NOT NULL DEFAULT '',
					history_id TEXT,
					query TEXT,
					fetched_messages INTEGER NOT NULL DEFAULT 0,
					retry_count INTEGER NOT NULL DEFAULT 0,
					last_synced_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(provider, label)
				)`,

				`CREATE TABLE IF NOT EXISTS transaction_corrections (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					transaction_id INTEGER NOT NULL,
					previous_category_id INTEGER,
					new_category_id INTEGER,
					previous_subcategory_id INTEGER,
					new_subcategory_id INTEGER,
					previous_merchant_name TEXT,
					new_merchant_name TEXT,
					changed_fields TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (transaction_id) REFERENCES transactions(id)
				)`,

				`CREATE TABLE IF NOT EXISTS rule_suggestions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					transaction_id INTEGER,
					correction_id INTEGER,
					merchant_name TEXT NOT NULL,
					card_last4 TEXT NOT NULL DEFAULT '',
					category_id INTEGER NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					reason TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (category_id) REFERENCES categories(id)
				)`,
				`CREATE INDEX idx_rule_suggestions_status ON rule_suggestions(status)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
