// Package service defines the interfaces between the ingestion pipeline and
// its collaborators. Storage methods that look up a single row return an
// error wrapping common.ErrNotFound when no row exists.
package service

import (
	"context"
	"time"

	"github.com/jpvargas/gastotrack/internal/model"
)

// RetryOptions configures retry behavior for transient failures.
type RetryOptions struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
}

// EmailStore persists raw mailbox messages.
type EmailStore interface {
	// SaveEmail inserts the email or, when the provider message id is already
	// known, refreshes its mutable fields. It reports whether a new row was
	// created.
	SaveEmail(ctx context.Context, email *model.RawEmail) (bool, error)
	GetEmail(ctx context.Context, id int64) (*model.RawEmail, error)
	// GetUnprocessedEmails returns emails without a processed_at timestamp,
	// newest first.
	GetUnprocessedEmails(ctx context.Context, limit int) ([]model.RawEmail, error)
	// MarkEmailProcessed sets processed_at and increments the parse-attempt
	// counter in one statement.
	MarkEmailProcessed(ctx context.Context, id int64, at time.Time) error
	// IncrementParseAttempts records a failed parse attempt without marking
	// the email processed, leaving it available for reparse.
	IncrementParseAttempts(ctx context.Context, id int64) error
}

// TransactionStore persists transactions keyed by (email id, reference id).
type TransactionStore interface {
	// UpsertTransaction creates the transaction or updates the existing row
	// holding the same (email id, reference id) pair.
	UpsertTransaction(ctx context.Context, txn *model.Transaction) error
	// ReplaceTransactionParse overwrites the parse-derived fields of an
	// existing transaction and, in the same database transaction, removes any
	// other row on the same email that already holds the new reference id.
	ReplaceTransactionParse(ctx context.Context, txn *model.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	GetTransactionsByEmail(ctx context.Context, emailID int64) ([]model.Transaction, error)
	GetUncategorizedTransactions(ctx context.Context, limit int) ([]model.Transaction, error)
	// ApplyCategorization persists the category fields, metadata and review
	// flag of the transaction; parse-derived fields are left untouched.
	ApplyCategorization(ctx context.Context, txn *model.Transaction) error
}

// CardStore resolves payment cards by their last four digits.
type CardStore interface {
	GetCardByLast4(ctx context.Context, last4 string) (*model.Card, error)
	CreateCard(ctx context.Context, card *model.Card) error
}

// CategoryStore is the read/write registry of categories.
type CategoryStore interface {
	ListActiveCategories(ctx context.Context) ([]model.Category, error)
	GetCategory(ctx context.Context, id int64) (*model.Category, error)
	GetCategoryByCode(ctx context.Context, code string) (*model.Category, error)
	CreateCategory(ctx context.Context, category *model.Category) error
	ListSubcategories(ctx context.Context, categoryID int64) ([]model.Subcategory, error)
	CreateSubcategory(ctx context.Context, sub *model.Subcategory) error
}

// RuleStore persists category rules.
type RuleStore interface {
	// ListActiveRules returns active rules ordered by ascending priority,
	// ties broken by match value.
	ListActiveRules(ctx context.Context) ([]model.CategoryRule, error)
	CreateRule(ctx context.Context, rule *model.CategoryRule) error
	// GetOrCreateRule finds a rule with the same category, match field, match
	// type, match value and card restriction, creating it when absent. It
	// reports whether a new rule was created.
	GetOrCreateRule(ctx context.Context, rule *model.CategoryRule) (bool, error)
	CountRules(ctx context.Context) (int, error)
}

// SuggestionStore persists rule suggestions and manual corrections.
type SuggestionStore interface {
	// GetOrCreatePendingSuggestion dedupes on (merchant, category, card,
	// pending status) and reports whether a new suggestion was created.
	GetOrCreatePendingSuggestion(ctx context.Context, s *model.RuleSuggestion) (bool, error)
	GetSuggestion(ctx context.Context, id int64) (*model.RuleSuggestion, error)
	ListSuggestions(ctx context.Context, status model.SuggestionStatus) ([]model.RuleSuggestion, error)
	UpdateSuggestionStatus(ctx context.Context, id int64, status model.SuggestionStatus, reason string) error
	SaveCorrection(ctx context.Context, c *model.TransactionCorrection) error
}

// DecisionStore persists LLM decision logs, which double as the LLM cache.
type DecisionStore interface {
	SaveDecision(ctx context.Context, d *model.DecisionLog) error
	// GetDecisionByCacheKey returns the most recent decision of the given
	// type carrying the cache key.
	GetDecisionByCacheKey(ctx context.Context, dt model.DecisionType, cacheKey string) (*model.DecisionLog, error)
	CountDecisionsSince(ctx context.Context, dt model.DecisionType, since time.Time) (int, error)
}

// JobStore persists background import jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.ImportJob) error
	GetJob(ctx context.Context, id string) (*model.ImportJob, error)
	UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errMsg string) error
	SetJobTotal(ctx context.Context, id string, total int) error
	// IncrementJobCounters bumps processed/created/error counts atomically in
	// place so concurrent runners never lose updates.
	IncrementJobCounters(ctx context.Context, id string, created, errored bool) error
}

// SyncStateStore persists per-mailbox sync checkpoints.
type SyncStateStore interface {
	GetOrCreateSyncState(ctx context.Context, provider model.EmailProvider, label string) (*model.MailSyncState, error)
	UpdateSyncState(ctx context.Context, state *model.MailSyncState) error
	// IncrementFetched bumps the fetched-message counter atomically in place.
	IncrementFetched(ctx context.Context, id int64, n int) error
}

// Storage is the full persistence surface implemented by the SQLite store.
type Storage interface {
	EmailStore
	TransactionStore
	CardStore
	CategoryStore
	RuleStore
	SuggestionStore
	DecisionStore
	JobStore
	SyncStateStore

	Migrate(ctx context.Context) error
	Close() error
}
