// Package pipeline turns fetched notification emails into transactions:
// parse, persist, mark processed, categorize. Every step after parsing is
// fail-open so one bad email never stalls the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/parser"
	"github.com/jpvargas/gastotrack/internal/review"
	"github.com/jpvargas/gastotrack/internal/service"
)

// Categorizer resolves and persists a category for a freshly parsed
// transaction.
type Categorizer interface {
	CategorizeTransaction(ctx context.Context, txn *model.Transaction) (*model.CategorizationResult, error)
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	service.EmailStore
	service.TransactionStore
	service.CardStore
}

// Stats summarizes one batch run.
type Stats struct {
	Processed int
	Created   int
	Updated   int
	Failed    int
}

// Pipeline processes raw emails into categorized transactions.
type Pipeline struct {
	store           Store
	parser          *parser.Parser
	categorizer     Categorizer
	logger          *slog.Logger
	reviewThreshold float64
}

// New creates a pipeline. The categorizer may be nil to skip categorization.
func New(store Store, categorizer Categorizer, reviewThreshold float64, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:           store,
		parser:          parser.New(),
		categorizer:     categorizer,
		logger:          logger,
		reviewThreshold: reviewThreshold,
	}
}

// ProcessEmail parses one email into a transaction and persists it. The email
// is marked processed only on success: a failed parse increments the attempt
// counter and leaves the email eligible for reparse. It reports whether a new
// transaction row was created.
func (p *Pipeline) ProcessEmail(ctx context.Context, email *model.RawEmail) (*model.Transaction, bool, error) {
	parsed, err := p.parser.Parse(email)
	if err != nil {
		if incErr := p.store.IncrementParseAttempts(ctx, email.ID); incErr != nil {
			p.logger.Warn("failed to record parse attempt",
				"email_id", email.ID, "error", incErr)
		}
		return nil, false, fmt.Errorf("email %d: %w", email.ID, err)
	}

	txn := p.buildTransaction(email, parsed)

	if card, cardErr := p.store.GetCardByLast4(ctx, parsed.CardLast4); cardErr == nil {
		txn.CardID = &card.ID
	} else if !errors.Is(cardErr, common.ErrNotFound) {
		p.logger.Warn("card lookup failed",
			"email_id", email.ID, "last4", parsed.CardLast4, "error", cardErr)
	}

	existing, err := p.store.GetTransactionsByEmail(ctx, email.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load transactions for email %d: %w", email.ID, err)
	}

	created := false
	if len(existing) > 0 {
		// Reparse of an already-processed email: rewrite the parse fields of
		// the existing row, keeping its categorization.
		prior := existing[0]
		txn.ID = prior.ID
		txn.CategoryID = prior.CategoryID
		txn.SubcategoryID = prior.SubcategoryID
		txn.CategoryConfidence = prior.CategoryConfidence
		txn.CategorySource = prior.CategorySource
		txn.Metadata = prior.Metadata
		if err := p.store.ReplaceTransactionParse(ctx, txn); err != nil {
			return nil, false, fmt.Errorf("failed to reconcile transaction for email %d: %w", email.ID, err)
		}
	} else {
		if err := p.store.UpsertTransaction(ctx, txn); err != nil {
			return nil, false, fmt.Errorf("failed to save transaction for email %d: %w", email.ID, err)
		}
		created = true
	}

	if err := p.store.MarkEmailProcessed(ctx, email.ID, time.Now()); err != nil {
		return nil, false, fmt.Errorf("failed to mark email %d processed: %w", email.ID, err)
	}

	if p.categorizer != nil && txn.CategoryID == nil {
		if _, catErr := p.categorizer.CategorizeTransaction(ctx, txn); catErr != nil {
			// Categorization is best-effort at ingest time; the categorize
			// command picks up whatever is left.
			p.logger.Warn("categorization failed at ingest",
				"transaction_id", txn.ID, "error", catErr)
		}
	}

	return txn, created, nil
}

// ProcessEmails runs the pipeline over up to limit unprocessed emails. A
// failure on one email is counted and logged, never aborting the batch.
func (p *Pipeline) ProcessEmails(ctx context.Context, limit int) (Stats, error) {
	emails, err := p.store.GetUnprocessedEmails(ctx, limit)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to load unprocessed emails: %w", err)
	}

	var stats Stats
	for i := range emails {
		email := &emails[i]
		stats.Processed++

		_, created, procErr := p.ProcessEmail(ctx, email)
		if procErr != nil {
			stats.Failed++
			p.logger.Warn("email processing failed",
				"email_id", email.ID, "error", procErr)
			continue
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
	}

	p.logger.Info("batch processed",
		"processed", stats.Processed,
		"created", stats.Created,
		"updated", stats.Updated,
		"failed", stats.Failed)
	return stats, nil
}

func (p *Pipeline) buildTransaction(email *model.RawEmail, parsed *parser.ParsedTransaction) *model.Transaction {
	confidence := parsed.Confidence
	return &model.Transaction{
		EmailID:         email.ID,
		ReferenceID:     parsed.ReferenceID,
		Date:            parsed.Date,
		Amount:          parsed.Amount,
		Currency:        parsed.Currency,
		MerchantName:    parsed.MerchantName,
		CardLast4:       parsed.CardLast4,
		ParseStatus:     model.ParseParsed,
		ParseConfidence: &confidence,
		NeedsReview:     review.ShouldFlag(&confidence, nil, p.reviewThreshold),
	}
}
