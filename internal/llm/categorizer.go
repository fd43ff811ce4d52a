package llm

import (
	"context"
	"crypto/sha1" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/service"
)

const systemPrompt = "You are a personal expense categorizer for bank transaction notifications. " +
	"You MUST respond with ONLY a valid JSON object. Do not include any explanatory text, " +
	"markdown formatting, or commentary before or after the JSON. " +
	"Start your response directly with { and end with }."

// FallbackCategorizer categorizes transactions the rule engine could not,
// caching every answer in the decision log so identical transactions never
// trigger a second call.
type FallbackCategorizer struct {
	client      Client
	categories  service.CategoryStore
	decisions   service.DecisionStore
	logger      *slog.Logger
	dailyBudget int
}

// NewFallbackCategorizer creates a fallback categorizer. A dailyBudget of
// zero or less means unlimited calls.
func NewFallbackCategorizer(client Client, categories service.CategoryStore, decisions service.DecisionStore, dailyBudget int, logger *slog.Logger) *FallbackCategorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackCategorizer{
		client:      client,
		categories:  categories,
		decisions:   decisions,
		dailyBudget: dailyBudget,
		logger:      logger,
	}
}

// categoryDecision is the JSON shape the model must answer with.
type categoryDecision struct {
	CategoryCode string  `json:"category_code"`
	CategoryName string  `json:"category_name"`
	Reasoning    string  `json:"reasoning"`
	Confidence   float64 `json:"confidence"`
}

// Categorize resolves a category for the transaction, consulting the cache
// first and calling the model only within the daily budget. A nil result with
// nil error means the model could not settle on a known category.
func (f *FallbackCategorizer) Categorize(ctx context.Context, txn *model.Transaction) (*model.CategorizationResult, error) {
	if txn == nil {
		return nil, fmt.Errorf("transaction cannot be nil")
	}

	cacheKey := CacheKey(txn)

	cached, err := f.decisions.GetDecisionByCacheKey(ctx, model.DecisionCategorization, cacheKey)
	if err == nil {
		result, parseErr := f.resolveDecision(ctx, cached.Response, "llm-cache:"+cached.ModelName)
		if parseErr != nil {
			f.logger.Warn("cached decision no longer resolvable, calling model",
				"cache_key", cacheKey, "error", parseErr)
		} else {
			return result, nil
		}
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to check decision cache: %w", err)
	}

	if f.dailyBudget > 0 {
		startOfDay := startOfToday()
		count, countErr := f.decisions.CountDecisionsSince(ctx, model.DecisionCategorization, startOfDay)
		if countErr != nil {
			return nil, fmt.Errorf("failed to check call budget: %w", countErr)
		}
		if count >= f.dailyBudget {
			return nil, fmt.Errorf("%w: %d calls today", common.ErrBudgetExhausted, count)
		}
	}

	activeCategories, err := f.categories.ListActiveCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	if len(activeCategories) == 0 {
		return nil, fmt.Errorf("%w: no active categories to choose from", common.ErrCategorizationFailed)
	}

	prompt := buildPrompt(txn, activeCategories)

	completion, err := f.client.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCategorizationFailed, err)
	}

	decision := &model.DecisionLog{
		DecisionType:     model.DecisionCategorization,
		ModelName:        f.client.Model(),
		CacheKey:         cacheKey,
		Prompt:           prompt,
		Response:         completion.Content,
		TransactionID:    &txn.ID,
		TokensPrompt:     &completion.PromptTokens,
		TokensCompletion: &completion.CompletionTokens,
	}
	if saveErr := f.decisions.SaveDecision(ctx, decision); saveErr != nil {
		return nil, fmt.Errorf("failed to save decision: %w", saveErr)
	}

	result, err := f.resolveDecision(ctx, completion.Content, "llm:"+f.client.Model())
	if err != nil {
		f.logger.Warn("model answer could not be resolved to a category",
			"transaction_id", txn.ID, "error", err)
		return nil, nil
	}
	return result, nil
}

// resolveDecision parses a model answer and maps it to a known category,
// preferring the code and falling back to the name.
func (f *FallbackCategorizer) resolveDecision(ctx context.Context, content, source string) (*model.CategorizationResult, error) {
	var decision categoryDecision
	if err := json.Unmarshal([]byte(cleanMarkdownWrapper(content)), &decision); err != nil {
		return nil, fmt.Errorf("invalid JSON answer: %w", err)
	}

	category, err := f.lookupCategory(ctx, decision.CategoryCode, decision.CategoryName)
	if err != nil {
		return nil, err
	}

	confidence := decision.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &model.CategorizationResult{
		CategoryID: category.ID,
		Confidence: confidence,
		Source:     source,
	}, nil
}

// lookupCategory resolves the answered category, trying the code first and
// then a case-insensitive match on the active category names. Models
// occasionally invent a code while still naming a real category.
func (f *FallbackCategorizer) lookupCategory(ctx context.Context, code, name string) (*model.Category, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code != "" {
		category, err := f.categories.GetCategoryByCode(ctx, code)
		if err == nil {
			return category, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up category code %q: %w", code, err)
		}
	}

	name = strings.TrimSpace(name)
	if name != "" {
		active, err := f.categories.ListActiveCategories(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list categories: %w", err)
		}
		for i := range active {
			if strings.EqualFold(active[i].Name, name) {
				return &active[i], nil
			}
		}
	}

	return nil, fmt.Errorf("answer matches no known category (code %q, name %q)", code, name)
}

// CacheKey derives the content-addressed cache key for a transaction. Only
// the fields that feed the prompt participate, so cosmetic differences in the
// source email never fragment the cache.
func CacheKey(txn *model.Transaction) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(txn.MerchantName)),
		strings.ToLower(strings.TrimSpace(txn.Description)),
		txn.Amount.String(),
		strings.ToUpper(strings.TrimSpace(txn.Currency)),
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "|"))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func buildPrompt(txn *model.Transaction, categories []model.Category) string {
	var sb strings.Builder
	sb.WriteString("Categorize this expense:\n\n")
	fmt.Fprintf(&sb, "Merchant: %s\n", txn.MerchantName)
	if txn.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", txn.Description)
	}
	fmt.Fprintf(&sb, "Amount: %s %s\n", txn.Amount.String(), txn.Currency)
	fmt.Fprintf(&sb, "Date: %s\n\n", txn.Date.Format("2006-01-02"))

	sb.WriteString("Available categories:\n")
	for _, category := range categories {
		if category.Description != "" {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", category.Code, category.Name, category.Description)
		} else {
			fmt.Fprintf(&sb, "- %s (%s)\n", category.Code, category.Name)
		}
	}

	sb.WriteString("\nRespond with JSON: {\"category_code\": \"...\", \"category_name\": \"...\", \"confidence\": 0.0-1.0, \"reasoning\": \"...\"}\n")
	sb.WriteString("The category_code MUST be one of the codes listed above.")
	return sb.String()
}

// startOfToday is the UTC midnight cutoff for the daily budget. Decision rows
// are stamped by SQLite in UTC, so the cutoff must be UTC too.
func startOfToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
