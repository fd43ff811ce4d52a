package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/engine"
	"github.com/jpvargas/gastotrack/internal/jobs"
	"github.com/jpvargas/gastotrack/internal/llm"
	"github.com/jpvargas/gastotrack/internal/mailbox"
	"github.com/jpvargas/gastotrack/internal/pipeline"
	"github.com/jpvargas/gastotrack/internal/rules"
	"github.com/jpvargas/gastotrack/internal/storage"
)

// initStorage opens the database, applies migrations, and seeds the default
// categories and rules on first run.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".local", "share", "gasto", "gasto.db")
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := rules.SeedDefaults(ctx, slog.Default(), store, store); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to seed defaults: %w", err)
	}

	return store, nil
}

// buildCategorizer constructs the LLM fallback from configuration. It returns
// nil when the LLM is disabled or no API key is configured.
func buildCategorizer(store *storage.SQLiteStorage) (*llm.FallbackCategorizer, error) {
	if !viper.GetBool("llm.enabled") {
		return nil, nil
	}

	apiKey := viper.GetString("llm.api_key")
	if apiKey == "" {
		return nil, common.NewUserError("llm.enabled is set but llm.api_key is empty", common.ErrMissingConfig)
	}

	client, err := llm.NewClient(llm.Config{
		Provider:    viper.GetString("llm.provider"),
		APIKey:      apiKey,
		Model:       viper.GetString("llm.model"),
		BaseURL:     viper.GetString("llm.base_url"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	return llm.NewFallbackCategorizer(client, store, store, viper.GetInt("llm.daily_budget"), slog.Default()), nil
}

// buildOrchestrator wires the rule engine and the optional LLM fallback into
// the categorization orchestrator.
func buildOrchestrator(store *storage.SQLiteStorage) (*engine.Orchestrator, error) {
	fallback, err := buildCategorizer(store)
	if err != nil {
		return nil, err
	}

	cfg := engine.Config{
		ReviewThreshold: viper.GetFloat64("review.threshold"),
		LLMEnabled:      fallback != nil,
	}

	// An interface holding a nil pointer is not a nil interface.
	var categorizer engine.Categorizer
	if fallback != nil {
		categorizer = fallback
	}

	return engine.New(rules.NewEngine(store), categorizer, store, cfg, slog.Default()), nil
}

// buildPipeline wires storage and the orchestrator into the ingestion
// pipeline.
func buildPipeline(store *storage.SQLiteStorage) (*pipeline.Pipeline, error) {
	orchestrator, err := buildOrchestrator(store)
	if err != nil {
		return nil, err
	}
	return pipeline.New(store, orchestrator, viper.GetFloat64("review.threshold"), slog.Default()), nil
}

// buildFetchers constructs a mailbox fetcher per configured provider. Tokens
// are taken as-is from configuration; refreshing them is the caller's problem.
func buildFetchers(ctx context.Context) ([]mailbox.Fetcher, error) {
	var fetchers []mailbox.Fetcher

	if token := viper.GetString("gmail.token"); token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		fetcher, err := mailbox.NewGmailFetcher(ctx, ts, slog.Default())
		if err != nil {
			return nil, fmt.Errorf("failed to create gmail fetcher: %w", err)
		}
		fetchers = append(fetchers, fetcher)
	}

	if token := viper.GetString("outlook.token"); token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		fetchers = append(fetchers, mailbox.NewOutlookFetcher(ctx, ts, slog.Default()))
	}

	if len(fetchers) == 0 {
		return nil, common.NewUserError("no mailbox provider configured: set gmail.token or outlook.token", common.ErrMissingConfig)
	}

	return fetchers, nil
}

// buildRunner wires the fetchers and pipeline into a job runner.
func buildRunner(ctx context.Context, store *storage.SQLiteStorage) (*jobs.Runner, error) {
	fetchers, err := buildFetchers(ctx)
	if err != nil {
		return nil, err
	}
	p, err := buildPipeline(store)
	if err != nil {
		return nil, err
	}
	return jobs.NewRunner(store, p, fetchers, slog.Default()), nil
}
