package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
)

func setupTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	storage, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	require.NoError(t, storage.Migrate(context.Background()))
	return storage
}

func testEmail(messageID string) *model.RawEmail {
	return &model.RawEmail{
		Provider:     model.ProviderGmail,
		MessageID:    messageID,
		Subject:      "Notificación de transacción",
		Sender:       "notificaciones@banco.fi.cr",
		Body:         "Comercio: PRUEBA\nMonto: CRC 1,000",
		InternalDate: time.Date(2025, time.November, 8, 13, 0, 0, 0, time.UTC),
	}
}

func testTransaction(emailID int64, referenceID string) *model.Transaction {
	conf := 0.95
	return &model.Transaction{
		EmailID:         emailID,
		ReferenceID:     referenceID,
		Date:            time.Date(2025, time.November, 8, 13, 0, 0, 0, time.UTC),
		Amount:          decimal.NewFromFloat(15320.50),
		Currency:        "CRC",
		MerchantName:    "FARMACIA LA BUENA",
		CardLast4:       "1234",
		ParseStatus:     model.ParseParsed,
		ParseConfidence: &conf,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	storage := setupTestStorage(t)
	require.NoError(t, storage.Migrate(context.Background()))
}

func TestSaveEmail_DedupesOnMessageID(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	email := testEmail("msg-1")
	created, err := storage.SaveEmail(ctx, email)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotZero(t, email.ID)

	again := testEmail("msg-1")
	again.Subject = "Asunto actualizado"
	created, err = storage.SaveEmail(ctx, again)
	require.NoError(t, err)
	assert.False(t, created, "same provider message id must not create a new row")
	assert.Equal(t, email.ID, again.ID)

	stored, err := storage.GetEmail(ctx, email.ID)
	require.NoError(t, err)
	assert.Equal(t, "Asunto actualizado", stored.Subject)
}

func TestMarkEmailProcessed(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	email := testEmail("msg-2")
	_, err := storage.SaveEmail(ctx, email)
	require.NoError(t, err)

	unprocessed, err := storage.GetUnprocessedEmails(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)

	require.NoError(t, storage.MarkEmailProcessed(ctx, email.ID, time.Now()))

	unprocessed, err = storage.GetUnprocessedEmails(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)

	stored, err := storage.GetEmail(ctx, email.ID)
	require.NoError(t, err)
	assert.True(t, stored.Processed())
	assert.Equal(t, 1, stored.ParseAttempts)
}

func TestIncrementParseAttempts_LeavesEmailUnprocessed(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	email := testEmail("msg-3")
	_, err := storage.SaveEmail(ctx, email)
	require.NoError(t, err)

	require.NoError(t, storage.IncrementParseAttempts(ctx, email.ID))
	require.NoError(t, storage.IncrementParseAttempts(ctx, email.ID))

	stored, err := storage.GetEmail(ctx, email.ID)
	require.NoError(t, err)
	assert.False(t, stored.Processed())
	assert.Equal(t, 2, stored.ParseAttempts)

	unprocessed, err := storage.GetUnprocessedEmails(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unprocessed, 1, "failed parses stay available for reparse")
}

func TestUpsertTransaction_Idempotent(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	email := testEmail("msg-4")
	_, err := storage.SaveEmail(ctx, email)
	require.NoError(t, err)

	txn := testTransaction(email.ID, "REF-1")
	require.NoError(t, storage.UpsertTransaction(ctx, txn))
	require.NotZero(t, txn.ID)

	reparsed := testTransaction(email.ID, "REF-1")
	reparsed.Amount = decimal.NewFromFloat(20000)
	require.NoError(t, storage.UpsertTransaction(ctx, reparsed))
	assert.Equal(t, txn.ID, reparsed.ID, "same (email, reference) must reuse the row")

	all, err := storage.GetTransactionsByEmail(ctx, email.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Amount.Equal(decimal.NewFromFloat(20000)))
}

func TestReplaceTransactionParse_RemovesStaleDuplicate(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	email := testEmail("msg-5")
	_, err := storage.SaveEmail(ctx, email)
	require.NoError(t, err)

	first := testTransaction(email.ID, "REF-OLD")
	require.NoError(t, storage.UpsertTransaction(ctx, first))
	second := testTransaction(email.ID, "REF-NEW")
	require.NoError(t, storage.UpsertTransaction(ctx, second))

	// Reparse assigns the first row the reference currently held by the second.
	first.ReferenceID = "REF-NEW"
	first.MerchantName = "COMERCIO CORREGIDO"
	require.NoError(t, storage.ReplaceTransactionParse(ctx, first))

	all, err := storage.GetTransactionsByEmail(ctx, email.ID)
	require.NoError(t, err)
	require.Len(t, all, 1, "stale duplicate must be removed in the same transaction")
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, "REF-NEW", all[0].ReferenceID)
	assert.Equal(t, "COMERCIO CORREGIDO", all[0].MerchantName)
}

func TestApplyCategorization_PreservesParseFields(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	email := testEmail("msg-6")
	_, err := storage.SaveEmail(ctx, email)
	require.NoError(t, err)

	category := &model.Category{Code: "salud", Name: "Salud", IsActive: true}
	require.NoError(t, storage.CreateCategory(ctx, category))

	txn := testTransaction(email.ID, "REF-2")
	require.NoError(t, storage.UpsertTransaction(ctx, txn))

	conf := 0.9
	txn.CategoryID = &category.ID
	txn.CategoryConfidence = &conf
	txn.CategorySource = "rule:1"
	txn.Metadata = map[string]any{"rule_id": float64(1)}
	require.NoError(t, storage.ApplyCategorization(ctx, txn))

	stored, err := storage.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CategoryID)
	assert.Equal(t, category.ID, *stored.CategoryID)
	assert.Equal(t, "rule:1", stored.CategorySource)
	assert.Equal(t, "FARMACIA LA BUENA", stored.MerchantName)
	assert.Equal(t, map[string]any{"rule_id": float64(1)}, stored.Metadata)

	uncategorized, err := storage.GetUncategorizedTransactions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, uncategorized)
}

func TestGetOrCreateRule(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	category := &model.Category{Code: "transporte", Name: "Transporte", IsActive: true}
	require.NoError(t, storage.CreateCategory(ctx, category))

	rule := &model.CategoryRule{
		CategoryID: category.ID,
		MatchField: model.MatchFieldMerchant,
		MatchType:  model.MatchContains,
		MatchValue: "UBER",
		Priority:   80,
		IsActive:   true,
	}
	created, err := storage.GetOrCreateRule(ctx, rule)
	require.NoError(t, err)
	assert.True(t, created)

	duplicate := &model.CategoryRule{
		CategoryID: category.ID,
		MatchField: model.MatchFieldMerchant,
		MatchType:  model.MatchContains,
		MatchValue: "UBER",
		Priority:   50,
		IsActive:   true,
	}
	created, err = storage.GetOrCreateRule(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rule.ID, duplicate.ID)

	count, err := storage.CountRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListActiveRules_Ordering(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	category := &model.Category{Code: "ocio", Name: "Ocio", IsActive: true}
	require.NoError(t, storage.CreateCategory(ctx, category))

	for _, r := range []struct {
		value    string
		priority int
		active   bool
	}{
		{value: "ZULU", priority: 50, active: true},
		{value: "ALFA", priority: 50, active: true},
		{value: "PRIMERO", priority: 10, active: true},
		{value: "INACTIVA", priority: 1, active: false},
	} {
		require.NoError(t, storage.CreateRule(ctx, &model.CategoryRule{
			CategoryID: category.ID,
			MatchField: model.MatchFieldMerchant,
			MatchType:  model.MatchContains,
			MatchValue: r.value,
			Priority:   r.priority,
			IsActive:   r.active,
		}))
	}

	rules, err := storage.ListActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "PRIMERO", rules[0].MatchValue)
	assert.Equal(t, "ALFA", rules[1].MatchValue, "priority ties break by match value")
	assert.Equal(t, "ZULU", rules[2].MatchValue)
}

func TestDecisionLog_CacheLookup(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	decision := &model.DecisionLog{
		DecisionType: model.DecisionCategorization,
		ModelName:    "gpt-4o-mini",
		CacheKey:     "abc123",
		Prompt:       "prompt",
		Response:     `{"category_code":"salud"}`,
	}
	require.NoError(t, storage.SaveDecision(ctx, decision))

	found, err := storage.GetDecisionByCacheKey(ctx, model.DecisionCategorization, "abc123")
	require.NoError(t, err)
	assert.Equal(t, decision.ID, found.ID)
	assert.Equal(t, `{"category_code":"salud"}`, found.Response)

	_, err = storage.GetDecisionByCacheKey(ctx, model.DecisionCategorization, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	count, err := storage.CountDecisionsSince(ctx, model.DecisionCategorization, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = storage.CountDecisionsSince(ctx, model.DecisionParsing, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, count, "budget counts are scoped per decision type")
}

func TestJobCounters(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	job := &model.ImportJob{
		ID:       "job-1",
		Provider: model.ProviderGmail,
		Status:   model.JobPending,
	}
	require.NoError(t, storage.CreateJob(ctx, job))
	require.NoError(t, storage.UpdateJobStatus(ctx, job.ID, model.JobProcessing, ""))
	require.NoError(t, storage.SetJobTotal(ctx, job.ID, 3))

	require.NoError(t, storage.IncrementJobCounters(ctx, job.ID, true, false))
	require.NoError(t, storage.IncrementJobCounters(ctx, job.ID, false, true))
	require.NoError(t, storage.IncrementJobCounters(ctx, job.ID, false, false))

	stored, err := storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.TotalEmails)
	assert.Equal(t, 3, stored.ProcessedCount)
	assert.Equal(t, 1, stored.CreatedCount)
	assert.Equal(t, 1, stored.ErrorCount)
	assert.NotNil(t, stored.StartedAt)
	assert.Nil(t, stored.FinishedAt)

	require.NoError(t, storage.UpdateJobStatus(ctx, job.ID, model.JobCompleted, ""))
	stored, err = storage.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.FinishedAt)
	assert.False(t, stored.Active())
}

func TestSyncState(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	state, err := storage.GetOrCreateSyncState(ctx, model.ProviderGmail, "INBOX")
	require.NoError(t, err)
	require.NotZero(t, state.ID)
	assert.Zero(t, state.FetchedMessages)

	again, err := storage.GetOrCreateSyncState(ctx, model.ProviderGmail, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, state.ID, again.ID)

	require.NoError(t, storage.IncrementFetched(ctx, state.ID, 5))
	require.NoError(t, storage.IncrementFetched(ctx, state.ID, 2))

	now := time.Now()
	state.HistoryID = "99887"
	state.LastSyncedAt = &now
	require.NoError(t, storage.UpdateSyncState(ctx, state))

	stored, err := storage.GetOrCreateSyncState(ctx, model.ProviderGmail, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, 7, stored.FetchedMessages)
	assert.Equal(t, "99887", stored.HistoryID)
	require.NotNil(t, stored.LastSyncedAt)
}

func TestSuggestions(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	category := &model.Category{Code: "supermercado", Name: "Supermercado", IsActive: true}
	require.NoError(t, storage.CreateCategory(ctx, category))

	suggestion := &model.RuleSuggestion{
		MerchantName: "AUTOMERCADO",
		CategoryID:   category.ID,
	}
	created, err := storage.GetOrCreatePendingSuggestion(ctx, suggestion)
	require.NoError(t, err)
	assert.True(t, created)

	duplicate := &model.RuleSuggestion{
		MerchantName: "AUTOMERCADO",
		CategoryID:   category.ID,
	}
	created, err = storage.GetOrCreatePendingSuggestion(ctx, duplicate)
	require.NoError(t, err)
	assert.False(t, created, "one pending suggestion per merchant and category")
	assert.Equal(t, suggestion.ID, duplicate.ID)

	require.NoError(t, storage.UpdateSuggestionStatus(ctx, suggestion.ID, model.SuggestionRejected, "duplicada"))

	pending, err := storage.ListSuggestions(ctx, model.SuggestionPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	rejected, err := storage.ListSuggestions(ctx, model.SuggestionRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "duplicada", rejected[0].Reason)
}

func TestGetTransaction_NotFound(t *testing.T) {
	storage := setupTestStorage(t)

	_, err := storage.GetTransaction(context.Background(), 999)
	assert.ErrorIs(t, err, common.ErrNotFound)
}
