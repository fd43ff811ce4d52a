package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpvargas/gastotrack/internal/mailbox"
	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/pipeline"
	"github.com/jpvargas/gastotrack/internal/storage"
)

type fakeFetcher struct {
	emails []model.RawEmail
	err    error
}

func (f *fakeFetcher) Provider() model.EmailProvider { return model.ProviderGmail }

func (f *fakeFetcher) Fetch(_ context.Context, _ mailbox.FetchOptions, emit func(*model.RawEmail) error) error {
	if f.err != nil {
		return f.err
	}
	for i := range f.emails {
		email := f.emails[i]
		if err := emit(&email); err != nil {
			return err
		}
	}
	return nil
}

func setupRunner(t *testing.T, fetcher mailbox.Fetcher) (*Runner, *storage.SQLiteStorage) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	p := pipeline.New(store, nil, 0, nil)
	return NewRunner(store, p, []mailbox.Fetcher{fetcher}, nil), store
}

func notification(messageID, merchant, reference string) model.RawEmail {
	return model.RawEmail{
		Provider:  model.ProviderGmail,
		MessageID: messageID,
		Subject:   "Notificación de transacción",
		Body: "Comercio: " + merchant + "\n" +
			"Monto: CRC 12,500.00\n" +
			"Referencia: " + reference + "\n" +
			"Tarjeta **** 1234\n",
		InternalDate: time.Date(2025, time.November, 8, 13, 0, 0, 0, time.UTC),
	}
}

func TestRun_CompletesAndCounts(t *testing.T) {
	fetcher := &fakeFetcher{emails: []model.RawEmail{
		notification("msg-1", "FARMACIA LA BUENA", "REF-1"),
		notification("msg-2", "UBER TRIP", "REF-2"),
	}}
	runner, store := setupRunner(t, fetcher)

	job, err := runner.Run(context.Background(), model.ProviderGmail, mailbox.FetchOptions{MaxMessages: 10})
	require.NoError(t, err)

	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, 2, job.TotalEmails)
	assert.Equal(t, 2, job.ProcessedCount)
	assert.Equal(t, 2, job.CreatedCount)
	assert.Equal(t, 0, job.ErrorCount)
	assert.NotNil(t, job.FinishedAt)

	unprocessed, err := store.GetUnprocessedEmails(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)

	state, err := store.GetOrCreateSyncState(context.Background(), model.ProviderGmail, "")
	require.NoError(t, err)
	assert.Equal(t, 2, state.FetchedMessages)
	require.NotNil(t, state.LastSyncedAt)
}

func TestRun_UnparseableEmailCountsAsError(t *testing.T) {
	bad := model.RawEmail{
		Provider:     model.ProviderGmail,
		MessageID:    "msg-bad",
		Body:         "Gracias por preferirnos.",
		InternalDate: time.Now(),
	}
	fetcher := &fakeFetcher{emails: []model.RawEmail{
		notification("msg-ok", "WALMART", "REF-9"),
		bad,
	}}
	runner, store := setupRunner(t, fetcher)

	job, err := runner.Run(context.Background(), model.ProviderGmail, mailbox.FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.JobCompleted, job.Status, "bad emails never fail the job")
	assert.Equal(t, 2, job.ProcessedCount)
	assert.Equal(t, 1, job.CreatedCount)
	assert.Equal(t, 1, job.ErrorCount)

	// The unparseable email stays unprocessed for a later reparse.
	unprocessed, err := store.GetUnprocessedEmails(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, unprocessed, 1)
	assert.Equal(t, "msg-bad", unprocessed[0].MessageID)
	assert.Equal(t, 1, unprocessed[0].ParseAttempts)
}

func TestRun_FetchFailureFailsJob(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("mailbox unavailable")}
	runner, store := setupRunner(t, fetcher)

	job, err := runner.Run(context.Background(), model.ProviderGmail, mailbox.FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, model.JobFailed, job.Status)
	assert.Contains(t, job.Error, "mailbox unavailable")

	state, err := store.GetOrCreateSyncState(context.Background(), model.ProviderGmail, "")
	require.NoError(t, err)
	assert.Equal(t, 1, state.RetryCount)
}

func TestRun_RefetchIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{emails: []model.RawEmail{
		notification("msg-1", "FARMACIA LA BUENA", "REF-1"),
	}}
	runner, store := setupRunner(t, fetcher)

	first, err := runner.Run(context.Background(), model.ProviderGmail, mailbox.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.CreatedCount)

	second, err := runner.Run(context.Background(), model.ProviderGmail, mailbox.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.CreatedCount, "refetching the same message must not duplicate")
	assert.Equal(t, 1, second.ProcessedCount)

	email, err := store.GetEmail(context.Background(), 1)
	require.NoError(t, err)
	txns, err := store.GetTransactionsByEmail(context.Background(), email.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestStart_RunsInBackground(t *testing.T) {
	fetcher := &fakeFetcher{emails: []model.RawEmail{
		notification("msg-1", "CNFL S.A", "REF-1"),
	}}
	runner, store := setupRunner(t, fetcher)

	job, err := runner.Start(context.Background(), model.ProviderGmail, mailbox.FetchOptions{})
	require.NoError(t, err)
	runner.Wait()

	final, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, final.Status)
}

func TestStart_UnknownProvider(t *testing.T) {
	runner, _ := setupRunner(t, &fakeFetcher{})

	_, err := runner.Start(context.Background(), model.ProviderOutlook, mailbox.FetchOptions{})
	require.Error(t, err)
}
