// Package jobs runs background mailbox-import jobs: fetch, persist, process.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpvargas/gastotrack/internal/mailbox"
	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/pipeline"
	"github.com/jpvargas/gastotrack/internal/service"
)

// Store is the persistence surface the runner needs.
type Store interface {
	service.JobStore
	service.SyncStateStore
	service.EmailStore
}

// Runner executes import jobs. Each job runs in its own goroutine; its
// counters live in the database and are incremented atomically, so progress
// survives restarts and concurrent runners.
type Runner struct {
	store    Store
	pipeline *pipeline.Pipeline
	fetchers map[model.EmailProvider]mailbox.Fetcher
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewRunner creates a job runner over the given fetchers.
func NewRunner(store Store, p *pipeline.Pipeline, fetchers []mailbox.Fetcher, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	byProvider := make(map[model.EmailProvider]mailbox.Fetcher, len(fetchers))
	for _, f := range fetchers {
		byProvider[f.Provider()] = f
	}
	return &Runner{
		store:    store,
		pipeline: p,
		fetchers: byProvider,
		logger:   logger,
	}
}

// Start creates a job and launches it in the background. Use Wait to block
// until all launched jobs finish.
func (r *Runner) Start(ctx context.Context, provider model.EmailProvider, opts mailbox.FetchOptions) (*model.ImportJob, error) {
	if _, ok := r.fetchers[provider]; !ok {
		return nil, fmt.Errorf("no fetcher configured for provider %s", provider)
	}

	job := &model.ImportJob{
		ID:          uuid.NewString(),
		Provider:    provider,
		Query:       opts.Query,
		Status:      model.JobPending,
		MaxMessages: opts.MaxMessages,
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, job, opts)
	}()
	return job, nil
}

// Run creates a job and executes it synchronously, returning its final state.
func (r *Runner) Run(ctx context.Context, provider model.EmailProvider, opts mailbox.FetchOptions) (*model.ImportJob, error) {
	if _, ok := r.fetchers[provider]; !ok {
		return nil, fmt.Errorf("no fetcher configured for provider %s", provider)
	}

	job := &model.ImportJob{
		ID:          uuid.NewString(),
		Provider:    provider,
		Query:       opts.Query,
		Status:      model.JobPending,
		MaxMessages: opts.MaxMessages,
	}
	if err := r.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	r.run(ctx, job, opts)
	return r.store.GetJob(ctx, job.ID)
}

// Wait blocks until every job launched with Start has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// run executes one job end to end. Failures terminate the job with a failed
// status and message; individual email failures only bump the error counter.
func (r *Runner) run(ctx context.Context, job *model.ImportJob, opts mailbox.FetchOptions) {
	logger := r.logger.With("job_id", job.ID, "provider", job.Provider)

	fail := func(err error) {
		logger.Error("import job failed", "error", err)
		if statusErr := r.store.UpdateJobStatus(ctx, job.ID, model.JobFailed, err.Error()); statusErr != nil {
			logger.Error("failed to record job failure", "error", statusErr)
		}
	}

	if err := r.store.UpdateJobStatus(ctx, job.ID, model.JobSyncing, ""); err != nil {
		fail(err)
		return
	}

	syncState, err := r.store.GetOrCreateSyncState(ctx, job.Provider, opts.Label)
	if err != nil {
		fail(err)
		return
	}

	fetched, err := r.fetchEmails(ctx, job, opts, syncState)
	if err != nil {
		syncState.RetryCount++
		if updateErr := r.store.UpdateSyncState(ctx, syncState); updateErr != nil {
			logger.Warn("failed to record sync retry", "error", updateErr)
		}
		fail(err)
		return
	}

	if err := r.store.SetJobTotal(ctx, job.ID, len(fetched)); err != nil {
		fail(err)
		return
	}
	if err := r.store.UpdateJobStatus(ctx, job.ID, model.JobProcessing, ""); err != nil {
		fail(err)
		return
	}

	for _, email := range fetched {
		_, created, procErr := r.pipeline.ProcessEmail(ctx, email)
		if procErr != nil {
			logger.Warn("email processing failed", "email_id", email.ID, "error", procErr)
		}
		if countErr := r.store.IncrementJobCounters(ctx, job.ID, created, procErr != nil); countErr != nil {
			fail(countErr)
			return
		}
	}

	now := time.Now()
	syncState.LastSyncedAt = &now
	syncState.RetryCount = 0
	syncState.Query = opts.Query
	if err := r.store.UpdateSyncState(ctx, syncState); err != nil {
		logger.Warn("failed to update sync checkpoint", "error", err)
	}

	if err := r.store.UpdateJobStatus(ctx, job.ID, model.JobCompleted, ""); err != nil {
		logger.Error("failed to mark job completed", "error", err)
		return
	}
	logger.Info("import job completed", "fetched", len(fetched))
}

// fetchEmails pulls messages from the provider and persists each one,
// returning the stored emails in fetch order.
func (r *Runner) fetchEmails(ctx context.Context, job *model.ImportJob, opts mailbox.FetchOptions, syncState *model.MailSyncState) ([]*model.RawEmail, error) {
	fetcher := r.fetchers[job.Provider]

	var fetched []*model.RawEmail
	err := fetcher.Fetch(ctx, opts, func(email *model.RawEmail) error {
		if _, saveErr := r.store.SaveEmail(ctx, email); saveErr != nil {
			return fmt.Errorf("failed to save email %s: %w", email.MessageID, saveErr)
		}
		if incErr := r.store.IncrementFetched(ctx, syncState.ID, 1); incErr != nil {
			return incErr
		}
		fetched = append(fetched, email)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	return fetched, nil
}
