package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
)

// CreateJob inserts a new import job.
func (s *SQLiteStorage) CreateJob(ctx context.Context, job *model.ImportJob) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: job", ErrNilParameter)
	}
	if err := validateString(job.ID, "job ID"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_jobs (id, provider, query, status, max_messages)
		VALUES (?, ?, ?, ?, ?)`,
		job.ID, string(job.Provider), job.Query, string(job.Status), job.MaxMessages,
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob retrieves a single job by id.
func (s *SQLiteStorage) GetJob(ctx context.Context, id string) (*model.ImportJob, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var job model.ImportJob
	var provider, status string
	var query, jobErr sql.NullString
	var startedAt, finishedAt, createdAt, updatedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, provider, query, status, error, max_messages, total_emails,
		       processed_count, created_count, error_count,
		       started_at, finished_at, created_at, updated_at
		FROM import_jobs WHERE id = ?`, id,
	).Scan(&job.ID, &provider, &query, &status, &jobErr, &job.MaxMessages,
		&job.TotalEmails, &job.ProcessedCount, &job.CreatedCount, &job.ErrorCount,
		&startedAt, &finishedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}

	job.Provider = model.EmailProvider(provider)
	job.Status = model.JobStatus(status)
	job.Query = query.String
	job.Error = jobErr.String
	job.CreatedAt = createdAt.Time
	job.UpdatedAt = updatedAt.Time
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

// UpdateJobStatus transitions a job to a new status, stamping started_at on
// the first transition out of pending and finished_at on terminal states.
func (s *SQLiteStorage) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errMsg string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE import_jobs
		SET status = ?, error = ?,
		    started_at = CASE WHEN started_at IS NULL AND ? != 'pending' THEN CURRENT_TIMESTAMP ELSE started_at END,
		    finished_at = CASE WHEN ? IN ('completed', 'failed') THEN CURRENT_TIMESTAMP ELSE finished_at END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(status), errMsg, string(status), string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return requireRowAffected(result, "job", id)
}

// SetJobTotal records the number of emails the job will process.
func (s *SQLiteStorage) SetJobTotal(ctx context.Context, id string, total int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE import_jobs SET total_emails = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		total, id)
	if err != nil {
		return fmt.Errorf("failed to set job %s total: %w", id, err)
	}
	return requireRowAffected(result, "job", id)
}

// IncrementJobCounters bumps processed/created/error counts atomically in
// place so concurrent runners never lose updates.
func (s *SQLiteStorage) IncrementJobCounters(ctx context.Context, id string, created, errored bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	createdDelta := 0
	if created {
		createdDelta = 1
	}
	errorDelta := 0
	if errored {
		errorDelta = 1
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE import_jobs
		SET processed_count = processed_count + 1,
		    created_count = created_count + ?,
		    error_count = error_count + ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		createdDelta, errorDelta, id)
	if err != nil {
		return fmt.Errorf("failed to increment job %s counters: %w", id, err)
	}
	return requireRowAffected(result, "job", id)
}
