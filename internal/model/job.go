package model

import "time"

// JobStatus is the lifecycle state of a background import job.
type JobStatus string

// Job status constants.
const (
	JobPending    JobStatus = "pending"
	JobSyncing    JobStatus = "syncing"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// ImportJob tracks one background mailbox-import run. Counter fields are
// incremented atomically in storage so concurrent runners never lose updates.
type ImportJob struct {
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
	ID             string
	Provider       EmailProvider
	Query          string
	Error          string
	Status         JobStatus
	MaxMessages    int
	TotalEmails    int
	ProcessedCount int
	CreatedCount   int
	ErrorCount     int
}

// Active reports whether the job is still running or waiting to run.
func (j *ImportJob) Active() bool {
	switch j.Status {
	case JobPending, JobSyncing, JobProcessing:
		return true
	default:
		return false
	}
}

// MailSyncState is the per-mailbox sync checkpoint. FetchedMessages is
// incremented in place under a row lock so concurrent sync runs touching the
// same mailbox never lose counts.
type MailSyncState struct {
	CreatedAt       time.Time
	LastSyncedAt    *time.Time
	Provider        EmailProvider
	Label           string
	HistoryID       string
	Query           string
	ID              int64
	FetchedMessages int
	RetryCount      int
}
