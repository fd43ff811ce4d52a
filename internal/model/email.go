// Package model defines the core domain types shared across the application.
package model

import "time"

// EmailProvider identifies the mailbox a message was fetched from.
type EmailProvider string

// Email provider constants.
const (
	ProviderGmail   EmailProvider = "gmail"
	ProviderOutlook EmailProvider = "outlook"
)

// RawEmail is a bank notification message as fetched from a mailbox. The
// (Provider, MessageID) pair is unique; fetching the same message twice
// refreshes the stored copy instead of duplicating it.
type RawEmail struct {
	CreatedAt     time.Time
	InternalDate  time.Time
	ProcessedAt   *time.Time
	Provider      EmailProvider
	MessageID     string
	ThreadID      string
	Subject       string
	Sender        string
	Snippet       string
	Body          string
	ID            int64
	ParseAttempts int
}

// Processed reports whether the email has been run through the pipeline.
func (e *RawEmail) Processed() bool {
	return e.ProcessedAt != nil
}
