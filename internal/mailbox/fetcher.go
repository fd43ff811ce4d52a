// Package mailbox fetches bank notification emails from mail providers.
package mailbox

import (
	"context"

	"github.com/jpvargas/gastotrack/internal/model"
)

// FetchOptions narrows which messages a fetch run retrieves.
type FetchOptions struct {
	// Query is a provider-specific search expression.
	Query string
	// Label restricts the fetch to one mailbox label or folder.
	Label string
	// MaxMessages caps the run; zero means the provider default.
	MaxMessages int
}

// Fetcher retrieves messages from one mail provider. Implementations call
// emit once per message in fetch order and stop on the first emit error, so
// the caller controls persistence and cancellation.
type Fetcher interface {
	Provider() model.EmailProvider
	Fetch(ctx context.Context, opts FetchOptions, emit func(*model.RawEmail) error) error
}
