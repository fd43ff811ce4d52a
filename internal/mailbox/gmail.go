package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
	"github.com/jpvargas/gastotrack/internal/service"
)

const gmailDefaultMax = 100

// GmailFetcher retrieves messages through the Gmail API.
type GmailFetcher struct {
	client *gmail.Service
	logger *slog.Logger
}

// NewGmailFetcher creates a Gmail fetcher authenticated by the token source.
func NewGmailFetcher(ctx context.Context, tokenSource oauth2.TokenSource, logger *slog.Logger) (*GmailFetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return &GmailFetcher{client: client, logger: logger}, nil
}

// Provider identifies this fetcher as Gmail.
func (f *GmailFetcher) Provider() model.EmailProvider {
	return model.ProviderGmail
}

// Fetch lists messages matching the options and emits each one fully
// hydrated. Listing paginates until MaxMessages or the last page.
func (f *GmailFetcher) Fetch(ctx context.Context, opts FetchOptions, emit func(*model.RawEmail) error) error {
	maxMessages := opts.MaxMessages
	if maxMessages <= 0 {
		maxMessages = gmailDefaultMax
	}

	fetched := 0
	pageToken := ""
	for {
		call := f.client.Users.Messages.List("me").Context(ctx)
		if opts.Query != "" {
			call = call.Q(opts.Query)
		}
		if opts.Label != "" {
			call = call.LabelIds(opts.Label)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		remaining := maxMessages - fetched
		if remaining < 1 {
			return nil
		}
		call = call.MaxResults(int64(remaining))

		resp, err := call.Do()
		if err != nil {
			return wrapGmailError("list messages", err)
		}

		for _, ref := range resp.Messages {
			email, getErr := f.getMessage(ctx, ref.Id)
			if getErr != nil {
				return getErr
			}
			if emitErr := emit(email); emitErr != nil {
				return emitErr
			}
			fetched++
			if fetched >= maxMessages {
				return nil
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			return nil
		}
	}
}

// getMessage retrieves one message in full format, retrying transient
// failures.
func (f *GmailFetcher) getMessage(ctx context.Context, id string) (*model.RawEmail, error) {
	var msg *gmail.Message
	err := common.WithRetry(ctx, func() error {
		var getErr error
		msg, getErr = f.client.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		return wrapGmailError("get message", getErr)
	}, service.RetryOptions{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		MaxAttempts:  3,
	})
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}

	email := &model.RawEmail{
		Provider:     model.ProviderGmail,
		MessageID:    msg.Id,
		ThreadID:     msg.ThreadId,
		Snippet:      msg.Snippet,
		Body:         extractGmailBody(msg),
		InternalDate: time.Unix(msg.InternalDate/1000, 0),
	}
	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			email.Subject = header.Value
		case "From":
			email.Sender = header.Value
		}
	}
	return email, nil
}

// extractGmailBody prefers an HTML part, then a plain-text part, then the
// top-level body. Multipart messages can nest, so parts are walked
// recursively.
func extractGmailBody(msg *gmail.Message) string {
	if msg.Payload == nil {
		return ""
	}
	if body := findPart(msg.Payload.Parts, "text/html"); body != "" {
		return body
	}
	if body := findPart(msg.Payload.Parts, "text/plain"); body != "" {
		return body
	}
	if msg.Payload.Body != nil && msg.Payload.Body.Data != "" {
		if decoded, err := base64.URLEncoding.DecodeString(msg.Payload.Body.Data); err == nil {
			return string(decoded)
		}
	}
	return ""
}

func findPart(parts []*gmail.MessagePart, mimeType string) string {
	for _, part := range parts {
		if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
			if decoded, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				return string(decoded)
			}
		}
		if nested := findPart(part.Parts, mimeType); nested != "" {
			return nested
		}
	}
	return ""
}

// wrapGmailError maps API failures onto the shared error taxonomy so callers
// can branch on auth versus rate-limit versus transient.
func wrapGmailError(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w: %v", op, common.ErrMailboxAuth, err)
		case http.StatusTooManyRequests:
			return &common.RetryableError{Err: fmt.Errorf("%s: %w", op, common.ErrMailboxRateLimit), Retryable: true}
		}
		if apiErr.Code >= 500 {
			return &common.RetryableError{Err: fmt.Errorf("%s: %w", op, err), Retryable: true}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
