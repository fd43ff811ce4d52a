package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
)

const (
	graphBaseURL      = "https://graph.microsoft.com/v1.0"
	outlookDefaultMax = 100
	outlookPageSize   = 50
)

// OutlookFetcher retrieves messages through the Microsoft Graph API.
type OutlookFetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
}

// NewOutlookFetcher creates an Outlook fetcher authenticated by the token
// source.
func NewOutlookFetcher(ctx context.Context, tokenSource oauth2.TokenSource, logger *slog.Logger) *OutlookFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutlookFetcher{
		httpClient: oauth2.NewClient(ctx, tokenSource),
		logger:     logger,
		baseURL:    graphBaseURL,
	}
}

// Provider identifies this fetcher as Outlook.
func (f *OutlookFetcher) Provider() model.EmailProvider {
	return model.ProviderOutlook
}

// graphMessage is the subset of the Graph message resource the tracker needs.
type graphMessage struct {
	ID               string `json:"id"`
	ConversationID   string `json:"conversationId"`
	Subject          string `json:"subject"`
	BodyPreview      string `json:"bodyPreview"`
	ReceivedDateTime string `json:"receivedDateTime"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	From struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
}

type graphMessagePage struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

// Fetch pages through the mailbox and emits each message. Query maps to a
// Graph $search expression; Label selects a well-known or custom folder.
func (f *OutlookFetcher) Fetch(ctx context.Context, opts FetchOptions, emit func(*model.RawEmail) error) error {
	maxMessages := opts.MaxMessages
	if maxMessages <= 0 {
		maxMessages = outlookDefaultMax
	}

	next := f.firstPageURL(opts)
	fetched := 0
	for next != "" {
		page, err := f.getPage(ctx, next)
		if err != nil {
			return err
		}

		for i := range page.Value {
			email, convErr := toRawEmail(&page.Value[i])
			if convErr != nil {
				f.logger.Warn("skipping malformed message",
					"message_id", page.Value[i].ID, "error", convErr)
				continue
			}
			if emitErr := emit(email); emitErr != nil {
				return emitErr
			}
			fetched++
			if fetched >= maxMessages {
				return nil
			}
		}
		next = page.NextLink
	}
	return nil
}

func (f *OutlookFetcher) firstPageURL(opts FetchOptions) string {
	resource := "/me/messages"
	if opts.Label != "" {
		resource = "/me/mailFolders/" + url.PathEscape(opts.Label) + "/messages"
	}

	params := url.Values{}
	params.Set("$top", strconv.Itoa(outlookPageSize))
	params.Set("$orderby", "receivedDateTime desc")
	if opts.Query != "" {
		params.Set("$search", strconv.Quote(opts.Query))
		// $search and $orderby are mutually exclusive in Graph.
		params.Del("$orderby")
	}
	return f.baseURL + resource + "?" + params.Encode()
}

func (f *OutlookFetcher) getPage(ctx context.Context, pageURL string) (*graphMessagePage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("list messages: %w: status %d", common.ErrMailboxAuth, resp.StatusCode)
	case http.StatusTooManyRequests:
		return nil, &common.RetryableError{
			Err:       fmt.Errorf("list messages: %w", common.ErrMailboxRateLimit),
			Retryable: true,
		}
	default:
		return nil, fmt.Errorf("graph API error (status %d): %s", resp.StatusCode, string(body))
	}

	var page graphMessagePage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse graph response: %w", err)
	}
	return &page, nil
}

func toRawEmail(msg *graphMessage) (*model.RawEmail, error) {
	if msg.ID == "" {
		return nil, fmt.Errorf("message without id")
	}

	received, err := time.Parse(time.RFC3339, msg.ReceivedDateTime)
	if err != nil {
		received = time.Time{}
	}

	return &model.RawEmail{
		Provider:     model.ProviderOutlook,
		MessageID:    msg.ID,
		ThreadID:     msg.ConversationID,
		Subject:      msg.Subject,
		Sender:       msg.From.EmailAddress.Address,
		Snippet:      msg.BodyPreview,
		Body:         msg.Body.Content,
		InternalDate: received,
	}, nil
}
