package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpvargas/gastotrack/internal/common"
	"github.com/jpvargas/gastotrack/internal/model"
)

func newTestFetcher(server *httptest.Server) *OutlookFetcher {
	return &OutlookFetcher{
		httpClient: server.Client(),
		logger:     slog.Default(),
		baseURL:    server.URL,
	}
}

func TestOutlookFetch_PagesAndEmits(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"value": [{
				"id": "msg-2",
				"subject": "Compra aprobada",
				"receivedDateTime": "2025-11-08T13:00:00Z",
				"body": {"contentType": "html", "content": "<p>cuerpo 2</p>"},
				"from": {"emailAddress": {"address": "banco@example.com"}}
			}]}`)
			return
		}
		fmt.Fprintf(w, `{"value": [{
			"id": "msg-1",
			"conversationId": "conv-1",
			"subject": "Notificación",
			"bodyPreview": "resumen",
			"receivedDateTime": "2025-11-08T12:00:00Z",
			"body": {"contentType": "html", "content": "<p>cuerpo 1</p>"},
			"from": {"emailAddress": {"address": "banco@example.com"}}
		}], "@odata.nextLink": %q}`, server.URL+"/me/messages?page=2")
	}))
	defer server.Close()

	var emitted []model.RawEmail
	err := newTestFetcher(server).Fetch(context.Background(), FetchOptions{MaxMessages: 10}, func(email *model.RawEmail) error {
		emitted = append(emitted, *email)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, emitted, 2)
	assert.Equal(t, "msg-1", emitted[0].MessageID)
	assert.Equal(t, model.ProviderOutlook, emitted[0].Provider)
	assert.Equal(t, "banco@example.com", emitted[0].Sender)
	assert.Equal(t, "conv-1", emitted[0].ThreadID)
	assert.Equal(t, "<p>cuerpo 1</p>", emitted[0].Body)
	assert.Equal(t, "msg-2", emitted[1].MessageID)
	assert.Equal(t, 2025, emitted[1].InternalDate.Year())
}

func TestOutlookFetch_RespectsMaxMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value": [
			{"id": "a", "receivedDateTime": "2025-11-08T12:00:00Z"},
			{"id": "b", "receivedDateTime": "2025-11-08T12:01:00Z"},
			{"id": "c", "receivedDateTime": "2025-11-08T12:02:00Z"}
		]}`)
	}))
	defer server.Close()

	count := 0
	err := newTestFetcher(server).Fetch(context.Background(), FetchOptions{MaxMessages: 2}, func(_ *model.RawEmail) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestOutlookFetch_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	err := newTestFetcher(server).Fetch(context.Background(), FetchOptions{}, func(_ *model.RawEmail) error {
		t.Fatal("no message should be emitted")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMailboxAuth)
}

func TestOutlookFetch_RateLimitIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := newTestFetcher(server).Fetch(context.Background(), FetchOptions{}, func(_ *model.RawEmail) error {
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMailboxRateLimit)
	assert.True(t, common.IsRetryable(err))
}
