package apollo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darb-group/leadflow/internal/resilience"
)

func noRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond})
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		wantPeople int
		wantPages  int
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"people": [
					{"id": "p1", "first_name": "Ada", "organization": {"name": "Acme"}},
					{"id": "p2", "first_name": "Grace"}
				],
				"pagination": {"page": 1, "per_page": 25, "total_entries": 2, "total_pages": 1}
			}`,
			wantPeople: 2,
			wantPages:  1,
		},
		{
			name:   "empty_page",
			status: http.StatusOK,
			body:   `{"people": []}`,
		},
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"error": "invalid api key"}`,
			wantErr: "status 401",
		},
		{
			name:    "rate_limited",
			status:  http.StatusTooManyRequests,
			body:    `{"error": "over quota"}`,
			wantErr: "status 429",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/mixed_people/search", r.URL.Path)
				assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

				var req SearchRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, 1, req.Page)

				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL), noRetry())
			resp, err := client.Search(context.Background(), SearchRequest{Page: 1, PerPage: 25})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			assert.Len(t, resp.People, tt.wantPeople)
			if tt.wantPages > 0 {
				require.NotNil(t, resp.Pagination)
				assert.Equal(t, tt.wantPages, resp.Pagination.TotalPages)
			}
		})
	}
}

func TestSearch_DropsUnknownEmailStatuses(t *testing.T) {
	var got SearchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"people": []}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), noRetry())
	_, err := client.Search(context.Background(), SearchRequest{
		Page:               1,
		ContactEmailStatus: []string{"Verified", "bogus", "likely to engage"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"verified", "likely to engage"}, got.ContactEmailStatus)
}

func TestSearch_TypedAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error": "bad titles"}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), noRetry())
	_, err := client.Search(context.Background(), SearchRequest{Page: 1})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "bad titles")
	assert.Equal(t, "search", apiErr.Op)
	assert.False(t, apiErr.RateLimited())
	assert.Contains(t, apiErr.UserMessage(), "parameters")
}

func TestSearch_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"people": [{"id": "p1"}]}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL),
		WithRetry(resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}))
	resp, err := client.Search(context.Background(), SearchRequest{Page: 1})
	require.NoError(t, err)
	assert.Len(t, resp.People, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBulkEnrich(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/people/bulk_match", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("reveal_personal_emails"))
		assert.Equal(t, "", r.URL.Query().Get("reveal_phone_number"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"details"`)

		_, _ = w.Write([]byte(`{
			"matches": [{"id": "p1", "email": "ada@acme.com", "email_status": "verified"}, null],
			"breadcrumb_id": "bc-1"
		}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), noRetry())
	resp, err := client.BulkEnrich(context.Background(),
		EnrichRequest{Details: []EnrichDetail{{ID: "p1"}, {ID: "p2"}}},
		EnrichOptions{RevealPersonalEmails: true},
	)
	require.NoError(t, err)
	require.Len(t, resp.Matches, 2)
	assert.Equal(t, "ada@acme.com", resp.Matches[0].Email)
	assert.Nil(t, resp.Matches[1])
	assert.Equal(t, "bc-1", resp.BreadcrumbID)
}

func TestBulkEnrich_PhonesRequireWebhook(t *testing.T) {
	client := NewClient("k", noRetry())
	_, err := client.BulkEnrich(context.Background(),
		EnrichRequest{Details: []EnrichDetail{{ID: "p1"}}},
		EnrichOptions{RevealPhoneNumbers: true},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook_url")
}

func TestBulkEnrich_WebhookQueryParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("reveal_phone_number"))
		assert.Equal(t, "https://hooks.example.com/apollo", r.URL.Query().Get("webhook_url"))
		_, _ = w.Write([]byte(`{"matches": [null]}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), noRetry())
	_, err := client.BulkEnrich(context.Background(),
		EnrichRequest{Details: []EnrichDetail{{ID: "p1"}}},
		EnrichOptions{RevealPhoneNumbers: true, WebhookURL: "https://hooks.example.com/apollo"},
	)
	require.NoError(t, err)
}

func TestBulkEnrich_TooManyDetails(t *testing.T) {
	details := make([]EnrichDetail, MaxEnrichDetails+1)
	client := NewClient("k", noRetry())
	_, err := client.BulkEnrich(context.Background(), EnrichRequest{Details: details}, EnrichOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "per-call cap")
}

func TestBulkEnrich_NoDetails(t *testing.T) {
	client := NewClient("k", noRetry())
	_, err := client.BulkEnrich(context.Background(), EnrichRequest{}, EnrichOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no details")
}
