package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/darb-group/leadflow/internal/model"
	"github.com/darb-group/leadflow/internal/store"
	"github.com/darb-group/leadflow/pkg/apollo"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Search(ctx context.Context, req apollo.SearchRequest) (*apollo.SearchResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*apollo.SearchResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) BulkEnrich(ctx context.Context, req apollo.EnrichRequest, opts apollo.EnrichOptions) (*apollo.EnrichResponse, error) {
	args := m.Called(ctx, req, opts)
	if resp := args.Get(0); resp != nil {
		return resp.(*apollo.EnrichResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestServer(t *testing.T, client apollo.Client) (*Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(st.Close)
	srv := New(context.Background(), client, st, Config{PagePause: time.Millisecond})
	return srv, st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &mockClient{})
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &mockClient{})
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/runs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerAcquireValidation(t *testing.T) {
	srv, _ := newTestServer(t, &mockClient{})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/trigger/acquire", map[string]any{"maxPages": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerAcquireRunsToCompletion(t *testing.T) {
	client := &mockClient{}
	srv, st := newTestServer(t, client)

	person := map[string]any{
		"id": "p-1", "first_name": "Ada", "title": "CTO",
		"organization": map[string]any{"name": "Acme"},
	}
	data, err := json.Marshal(map[string]any{
		"people":     []any{person},
		"pagination": map[string]any{"page": 1, "total_pages": 1},
	})
	require.NoError(t, err)
	var resp apollo.SearchResponse
	require.NoError(t, json.Unmarshal(data, &resp))

	client.On("Search", mock.Anything, mock.Anything).Return(&resp, nil).Once()

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/trigger/acquire", map[string]any{
		"personTitles": []string{"CTO"},
		"maxPages":     3,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		RunID string `json:"runId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.RunID)

	require.Eventually(t, func() bool {
		run, err := st.GetRun(context.Background(), accepted.RunID)
		return err == nil && run != nil && run.Status == model.RunStatusComplete
	}, 5*time.Second, 10*time.Millisecond)

	run, err := st.GetRun(context.Background(), accepted.RunID)
	require.NoError(t, err)
	var summary model.AcquisitionSummary
	require.NoError(t, json.Unmarshal(run.Result, &summary))
	assert.Equal(t, 1, summary.TotalRawResults)
	assert.Equal(t, 1, summary.TotalCompanies)
}

func TestTriggerEnrichRequiresWebhookForPhones(t *testing.T) {
	srv, _ := newTestServer(t, &mockClient{})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/trigger/enrich", map[string]any{
		"limit":              10,
		"revealPhoneNumbers": true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerEnrichRunsToCompletion(t *testing.T) {
	client := &mockClient{}
	srv, st := newTestServer(t, client)
	ctx := context.Background()

	_, err := st.InsertRawResult(ctx, &model.RawResult{
		ExternalPersonID: "p-1",
		FirstName:        "Ada",
		RawPayload:       json.RawMessage(`{"id":"p-1"}`),
	})
	require.NoError(t, err)

	matchData, err := json.Marshal(map[string]any{
		"id": "p-1", "first_name": "Ada", "email": "ada@acme.com",
	})
	require.NoError(t, err)
	var match apollo.Person
	require.NoError(t, json.Unmarshal(matchData, &match))

	client.On("BulkEnrich", mock.Anything, mock.Anything, mock.Anything).
		Return(&apollo.EnrichResponse{Matches: []*apollo.Person{&match}}, nil).Once()

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/trigger/enrich", map[string]any{"limit": 10})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		RunID string `json:"runId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))

	require.Eventually(t, func() bool {
		run, err := st.GetRun(ctx, accepted.RunID)
		return err == nil && run != nil && run.Status == model.RunStatusComplete
	}, 5*time.Second, 10*time.Millisecond)

	contact, err := st.GetContactByEmail(ctx, "ada@acme.com")
	require.NoError(t, err)
	assert.NotNil(t, contact)
}

func TestPhoneWebhookUpdatesContact(t *testing.T) {
	srv, st := newTestServer(t, &mockClient{})
	ctx := context.Background()

	contact := &model.Contact{Email: "ada@acme.com", FirstName: "Ada", Source: "apollo"}
	require.NoError(t, st.UpsertContactByEmail(ctx, contact))
	_, err := st.InsertRawResult(ctx, &model.RawResult{
		ExternalPersonID: "p-1",
		RawPayload:       json.RawMessage(`{"id":"p-1"}`),
	})
	require.NoError(t, err)
	row, err := st.GetRawResultByExternalID(ctx, "p-1")
	require.NoError(t, err)
	require.NoError(t, st.MarkRawResultProcessed(ctx, row.ID, nil, contact.ID))

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/webhook/apollo/phone", map[string]any{
		"people": []map[string]any{{
			"id": "p-1",
			"phone_numbers": []map[string]any{
				{"sanitized_number": "+15550100"},
			},
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":1}`, rec.Body.String())

	stored, err := st.GetContactByEmail(ctx, "ada@acme.com")
	require.NoError(t, err)
	assert.Equal(t, "+15550100", stored.Phone)
}

func TestPhoneWebhookUnknownPersonIsIgnored(t *testing.T) {
	srv, _ := newTestServer(t, &mockClient{})
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/webhook/apollo/phone", map[string]any{
		"people": []map[string]any{{
			"id":            fmt.Sprintf("unknown-%d", time.Now().Unix()),
			"phone_numbers": []map[string]any{{"sanitized_number": "+15550100"}},
		}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":0}`, rec.Body.String())
}
