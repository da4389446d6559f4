// Package apollo provides a thin client for the Apollo people-search and
// bulk-enrichment API.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/darb-group/leadflow/internal/ratelimit"
	"github.com/darb-group/leadflow/internal/resilience"
)

const defaultBaseURL = "https://api.apollo.io"

// Client performs search and bulk-enrichment calls against the provider.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	BulkEnrich(ctx context.Context, req EnrichRequest, opts EnrichOptions) (*EnrichResponse, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithLimiter throttles every outbound call through the given limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *ratelimit.Limiter
	retry   resilience.RetryConfig
}

// NewClient creates an Apollo API client. The default transport carries an
// explicit 30s timeout so a hung provider call surfaces as an error instead
// of stalling a run.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	req.ContactEmailStatus = NormalizeEmailStatuses(req.ContactEmailStatus)

	var resp SearchResponse
	if err := c.post(ctx, "search", "/v1/mixed_people/search", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpClient) BulkEnrich(ctx context.Context, req EnrichRequest, opts EnrichOptions) (*EnrichResponse, error) {
	if len(req.Details) == 0 {
		return nil, eris.New("apollo: bulk_match: no details")
	}
	if len(req.Details) > MaxEnrichDetails {
		return nil, eris.Errorf("apollo: bulk_match: %d details exceeds the %d per-call cap", len(req.Details), MaxEnrichDetails)
	}
	// The provider delivers phone data out-of-band; without a webhook the
	// request is malformed, so fail before spending the call.
	if opts.RevealPhoneNumbers && opts.WebhookURL == "" {
		return nil, eris.New("apollo: bulk_match: reveal_phone_number requires a webhook_url")
	}

	q := url.Values{}
	if opts.RevealPersonalEmails {
		q.Set("reveal_personal_emails", "true")
	}
	if opts.RevealPhoneNumbers {
		q.Set("reveal_phone_number", "true")
		q.Set("webhook_url", opts.WebhookURL)
	}

	var resp EnrichResponse
	if err := c.post(ctx, "bulk_match", "/v1/people/bulk_match", q, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// post issues one rate-limited, retried JSON POST and decodes the response
// into out. Non-2xx responses come back as *APIError.
func (c *httpClient) post(ctx context.Context, op, path string, query url.Values, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrapf(err, "apollo: %s: rate limit", op)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrapf(err, "apollo: %s: marshal request", op)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	respBody, err := resilience.DoVal(ctx, c.retryWithLog(op), func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, op, target, payload)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrapf(err, "apollo: %s: unmarshal response", op)
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, op, target string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrapf(err, "apollo: %s: create request", op)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrapf(err, "apollo: %s: send request", op)
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "apollo: %s: read response", op)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
		// A failing provider means any accumulated pacing is stale; clear
		// it so the next run does not inherit compounded waits.
		if c.limiter != nil && resp.StatusCode >= 500 {
			c.limiter.Reset()
		}
		return nil, apiErr
	}

	return respBody, nil
}

func (c *httpClient) retryWithLog(op string) resilience.RetryConfig {
	cfg := c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("apollo." + op)
	}
	return cfg
}
