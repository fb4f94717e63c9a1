// Package match resolves free-text values against the canonical picklist
// service (brands, categories, styles). It post-processes final agreed
// attributes only; consensus building never consults it.
package match

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-verify/internal/resilience"
)

// ValueClass identifies which picklist a value is matched against.
type ValueClass string

const (
	ClassBrand     ValueClass = "brand"
	ClassCategory  ValueClass = "category"
	ClassStyle     ValueClass = "style"
	ClassAttribute ValueClass = "attribute"
)

// Result is the matcher's verdict for one value.
type Result struct {
	Matched     bool   `json:"matched"`
	Canonical   string `json:"canonical,omitempty"`
	CanonicalID string `json:"canonical_id,omitempty"`
}

// Matcher resolves a free-text value to its canonical form.
type Matcher interface {
	Match(ctx context.Context, value string, class ValueClass) (*Result, error)
}

// Noop is a Matcher that never matches. Used when no matcher service is
// configured.
type Noop struct{}

func (Noop) Match(context.Context, string, ValueClass) (*Result, error) {
	return &Result{}, nil
}

// Option configures the HTTP matcher client.
type Option func(*httpMatcher)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *httpMatcher) {
		m.http = hc
	}
}

// WithAPIKey sets a bearer token for the matcher service.
func WithAPIKey(key string) Option {
	return func(m *httpMatcher) {
		m.apiKey = key
	}
}

// WithRetryConfig overrides the default retry behavior.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(m *httpMatcher) {
		m.retry = cfg
	}
}

type httpMatcher struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates an HTTP-backed Matcher.
func NewClient(baseURL string, opts ...Option) Matcher {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("matcher", "match")
	m := &httpMatcher{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		retry: retry,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type matchRequest struct {
	Value string     `json:"value"`
	Class ValueClass `json:"class"`
}

func (m *httpMatcher) Match(ctx context.Context, value string, class ValueClass) (*Result, error) {
	body, err := json.Marshal(matchRequest{Value: value, Class: class})
	if err != nil {
		return nil, eris.Wrap(err, "match: marshal request")
	}

	return resilience.DoVal(ctx, m.retry, func(ctx context.Context) (*Result, error) {
		return m.send(ctx, body)
	})
}

func (m *httpMatcher) send(ctx context.Context, body []byte) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/match", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "match: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "match: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "match: read response")
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("match: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "match: unmarshal response")
	}
	return &result, nil
}
