package match

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-verify/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
}

func TestHTTPMatcher_Match(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/match", r.URL.Path)
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))

		var req matchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ge appliances", req.Value)
		assert.Equal(t, ClassBrand, req.Class)

		json.NewEncoder(w).Encode(Result{Matched: true, Canonical: "GE", CanonicalID: "B-104"})
	}))
	defer srv.Close()

	m := NewClient(srv.URL, WithAPIKey("sekrit"))
	got, err := m.Match(context.Background(), "ge appliances", ClassBrand)
	require.NoError(t, err)
	assert.True(t, got.Matched)
	assert.Equal(t, "GE", got.Canonical)
	assert.Equal(t, "B-104", got.CanonicalID)
}

func TestHTTPMatcher_RetriesTransientStatus(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Result{Matched: true, Canonical: "GE"})
	}))
	defer srv.Close()

	m := NewClient(srv.URL, WithRetryConfig(fastRetry()))
	got, err := m.Match(context.Background(), "ge", ClassBrand)
	require.NoError(t, err)
	assert.True(t, got.Matched)
	assert.Equal(t, 2, calls)
}

func TestHTTPMatcher_ExhaustsRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, WithRetryConfig(fastRetry())).Match(context.Background(), "x", ClassCategory)
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestHTTPMatcher_NoRetryOnClientError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad class", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, WithRetryConfig(fastRetry())).Match(context.Background(), "x", ClassCategory)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNoop(t *testing.T) {
	got, err := Noop{}.Match(context.Background(), "anything", ClassBrand)
	require.NoError(t, err)
	assert.False(t, got.Matched)
}
