package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(AlertConfig{FailureRateThreshold: 0.5, WebhookBacklogThreshold: 10})

	alerts := a.Evaluate(&MetricsSnapshot{
		JobsCompleted: 9,
		JobsFailed:    1,
		FailureRate:   0.1,
	})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	a := NewAlerter(AlertConfig{FailureRateThreshold: 0.25})

	alerts := a.Evaluate(&MetricsSnapshot{
		JobsCompleted: 4,
		JobsFailed:    4,
		FailureRate:   0.5,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertJobFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
}

func TestAlerter_Evaluate_TooFewFinishedJobs(t *testing.T) {
	a := NewAlerter(AlertConfig{FailureRateThreshold: 0.25})

	// 100% failure but only 2 finished jobs: below the noise floor.
	alerts := a.Evaluate(&MetricsSnapshot{JobsFailed: 2, FailureRate: 1.0})
	assert.Empty(t, alerts)
}

func TestAlerter_Evaluate_WebhookBacklog(t *testing.T) {
	a := NewAlerter(AlertConfig{WebhookBacklogThreshold: 5})

	alerts := a.Evaluate(&MetricsSnapshot{WebhookUndelivered: 8})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertWebhookBacklog, alerts[0].Type)
}

func TestAlerter_Send(t *testing.T) {
	var got map[string][]Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewAlerter(AlertConfig{WebhookURL: srv.URL})
	err := a.Send(context.Background(), []Alert{{Type: AlertJobFailureRate, Message: "too many failures"}})
	require.NoError(t, err)
	require.Len(t, got["alerts"], 1)
	assert.Equal(t, AlertJobFailureRate, got["alerts"][0].Type)
}

func TestAlerter_Send_NoWebhookConfigured(t *testing.T) {
	a := NewAlerter(AlertConfig{})
	assert.NoError(t, a.Send(context.Background(), []Alert{{Type: AlertWebhookBacklog}}))
}

func TestAlerter_Send_Empty(t *testing.T) {
	a := NewAlerter(AlertConfig{WebhookURL: "http://never-called.invalid"})
	assert.NoError(t, a.Send(context.Background(), nil))
}
