package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertJobFailureRate AlertType = "job_failure_rate"
	AlertWebhookBacklog AlertType = "webhook_backlog"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AlertConfig holds thresholds and the delivery target.
type AlertConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
	// FailureRateThreshold is the job failure rate (0..1) above which an
	// alert fires. Requires at least 5 finished jobs to avoid noise on
	// fresh deployments.
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	// WebhookBacklogThreshold is the undelivered-webhook count above
	// which an alert fires. Zero disables the check.
	WebhookBacklogThreshold int `yaml:"webhook_backlog_threshold" mapstructure:"webhook_backlog_threshold"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds and
// sends alerts via webhook when they are breached.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
}

// NewAlerter creates an Alerter with the given config.
func NewAlerter(cfg AlertConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.JobsCompleted + snap.JobsFailed
	if finished >= 5 && a.cfg.FailureRateThreshold > 0 && snap.FailureRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertJobFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Job failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished)",
				snap.FailureRate*100, a.cfg.FailureRateThreshold*100,
				snap.JobsFailed, finished,
			),
			Details: map[string]any{
				"failure_rate": snap.FailureRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.JobsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.WebhookBacklogThreshold > 0 && snap.WebhookUndelivered > a.cfg.WebhookBacklogThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertWebhookBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d finished jobs have undelivered webhooks (threshold %d)",
				snap.WebhookUndelivered, a.cfg.WebhookBacklogThreshold,
			),
			Details: map[string]any{
				"undelivered": snap.WebhookUndelivered,
				"threshold":   a.cfg.WebhookBacklogThreshold,
			},
			Timestamp: now,
		})
	}
	return alerts
}

// Send posts alerts to the configured webhook URL. A missing URL logs
// the alerts instead of dropping them silently.
func (a *Alerter) Send(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	if a.cfg.WebhookURL == "" {
		for _, alert := range alerts {
			zap.L().Warn("monitoring alert (no webhook configured)",
				zap.String("type", string(alert.Type)),
				zap.String("message", alert.Message),
			)
		}
		return nil
	}

	body, err := json.Marshal(map[string]any{"alerts": alerts})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alerts")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: create alert request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: send alerts")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return eris.Errorf("monitoring: alert webhook returned status %d", resp.StatusCode)
	}
	zap.L().Info("monitoring alerts sent", zap.Int("count", len(alerts)))
	return nil
}
