// Package webhook notifies callers about finished verification jobs.
// Delivery is best-effort: a bounded number of attempts with linearly
// growing delays, recorded per attempt so undelivered hooks stay visible.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-verify/internal/model"
)

// Config tunes webhook delivery.
type Config struct {
	// MaxAttempts is the total number of delivery tries per job.
	MaxAttempts int
	// RetryDelay is the base delay; the wait before retry n is
	// RetryDelay * n (linear, not exponential).
	RetryDelay time.Duration
	// Timeout applies per attempt.
	Timeout time.Duration
	// Source is sent in the X-Webhook-Source header.
	Source string
}

// DefaultConfig returns the standard delivery configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		RetryDelay:  time.Second,
		Timeout:     30 * time.Second,
		Source:      "catalog-verify",
	}
}

// Recorder persists per-attempt bookkeeping. store.Store satisfies it.
type Recorder interface {
	RecordWebhookAttempt(ctx context.Context, jobID string, delivered bool) error
}

// payload is the wire format posted to the webhook URL.
type payload struct {
	JobID       string `json:"jobId"`
	CatalogID   string `json:"catalogId"`
	CatalogName string `json:"catalogName"`
	// Status is "success" for completed jobs, "error" for failed ones.
	Status string `json:"status"`

	Data             *model.VerificationResult `json:"data,omitempty"`
	Error            string                    `json:"error,omitempty"`
	ProcessingTimeMs int64                     `json:"processingTimeMs,omitempty"`
}

// Deliverer posts job outcomes to per-job webhook URLs.
type Deliverer struct {
	cfg      Config
	http     *http.Client
	recorder Recorder

	// sleep is injectable so tests can assert the backoff schedule.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDeliverer creates a Deliverer. recorder may be nil when attempt
// bookkeeping is not wanted (one-shot CLI runs).
func NewDeliverer(cfg Config, recorder Recorder) *Deliverer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Deliverer{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		recorder: recorder,
		sleep:    sleepCtx,
	}
}

// Deliver posts the job outcome to its webhook URL. It returns nil when
// any attempt lands a 2xx, an error once all attempts are exhausted. A
// job without a webhook URL is a no-op.
func (d *Deliverer) Deliver(ctx context.Context, job *model.VerificationJob) error {
	if job.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildPayload(job))
	if err != nil {
		return eris.Wrap(err, "webhook: marshal payload")
	}

	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("url", job.WebhookURL),
	)

	var lastErr error
	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := d.cfg.RetryDelay * time.Duration(attempt)
			if err := d.sleep(ctx, delay); err != nil {
				return eris.Wrap(err, "webhook: retry wait")
			}
		}

		lastErr = d.post(ctx, job, body)
		d.record(ctx, job.ID, lastErr == nil)
		if lastErr == nil {
			log.Info("webhook delivered", zap.Int("attempt", attempt+1))
			return nil
		}
		log.Warn("webhook attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", d.cfg.MaxAttempts),
			zap.Error(lastErr),
		)
	}
	return eris.Wrapf(lastErr, "webhook: delivery failed after %d attempts", d.cfg.MaxAttempts)
}

func (d *Deliverer) post(ctx context.Context, job *model.VerificationJob, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "webhook: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Source", d.cfg.Source)
	req.Header.Set("X-Job-ID", job.ID)

	resp, err := d.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "webhook: send")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return eris.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *Deliverer) record(ctx context.Context, jobID string, delivered bool) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.RecordWebhookAttempt(ctx, jobID, delivered); err != nil {
		zap.L().Warn("webhook: record attempt failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func buildPayload(job *model.VerificationJob) payload {
	p := payload{
		JobID:            job.ID,
		CatalogID:        job.CatalogID,
		CatalogName:      job.CatalogName,
		ProcessingTimeMs: job.ProcessingTimeMs,
	}
	if job.Status == model.JobStatusCompleted {
		p.Status = "success"
		p.Data = job.Result
	} else {
		p.Status = "error"
		p.Error = job.Error
	}
	return p
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
