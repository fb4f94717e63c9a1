// Package store persists verification jobs. Two implementations: SQLite
// for single-node and local work, Postgres for shared deployments where
// several workers claim from the same queue.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-verify/internal/model"
)

// ErrNotFound is returned when a job lookup misses.
var ErrNotFound = eris.New("job not found")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status    model.JobStatus `json:"status,omitempty"`
	CatalogID string          `json:"catalog_id,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// Stats is a point-in-time aggregate over the job table.
type Stats struct {
	Counts           map[model.JobStatus]int `json:"counts"`
	AvgProcessingMs  float64                 `json:"avg_processing_ms"`
	WebhookUndeliver int                     `json:"webhook_undelivered"`
}

// Store defines the persistence interface for the verification queue.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, input model.ProductInput, webhookURL string) (*model.VerificationJob, error)
	GetJob(ctx context.Context, jobID string) (*model.VerificationJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.VerificationJob, error)

	// Queue. ClaimNextPending atomically moves the oldest claimable job
	// to processing and stamps a lease. A processing job whose lease has
	// lapsed is claimable again; a (nil, nil) return means the queue is
	// empty.
	ClaimNextPending(ctx context.Context, lease time.Duration) (*model.VerificationJob, error)
	CompleteJob(ctx context.Context, jobID string, result *model.VerificationResult, processingMs int64) error
	FailJob(ctx context.Context, jobID string, jobErr string, processingMs int64) error

	// Webhook bookkeeping
	RecordWebhookAttempt(ctx context.Context, jobID string, delivered bool) error

	// Monitoring
	Stats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
