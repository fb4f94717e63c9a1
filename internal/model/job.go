package model

import (
	"time"
)

// JobStatus represents the current state of a verification job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// CanTransitionTo reports whether moving from s to next is a valid
// lifecycle transition. Transitions are monotonic: pending → processing →
// {completed | failed}. A job never re-enters pending.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// VerificationJob is a single queued verification of one product record.
// The raw input is immutable once created; all other mutable fields are
// owned exclusively by the queue processor.
type VerificationJob struct {
	ID          string    `json:"id"`
	CatalogID   string    `json:"catalog_id"`
	CatalogName string    `json:"catalog_name"`
	Status      JobStatus `json:"status"`

	Input ProductInput `json:"input"`

	Result *VerificationResult `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`

	WebhookURL        string     `json:"webhook_url,omitempty"`
	WebhookAttempts   int        `json:"webhook_attempts"`
	WebhookLastTry    *time.Time `json:"webhook_last_try,omitempty"`
	WebhookDelivered  bool       `json:"webhook_delivered"`

	// LeaseExpiresAt guards against abandoned processing jobs: a claim on
	// a processing job whose lease has lapsed is treated as a reclaim.
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ProcessingTimeMs int64 `json:"processing_time_ms,omitempty"`
}
