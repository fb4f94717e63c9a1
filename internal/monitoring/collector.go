// Package monitoring gathers queue health metrics and raises alerts
// when failure rates or webhook backlogs cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-verify/internal/model"
	"github.com/sells-group/catalog-verify/internal/store"
)

// MetricsSnapshot holds a point-in-time view of queue health.
type MetricsSnapshot struct {
	JobsPending    int `json:"jobs_pending"`
	JobsProcessing int `json:"jobs_processing"`
	JobsCompleted  int `json:"jobs_completed"`
	JobsFailed     int `json:"jobs_failed"`

	// FailureRate is failed / (completed + failed); zero when nothing
	// has finished yet.
	FailureRate float64 `json:"failure_rate"`

	AvgProcessingMs    float64 `json:"avg_processing_ms"`
	WebhookUndelivered int     `json:"webhook_undelivered"`

	CollectedAt time.Time `json:"collected_at"`
}

// StatsSource abstracts the store aggregate the collector reads.
type StatsSource interface {
	Stats(ctx context.Context) (*store.Stats, error)
}

// Collector gathers metrics from the job store.
type Collector struct {
	source StatsSource
}

// NewCollector creates a metrics collector.
func NewCollector(source StatsSource) *Collector {
	return &Collector{source: source}
}

// Collect gathers a snapshot of queue metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	stats, err := c.source.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: collect stats")
	}

	snap := &MetricsSnapshot{
		JobsPending:        stats.Counts[model.JobStatusPending],
		JobsProcessing:     stats.Counts[model.JobStatusProcessing],
		JobsCompleted:      stats.Counts[model.JobStatusCompleted],
		JobsFailed:         stats.Counts[model.JobStatusFailed],
		AvgProcessingMs:    stats.AvgProcessingMs,
		WebhookUndelivered: stats.WebhookUndeliver,
		CollectedAt:        time.Now().UTC(),
	}

	if finished := snap.JobsCompleted + snap.JobsFailed; finished > 0 {
		snap.FailureRate = float64(snap.JobsFailed) / float64(finished)
	}
	return snap, nil
}
