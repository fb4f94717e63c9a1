package monitoring

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-verify/internal/model"
	"github.com/sells-group/catalog-verify/internal/store"
)

type fakeStats struct {
	stats *store.Stats
	err   error
}

func (f *fakeStats) Stats(context.Context) (*store.Stats, error) {
	return f.stats, f.err
}

func TestCollect(t *testing.T) {
	c := NewCollector(&fakeStats{stats: &store.Stats{
		Counts: map[model.JobStatus]int{
			model.JobStatusPending:   2,
			model.JobStatusCompleted: 6,
			model.JobStatusFailed:    2,
		},
		AvgProcessingMs:  1500,
		WebhookUndeliver: 1,
	}})

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, snap.JobsPending)
	assert.Equal(t, 6, snap.JobsCompleted)
	assert.Equal(t, 2, snap.JobsFailed)
	assert.InDelta(t, 0.25, snap.FailureRate, 0.0001)
	assert.InDelta(t, 1500, snap.AvgProcessingMs, 0.001)
	assert.Equal(t, 1, snap.WebhookUndelivered)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollect_NoFinishedJobs(t *testing.T) {
	c := NewCollector(&fakeStats{stats: &store.Stats{
		Counts: map[model.JobStatus]int{model.JobStatusPending: 4},
	}})

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.FailureRate)
}

func TestCollect_StoreError(t *testing.T) {
	c := NewCollector(&fakeStats{err: eris.New("db down")})

	_, err := c.Collect(context.Background())
	assert.Error(t, err)
}
