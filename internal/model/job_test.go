package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_ValidTransitions(t *testing.T) {
	assert.True(t, JobStatusPending.CanTransitionTo(JobStatusProcessing))
	assert.True(t, JobStatusProcessing.CanTransitionTo(JobStatusCompleted))
	assert.True(t, JobStatusProcessing.CanTransitionTo(JobStatusFailed))
}

func TestJobStatus_InvalidTransitions(t *testing.T) {
	cases := []struct {
		from, to JobStatus
	}{
		{JobStatusPending, JobStatusCompleted},
		{JobStatusPending, JobStatusFailed},
		{JobStatusPending, JobStatusPending},
		{JobStatusProcessing, JobStatusPending},
		{JobStatusProcessing, JobStatusProcessing},
		{JobStatusCompleted, JobStatusPending},
		{JobStatusCompleted, JobStatusProcessing},
		{JobStatusCompleted, JobStatusFailed},
		{JobStatusFailed, JobStatusPending},
		{JobStatusFailed, JobStatusProcessing},
		{JobStatusFailed, JobStatusCompleted},
	}
	for _, c := range cases {
		assert.False(t, c.from.CanTransitionTo(c.to), "%s -> %s should be invalid", c.from, c.to)
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusProcessing.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestDegraded(t *testing.T) {
	r := Degraded("claude", assert.AnError)
	assert.False(t, r.Success)
	assert.Equal(t, "claude", r.Provider)
	assert.Equal(t, assert.AnError.Error(), r.Error)
	assert.Zero(t, r.Confidence)

	r = Degraded("sonar", nil)
	assert.False(t, r.Success)
	assert.Empty(t, r.Error)
}
