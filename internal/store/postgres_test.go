package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-verify/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var pgJobColumns = []string{
	"id", "catalog_id", "catalog_name", "status", "input", "result", "error",
	"webhook_url", "webhook_attempts", "webhook_last_try", "webhook_delivered",
	"lease_expires_at", "created_at", "updated_at", "started_at", "completed_at",
	"processing_time_ms",
}

func pgJobRow(t *testing.T, id string, status model.JobStatus) *pgxmock.Rows {
	t.Helper()
	inputJSON, err := json.Marshal(model.ProductInput{CatalogID: "cat-1", CatalogName: "GE Range"})
	require.NoError(t, err)
	now := time.Now().UTC()

	return pgxmock.NewRows(pgJobColumns).AddRow(
		id, "cat-1", "GE Range", string(status),
		inputJSON, []byte(nil), (*string)(nil),
		"", 0, (*time.Time)(nil), false,
		(*time.Time)(nil), now, now, (*time.Time)(nil), (*time.Time)(nil),
		int64(0),
	)
}

func TestPostgresStore_GetJob_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM verification_jobs WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM verification_jobs WHERE id = \$1`).
		WithArgs("job-1").
		WillReturnRows(pgJobRow(t, "job-1", model.JobStatusPending))

	job, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Equal(t, "cat-1", job.Input.CatalogID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO verification_jobs`).
		WithArgs(pgxmock.AnyArg(), "cat-1", "GE Range", string(model.JobStatusPending),
			pgxmock.AnyArg(), "https://hooks.example.com/done", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job, err := s.CreateJob(context.Background(),
		model.ProductInput{CatalogID: "cat-1", CatalogName: "GE Range"},
		"https://hooks.example.com/done")
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimNextPending_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`UPDATE verification_jobs`).
		WillReturnError(pgx.ErrNoRows)

	job, err := s.ClaimNextPending(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimNextPending(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`UPDATE verification_jobs`).
		WillReturnRows(pgJobRow(t, "job-1", model.JobStatusProcessing))

	job, err := s.ClaimNextPending(context.Background(), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, model.JobStatusProcessing, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteJob_NotProcessing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE verification_jobs`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteJob(context.Background(), "job-1", &model.VerificationResult{}, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processing job not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FailJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE verification_jobs`).
		WithArgs(string(model.JobStatusFailed), "boom", pgxmock.AnyArg(), int64(100),
			"job-1", string(model.JobStatusProcessing)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.FailJob(context.Background(), "job-1", "boom", 100)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordWebhookAttempt(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE verification_jobs`).
		WithArgs(pgxmock.AnyArg(), true, "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.RecordWebhookAttempt(context.Background(), "job-1", true)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJobs_FilterArgs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM verification_jobs WHERE status = \$1 AND catalog_id = \$2`).
		WithArgs(string(model.JobStatusPending), "cat-1").
		WillReturnRows(pgJobRow(t, "job-1", model.JobStatusPending))

	jobs, err := s.ListJobs(context.Background(), JobFilter{
		Status:    model.JobStatusPending,
		CatalogID: "cat-1",
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Stats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM verification_jobs GROUP BY status`).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 3).
			AddRow("completed", 7))
	mock.ExpectQuery(`SELECT COALESCE\(AVG\(processing_time_ms\), 0\)`).
		WithArgs(string(model.JobStatusCompleted)).
		WillReturnRows(pgxmock.NewRows([]string{"avg"}).AddRow(1500.0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM verification_jobs`).
		WithArgs(string(model.JobStatusCompleted), string(model.JobStatusFailed)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Counts[model.JobStatusPending])
	assert.Equal(t, 7, stats.Counts[model.JobStatusCompleted])
	assert.InDelta(t, 1500, stats.AvgProcessingMs, 0.001)
	assert.Equal(t, 2, stats.WebhookUndeliver)
	assert.NoError(t, mock.ExpectationsWereMet())
}
