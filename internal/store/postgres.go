package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-verify/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock satisfies
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot queue operations.
var preparedStatements = map[string]string{
	"insert_job": `INSERT INTO verification_jobs (id, catalog_id, catalog_name, status, input, webhook_url, created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_job": `SELECT ` + jobColumns + ` FROM verification_jobs WHERE id = $1`,
	"complete_job": `UPDATE verification_jobs
	 SET status = $1, result = $2, lease_expires_at = NULL, completed_at = $3, updated_at = $3, processing_time_ms = $4
	 WHERE id = $5 AND status = $6`,
	"fail_job": `UPDATE verification_jobs
	 SET status = $1, error = $2, lease_expires_at = NULL, completed_at = $3, updated_at = $3, processing_time_ms = $4
	 WHERE id = $5 AND status = $6`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS verification_jobs (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	catalog_id         TEXT NOT NULL,
	catalog_name       TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending',
	input              JSONB NOT NULL,
	result             JSONB,
	error              TEXT,
	webhook_url        TEXT NOT NULL DEFAULT '',
	webhook_attempts   INTEGER NOT NULL DEFAULT 0,
	webhook_last_try   TIMESTAMPTZ,
	webhook_delivered  BOOLEAN NOT NULL DEFAULT false,
	lease_expires_at   TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at         TIMESTAMPTZ,
	completed_at       TIMESTAMPTZ,
	processing_time_ms BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON verification_jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_catalog_id ON verification_jobs(catalog_id);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON verification_jobs(status, created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, input model.ProductInput, webhookURL string) (*model.VerificationJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal input")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO verification_jobs (id, catalog_id, catalog_name, status, input, webhook_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, input.CatalogID, input.CatalogName, string(model.JobStatusPending),
		inputJSON, webhookURL, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.VerificationJob{
		ID:          id,
		CatalogID:   input.CatalogID,
		CatalogName: input.CatalogName,
		Status:      model.JobStatusPending,
		Input:       input,
		WebhookURL:  webhookURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.VerificationJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM verification_jobs WHERE id = $1`,
		jobID,
	)
	j, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.VerificationJob, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	builder := sq.Select(jobColumns).
		From("verification_jobs").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar)

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.CatalogID != "" {
		builder = builder.Where(sq.Eq{"catalog_id": filter.CatalogID})
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list query")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.VerificationJob
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

// ClaimNextPending claims the oldest pending job, or a processing job
// whose lease has lapsed, using SKIP LOCKED so concurrent workers never
// double-claim.
func (s *PostgresStore) ClaimNextPending(ctx context.Context, lease time.Duration) (*model.VerificationJob, error) {
	now := time.Now().UTC()

	row := s.pool.QueryRow(ctx,
		`UPDATE verification_jobs
		 SET status = $1, lease_expires_at = $2, started_at = COALESCE(started_at, $3), updated_at = $3
		 WHERE id = (
		   SELECT id FROM verification_jobs
		   WHERE status = $4 OR (status = $1 AND lease_expires_at <= $3)
		   ORDER BY created_at ASC
		   LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		string(model.JobStatusProcessing), now.Add(lease), now,
		string(model.JobStatusPending),
	)

	j, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: claim job")
	}
	if j.StartedAt != nil && j.StartedAt.Before(now) {
		zap.L().Warn("store: reclaimed job with lapsed lease", zap.String("job_id", j.ID))
	}
	return j, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, result *model.VerificationResult, processingMs int64) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE verification_jobs
		 SET status = $1, result = $2, lease_expires_at = NULL, completed_at = $3, updated_at = $3, processing_time_ms = $4
		 WHERE id = $5 AND status = $6`,
		string(model.JobStatusCompleted), resultJSON, time.Now().UTC(), processingMs,
		jobID, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("processing job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID string, jobErr string, processingMs int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE verification_jobs
		 SET status = $1, error = $2, lease_expires_at = NULL, completed_at = $3, updated_at = $3, processing_time_ms = $4
		 WHERE id = $5 AND status = $6`,
		string(model.JobStatusFailed), jobErr, time.Now().UTC(), processingMs,
		jobID, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("processing job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) RecordWebhookAttempt(ctx context.Context, jobID string, delivered bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE verification_jobs
		 SET webhook_attempts = webhook_attempts + 1,
		     webhook_last_try = $1,
		     webhook_delivered = webhook_delivered OR $2,
		     updated_at = $1
		 WHERE id = $3`,
		time.Now().UTC(), delivered, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record webhook attempt %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Counts: make(map[model.JobStatus]int)}

	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM verification_jobs GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		stats.Counts[model.JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: count iterate")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COALESCE(AVG(processing_time_ms), 0) FROM verification_jobs WHERE status = $1`,
		string(model.JobStatusCompleted),
	).Scan(&stats.AvgProcessingMs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: avg processing time")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM verification_jobs
		 WHERE webhook_url != '' AND NOT webhook_delivered AND status IN ($1, $2)`,
		string(model.JobStatusCompleted), string(model.JobStatusFailed),
	).Scan(&stats.WebhookUndeliver)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count undelivered webhooks")
	}
	return stats, nil
}

func scanPgJob(row pgx.Row) (*model.VerificationJob, error) {
	var j model.VerificationJob
	var inputJSON []byte
	var resultJSON []byte
	var jobErr *string

	err := row.Scan(
		&j.ID, &j.CatalogID, &j.CatalogName, &j.Status,
		&inputJSON, &resultJSON, &jobErr,
		&j.WebhookURL, &j.WebhookAttempts, &j.WebhookLastTry, &j.WebhookDelivered,
		&j.LeaseExpiresAt, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt,
		&j.ProcessingTimeMs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan job")
	}

	if err := json.Unmarshal(inputJSON, &j.Input); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal input")
	}
	if len(resultJSON) > 0 {
		j.Result = &model.VerificationResult{}
		if err := json.Unmarshal(resultJSON, j.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	if jobErr != nil {
		j.Error = *jobErr
	}
	return &j, nil
}
