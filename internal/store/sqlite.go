package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/catalog-verify/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS verification_jobs (
	id                 TEXT PRIMARY KEY,
	catalog_id         TEXT NOT NULL,
	catalog_name       TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'pending',
	input              TEXT NOT NULL,
	result             TEXT,
	error              TEXT,
	webhook_url        TEXT NOT NULL DEFAULT '',
	webhook_attempts   INTEGER NOT NULL DEFAULT 0,
	webhook_last_try   DATETIME,
	webhook_delivered  INTEGER NOT NULL DEFAULT 0,
	lease_expires_at   DATETIME,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at         DATETIME,
	completed_at       DATETIME,
	processing_time_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON verification_jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_catalog_id ON verification_jobs(catalog_id);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON verification_jobs(status, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const jobColumns = `id, catalog_id, catalog_name, status, input, result, error, webhook_url, webhook_attempts, webhook_last_try, webhook_delivered, lease_expires_at, created_at, updated_at, started_at, completed_at, processing_time_ms`

func (s *SQLiteStore) CreateJob(ctx context.Context, input model.ProductInput, webhookURL string) (*model.VerificationJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal input")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verification_jobs (id, catalog_id, catalog_name, status, input, webhook_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, input.CatalogID, input.CatalogName, string(model.JobStatusPending),
		string(inputJSON), webhookURL, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
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

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.VerificationJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM verification_jobs WHERE id = ?`,
		jobID,
	)
	return scanJob(row)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.VerificationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM verification_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.CatalogID != "" {
		query += ` AND catalog_id = ?`
		args = append(args, filter.CatalogID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.VerificationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) ClaimNextPending(ctx context.Context, lease time.Duration) (*model.VerificationJob, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin claim")
	}
	defer tx.Rollback()

	var id, prevStatus string
	err = tx.QueryRowContext(ctx,
		`SELECT id, status FROM verification_jobs
		 WHERE status = ? OR (status = ? AND lease_expires_at <= ?)
		 ORDER BY created_at ASC LIMIT 1`,
		string(model.JobStatusPending), string(model.JobStatusProcessing), now,
	).Scan(&id, &prevStatus)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: select claimable")
	}

	leaseExpires := now.Add(lease)
	_, err = tx.ExecContext(ctx,
		`UPDATE verification_jobs
		 SET status = ?, lease_expires_at = ?, started_at = COALESCE(started_at, ?), updated_at = ?
		 WHERE id = ?`,
		string(model.JobStatusProcessing), leaseExpires, now, now, id,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: claim job %s", id)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit claim")
	}

	if prevStatus == string(model.JobStatusProcessing) {
		zap.L().Warn("store: reclaimed job with lapsed lease", zap.String("job_id", id))
	}
	return s.GetJob(ctx, id)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, result *model.VerificationResult, processingMs int64) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE verification_jobs
		 SET status = ?, result = ?, lease_expires_at = NULL, completed_at = ?, updated_at = ?, processing_time_ms = ?
		 WHERE id = ? AND status = ?`,
		string(model.JobStatusCompleted), string(resultJSON), now, now, processingMs,
		jobID, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	return checkRowsAffected(res, "processing job", jobID)
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID string, jobErr string, processingMs int64) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE verification_jobs
		 SET status = ?, error = ?, lease_expires_at = NULL, completed_at = ?, updated_at = ?, processing_time_ms = ?
		 WHERE id = ? AND status = ?`,
		string(model.JobStatusFailed), jobErr, now, now, processingMs,
		jobID, string(model.JobStatusProcessing),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", jobID)
	}
	return checkRowsAffected(res, "processing job", jobID)
}

func (s *SQLiteStore) RecordWebhookAttempt(ctx context.Context, jobID string, delivered bool) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE verification_jobs
		 SET webhook_attempts = webhook_attempts + 1,
		     webhook_last_try = ?,
		     webhook_delivered = webhook_delivered OR ?,
		     updated_at = ?
		 WHERE id = ?`,
		now, delivered, now, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record webhook attempt %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Counts: make(map[model.JobStatus]int)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM verification_jobs GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count by status")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		stats.Counts[model.JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: count iterate")
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT AVG(processing_time_ms) FROM verification_jobs WHERE status = ?`,
		string(model.JobStatusCompleted),
	).Scan(&avg)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: avg processing time")
	}
	if avg.Valid {
		stats.AvgProcessingMs = avg.Float64
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM verification_jobs
		 WHERE webhook_url != '' AND webhook_delivered = 0 AND status IN (?, ?)`,
		string(model.JobStatusCompleted), string(model.JobStatusFailed),
	).Scan(&stats.WebhookUndeliver)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count undelivered webhooks")
	}
	return stats, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.VerificationJob, error) {
	var j model.VerificationJob
	var inputJSON string
	var resultJSON, jobErr, webhookURL sql.NullString

	err := row.Scan(
		&j.ID, &j.CatalogID, &j.CatalogName, &j.Status,
		&inputJSON, &resultJSON, &jobErr,
		&webhookURL, &j.WebhookAttempts, &j.WebhookLastTry, &j.WebhookDelivered,
		&j.LeaseExpiresAt, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt,
		&j.ProcessingTimeMs,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	if err := json.Unmarshal([]byte(inputJSON), &j.Input); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal input")
	}
	if resultJSON.Valid && resultJSON.String != "" {
		j.Result = &model.VerificationResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), j.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	j.Error = jobErr.String
	j.WebhookURL = webhookURL.String
	return &j, nil
}
