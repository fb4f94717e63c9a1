// Package queue polls the job store and drives claimed jobs through
// verification, persistence, and webhook notification. One job is
// processed at a time per worker; horizontal scale comes from running
// more workers against a shared Postgres store.
package queue

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-verify/internal/model"
	"github.com/sells-group/catalog-verify/internal/store"
)

// Runner executes one verification run. verify.Verifier satisfies it.
type Runner interface {
	Run(ctx context.Context, input model.ProductInput) (*model.VerificationResult, error)
}

// Deliverer posts the outcome of a finished job. webhook.Deliverer
// satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, job *model.VerificationJob) error
}

// Config tunes the polling loop.
type Config struct {
	// PollInterval is the delay between queue polls.
	PollInterval time.Duration
	// Lease is how long a claim holds before another worker may reclaim
	// the job. It must comfortably exceed the slowest expected run.
	Lease time.Duration
}

// DefaultConfig returns the standard processor configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		Lease:        10 * time.Minute,
	}
}

// Processor is the queue worker loop.
type Processor struct {
	store     store.Store
	runner    Runner
	deliverer Deliverer
	cfg       Config

	// busy prevents overlapping drains when a slow job outlasts the
	// poll interval.
	busy atomic.Bool
}

// New creates a Processor. deliverer may be nil when webhook delivery is
// not wanted.
func New(st store.Store, runner Runner, deliverer Deliverer, cfg Config) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 10 * time.Minute
	}
	return &Processor{
		store:     st,
		runner:    runner,
		deliverer: deliverer,
		cfg:       cfg,
	}
}

// Start runs the polling loop until ctx is cancelled. The first poll
// happens immediately rather than one interval in.
func (p *Processor) Start(ctx context.Context) {
	zap.L().Info("queue: processor started",
		zap.Duration("poll_interval", p.cfg.PollInterval),
		zap.Duration("lease", p.cfg.Lease),
	)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("queue: processor stopped")
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain processes claimable jobs until the queue is empty. A no-op when
// a previous drain is still running.
func (p *Processor) drain(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		return
	}
	defer p.busy.Store(false)

	for {
		processed, err := p.ProcessNext(ctx)
		if err != nil {
			zap.L().Error("queue: poll failed", zap.Error(err))
			return
		}
		if !processed || ctx.Err() != nil {
			return
		}
	}
}

// ProcessNext claims and fully processes one job. It reports whether a
// job was available.
func (p *Processor) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.store.ClaimNextPending(ctx, p.cfg.Lease)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	p.process(ctx, job)
	return true, nil
}

func (p *Processor) process(ctx context.Context, job *model.VerificationJob) {
	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("catalog_id", job.CatalogID),
	)
	log.Info("queue: processing job")

	started := time.Now()
	result, runErr := p.runner.Run(ctx, job.Input)
	elapsedMs := time.Since(started).Milliseconds()

	if runErr != nil {
		log.Error("queue: job failed", zap.Error(runErr), zap.Int64("elapsed_ms", elapsedMs))
		if err := p.store.FailJob(ctx, job.ID, runErr.Error(), elapsedMs); err != nil {
			log.Error("queue: persist failure state", zap.Error(err))
			return
		}
		job.Status = model.JobStatusFailed
		job.Error = runErr.Error()
	} else {
		log.Info("queue: job completed",
			zap.Bool("agreed", result.Consensus.Agreed),
			zap.Float64("confidence", result.Consensus.Confidence),
			zap.Int64("elapsed_ms", elapsedMs),
		)
		checkModelNumberMismatch(job, result)
		if err := p.store.CompleteJob(ctx, job.ID, result, elapsedMs); err != nil {
			log.Error("queue: persist completed state", zap.Error(err))
			return
		}
		job.Status = model.JobStatusCompleted
		job.Result = result
	}
	job.ProcessingTimeMs = elapsedMs

	if p.deliverer != nil {
		if err := p.deliverer.Deliver(ctx, job); err != nil {
			// The job outcome is already persisted; an undeliverable
			// webhook never fails the job.
			log.Warn("queue: webhook delivery failed", zap.Error(err))
		}
	}
}

// checkModelNumberMismatch warns when the verified model number does not
// appear anywhere in the expected catalog name. A verified number that
// contradicts the catalog record usually means the listing was mislabeled
// upstream; the mismatch is surfaced but the job still completes.
func checkModelNumberMismatch(job *model.VerificationJob, result *model.VerificationResult) {
	verified := result.Consensus.Primary["model_number"]
	if verified == "" || job.CatalogName == "" {
		return
	}
	mn := canonToken(verified)
	name := canonToken(job.CatalogName)
	if mn == "" || strings.Contains(name, mn) {
		return
	}
	zap.L().Warn("queue: verified model number absent from catalog name",
		zap.String("catalog_id", job.CatalogID),
		zap.String("model_number", verified),
		zap.String("catalog_name", job.CatalogName),
	)
}

// canonToken strips spaces and dashes and uppercases, so formatting
// differences (JGB-735 vs JGB 735) never trip the mismatch check.
func canonToken(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}
