// Package verify drives a single verification run: two independent
// provider analyses, consensus building, category cross-validation, and
// targeted research for fields neither provider could determine.
package verify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-verify/internal/consensus"
	"github.com/sells-group/catalog-verify/internal/match"
	"github.com/sells-group/catalog-verify/internal/model"
	"github.com/sells-group/catalog-verify/internal/provider"
)

// Config tunes a verification run.
type Config struct {
	// CrossValMaxRounds bounds how many cross-validation rounds may run
	// when the providers disagree on category. The final consensus is
	// accepted regardless of whether disagreement persists.
	CrossValMaxRounds int

	// ResearchEnabled gates the research phase for needs-research fields.
	ResearchEnabled bool

	// DimensionSwapMinDelta is the inch difference below which a detected
	// depth/width swap is flagged for review instead of corrected.
	DimensionSwapMinDelta float64
}

// DefaultConfig returns the standard run configuration.
func DefaultConfig() Config {
	return Config{
		CrossValMaxRounds:     1,
		ResearchEnabled:       true,
		DimensionSwapMinDelta: 1.0,
	}
}

// Verifier executes verification runs against a fixed pair of providers.
type Verifier struct {
	providerA provider.Provider
	providerB provider.Provider
	builder   *consensus.Builder
	matcher   match.Matcher
	cfg       Config
}

// New creates a Verifier. A nil matcher disables canonical post-matching.
func New(a, b provider.Provider, matcher match.Matcher, rules *consensus.Rules, cfg Config) *Verifier {
	if matcher == nil {
		matcher = match.Noop{}
	}
	if cfg.CrossValMaxRounds < 0 {
		cfg.CrossValMaxRounds = 0
	}
	return &Verifier{
		providerA: a,
		providerB: b,
		builder:   consensus.NewBuilder(rules, cfg.DimensionSwapMinDelta),
		matcher:   matcher,
		cfg:       cfg,
	}
}

// runTrace carries per-run state through the call chain. It replaces any
// notion of a process-wide in-flight registry: the trace lives exactly as
// long as the run and travels by parameter.
type runTrace struct {
	catalogID   string
	catalogName string
	started     time.Time

	crossValRounds    int
	researchPerformed bool
}

// Run executes the full verification pipeline for one product record.
// Provider failures degrade the run; Run errors only when no provider
// produced a usable analysis or the context was cancelled.
func (v *Verifier) Run(ctx context.Context, input model.ProductInput) (*model.VerificationResult, error) {
	trace := &runTrace{
		catalogID:   input.CatalogID,
		catalogName: input.CatalogName,
		started:     time.Now(),
	}
	log := zap.L().With(
		zap.String("catalog_id", trace.catalogID),
		zap.String("catalog_name", trace.catalogName),
	)
	log.Info("verify: starting run")

	a, b := v.analyzeBoth(ctx, provider.AnalysisRequest{Input: input}, provider.AnalysisRequest{Input: input})
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "verify: analysis")
	}
	if !a.Success && !b.Success {
		return nil, eris.Errorf("verify: both providers failed: %s / %s", a.Error, b.Error)
	}

	cons := v.builder.Build(a, b)
	log.Info("verify: initial consensus",
		zap.Bool("agreed", cons.Agreed),
		zap.String("category", cons.Category),
		zap.Float64("confidence", cons.Confidence),
		zap.Int("disagreements", len(cons.Disagreements)),
	)

	a, b, cons = v.crossValidate(ctx, trace, input, a, b, cons)

	cons = v.research(ctx, trace, input, cons)

	v.applyCanonicalMatches(ctx, &cons)

	result := &model.VerificationResult{
		Consensus:             cons,
		AnalysisA:             a,
		AnalysisB:             b,
		CrossValidationRounds: trace.crossValRounds,
		ResearchPerformed:     trace.researchPerformed,
		DurationMs:            time.Since(trace.started).Milliseconds(),
	}

	log.Info("verify: run complete",
		zap.Bool("agreed", cons.Agreed),
		zap.String("category", cons.Category),
		zap.Float64("confidence", cons.Confidence),
		zap.Int("crossval_rounds", trace.crossValRounds),
		zap.Bool("research", trace.researchPerformed),
		zap.Int64("duration_ms", result.DurationMs),
	)
	return result, nil
}

// analyzeBoth fans out to the two providers and joins. Both calls always
// return (degraded results included) before consensus building starts.
func (v *Verifier) analyzeBoth(ctx context.Context, reqA, reqB provider.AnalysisRequest) (*model.AnalysisResult, *model.AnalysisResult) {
	var a, b *model.AnalysisResult

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a = v.providerA.Analyze(gCtx, reqA)
		return nil
	})
	g.Go(func() error {
		b = v.providerB.Analyze(gCtx, reqB)
		return nil
	})
	_ = g.Wait()

	return a, b
}

// applyCanonicalMatches post-processes the final agreed attributes
// against the canonical picklists. Matcher failures are logged and the
// raw values kept.
func (v *Verifier) applyCanonicalMatches(ctx context.Context, cons *model.ConsensusResult) {
	if cons.Category != "" {
		if res, err := v.matcher.Match(ctx, cons.Category, match.ClassCategory); err != nil {
			zap.L().Warn("verify: category match failed", zap.Error(err))
		} else if res.Matched {
			cons.Category = res.Canonical
		}
	}

	if brand, ok := cons.Primary["brand"]; ok {
		if res, err := v.matcher.Match(ctx, brand, match.ClassBrand); err != nil {
			zap.L().Warn("verify: brand match failed", zap.Error(err))
		} else if res.Matched {
			cons.Primary["brand"] = res.Canonical
		}
	}

	if style, ok := cons.Filter["style"]; ok {
		if res, err := v.matcher.Match(ctx, style, match.ClassStyle); err != nil {
			zap.L().Warn("verify: style match failed", zap.Error(err))
		} else if res.Matched {
			cons.Filter["style"] = res.Canonical
		}
	}
}
