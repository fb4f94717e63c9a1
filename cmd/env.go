package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-verify/internal/consensus"
	"github.com/sells-group/catalog-verify/internal/match"
	"github.com/sells-group/catalog-verify/internal/provider"
	"github.com/sells-group/catalog-verify/internal/queue"
	"github.com/sells-group/catalog-verify/internal/store"
	"github.com/sells-group/catalog-verify/internal/verify"
	"github.com/sells-group/catalog-verify/internal/webhook"
	"github.com/sells-group/catalog-verify/pkg/anthropic"
	"github.com/sells-group/catalog-verify/pkg/perplexity"
)

// env bundles the wired subsystems a command needs.
type env struct {
	Store     store.Store
	Verifier  *verify.Verifier
	Processor *queue.Processor
	Deliverer *webhook.Deliverer
}

// initEnv wires store, providers, verifier, and processor from config.
func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	verifier, err := buildVerifier()
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}

	deliverer := webhook.NewDeliverer(webhook.Config{
		MaxAttempts: cfg.Webhook.MaxAttempts,
		RetryDelay:  time.Duration(cfg.Webhook.RetryDelayMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.Webhook.TimeoutSecs) * time.Second,
		Source:      cfg.Webhook.Source,
	}, st)

	processor := queue.New(st, verifier, deliverer, queue.Config{
		PollInterval: time.Duration(cfg.Queue.PollIntervalSecs) * time.Second,
		Lease:        time.Duration(cfg.Queue.LeaseMins) * time.Minute,
	})

	return &env{
		Store:     st,
		Verifier:  verifier,
		Processor: processor,
		Deliverer: deliverer,
	}, nil
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver (CATALOG_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func buildVerifier() (*verify.Verifier, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key is required (CATALOG_ANTHROPIC_KEY)")
	}
	if cfg.Perplexity.Key == "" {
		return nil, eris.New("perplexity key is required (CATALOG_PERPLEXITY_KEY)")
	}

	providerA := provider.NewClaude(anthropic.NewClient(cfg.Anthropic.Key), provider.ClaudeConfig{
		Model:      cfg.Anthropic.Model,
		MaxTokens:  int64(cfg.Anthropic.MaxTokens),
		RatePerSec: cfg.Anthropic.RatePerSec,
	})

	providerB := provider.NewSonar(perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
	), provider.SonarConfig{
		Model:      cfg.Perplexity.Model,
		MaxTokens:  cfg.Perplexity.MaxTokens,
		RatePerSec: cfg.Perplexity.RatePerSec,
	})

	rules, err := loadRules()
	if err != nil {
		return nil, err
	}

	var matcher match.Matcher = match.Noop{}
	if cfg.Matcher.BaseURL != "" {
		matcher = match.NewClient(cfg.Matcher.BaseURL, match.WithAPIKey(cfg.Matcher.APIKey))
	}

	return verify.New(providerA, providerB, matcher, rules, verify.Config{
		CrossValMaxRounds:     cfg.Verify.CrossValMaxRounds,
		ResearchEnabled:       cfg.Verify.ResearchEnabled,
		DimensionSwapMinDelta: cfg.Verify.DimensionSwapMinDelta,
	}), nil
}

func loadRules() (*consensus.Rules, error) {
	if cfg.Verify.RulesPath == "" {
		return consensus.DefaultRules(), nil
	}
	return consensus.LoadRules(cfg.Verify.RulesPath)
}
