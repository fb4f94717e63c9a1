package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/catalog-verify/internal/model"
	"github.com/sells-group/catalog-verify/internal/resilience"
	"github.com/sells-group/catalog-verify/pkg/anthropic"
)

// ClaudeConfig configures the Claude-backed provider.
type ClaudeConfig struct {
	Model      string
	MaxTokens  int64
	RatePerSec float64
}

type claudeProvider struct {
	client  anthropic.Client
	cfg     ClaudeConfig
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewClaude creates the Claude provider adapter.
func NewClaude(client anthropic.Client, cfg ClaudeConfig) Provider {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	return &claudeProvider{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		retry:   retry,
	}
}

func (p *claudeProvider) Name() string { return "claude" }

func (p *claudeProvider) Analyze(ctx context.Context, req AnalysisRequest) *model.AnalysisResult {
	text, err := p.complete(ctx, analysisSystemPrompt, buildAnalysisPrompt(req))
	if err != nil {
		zap.L().Warn("provider degraded", zap.String("provider", p.Name()), zap.Error(err))
		return model.Degraded(p.Name(), err)
	}

	result, err := ParseAnalysis(p.Name(), text)
	if err != nil {
		zap.L().Warn("provider response rejected", zap.String("provider", p.Name()), zap.Error(err))
		return model.Degraded(p.Name(), err)
	}
	return result
}

func (p *claudeProvider) Research(ctx context.Context, req ResearchRequest) (map[string]string, error) {
	text, err := p.complete(ctx, researchSystemPrompt, buildResearchPrompt(req))
	if err != nil {
		return nil, err
	}
	return ParseResearch(p.Name(), text, req.Fields)
}

func (p *claudeProvider) complete(ctx context.Context, system, user string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "claude: rate limit wait")
	}

	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return p.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     p.cfg.Model,
			MaxTokens: p.cfg.MaxTokens,
			System:    anthropic.BuildCachedSystemBlocks(system),
			Messages:  []anthropic.Message{{Role: "user", Content: user}},
		})
	})
	if err != nil {
		return "", err
	}

	resp.Usage.LogCost(p.cfg.Model, "verify")

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", eris.New("claude: empty response")
}
