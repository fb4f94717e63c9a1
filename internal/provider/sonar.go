package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/catalog-verify/internal/model"
	"github.com/sells-group/catalog-verify/internal/resilience"
	"github.com/sells-group/catalog-verify/pkg/perplexity"
)

// SonarConfig configures the Perplexity-backed provider.
type SonarConfig struct {
	Model      string
	MaxTokens  int
	RatePerSec float64
}

type sonarProvider struct {
	client  perplexity.Client
	cfg     SonarConfig
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewSonar creates the Perplexity provider adapter. Sonar answers with
// live web grounding, which makes it the natural second opinion next to
// Claude's pure-text extraction.
func NewSonar(client perplexity.Client, cfg SonarConfig) Provider {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("perplexity", "chat_completion")
	return &sonarProvider{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		retry:   retry,
	}
}

func (p *sonarProvider) Name() string { return "sonar" }

func (p *sonarProvider) Analyze(ctx context.Context, req AnalysisRequest) *model.AnalysisResult {
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

func (p *sonarProvider) Research(ctx context.Context, req ResearchRequest) (map[string]string, error) {
	text, err := p.complete(ctx, researchSystemPrompt, buildResearchPrompt(req))
	if err != nil {
		return nil, err
	}
	return ParseResearch(p.Name(), text, req.Fields)
}

func (p *sonarProvider) complete(ctx context.Context, system, user string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "sonar: rate limit wait")
	}

	maxTokens := p.cfg.MaxTokens
	resp, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*perplexity.ChatCompletionResponse, error) {
		return p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
			Model: p.cfg.Model,
			Messages: []perplexity.Message{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			MaxTokens:      &maxTokens,
			ResponseFormat: perplexity.JSONObjectFormat(),
		})
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", eris.New("sonar: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
