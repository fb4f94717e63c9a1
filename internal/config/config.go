// Package config loads application configuration from file and
// environment and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/catalog-verify/internal/monitoring"
	"github.com/sells-group/catalog-verify/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig             `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig         `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig        `yaml:"perplexity" mapstructure:"perplexity"`
	Verify     VerifyConfig            `yaml:"verify" mapstructure:"verify"`
	Queue      QueueConfig             `yaml:"queue" mapstructure:"queue"`
	Webhook    WebhookConfig           `yaml:"webhook" mapstructure:"webhook"`
	Matcher    MatcherConfig           `yaml:"matcher" mapstructure:"matcher"`
	Server     ServerConfig            `yaml:"server" mapstructure:"server"`
	Monitoring monitoring.AlertConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig               `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string            `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	Model      string  `yaml:"model" mapstructure:"model"`
	MaxTokens  int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key        string  `yaml:"key" mapstructure:"key"`
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	Model      string  `yaml:"model" mapstructure:"model"`
	MaxTokens  int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// VerifyConfig tunes the verification pipeline.
type VerifyConfig struct {
	CrossValMaxRounds     int     `yaml:"crossval_max_rounds" mapstructure:"crossval_max_rounds"`
	ResearchEnabled       bool    `yaml:"research_enabled" mapstructure:"research_enabled"`
	DimensionSwapMinDelta float64 `yaml:"dimension_swap_min_delta" mapstructure:"dimension_swap_min_delta"`
	RulesPath             string  `yaml:"rules_path" mapstructure:"rules_path"`
}

// QueueConfig configures the job processor.
type QueueConfig struct {
	PollIntervalSecs int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	LeaseMins        int `yaml:"lease_mins" mapstructure:"lease_mins"`
}

// WebhookConfig configures result delivery.
type WebhookConfig struct {
	MaxAttempts  int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryDelayMs int    `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Source       string `yaml:"source" mapstructure:"source"`
}

// MatcherConfig configures the canonical picklist matcher.
type MatcherConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// ServerConfig configures the intake API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "catalog-verify.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.rate_per_sec", 2)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.max_tokens", 2048)
	v.SetDefault("perplexity.rate_per_sec", 2)
	v.SetDefault("verify.crossval_max_rounds", 1)
	v.SetDefault("verify.research_enabled", true)
	v.SetDefault("verify.dimension_swap_min_delta", 1.0)
	v.SetDefault("queue.poll_interval_secs", 5)
	v.SetDefault("queue.lease_mins", 10)
	v.SetDefault("webhook.max_attempts", 3)
	v.SetDefault("webhook.retry_delay_ms", 1000)
	v.SetDefault("webhook.timeout_secs", 30)
	v.SetDefault("webhook.source", "catalog-verify")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.webhook_backlog_threshold", 10)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
