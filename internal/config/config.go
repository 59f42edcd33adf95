// Package config provides configuration loading and validation for the CLI.
// Values come from defaults, an optional YAML file and ZEROECHO_* environment
// variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "ZEROECHO"

// Config is the complete application configuration.
type Config struct {
	Environment string         `mapstructure:"environment" validate:"required,alphanum"`
	CacheRoot   string         `mapstructure:"cache_root" validate:"required"`
	DatabaseURL string         `mapstructure:"database_url" validate:"omitempty,url"`
	Log         LogConfig      `mapstructure:"log"`
	Crawler     CrawlerConfig  `mapstructure:"crawler"`
	Retry       RetryConfig    `mapstructure:"retry"`
	Analysis    AnalysisConfig `mapstructure:"analysis"`
	Pipeline    PipelineConfig `mapstructure:"pipeline"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Encoding    string `mapstructure:"encoding" validate:"oneof=json console"`
	Development bool   `mapstructure:"development"`
}

// CrawlerConfig configures discovery and fetching.
type CrawlerConfig struct {
	Feeds           []string        `mapstructure:"feeds" validate:"dive,url"`
	Sections        []SectionConfig `mapstructure:"sections" validate:"dive"`
	Concurrency     int             `mapstructure:"concurrency" validate:"min=1,max=64"`
	UseHeadless     bool            `mapstructure:"use_headless"`
	UserAgent       string          `mapstructure:"user_agent" validate:"required"`
	Timeout         time.Duration   `mapstructure:"timeout" validate:"min=0"`
	HostInterval    time.Duration   `mapstructure:"host_interval" validate:"min=0"`
	FreshnessWindow time.Duration   `mapstructure:"freshness_window" validate:"min=0"`
	HistoryPath     string          `mapstructure:"history_path"`
	Cooldown        time.Duration   `mapstructure:"cooldown" validate:"min=0"`
	RobotsTTL       time.Duration   `mapstructure:"robots_ttl" validate:"min=0"`
}

// SectionConfig is an HTML section page scraped for article links.
type SectionConfig struct {
	URL          string   `mapstructure:"url" validate:"required,url"`
	PathPrefixes []string `mapstructure:"path_prefixes"`
}

// RetryConfig configures exponential backoff for networked calls.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	BaseDelay  time.Duration `mapstructure:"base_delay" validate:"min=0"`
	MaxDelay   time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
	Jitter     float64       `mapstructure:"jitter" validate:"min=0,max=1"`
}

// AnalysisConfig selects and configures the analysis backend.
type AnalysisConfig struct {
	Provider  string        `mapstructure:"provider" validate:"oneof=gemini http"`
	Endpoint  string        `mapstructure:"endpoint" validate:"omitempty,url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	BatchSize int           `mapstructure:"batch_size" validate:"min=1,max=100"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"min=0"`
}

// PipelineConfig configures phase batches and editorial thresholds.
type PipelineConfig struct {
	BatchLimit     int     `mapstructure:"batch_limit" validate:"min=1"`
	WorthlessBelow float64 `mapstructure:"worthless_below" validate:"min=0,max=10"`
	StandardAt     float64 `mapstructure:"standard_at" validate:"min=0,max=10,ltefield=FeaturedAt"`
	FeaturedAt     float64 `mapstructure:"featured_at" validate:"min=0,max=10"`
	PublishAt      float64 `mapstructure:"publish_at" validate:"min=0,max=10"`
	Schedule       string  `mapstructure:"schedule"`
	MetricsAddr    string  `mapstructure:"metrics_addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("cache_root", ".zeroecho/cache")
	v.SetDefault("database_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", false)

	v.SetDefault("crawler.feeds", []string{})
	v.SetDefault("crawler.sections", []map[string]any{})
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.use_headless", false)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; ZeroEchoBot/1.0)")
	v.SetDefault("crawler.timeout", 30*time.Second)
	v.SetDefault("crawler.host_interval", time.Second)
	v.SetDefault("crawler.freshness_window", 72*time.Hour)
	v.SetDefault("crawler.history_path", ".zeroecho/history.yaml")
	v.SetDefault("crawler.cooldown", 6*time.Hour)
	v.SetDefault("crawler.robots_ttl", time.Hour)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay", 500*time.Millisecond)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.jitter", 0.2)

	v.SetDefault("analysis.provider", "gemini")
	v.SetDefault("analysis.endpoint", "")
	v.SetDefault("analysis.api_key", "")
	v.SetDefault("analysis.model", "")
	v.SetDefault("analysis.batch_size", 8)
	v.SetDefault("analysis.timeout", 60*time.Second)

	v.SetDefault("pipeline.batch_limit", 50)
	v.SetDefault("pipeline.worthless_below", 3.0)
	v.SetDefault("pipeline.standard_at", 5.0)
	v.SetDefault("pipeline.featured_at", 7.5)
	v.SetDefault("pipeline.publish_at", 5.0)
	v.SetDefault("pipeline.schedule", "@every 1h")
	v.SetDefault("pipeline.metrics_addr", "")
}

// LoadConfig loads configuration. An empty path looks for zeroecho.yaml in
// the working directory and ./config, and is not an error when none exists;
// an explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database_url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind database_url: %w", err)
	}
	if err := v.BindEnv("analysis.api_key", EnvPrefix+"_ANALYSIS_API_KEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind analysis.api_key: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("zeroecho")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		if c.Analysis.Provider == "http" && c.Analysis.Endpoint == "" {
			return fmt.Errorf("config error: Analysis.Endpoint is required for the http provider")
		}
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config error: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
}
