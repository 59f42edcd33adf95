package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zeroecho.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 4, cfg.Crawler.Concurrency)
	assert.Equal(t, 72*time.Hour, cfg.Crawler.FreshnessWindow)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 0.2, cfg.Retry.Jitter)
	assert.Equal(t, "gemini", cfg.Analysis.Provider)
	assert.Equal(t, 50, cfg.Pipeline.BatchLimit)
	assert.Equal(t, 5.0, cfg.Pipeline.PublishAt)
	assert.Empty(t, cfg.Crawler.Feeds)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
environment: staging
cache_root: /var/cache/zeroecho
crawler:
  concurrency: 8
  timeout: 10s
  feeds:
    - https://news.example.com/rss
  sections:
    - url: https://news.example.com/world
      path_prefixes: [/world/]
analysis:
  provider: http
  endpoint: https://analysis.example.com/v1/batch
  batch_size: 4
pipeline:
  publish_at: 6.5
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "/var/cache/zeroecho", cfg.CacheRoot)
	assert.Equal(t, 8, cfg.Crawler.Concurrency)
	assert.Equal(t, 10*time.Second, cfg.Crawler.Timeout)
	assert.Equal(t, []string{"https://news.example.com/rss"}, cfg.Crawler.Feeds)
	require.Len(t, cfg.Crawler.Sections, 1)
	assert.Equal(t, []string{"/world/"}, cfg.Crawler.Sections[0].PathPrefixes)
	assert.Equal(t, "http", cfg.Analysis.Provider)
	assert.Equal(t, 4, cfg.Analysis.BatchSize)
	assert.Equal(t, 6.5, cfg.Pipeline.PublishAt)
	assert.Equal(t, 7.5, cfg.Pipeline.FeaturedAt)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "crawler:\n  concurrency: 8\n")
	t.Setenv("ZEROECHO_CRAWLER_CONCURRENCY", "2")
	t.Setenv("ZEROECHO_ENVIRONMENT", "production")
	t.Setenv("DATABASE_URL", "postgres://user:pw@localhost:5432/zeroecho")
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Crawler.Concurrency)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "postgres://user:pw@localhost:5432/zeroecho", cfg.DatabaseURL)
	assert.Equal(t, "from-env", cfg.Analysis.APIKey)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/zeroecho.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "crawler: [unclosed\n")

	cfg, err := LoadConfig(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "Crawler.Concurrency"},
		{"bad feed url", func(c *Config) { c.Crawler.Feeds = []string{"not a url"} }, "Crawler.Feeds[0]"},
		{"section without url", func(c *Config) { c.Crawler.Sections = []SectionConfig{{}} }, "Crawler.Sections[0].URL"},
		{"unknown provider", func(c *Config) { c.Analysis.Provider = "carrier-pigeon" }, "Analysis.Provider"},
		{"http without endpoint", func(c *Config) { c.Analysis.Provider = "http" }, "Analysis.Endpoint"},
		{"threshold above ten", func(c *Config) { c.Pipeline.PublishAt = 11 }, "Pipeline.PublishAt"},
		{"standard above featured", func(c *Config) { c.Pipeline.StandardAt = 9 }, "Pipeline.StandardAt"},
		{"max delay below base", func(c *Config) { c.Retry.MaxDelay = time.Millisecond }, "Retry.MaxDelay"},
		{"jitter above one", func(c *Config) { c.Retry.Jitter = 1.5 }, "Retry.Jitter"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "Log.Level"},
		{"empty environment", func(c *Config) { c.Environment = "" }, "Environment"},
		{"bad database url", func(c *Config) { c.DatabaseURL = "::nope" }, "DatabaseURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			cfg, err := LoadConfig("")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config error")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
