package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://m.kismia.com", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 3, cfg.HTTP.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.HTTP.RetryDelay)
	assert.Equal(t, 10000, cfg.Discovery.MaxPages)
	assert.False(t, cfg.Discovery.Interact)
	assert.Equal(t, 0.7, cfg.Discovery.LikeRatio)
	assert.Equal(t, 50, cfg.Backfill.BatchLimit)
	assert.Equal(t, 5*time.Second, cfg.Backfill.PollInterval)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.NoError(t, cfg.Validate())
}

func TestStoragePaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DataDir = "/var/lib/matchcrawl"

	assert.Equal(t, "/var/lib/matchcrawl/auth_token.json", cfg.TokenPath())
	assert.Equal(t, "/var/lib/matchcrawl/matchcrawl.db", cfg.DBPath())
	assert.Equal(t, "/var/lib/matchcrawl/interactions.json", cfg.LedgerPath())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MATCHCRAWL_BASE_URL", "https://example.test")
	t.Setenv("MATCHCRAWL_MAX_PAGES", "42")
	t.Setenv("MATCHCRAWL_INTERACT", "true")
	t.Setenv("MATCHCRAWL_LIKE_RATIO", "0.5")
	t.Setenv("MATCHCRAWL_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "https://example.test", cfg.API.BaseURL)
	assert.Equal(t, 42, cfg.Discovery.MaxPages)
	assert.True(t, cfg.Discovery.Interact)
	assert.Equal(t, 0.5, cfg.Discovery.LikeRatio)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("MATCHCRAWL_MAX_PAGES", "not-a-number")
	t.Setenv("MATCHCRAWL_REQUESTS_PER_MINUTE", "-5")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 10000, cfg.Discovery.MaxPages)
	assert.Equal(t, 30, cfg.HTTP.RequestsPerMinute)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
api:
  base_url: https://example.test
discovery:
  max_pages: 7
  interact: true
storage:
  data_dir: /tmp/crawl
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "https://example.test", cfg.API.BaseURL)
	assert.Equal(t, 7, cfg.Discovery.MaxPages)
	assert.True(t, cfg.Discovery.Interact)
	assert.Equal(t, "/tmp/crawl", cfg.Storage.DataDir)
	// untouched sections keep their defaults
	assert.Equal(t, 30*time.Second, cfg.HTTP.RequestTimeout)
}

func TestLoadFromFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{not yaml"), 0600))

	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(path))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }},
		{"zero timeout", func(c *Config) { c.HTTP.RequestTimeout = 0 }},
		{"negative retries", func(c *Config) { c.HTTP.MaxRetries = -1 }},
		{"zero rpm", func(c *Config) { c.HTTP.RequestsPerMinute = 0 }},
		{"zero max pages", func(c *Config) { c.Discovery.MaxPages = 0 }},
		{"inverted delay band", func(c *Config) {
			c.Discovery.PageDelayMin = 4 * time.Second
			c.Discovery.PageDelayMax = 2 * time.Second
		}},
		{"like ratio above one", func(c *Config) { c.Discovery.LikeRatio = 1.5 }},
		{"zero batch limit", func(c *Config) { c.Backfill.BatchLimit = 0 }},
		{"zero poll interval", func(c *Config) { c.Backfill.PollInterval = 0 }},
		{"missing data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"data-dir":   "/data",
		"max-pages":  5,
		"interact":   true,
		"like-ratio": 0.25,
		"log-level":  "warn",
	})

	assert.Equal(t, "/data", cfg.Storage.DataDir)
	assert.Equal(t, 5, cfg.Discovery.MaxPages)
	assert.True(t, cfg.Discovery.Interact)
	assert.Equal(t, 0.25, cfg.Discovery.LikeRatio)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Discovery.MaxPages = 123
	require.NoError(t, cfg.Save(path))

	reloaded := DefaultConfig()
	require.NoError(t, reloaded.LoadFromFile(path))
	assert.Equal(t, 123, reloaded.Discovery.MaxPages)
}
