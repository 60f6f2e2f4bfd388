package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "searchgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"free": 10, "pro": 100, "enterprise": 1000}, cfg.TierAllowances)
	assert.Equal(t, "free", cfg.DefaultTier)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL())
	assert.Equal(t, 5, cfg.LowWaterMark)
	assert.Equal(t, 5, cfg.MaxSearchResults)
	assert.Equal(t, 100, cfg.MaxCacheKeyLength)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.True(t, cfg.CacheHitConsumesQuota)
	assert.Equal(t, ChargeBeforeCall, cfg.ChargePolicy)
	assert.Equal(t, 4, cfg.NotifyPoolSize)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.Equal(t, ":8091", cfg.HTTPAddr)
	assert.Equal(t, StoreDriverBadger, cfg.Store.Driver)
	assert.Equal(t, "./data", cfg.Store.Path)
	assert.Equal(t, "https://api.tavily.com/search", cfg.Tavily.Endpoint)
	assert.False(t, cfg.WebSearchEnabled())
	assert.False(t, cfg.SummariesEnabled())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, `
daily_web_search_allowance_per_tier:
  free: 3
  team: 50
cache_ttl_hours: 6
provider_timeout: 2500ms
cache_hit_consumes_quota: false
charge_policy: after_success
store:
  driver: redis
  redis_addr: localhost:6379
tavily:
  api_key: tvly-file
llm:
  host: http://localhost:11434
  model: qwen2.5:3b
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"free": 3, "team": 50}, cfg.TierAllowances)
	assert.Equal(t, 6*time.Hour, cfg.CacheTTL())
	assert.Equal(t, 2500*time.Millisecond, cfg.ProviderTimeout)
	assert.False(t, cfg.CacheHitConsumesQuota)
	assert.Equal(t, ChargeAfterSuccess, cfg.ChargePolicy)
	assert.Equal(t, StoreDriverRedis, cfg.Store.Driver)
	assert.Equal(t, "localhost:6379", cfg.Store.RedisAddr)
	assert.True(t, cfg.WebSearchEnabled())
	assert.True(t, cfg.SummariesEnabled())
	// untouched keys keep their defaults
	assert.Equal(t, 5, cfg.LowWaterMark)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "low_water_mark_threshold: 2\n")

	t.Setenv("SEARCHGATE_TIER_ALLOWANCES", "free:1,pro:20")
	t.Setenv("SEARCHGATE_LOW_WATER_MARK", "3")
	t.Setenv("SEARCHGATE_CLEANUP_INTERVAL", "15m")
	t.Setenv("SEARCHGATE_STORE_PATH", "/var/lib/searchgate")
	t.Setenv("TAVILY_API_KEY", "tvly-env")
	t.Setenv("TAVILY_ENDPOINT", "http://tavily.test/search")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"free": 1, "pro": 20}, cfg.TierAllowances)
	assert.Equal(t, 3, cfg.LowWaterMark)
	assert.Equal(t, 15*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, "/var/lib/searchgate", cfg.Store.Path)
	assert.Equal(t, "tvly-env", cfg.Tavily.APIKey)
	assert.Equal(t, "http://tavily.test/search", cfg.Tavily.Endpoint)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "unknown_key: 1\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "charge_policy: sometimes\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv("SEARCHGATE_LOW_WATER_MARK", "lots")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().TierAllowances, cfg.TierAllowances)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty allowances", func(c *Config) { c.TierAllowances = map[string]int{} }},
		{"negative allowance", func(c *Config) { c.TierAllowances["free"] = -1 }},
		{"default tier missing", func(c *Config) { c.DefaultTier = "gold" }},
		{"zero ttl", func(c *Config) { c.CacheTTLHours = 0 }},
		{"negative low water mark", func(c *Config) { c.LowWaterMark = -1 }},
		{"too many results", func(c *Config) { c.MaxSearchResults = 21 }},
		{"short key length", func(c *Config) { c.MaxCacheKeyLength = 8 }},
		{"key length below digest suffix", func(c *Config) { c.MaxCacheKeyLength = 17 }},
		{"zero timeout", func(c *Config) { c.ProviderTimeout = 0 }},
		{"unknown charge policy", func(c *Config) { c.ChargePolicy = "never" }},
		{"zero pool", func(c *Config) { c.NotifyPoolSize = 0 }},
		{"zero cleanup interval", func(c *Config) { c.CleanupInterval = 0 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"badger without path", func(c *Config) { c.Store.Path = "" }},
		{"redis without addr", func(c *Config) { c.Store.Driver = StoreDriverRedis }},
		{"bad search depth", func(c *Config) { c.Tavily.SearchDepth = "deep" }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
