// Package config loads gateway settings from an optional YAML file and the
// environment. Environment variables override the file, which overrides the
// built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/poiesic/searchgate/cache"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverBadger = "badger"
	StoreDriverRedis  = "redis"

	ChargeBeforeCall   = "before_call"
	ChargeAfterSuccess = "after_success"
)

// Config holds every setting of the gateway.
type Config struct {
	TierAllowances        map[string]int `yaml:"daily_web_search_allowance_per_tier" env:"SEARCHGATE_TIER_ALLOWANCES"`
	DefaultTier           string         `yaml:"default_tier" env:"SEARCHGATE_DEFAULT_TIER"`
	CacheTTLHours         int            `yaml:"cache_ttl_hours" env:"SEARCHGATE_CACHE_TTL_HOURS"`
	LowWaterMark          int            `yaml:"low_water_mark_threshold" env:"SEARCHGATE_LOW_WATER_MARK"`
	MaxSearchResults      int            `yaml:"max_search_results" env:"SEARCHGATE_MAX_SEARCH_RESULTS"`
	MaxCacheKeyLength     int            `yaml:"max_cache_key_length" env:"SEARCHGATE_MAX_CACHE_KEY_LENGTH"`
	ProviderTimeout       time.Duration  `yaml:"provider_timeout" env:"SEARCHGATE_PROVIDER_TIMEOUT"`
	CacheHitConsumesQuota bool           `yaml:"cache_hit_consumes_quota" env:"SEARCHGATE_CACHE_HIT_CONSUMES_QUOTA"`
	ChargePolicy          string         `yaml:"charge_policy" env:"SEARCHGATE_CHARGE_POLICY"`
	NotifyPoolSize        int            `yaml:"notify_pool_size" env:"SEARCHGATE_NOTIFY_POOL_SIZE"`
	CleanupInterval       time.Duration  `yaml:"cleanup_interval" env:"SEARCHGATE_CLEANUP_INTERVAL"`
	HTTPAddr              string         `yaml:"http_addr" env:"SEARCHGATE_HTTP_ADDR"`

	// CommunityData is a JSON file loaded into the community index at startup.
	CommunityData string `yaml:"community_data" env:"SEARCHGATE_COMMUNITY_DATA"`

	Store  StoreConfig  `yaml:"store" envPrefix:"SEARCHGATE_STORE_"`
	Tavily TavilyConfig `yaml:"tavily" envPrefix:"TAVILY_"`
	LLM    LLMConfig    `yaml:"llm" envPrefix:"SEARCHGATE_LLM_"`
}

// StoreConfig selects the quota, cache and notification backend.
type StoreConfig struct {
	Driver    string `yaml:"driver" env:"DRIVER"`
	Path      string `yaml:"path" env:"PATH"`
	RedisAddr string `yaml:"redis_addr" env:"REDIS_ADDR"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// TavilyConfig configures the web search provider. Web escalation is
// unavailable when APIKey is empty.
type TavilyConfig struct {
	APIKey      string `yaml:"api_key" env:"API_KEY"`
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	SearchDepth string `yaml:"search_depth" env:"SEARCH_DEPTH"`
}

// LLMConfig configures the summarizer. Summaries are disabled when Host is empty.
type LLMConfig struct {
	Host  string `yaml:"host" env:"HOST"`
	Model string `yaml:"model" env:"MODEL"`
	Token string `yaml:"token" env:"TOKEN"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TierAllowances: map[string]int{
			"free":       10,
			"pro":        100,
			"enterprise": 1000,
		},
		DefaultTier:           "free",
		CacheTTLHours:         24,
		LowWaterMark:          5,
		MaxSearchResults:      5,
		MaxCacheKeyLength:     100,
		ProviderTimeout:       10 * time.Second,
		CacheHitConsumesQuota: true,
		ChargePolicy:          ChargeBeforeCall,
		NotifyPoolSize:        4,
		CleanupInterval:       time.Hour,
		HTTPAddr:              ":8091",
		Store: StoreConfig{
			Driver:    StoreDriverBadger,
			Path:      "./data",
			KeyPrefix: "searchgate",
		},
		Tavily: TavilyConfig{
			Endpoint:    "https://api.tavily.com/search",
			SearchDepth: "basic",
		},
	}
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decodeYAML(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeYAML overlays the document in r. A tier table in the document
// replaces the default table rather than merging with it.
func (c *Config) decodeYAML(r io.Reader) error {
	defaults := c.TierAllowances
	c.TierAllowances = nil

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	if c.TierAllowances == nil {
		c.TierAllowances = defaults
	}
	return nil
}

// CacheTTL returns the cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// WebSearchEnabled reports whether a provider API key is configured.
func (c *Config) WebSearchEnabled() bool {
	return strings.TrimSpace(c.Tavily.APIKey) != ""
}

// SummariesEnabled reports whether an LLM host is configured.
func (c *Config) SummariesEnabled() bool {
	return strings.TrimSpace(c.LLM.Host) != ""
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if len(c.TierAllowances) == 0 {
		return fmt.Errorf("%w: daily_web_search_allowance_per_tier cannot be empty", ErrInvalidConfig)
	}
	for tier, limit := range c.TierAllowances {
		if strings.TrimSpace(tier) == "" {
			return fmt.Errorf("%w: tier names cannot be empty", ErrInvalidConfig)
		}
		if limit < 0 {
			return fmt.Errorf("%w: tier %q has negative allowance %d", ErrInvalidConfig, tier, limit)
		}
	}
	if _, ok := c.TierAllowances[c.DefaultTier]; !ok {
		return fmt.Errorf("%w: default_tier %q has no allowance", ErrInvalidConfig, c.DefaultTier)
	}
	if c.CacheTTLHours <= 0 {
		return fmt.Errorf("%w: cache_ttl_hours must be positive, got %d", ErrInvalidConfig, c.CacheTTLHours)
	}
	if c.LowWaterMark < 0 {
		return fmt.Errorf("%w: low_water_mark_threshold cannot be negative, got %d", ErrInvalidConfig, c.LowWaterMark)
	}
	if c.MaxSearchResults < 1 || c.MaxSearchResults > 20 {
		return fmt.Errorf("%w: max_search_results must be between 1 and 20, got %d", ErrInvalidConfig, c.MaxSearchResults)
	}
	if c.MaxCacheKeyLength < cache.MinMaxKeyLength {
		return fmt.Errorf("%w: max_cache_key_length must be at least %d, got %d", ErrInvalidConfig, cache.MinMaxKeyLength, c.MaxCacheKeyLength)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("%w: provider_timeout must be positive, got %s", ErrInvalidConfig, c.ProviderTimeout)
	}
	switch c.ChargePolicy {
	case ChargeBeforeCall, ChargeAfterSuccess:
	default:
		return fmt.Errorf("%w: charge_policy must be %q or %q, got %q", ErrInvalidConfig, ChargeBeforeCall, ChargeAfterSuccess, c.ChargePolicy)
	}
	if c.NotifyPoolSize <= 0 {
		return fmt.Errorf("%w: notify_pool_size must be positive, got %d", ErrInvalidConfig, c.NotifyPoolSize)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("%w: cleanup_interval must be positive, got %s", ErrInvalidConfig, c.CleanupInterval)
	}

	switch c.Store.Driver {
	case StoreDriverBadger:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for the badger driver", ErrInvalidConfig)
		}
	case StoreDriverRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("%w: store.redis_addr is required for the redis driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.Store.Driver)
	}

	switch c.Tavily.SearchDepth {
	case "basic", "advanced":
	default:
		return fmt.Errorf("%w: tavily.search_depth must be basic or advanced, got %q", ErrInvalidConfig, c.Tavily.SearchDepth)
	}
	return nil
}
